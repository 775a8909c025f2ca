package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"captain-dispatch/internal/apperr"
	"captain-dispatch/internal/domain"
)

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the postgres implementation of the dispatch storage ports.
type Store struct {
	db *pgxpool.Pool
}

// NewStore creates a new Store.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const orderColumns = `
    id, order_number, status, customer_id, COALESCE(captain_id, ''),
    address_street, address_city, address_notes, address_lat, address_lng,
    items, total_amount::text, priority, created_at, updated_at`

const captainColumns = `
    c.id, u.username, u.password_hash, u.name, c.phone, c.vehicle_type, c.status, c.is_available,
    c.lat, c.lng, c.heading, c.speed, c.accuracy, c.location_at,
    c.rating, c.total_deliveries, c.updated_at`

type itemRecord struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// CreateOrder stores a new order with its initial timeline.
func (s *Store) CreateOrder(ctx context.Context, o *domain.Order) error {
	items := make([]itemRecord, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, itemRecord(it))
	}
	rawItems, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}
	var lat, lng *float64
	if c := o.DeliveryAddress.Coordinates; c != nil {
		lat, lng = &c.Lat, &c.Lng
	}

	return s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
        INSERT INTO orders (id, order_number, status, customer_id, captain_id,
            address_street, address_city, address_notes, address_lat, address_lng,
            items, total_amount, priority, created_at, updated_at)
        VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11, $12::numeric, $13, $14, $15)
    `, o.ID, o.OrderNumber, string(o.Status), o.CustomerID, o.CaptainID,
			o.DeliveryAddress.Street, o.DeliveryAddress.City, o.DeliveryAddress.Notes, lat, lng,
			rawItems, o.TotalAmount.String(), string(o.Priority), o.CreatedAt, o.UpdatedAt)
		if err != nil {
			if IsDuplicate(err) {
				return fmt.Errorf("order %q: %w", o.ID, apperr.ErrConflict)
			}
			return fmt.Errorf("insert order: %w", err)
		}
		return insertTimeline(ctx, tx, o.ID, o.Timeline)
	})
}

// GetOrder returns nil, nil when the order does not exist.
func (s *Store) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return getOrder(ctx, s.db, orderID, false)
}

func (s *Store) GetAssignment(ctx context.Context, orderID string) (*domain.Assignment, error) {
	return getAssignment(ctx, s.db, orderID)
}

// ListAssignedOrders returns orders currently bound to the captain.
func (s *Store) ListAssignedOrders(ctx context.Context, captainID string) ([]domain.Order, error) {
	rows, err := s.db.Query(ctx, `
        SELECT `+orderColumns+`
        FROM orders
        WHERE id IN (SELECT order_id FROM assignments WHERE captain_id = $1)
        ORDER BY id
    `, captainID)
	if err != nil {
		return nil, fmt.Errorf("list assigned orders of %q: %w", captainID, err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := attachTimelines(ctx, s.db, out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateCaptain stores the captain profile and its captain-role user.
func (s *Store) CreateCaptain(ctx context.Context, c *domain.Captain) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := insertUser(ctx, tx, &domain.User{
			ID:           c.ID,
			Username:     c.Username,
			PasswordHash: c.PasswordHash,
			Name:         c.Name,
			Role:         domain.RoleCaptain,
			LastActiveAt: c.UpdatedAt,
		}); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
        INSERT INTO captains (id, phone, vehicle_type, status, is_available, rating, total_deliveries, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `, c.ID, c.Phone, string(c.VehicleType), string(c.Status), c.IsAvailable, c.Rating, c.TotalDeliveries, nowIfZero(c.UpdatedAt))
		if err != nil {
			if IsDuplicate(err) {
				return fmt.Errorf("captain %q: %w", c.ID, apperr.ErrConflict)
			}
			return fmt.Errorf("insert captain: %w", err)
		}
		return nil
	})
}

func (s *Store) GetCaptain(ctx context.Context, captainID string) (*domain.Captain, error) {
	return getCaptain(ctx, s.db, `c.id = $1`, captainID, false)
}

func (s *Store) GetCaptainByUsername(ctx context.Context, username string) (*domain.Captain, error) {
	return getCaptain(ctx, s.db, `lower(u.username) = lower($1)`, username, false)
}

// ListCaptains returns every captain ordered by id.
func (s *Store) ListCaptains(ctx context.Context) ([]domain.Captain, error) {
	rows, err := s.db.Query(ctx, `
        SELECT `+captainColumns+`
        FROM captains c JOIN users u ON u.id = c.id
        ORDER BY c.id
    `)
	if err != nil {
		return nil, fmt.Errorf("list captains: %w", err)
	}
	defer rows.Close()

	var out []domain.Captain
	for rows.Next() {
		c, err := scanCaptain(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// UpdateCaptainLocation overwrites the last known location and returns the
// previous one, or nil when the captain never reported.
func (s *Store) UpdateCaptainLocation(ctx context.Context, captainID string, loc domain.Location) (*domain.Location, error) {
	var (
		lat, lng, heading, speed, accuracy *float64
		at                                 *time.Time
	)
	err := s.db.QueryRow(ctx, `
        WITH prev AS (
            SELECT id, lat, lng, heading, speed, accuracy, location_at
            FROM captains
            WHERE id = $1
            FOR UPDATE
        )
        UPDATE captains c
        SET lat = $2, lng = $3, heading = $4, speed = $5, accuracy = $6,
            location_at = $7, updated_at = $7
        FROM prev
        WHERE c.id = prev.id
        RETURNING prev.lat, prev.lng, prev.heading, prev.speed, prev.accuracy, prev.location_at
    `, captainID, loc.Lat, loc.Lng, loc.Heading, loc.Speed, loc.Accuracy, loc.Timestamp,
	).Scan(&lat, &lng, &heading, &speed, &accuracy, &at)
	if err != nil {
		if IsNotFound(err) {
			return nil, fmt.Errorf("captain %q: %w", captainID, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("update captain location %q: %w", captainID, err)
	}
	return toLocation(lat, lng, heading, speed, accuracy, at), nil
}

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	return insertUser(ctx, s.db, u)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	var u domain.User
	err := s.db.QueryRow(ctx, `
        SELECT id, username, password_hash, name, role, last_active_at
        FROM users
        WHERE lower(username) = lower($1)
    `, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Name, &u.Role, &u.LastActiveAt)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user %q: %w", username, err)
	}
	return &u, nil
}

// ListUsers resolves a notification audience.
func (s *Store) ListUsers(ctx context.Context, f domain.UserFilter) ([]domain.User, error) {
	q := `SELECT id, username, password_hash, name, role, last_active_at FROM users`
	var (
		where []string
		args  []any
	)
	if f.Role != "" {
		args = append(args, string(f.Role))
		where = append(where, fmt.Sprintf("role = $%d", len(args)))
	}
	if !f.ActiveSince.IsZero() {
		args = append(args, f.ActiveSince)
		where = append(where, fmt.Sprintf("last_active_at >= $%d", len(args)))
	}
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id"

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Name, &u.Role, &u.LastActiveAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// TouchUser records activity for audience filtering.
func (s *Store) TouchUser(ctx context.Context, userID string, at time.Time) error {
	ct, err := s.db.Exec(ctx, `UPDATE users SET last_active_at = $2 WHERE id = $1`, userID, at)
	if err != nil {
		return fmt.Errorf("touch user %q: %w", userID, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("user %q: %w", userID, apperr.ErrNotFound)
	}
	return nil
}

// CreateNotification persists n. A second record with the same recipient
// and source is rejected with apperr.ErrConflict.
func (s *Store) CreateNotification(ctx context.Context, n *domain.Notification) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO notifications (id, user_id, title, message, category, priority, icon,
            source_id, source_type, scheduled_for, is_read, read_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
    `, n.ID, n.UserID, n.Title, n.Message, string(n.Category), string(n.Priority), n.Icon,
		n.SourceID, n.SourceType, n.ScheduledFor, n.IsRead, n.ReadAt, n.CreatedAt)
	if err != nil {
		if IsDuplicate(err) {
			return fmt.Errorf("notification %s/%s for %s: %w", n.SourceType, n.SourceID, n.UserID, apperr.ErrConflict)
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListUnread returns unread notifications that became due after since and
// by until, oldest due first.
func (s *Store) ListUnread(ctx context.Context, userID string, since, until time.Time, limit int) ([]domain.Notification, error) {
	q := `
        SELECT id, user_id, title, message, category, priority, icon, source_id, source_type,
            scheduled_for, is_read, read_at, created_at
        FROM notifications
        WHERE user_id = $1 AND NOT is_read
          AND COALESCE(scheduled_for, created_at) > $2
          AND (scheduled_for IS NULL OR scheduled_for <= $3)
        ORDER BY COALESCE(scheduled_for, created_at), id`
	args := []any{userID, since, until}
	if limit > 0 {
		q += " LIMIT $4"
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list unread of %q: %w", userID, err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Category, &n.Priority, &n.Icon,
			&n.SourceID, &n.SourceType, &n.ScheduledFor, &n.IsRead, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationRead flips the read state of a notification owned by userID.
func (s *Store) MarkNotificationRead(ctx context.Context, userID, notificationID string, at time.Time) error {
	ct, err := s.db.Exec(ctx, `
        UPDATE notifications
        SET is_read = true, read_at = COALESCE(read_at, $3)
        WHERE id = $1 AND user_id = $2
    `, notificationID, userID, at)
	if err != nil {
		return fmt.Errorf("mark notification %q read: %w", notificationID, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("notification %q: %w", notificationID, apperr.ErrNotFound)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback tx: %w (original error: %s)", rbErr, err.Error())
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func insertUser(ctx context.Context, q querier, u *domain.User) error {
	_, err := q.Exec(ctx, `
        INSERT INTO users (id, username, password_hash, name, role, last_active_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, u.ID, u.Username, u.PasswordHash, u.Name, string(u.Role), nowIfZero(u.LastActiveAt))
	if err != nil {
		if IsDuplicate(err) {
			return fmt.Errorf("user %q: %w", u.Username, apperr.ErrConflict)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func getOrder(ctx context.Context, q querier, orderID string, forUpdate bool) (*domain.Order, error) {
	sql := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	o, err := scanOrder(q.QueryRow(ctx, sql, orderID))
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order %q: %w", orderID, err)
	}
	one := []domain.Order{*o}
	if err := attachTimelines(ctx, q, one); err != nil {
		return nil, err
	}
	return &one[0], nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o        domain.Order
		lat, lng *float64
		rawItems []byte
		total    string
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &o.Status, &o.CustomerID, &o.CaptainID,
		&o.DeliveryAddress.Street, &o.DeliveryAddress.City, &o.DeliveryAddress.Notes, &lat, &lng,
		&rawItems, &total, &o.Priority, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lat != nil && lng != nil {
		o.DeliveryAddress.Coordinates = &domain.GeoPoint{Lat: *lat, Lng: *lng}
	}
	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("decode total of %q: %w", o.ID, err)
	}
	var items []itemRecord
	if err := json.Unmarshal(rawItems, &items); err != nil {
		return nil, fmt.Errorf("decode items of %q: %w", o.ID, err)
	}
	for _, it := range items {
		o.Items = append(o.Items, domain.OrderItem(it))
	}
	return &o, nil
}

// attachTimelines loads the timelines of orders in one query.
func attachTimelines(ctx context.Context, q querier, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	pos := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		pos[o.ID] = i
	}
	rows, err := q.Query(ctx, `
        SELECT order_id, status, description, notes, lat, lng, at
        FROM order_timeline
        WHERE order_id = ANY($1)
        ORDER BY order_id, id
    `, ids)
	if err != nil {
		return fmt.Errorf("load timelines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID  string
			e        domain.TimelineEntry
			lat, lng *float64
		)
		if err := rows.Scan(&orderID, &e.Status, &e.Description, &e.Notes, &lat, &lng, &e.Timestamp); err != nil {
			return err
		}
		if lat != nil && lng != nil {
			e.Location = &domain.GeoPoint{Lat: *lat, Lng: *lng}
		}
		i := pos[orderID]
		orders[i].Timeline = append(orders[i].Timeline, e)
	}
	return rows.Err()
}

func insertTimeline(ctx context.Context, q querier, orderID string, entries []domain.TimelineEntry) error {
	for _, e := range entries {
		var lat, lng *float64
		if e.Location != nil {
			lat, lng = &e.Location.Lat, &e.Location.Lng
		}
		_, err := q.Exec(ctx, `
        INSERT INTO order_timeline (order_id, status, description, notes, lat, lng, at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, orderID, string(e.Status), e.Description, e.Notes, lat, lng, e.Timestamp)
		if err != nil {
			return fmt.Errorf("append timeline of %q: %w", orderID, err)
		}
	}
	return nil
}

func getAssignment(ctx context.Context, q querier, orderID string) (*domain.Assignment, error) {
	var a domain.Assignment
	err := q.QueryRow(ctx, `
        SELECT order_id, captain_id, assigned_at
        FROM assignments
        WHERE order_id = $1
    `, orderID).Scan(&a.OrderID, &a.CaptainID, &a.AssignedAt)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get assignment of %q: %w", orderID, err)
	}
	return &a, nil
}

func getCaptain(ctx context.Context, q querier, cond string, arg any, forUpdate bool) (*domain.Captain, error) {
	sql := `SELECT ` + captainColumns + ` FROM captains c JOIN users u ON u.id = c.id WHERE ` + cond
	if forUpdate {
		sql += ` FOR UPDATE OF c`
	}
	c, err := scanCaptain(q.QueryRow(ctx, sql, arg))
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get captain %v: %w", arg, err)
	}
	return c, nil
}

func scanCaptain(row pgx.Row) (*domain.Captain, error) {
	var (
		c                                  domain.Captain
		lat, lng, heading, speed, accuracy *float64
		at                                 *time.Time
	)
	err := row.Scan(&c.ID, &c.Username, &c.PasswordHash, &c.Name, &c.Phone, &c.VehicleType, &c.Status, &c.IsAvailable,
		&lat, &lng, &heading, &speed, &accuracy, &at,
		&c.Rating, &c.TotalDeliveries, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.CurrentLocation = toLocation(lat, lng, heading, speed, accuracy, at)
	return &c, nil
}

func toLocation(lat, lng, heading, speed, accuracy *float64, at *time.Time) *domain.Location {
	if lat == nil || lng == nil || at == nil {
		return nil
	}
	return &domain.Location{
		Lat:       *lat,
		Lng:       *lng,
		Heading:   heading,
		Speed:     speed,
		Accuracy:  accuracy,
		Timestamp: *at,
	}
}

func nowIfZero(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
