package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"captain-dispatch/internal/apperr"
	"captain-dispatch/internal/domain"
	"captain-dispatch/internal/ports/dispatchtx"
)

// WithTx opens a transaction and executes fn within it.
func (s *Store) WithTx(ctx context.Context, fn func(tx dispatchtx.Repository) error) (err error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(&TxRepo{tx: tx}); err != nil {
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

// TxRepo represents transaction repository. Rows read "for update" stay
// locked until the transaction ends.
type TxRepo struct {
	tx pgx.Tx
}

func (r *TxRepo) GetOrderForUpdate(ctx context.Context, orderID string) (*domain.Order, error) {
	return getOrder(ctx, r.tx, orderID, true)
}

// SaveOrder persists status, captain binding and the appended timeline entries.
func (r *TxRepo) SaveOrder(ctx context.Context, o *domain.Order, appended []domain.TimelineEntry) error {
	ct, err := r.tx.Exec(ctx, `
        UPDATE orders
        SET status = $2, captain_id = NULLIF($3, ''), updated_at = $4
        WHERE id = $1
    `, o.ID, string(o.Status), o.CaptainID, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update order %q: %w", o.ID, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("order %q: %w", o.ID, apperr.ErrNotFound)
	}
	return insertTimeline(ctx, r.tx, o.ID, appended)
}

func (r *TxRepo) GetAssignment(ctx context.Context, orderID string) (*domain.Assignment, error) {
	return getAssignment(ctx, r.tx, orderID)
}

// InsertAssignment fails with apperr.ErrConflict when the order is already bound.
func (r *TxRepo) InsertAssignment(ctx context.Context, a domain.Assignment) error {
	_, err := r.tx.Exec(ctx, `
        INSERT INTO assignments (order_id, captain_id, assigned_at)
        VALUES ($1, $2, $3)
    `, a.OrderID, a.CaptainID, a.AssignedAt)
	if err != nil {
		if IsDuplicate(err) {
			return fmt.Errorf("assignment for %q: %w", a.OrderID, apperr.ErrConflict)
		}
		return fmt.Errorf("insert assignment: %w", err)
	}
	return nil
}

func (r *TxRepo) DeleteAssignment(ctx context.Context, orderID string) error {
	ct, err := r.tx.Exec(ctx, `DELETE FROM assignments WHERE order_id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("delete assignment of %q: %w", orderID, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("assignment for %q: %w", orderID, apperr.ErrNotFound)
	}
	return nil
}

func (r *TxRepo) GetCaptainForUpdate(ctx context.Context, captainID string) (*domain.Captain, error) {
	return getCaptain(ctx, r.tx, `c.id = $1`, captainID, true)
}

// UpdateCaptainPresence sets status and availability and adds delivered to
// the delivery counter.
func (r *TxRepo) UpdateCaptainPresence(ctx context.Context, captainID string, status domain.CaptainStatus, available bool, delivered int) error {
	ct, err := r.tx.Exec(ctx, `
        UPDATE captains
        SET status = $2, is_available = $3, total_deliveries = total_deliveries + $4, updated_at = now()
        WHERE id = $1
    `, captainID, string(status), available, delivered)
	if err != nil {
		return fmt.Errorf("update captain presence %q: %w", captainID, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("captain %q: %w", captainID, apperr.ErrNotFound)
	}
	return nil
}

var (
	_ dispatchtx.Runner     = (*Store)(nil)
	_ dispatchtx.Repository = (*TxRepo)(nil)
)
