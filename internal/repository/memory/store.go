// Package memory is an in-process implementation of the dispatch storage
// ports. It backs the memory storage driver and service tests.
//
// Transactions are serialized. Writes made inside WithTx are applied as they
// happen and reverted from an undo log when the callback fails.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"captain-dispatch/internal/apperr"
	"captain-dispatch/internal/domain"
	"captain-dispatch/internal/ports/dispatchtx"
)

// Store keeps every table in maps guarded by one lock.
type Store struct {
	txMu sync.Mutex

	mu            sync.RWMutex
	orders        map[string]*domain.Order
	assignments   map[string]domain.Assignment
	captains      map[string]*domain.Captain
	users         map[string]*domain.User
	notifications []*domain.Notification
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		orders:      make(map[string]*domain.Order),
		assignments: make(map[string]domain.Assignment),
		captains:    make(map[string]*domain.Captain),
		users:       make(map[string]*domain.User),
	}
}

// CreateOrder stores a copy of o.
func (s *Store) CreateOrder(_ context.Context, o *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return fmt.Errorf("order %q: %w", o.ID, apperr.ErrConflict)
	}
	s.orders[o.ID] = o.Clone()
	return nil
}

// GetOrder returns nil, nil when the order does not exist.
func (s *Store) GetOrder(_ context.Context, orderID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orders[orderID].Clone(), nil
}

func (s *Store) GetAssignment(_ context.Context, orderID string) (*domain.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.assignment(orderID), nil
}

func (s *Store) assignment(orderID string) *domain.Assignment {
	a, ok := s.assignments[orderID]
	if !ok {
		return nil
	}
	return &a
}

// ListAssignedOrders returns orders currently bound to the captain.
func (s *Store) ListAssignedOrders(_ context.Context, captainID string) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Order
	for id, a := range s.assignments {
		if a.CaptainID != captainID {
			continue
		}
		if o := s.orders[id]; o != nil {
			out = append(out, *o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateCaptain stores the captain and its captain-role user.
func (s *Store) CreateCaptain(_ context.Context, c *domain.Captain) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.captains[c.ID]; ok {
		return fmt.Errorf("captain %q: %w", c.ID, apperr.ErrConflict)
	}
	if err := s.insertUser(&domain.User{
		ID:           c.ID,
		Username:     c.Username,
		PasswordHash: c.PasswordHash,
		Name:         c.Name,
		Role:         domain.RoleCaptain,
		LastActiveAt: c.UpdatedAt,
	}); err != nil {
		return err
	}
	s.captains[c.ID] = cloneCaptain(c)
	return nil
}

func (s *Store) GetCaptain(_ context.Context, captainID string) (*domain.Captain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneCaptain(s.captains[captainID]), nil
}

func (s *Store) GetCaptainByUsername(_ context.Context, username string) (*domain.Captain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.captains {
		if strings.EqualFold(c.Username, username) {
			return cloneCaptain(c), nil
		}
	}
	return nil, nil
}

// ListCaptains returns every captain ordered by id.
func (s *Store) ListCaptains(_ context.Context) ([]domain.Captain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Captain, 0, len(s.captains))
	for _, c := range s.captains {
		out = append(out, *cloneCaptain(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateCaptainLocation overwrites the last known location and returns the
// previous one.
func (s *Store) UpdateCaptainLocation(_ context.Context, captainID string, loc domain.Location) (*domain.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.captains[captainID]
	if !ok {
		return nil, fmt.Errorf("captain %q: %w", captainID, apperr.ErrNotFound)
	}
	prev := c.CurrentLocation
	next := cloneLocation(&loc)
	c.CurrentLocation = next
	c.UpdatedAt = loc.Timestamp
	return prev, nil
}

func (s *Store) CreateUser(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertUser(u)
}

func (s *Store) insertUser(u *domain.User) error {
	if _, ok := s.users[u.ID]; ok {
		return fmt.Errorf("user %q: %w", u.ID, apperr.ErrConflict)
	}
	for _, existing := range s.users {
		if strings.EqualFold(existing.Username, u.Username) {
			return fmt.Errorf("user %q: %w", u.Username, apperr.ErrConflict)
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

// ListUsers resolves a notification audience, ordered by id.
func (s *Store) ListUsers(_ context.Context, f domain.UserFilter) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.User
	for _, u := range s.users {
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if !f.ActiveSince.IsZero() && u.LastActiveAt.Before(f.ActiveSince) {
			continue
		}
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) TouchUser(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %q: %w", userID, apperr.ErrNotFound)
	}
	u.LastActiveAt = at
	return nil
}

// CreateNotification rejects a second record with the same recipient and
// non-empty source.
func (s *Store) CreateNotification(_ context.Context, n *domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cur := range s.notifications {
		if cur.ID == n.ID {
			return fmt.Errorf("notification %q: %w", n.ID, apperr.ErrConflict)
		}
		if n.SourceID != "" && cur.UserID == n.UserID && cur.SourceType == n.SourceType && cur.SourceID == n.SourceID {
			return fmt.Errorf("notification %s/%s for %s: %w", n.SourceType, n.SourceID, n.UserID, apperr.ErrConflict)
		}
	}
	s.notifications = append(s.notifications, cloneNotification(n))
	return nil
}

// ListUnread returns unread notifications that became due after since and
// by until, oldest due first.
func (s *Store) ListUnread(_ context.Context, userID string, since, until time.Time, limit int) ([]domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Notification
	for _, n := range s.notifications {
		if n.UserID != userID || n.IsRead || !n.DueAt().After(since) || n.Deferred(until) {
			continue
		}
		out = append(out, *cloneNotification(n))
	}
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := out[i].DueAt(), out[j].DueAt()
		if di.Equal(dj) {
			return out[i].ID < out[j].ID
		}
		return di.Before(dj)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkNotificationRead(_ context.Context, userID, notificationID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notifications {
		if n.ID != notificationID || n.UserID != userID {
			continue
		}
		n.IsRead = true
		if n.ReadAt == nil {
			t := at
			n.ReadAt = &t
		}
		return nil
	}
	return fmt.Errorf("notification %q: %w", notificationID, apperr.ErrNotFound)
}

func cloneCaptain(c *domain.Captain) *domain.Captain {
	if c == nil {
		return nil
	}
	cp := *c
	cp.CurrentLocation = cloneLocation(c.CurrentLocation)
	return &cp
}

func cloneLocation(l *domain.Location) *domain.Location {
	if l == nil {
		return nil
	}
	cp := *l
	cp.Heading = copyFloat(l.Heading)
	cp.Speed = copyFloat(l.Speed)
	cp.Accuracy = copyFloat(l.Accuracy)
	return &cp
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneNotification(n *domain.Notification) *domain.Notification {
	cp := *n
	if n.ScheduledFor != nil {
		t := *n.ScheduledFor
		cp.ScheduledFor = &t
	}
	if n.ReadAt != nil {
		t := *n.ReadAt
		cp.ReadAt = &t
	}
	return &cp
}

var (
	_ dispatchtx.Runner     = (*Store)(nil)
	_ dispatchtx.Repository = (*txRepo)(nil)
)
