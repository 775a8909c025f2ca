package memory

import (
	"context"
	"fmt"
	"time"

	"captain-dispatch/internal/apperr"
	"captain-dispatch/internal/domain"
	"captain-dispatch/internal/ports/dispatchtx"
)

// WithTx runs fn with exclusive write access. Changes are rolled back when
// fn returns an error or panics.
func (s *Store) WithTx(ctx context.Context, fn func(tx dispatchtx.Repository) error) (err error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	tx := &txRepo{s: s}
	defer func() {
		if p := recover(); p != nil {
			tx.rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

type txRepo struct {
	s    *Store
	undo []func()
}

func (r *txRepo) rollback() {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := len(r.undo) - 1; i >= 0; i-- {
		r.undo[i]()
	}
	r.undo = nil
}

func (r *txRepo) GetOrderForUpdate(ctx context.Context, orderID string) (*domain.Order, error) {
	return r.s.GetOrder(ctx, orderID)
}

func (r *txRepo) SaveOrder(_ context.Context, o *domain.Order, appended []domain.TimelineEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.orders[o.ID]
	if !ok {
		return fmt.Errorf("order %q: %w", o.ID, apperr.ErrNotFound)
	}
	prev := cur.Clone()
	r.undo = append(r.undo, func() { r.s.orders[o.ID] = prev })

	next := cur.Clone()
	next.Status = o.Status
	next.CaptainID = o.CaptainID
	next.UpdatedAt = o.UpdatedAt
	next.Timeline = append(next.Timeline, appended...)
	r.s.orders[o.ID] = next
	return nil
}

func (r *txRepo) GetAssignment(ctx context.Context, orderID string) (*domain.Assignment, error) {
	return r.s.GetAssignment(ctx, orderID)
}

func (r *txRepo) InsertAssignment(_ context.Context, a domain.Assignment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.assignments[a.OrderID]; ok {
		return fmt.Errorf("assignment for %q: %w", a.OrderID, apperr.ErrConflict)
	}
	r.s.assignments[a.OrderID] = a
	r.undo = append(r.undo, func() { delete(r.s.assignments, a.OrderID) })
	return nil
}

func (r *txRepo) DeleteAssignment(_ context.Context, orderID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.assignments[orderID]
	if !ok {
		return fmt.Errorf("assignment for %q: %w", orderID, apperr.ErrNotFound)
	}
	delete(r.s.assignments, orderID)
	r.undo = append(r.undo, func() { r.s.assignments[orderID] = a })
	return nil
}

func (r *txRepo) GetCaptainForUpdate(ctx context.Context, captainID string) (*domain.Captain, error) {
	return r.s.GetCaptain(ctx, captainID)
}

// UpdateCaptainPresence only touches presence fields so a concurrent
// location write survives a rollback.
func (r *txRepo) UpdateCaptainPresence(_ context.Context, captainID string, status domain.CaptainStatus, available bool, delivered int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.captains[captainID]
	if !ok {
		return fmt.Errorf("captain %q: %w", captainID, apperr.ErrNotFound)
	}
	prevStatus, prevAvailable, prevTotal := c.Status, c.IsAvailable, c.TotalDeliveries
	r.undo = append(r.undo, func() {
		c.Status, c.IsAvailable, c.TotalDeliveries = prevStatus, prevAvailable, prevTotal
	})
	c.Status = status
	c.IsAvailable = available
	c.TotalDeliveries += delivered
	c.UpdatedAt = time.Now().UTC()
	return nil
}
