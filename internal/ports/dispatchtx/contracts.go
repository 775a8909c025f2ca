package dispatchtx

import (
	"context"

	"captain-dispatch/internal/domain"
)

// Repository is the set of operations allowed inside a dispatch transaction.
// Lookups return nil, nil when the row does not exist.
type Repository interface {
	GetOrderForUpdate(ctx context.Context, orderID string) (*domain.Order, error)
	// SaveOrder persists status, captain binding and the appended timeline entries.
	SaveOrder(ctx context.Context, o *domain.Order, appended []domain.TimelineEntry) error
	GetAssignment(ctx context.Context, orderID string) (*domain.Assignment, error)
	// InsertAssignment fails with apperr.ErrConflict when the order is already bound.
	InsertAssignment(ctx context.Context, a domain.Assignment) error
	DeleteAssignment(ctx context.Context, orderID string) error
	GetCaptainForUpdate(ctx context.Context, captainID string) (*domain.Captain, error)
	// UpdateCaptainPresence sets status/availability and adds delivered to the counter.
	UpdateCaptainPresence(ctx context.Context, captainID string, status domain.CaptainStatus, available bool, delivered int) error
}

// Runner is a transaction runner.
type Runner interface {
	WithTx(ctx context.Context, fn func(tx Repository) error) error
}
