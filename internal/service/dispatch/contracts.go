package dispatch

import (
	"context"

	"captain-dispatch/internal/domain"
	"captain-dispatch/internal/ports/dispatchtx"
	"captain-dispatch/internal/service/notify"
)

// Store is the storage the coordinator reads outside transactions.
// Lookups return nil, nil when the row does not exist.
type Store interface {
	dispatchtx.Runner
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	GetAssignment(ctx context.Context, orderID string) (*domain.Assignment, error)
	GetCaptain(ctx context.Context, captainID string) (*domain.Captain, error)
	ListCaptains(ctx context.Context) ([]domain.Captain, error)
}

// Notifier emits notifications for dispatch events.
type Notifier interface {
	Emit(ctx context.Context, ev notify.Event) (notify.Result, error)
	EmitToRole(ctx context.Context, role domain.Role, ev notify.Event) (notify.Report, error)
}

// StatusPublisher announces applied transitions to other systems.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, change domain.StatusChange) error
}
