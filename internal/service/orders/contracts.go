//go:generate mockgen -source=contracts.go -destination=orders_mocks_test.go -package=orders_test

package orders

import (
	"context"

	"captain-dispatch/internal/domain"
	"captain-dispatch/internal/service/dispatch"
	"captain-dispatch/internal/service/notify"
)

// OrderStore is the part of the order storage the processor writes to.
type OrderStore interface {
	CreateOrder(ctx context.Context, o *domain.Order) error
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
}

// Dispatcher abstracts the dispatch operations driven by order events.
type Dispatcher interface {
	MarkReady(ctx context.Context, orderID, notes string) (*domain.Order, error)
	CancelOrder(ctx context.Context, actor dispatch.Actor, orderID, reason string) (*domain.Order, error)
}

// Notifier emits notifications for order events.
type Notifier interface {
	Emit(ctx context.Context, ev notify.Event) (notify.Result, error)
	EmitToRole(ctx context.Context, role domain.Role, ev notify.Event) (notify.Report, error)
}
