// Package orders applies events published by order management to dispatch.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"captain-dispatch/internal/apperr"
	"captain-dispatch/internal/domain"
	"captain-dispatch/internal/logx"
	"captain-dispatch/internal/service/dispatch"
	"captain-dispatch/internal/service/notify"
)

// Processor processes order events. Every handler is safe to run again for
// the same event: duplicates are absorbed by the store and by notification
// dedupe.
type Processor struct {
	store      OrderStore
	dispatcher Dispatcher
	notifier   Notifier
	logger     logx.Logger
	factory    *actionFactory
	now        func() time.Time
}

// NewProcessor creates a Processor.
func NewProcessor(store OrderStore, dispatcher Dispatcher, notifier Notifier, logger logx.Logger) *Processor {
	if logger == nil {
		logger = logx.Nop()
	}
	p := &Processor{
		store:      store,
		dispatcher: dispatcher,
		notifier:   notifier,
		logger:     logger.With(logx.Component("orders")),
		now:        func() time.Time { return time.Now().UTC() },
	}
	p.factory = newActionFactory(p)
	return p
}

// Handle processes a single Event. Unknown event types are ignored.
func (p *Processor) Handle(ctx context.Context, e Event) error {
	if p.factory == nil {
		return nil
	}
	fn, ok := p.factory.get(e.Type)
	if !ok {
		p.logger.Debug("order event ignored", logx.String("type", e.Type), logx.String("order_id", e.OrderID))
		return nil
	}
	return fn(ctx, e)
}

func (p *Processor) onCreated(ctx context.Context, e Event) error {
	o, err := p.newOrder(e)
	if err != nil {
		return err
	}
	err = p.store.CreateOrder(ctx, o)
	switch {
	case errors.Is(err, apperr.ErrConflict):
		// redelivery: the order exists, the notification may not
		existing, err := p.store.GetOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			o = existing
		}
	case err != nil:
		return err
	default:
		p.logger.Info("order registered",
			logx.String("event", "order_created"),
			logx.String("order_id", o.ID),
			logx.String("customer_id", o.CustomerID),
		)
	}
	_, err = p.notifier.Emit(ctx, notify.OrderCreated(o))
	return err
}

func (p *Processor) onPrintCompleted(ctx context.Context, e Event) error {
	o, err := p.lookup(ctx, e)
	if err != nil || o == nil {
		return err
	}
	_, err = p.notifier.Emit(ctx, notify.PrintJobCompleted(o))
	return err
}

func (p *Processor) onReady(ctx context.Context, e Event) error {
	_, err := p.dispatcher.MarkReady(ctx, e.OrderID, e.Reason)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		p.logger.Warn("ready event for unknown order", logx.String("order_id", e.OrderID))
		return nil
	case errors.Is(err, apperr.ErrInvalidTransition):
		// already past new; a redelivered event lands here
		return nil
	}
	return err
}

func (p *Processor) onCancelled(ctx context.Context, e Event) error {
	_, err := p.dispatcher.CancelOrder(ctx, dispatch.SystemActor, e.OrderID, e.Reason)
	if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrInvalidTransition) {
		return nil
	}
	return err
}

func (p *Processor) onReview(ctx context.Context, e Event) error {
	if e.Rating < 1 || e.Rating > 5 {
		return apperr.Invalid("rating must be within [1, 5]")
	}
	o, err := p.lookup(ctx, e)
	if err != nil || o == nil {
		return err
	}
	if o.CaptainID != "" {
		if _, err := p.notifier.Emit(ctx, notify.ReviewReceived(o.CaptainID, o, e.Rating)); err != nil {
			return err
		}
	}
	rep, err := p.notifier.EmitToRole(ctx, domain.RoleAdmin, notify.ReviewReceived("", o, e.Rating))
	if err != nil && rep.Sent == 0 {
		return err
	}
	return nil
}

// lookup returns nil, nil for orders this service has never seen.
func (p *Processor) lookup(ctx context.Context, e Event) (*domain.Order, error) {
	o, err := p.store.GetOrder(ctx, e.OrderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if o == nil {
		p.logger.Warn("event for unknown order", logx.String("type", e.Type), logx.String("order_id", e.OrderID))
	}
	return o, nil
}

func (p *Processor) newOrder(e Event) (*domain.Order, error) {
	if e.Order == nil {
		return nil, apperr.Invalid("order payload is required")
	}
	o := e.Order.Clone()
	if o.ID == "" {
		o.ID = e.OrderID
	}
	if strings.TrimSpace(o.ID) == "" || strings.TrimSpace(o.CustomerID) == "" {
		return nil, apperr.Invalid("order id and customer id are required")
	}
	if o.OrderNumber == "" {
		o.OrderNumber = o.ID
	}
	if !o.Priority.Valid() {
		o.Priority = domain.PriorityNormal
	}
	at := e.CreatedAt
	if at.IsZero() {
		at = p.now()
	}
	o.Status = domain.OrderNew
	o.CaptainID = ""
	o.CreatedAt = at
	o.UpdatedAt = at
	o.Timeline = []domain.TimelineEntry{{
		Timestamp:   at,
		Status:      domain.OrderNew,
		Description: "Order created",
	}}
	return o, nil
}
