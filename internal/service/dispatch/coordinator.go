// Package dispatch matches ready orders with captains and drives every
// status change of an assigned order.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"captain-dispatch/internal/apperr"
	"captain-dispatch/internal/domain"
	"captain-dispatch/internal/hub"
	"captain-dispatch/internal/logx"
	"captain-dispatch/internal/metrics"
	"captain-dispatch/internal/ports/dispatchtx"
	"captain-dispatch/internal/service/notify"
	"captain-dispatch/internal/service/statemachine"
)

// Options tune the coordinator.
type Options struct {
	OfferTTL      time.Duration
	Timeout       time.Duration
	AutoBroadcast bool
}

// Actor is the caller of an operation that several roles may perform.
type Actor struct {
	ID   string
	Role domain.Role
}

// SystemActor is used for changes requested by other services.
var SystemActor = Actor{ID: "system", Role: domain.RoleAdmin}

// BroadcastResult reports a broadcast.
type BroadcastResult struct {
	OrderID          string
	CaptainsNotified int
	Delivered        int
	ExpiresAt        time.Time
}

// SweepResult reports an offer-expiry sweep.
type SweepResult struct {
	Expired   int
	Escalated int
}

// Coordinator owns assignment. Every mutation of an order's status or
// assignment takes the order's lock from State and runs in one transaction.
type Coordinator struct {
	store            Store
	state            *State
	notifier         Notifier
	push             hub.Pusher
	publisher        StatusPublisher
	escalation       EscalationHook
	offerTTL         time.Duration
	operationTimeout time.Duration
	autoBroadcast    bool
	logger           logx.Logger
	metrics          *metrics.Recorder
	now              func() time.Time
}

// NewCoordinator wires a coordinator. publisher may be nil. Escalation
// defaults to NotifyAdmins.
func NewCoordinator(
	store Store,
	state *State,
	notifier Notifier,
	push hub.Pusher,
	publisher StatusPublisher,
	opts Options,
	logger logx.Logger,
	rec *metrics.Recorder,
) *Coordinator {
	if opts.OfferTTL <= 0 {
		opts.OfferTTL = 5 * time.Minute
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if logger == nil {
		logger = logx.Nop()
	}
	return &Coordinator{
		store:            store,
		state:            state,
		notifier:         notifier,
		push:             push,
		publisher:        publisher,
		escalation:       NotifyAdmins(notifier),
		offerTTL:         opts.OfferTTL,
		operationTimeout: opts.Timeout,
		autoBroadcast:    opts.AutoBroadcast,
		logger:           logger.With(logx.Component("dispatch")),
		metrics:          rec,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// SetEscalation replaces the escalation hook.
func (c *Coordinator) SetEscalation(h EscalationHook) {
	if h != nil {
		c.escalation = h
	}
}

func (c *Coordinator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.operationTimeout)
}

// BroadcastReadyOrder offers an unassigned ready order to every online and
// available captain. It records the offers but binds nobody.
func (c *Coordinator) BroadcastReadyOrder(ctx context.Context, orderID string) (BroadcastResult, error) {
	orderID, err := validateID("order id", orderID)
	if err != nil {
		return BroadcastResult{}, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	o, err := c.store.GetOrder(ctx, orderID)
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("get order: %w", err)
	}
	if o == nil {
		return BroadcastResult{}, fmt.Errorf("order %s: %w", orderID, apperr.ErrNotFound)
	}
	if !awaitingCaptain(o.Status) {
		return BroadcastResult{}, fmt.Errorf("%w: order is %s", apperr.ErrConflict, o.Status)
	}
	a, err := c.store.GetAssignment(ctx, orderID)
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("get assignment: %w", err)
	}
	if a != nil {
		return BroadcastResult{}, fmt.Errorf("%w: order already assigned", apperr.ErrConflict)
	}

	captains, err := c.store.ListCaptains(ctx)
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("list captains: %w", err)
	}
	now := c.now()
	expiresAt := now.Add(c.offerTTL)
	offered := make([]domain.Offer, 0, len(captains))
	for _, cp := range captains {
		if cp.Eligible() {
			offered = append(offered, domain.Offer{
				OrderID:   orderID,
				CaptainID: cp.ID,
				OfferedAt: now,
				ExpiresAt: expiresAt,
			})
		}
	}
	if len(offered) == 0 {
		c.metrics.Broadcast("no_captains", 0)
		c.logger.Warn("no eligible captains",
			logx.String("event", "offer_broadcast"),
			logx.String("order_id", orderID),
		)
		return BroadcastResult{}, fmt.Errorf("%w: no eligible captains", apperr.ErrUnavailable)
	}

	if err := c.state.Offers().Put(ctx, offered...); err != nil {
		c.metrics.Broadcast("error", 0)
		return BroadcastResult{}, fmt.Errorf("record offers: %w", err)
	}

	payload := offerPayload(o, expiresAt)
	delivered := 0
	for _, off := range offered {
		if c.push.SendToUser(ctx, off.CaptainID, hub.NewEnvelope(hub.TypeNewOrderAvailable, payload)) {
			delivered++
		}
	}

	c.metrics.Broadcast("offered", len(offered))
	c.logger.Info("order broadcast",
		logx.String("event", "offer_broadcast"),
		logx.String("order_id", orderID),
		logx.Int("captains", len(offered)),
		logx.Int("delivered", delivered),
		logx.Time("expires_at", expiresAt),
	)
	return BroadcastResult{
		OrderID:          orderID,
		CaptainsNotified: len(offered),
		Delivered:        delivered,
		ExpiresAt:        expiresAt,
	}, nil
}

// AcceptOrder binds the order to the captain. Of concurrent accepts for the
// same order exactly one succeeds; the others get apperr.ErrConflict and
// change nothing. On success the order is picked_up and the captain busy.
func (c *Coordinator) AcceptOrder(ctx context.Context, captainID, orderID string) (*domain.Order, error) {
	captainID, err := validateID("captain id", captainID)
	if err != nil {
		return nil, err
	}
	orderID, err = validateID("order id", orderID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	unlock, err := c.state.locks.Lock(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("lock order: %w", err)
	}

	var (
		before  domain.OrderStatus
		updated *domain.Order
		applied []domain.OrderStatus
	)
	err = c.store.WithTx(ctx, func(tx dispatchtx.Repository) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o == nil {
			return fmt.Errorf("order %s: %w", orderID, apperr.ErrNotFound)
		}
		if !awaitingCaptain(o.Status) {
			return fmt.Errorf("%w: order is %s", apperr.ErrConflict, o.Status)
		}
		a, err := tx.GetAssignment(ctx, orderID)
		if err != nil {
			return err
		}
		if a != nil {
			return fmt.Errorf("%w: order already assigned", apperr.ErrConflict)
		}
		cp, err := tx.GetCaptainForUpdate(ctx, captainID)
		if err != nil {
			return err
		}
		if cp == nil {
			return fmt.Errorf("captain %s: %w", captainID, apperr.ErrNotFound)
		}
		if !cp.Eligible() {
			return fmt.Errorf("%w: captain is %s", apperr.ErrConflict, cp.Status)
		}

		now := c.now()
		before = o.Status
		next := o.Clone()
		next.CaptainID = captainID
		for _, step := range statemachine.Steps(o.Status, domain.OrderPickedUp) {
			next, err = statemachine.Transition(next, step, statemachine.Meta{At: now})
			if err != nil {
				return err
			}
			applied = append(applied, step)
		}

		if err := tx.InsertAssignment(ctx, domain.Assignment{OrderID: orderID, CaptainID: captainID, AssignedAt: now}); err != nil {
			return err
		}
		if err := tx.SaveOrder(ctx, next, next.Timeline[len(o.Timeline):]); err != nil {
			return err
		}
		if err := tx.UpdateCaptainPresence(ctx, captainID, domain.CaptainBusy, false, 0); err != nil {
			return err
		}
		updated = next
		return nil
	})
	unlock()
	if err != nil {
		c.metrics.Accept(outcome(err))
		c.logger.Info("accept rejected",
			logx.String("event", "order_accept_rejected"),
			logx.String("order_id", orderID),
			logx.String("captain_id", captainID),
			logx.Err(err),
		)
		return nil, err
	}

	c.metrics.Accept("accepted")
	for _, s := range applied {
		c.metrics.Transition(string(s))
	}
	c.logger.Info("order accepted",
		logx.String("event", "order_accepted"),
		logx.String("order_id", orderID),
		logx.String("captain_id", captainID),
		logx.String("from", string(before)),
	)

	if err := c.state.Offers().DropOrder(ctx, orderID); err != nil {
		c.logger.Warn("drop offers failed", logx.String("order_id", orderID), logx.Err(err))
	}
	c.announce(ctx, updated, before, "", true)
	return updated, nil
}

// UpdateOrderStatus applies a status change requested by the captain bound
// to the order. A terminal status releases the assignment and frees the captain.
func (c *Coordinator) UpdateOrderStatus(ctx context.Context, captainID, orderID string, to domain.OrderStatus, meta statemachine.Meta) (*domain.Order, error) {
	captainID, err := validateID("captain id", captainID)
	if err != nil {
		return nil, err
	}
	orderID, err = validateID("order id", orderID)
	if err != nil {
		return nil, err
	}
	if !to.Valid() {
		return nil, apperr.Invalid(fmt.Sprintf("unknown status %q", to))
	}
	if to == domain.OrderCancelled {
		return nil, fmt.Errorf("%w: captains cannot cancel orders", apperr.ErrForbidden)
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	unlock, err := c.state.locks.Lock(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("lock order: %w", err)
	}

	var (
		before  domain.OrderStatus
		updated *domain.Order
	)
	err = c.store.WithTx(ctx, func(tx dispatchtx.Repository) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o == nil {
			return fmt.Errorf("order %s: %w", orderID, apperr.ErrNotFound)
		}
		a, err := tx.GetAssignment(ctx, orderID)
		if err != nil {
			return err
		}
		if a == nil || a.CaptainID != captainID {
			return fmt.Errorf("%w: order is not assigned to this captain", apperr.ErrForbidden)
		}

		if meta.At.IsZero() {
			meta.At = c.now()
		}
		next, err := statemachine.Transition(o, to, meta)
		if err != nil {
			return err
		}
		if err := tx.SaveOrder(ctx, next, next.Timeline[len(o.Timeline):]); err != nil {
			return err
		}

		switch to {
		case domain.OrderDelivered:
			if err := tx.DeleteAssignment(ctx, orderID); err != nil {
				return err
			}
			err = tx.UpdateCaptainPresence(ctx, captainID, domain.CaptainOnline, true, 1)
		case domain.OrderInTransit:
			err = tx.UpdateCaptainPresence(ctx, captainID, domain.CaptainOnDelivery, false, 0)
		default:
			err = tx.UpdateCaptainPresence(ctx, captainID, domain.CaptainBusy, false, 0)
		}
		if err != nil {
			return err
		}
		before = o.Status
		updated = next
		return nil
	})
	unlock()
	if err != nil {
		return nil, err
	}

	c.metrics.Transition(string(to))
	c.logger.Info("order status updated",
		logx.String("event", "order_status_updated"),
		logx.String("order_id", orderID),
		logx.String("captain_id", captainID),
		logx.String("from", string(before)),
		logx.String("to", string(to)),
	)
	c.announce(ctx, updated, before, meta.Notes, to.Terminal())
	return updated, nil
}

// CancelOrder cancels a non-terminal order on behalf of an admin or the
// owning customer. A bound captain is released and told about it.
func (c *Coordinator) CancelOrder(ctx context.Context, actor Actor, orderID, reason string) (*domain.Order, error) {
	orderID, err := validateID("order id", orderID)
	if err != nil {
		return nil, err
	}
	if !actor.Role.Valid() || strings.TrimSpace(actor.ID) == "" {
		return nil, apperr.Invalid("actor is required")
	}
	if actor.Role == domain.RoleCaptain {
		return nil, fmt.Errorf("%w: captains cannot cancel orders", apperr.ErrForbidden)
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	unlock, err := c.state.locks.Lock(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("lock order: %w", err)
	}

	var (
		before  domain.OrderStatus
		updated *domain.Order
		bound   string
	)
	err = c.store.WithTx(ctx, func(tx dispatchtx.Repository) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o == nil {
			return fmt.Errorf("order %s: %w", orderID, apperr.ErrNotFound)
		}
		if actor.Role == domain.RoleCustomer && o.CustomerID != actor.ID {
			return fmt.Errorf("%w: order belongs to another customer", apperr.ErrForbidden)
		}
		next, err := statemachine.Transition(o, domain.OrderCancelled, statemachine.Meta{
			Notes: strings.TrimSpace(reason),
			At:    c.now(),
		})
		if err != nil {
			return err
		}
		if err := tx.SaveOrder(ctx, next, next.Timeline[len(o.Timeline):]); err != nil {
			return err
		}

		a, err := tx.GetAssignment(ctx, orderID)
		if err != nil {
			return err
		}
		if a != nil {
			if err := tx.DeleteAssignment(ctx, orderID); err != nil {
				return err
			}
			cp, err := tx.GetCaptainForUpdate(ctx, a.CaptainID)
			if err != nil {
				return err
			}
			if cp != nil && cp.Status != domain.CaptainOffline {
				if err := tx.UpdateCaptainPresence(ctx, a.CaptainID, domain.CaptainOnline, true, 0); err != nil {
					return err
				}
			}
			bound = a.CaptainID
		}
		before = o.Status
		updated = next
		return nil
	})
	unlock()
	if err != nil {
		return nil, err
	}

	c.metrics.Transition(string(domain.OrderCancelled))
	c.logger.Info("order cancelled",
		logx.String("event", "order_cancelled"),
		logx.String("order_id", orderID),
		logx.String("by", actor.ID),
		logx.String("role", string(actor.Role)),
		logx.String("from", string(before)),
		logx.String("captain_id", bound),
	)

	if err := c.state.Offers().DropOrder(ctx, orderID); err != nil {
		c.logger.Warn("drop offers failed", logx.String("order_id", orderID), logx.Err(err))
	}
	c.announce(ctx, updated, before, reason, true)
	if bound != "" {
		c.push.SendToUser(ctx, bound, hub.NewEnvelope(hub.TypeOrderStatusUpdate, statusPayload(updated)))
		c.emit(ctx, notify.StatusChanged(updated, bound))
	}
	return updated, nil
}

// MarkReady moves a new order to ready. With auto-broadcast on, the order is
// offered to captains right away; a failed broadcast does not undo the change.
func (c *Coordinator) MarkReady(ctx context.Context, orderID, notes string) (*domain.Order, error) {
	orderID, err := validateID("order id", orderID)
	if err != nil {
		return nil, err
	}
	opCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	unlock, err := c.state.locks.Lock(opCtx, orderID)
	if err != nil {
		return nil, fmt.Errorf("lock order: %w", err)
	}
	var updated *domain.Order
	err = c.store.WithTx(opCtx, func(tx dispatchtx.Repository) error {
		o, err := tx.GetOrderForUpdate(opCtx, orderID)
		if err != nil {
			return err
		}
		if o == nil {
			return fmt.Errorf("order %s: %w", orderID, apperr.ErrNotFound)
		}
		next, err := statemachine.Transition(o, domain.OrderReady, statemachine.Meta{
			Notes: strings.TrimSpace(notes),
			At:    c.now(),
		})
		if err != nil {
			return err
		}
		if err := tx.SaveOrder(opCtx, next, next.Timeline[len(o.Timeline):]); err != nil {
			return err
		}
		updated = next
		return nil
	})
	unlock()
	if err != nil {
		return nil, err
	}

	c.metrics.Transition(string(domain.OrderReady))
	c.logger.Info("order ready",
		logx.String("event", "order_ready"),
		logx.String("order_id", orderID),
	)
	c.announce(opCtx, updated, domain.OrderNew, notes, false)

	if c.autoBroadcast {
		if _, err := c.BroadcastReadyOrder(ctx, orderID); err != nil {
			c.logger.Warn("auto broadcast failed", logx.String("order_id", orderID), logx.Err(err))
		}
	}
	return updated, nil
}

// AvailableOrders lists the orders the captain holds a live offer for and
// that nobody has taken yet.
func (c *Coordinator) AvailableOrders(ctx context.Context, captainID string) ([]domain.Order, error) {
	captainID, err := validateID("captain id", captainID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	cp, err := c.store.GetCaptain(ctx, captainID)
	if err != nil {
		return nil, fmt.Errorf("get captain: %w", err)
	}
	if cp == nil {
		return nil, fmt.Errorf("captain %s: %w", captainID, apperr.ErrNotFound)
	}

	offered, err := c.state.Offers().ForCaptain(ctx, captainID, c.now())
	if err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	out := make([]domain.Order, 0, len(offered))
	for _, off := range offered {
		o, err := c.store.GetOrder(ctx, off.OrderID)
		if err != nil {
			return nil, fmt.Errorf("get order: %w", err)
		}
		if o == nil || !awaitingCaptain(o.Status) {
			continue
		}
		a, err := c.store.GetAssignment(ctx, off.OrderID)
		if err != nil {
			return nil, fmt.Errorf("get assignment: %w", err)
		}
		if a != nil {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

// ExpireOffers discards offers whose window closed at now and escalates
// orders left unassigned with no live offer.
func (c *Coordinator) ExpireOffers(ctx context.Context, now time.Time) (SweepResult, error) {
	expired, err := c.state.Offers().Expire(ctx, now)
	if err != nil {
		return SweepResult{}, fmt.Errorf("expire offers: %w", err)
	}
	res := SweepResult{Expired: len(expired)}
	if len(expired) == 0 {
		return res, nil
	}
	c.metrics.OffersExpired(len(expired))

	seen := make(map[string]struct{}, len(expired))
	for _, off := range expired {
		if _, ok := seen[off.OrderID]; ok {
			continue
		}
		seen[off.OrderID] = struct{}{}

		escalated, err := c.escalateIfStranded(ctx, off.OrderID, now)
		if err != nil {
			c.logger.Warn("escalation failed",
				logx.String("event", "offer_escalation"),
				logx.String("order_id", off.OrderID),
				logx.Err(err),
			)
			continue
		}
		if escalated {
			res.Escalated++
		}
	}
	c.logger.Info("offers expired",
		logx.String("event", "offers_expired"),
		logx.Int("expired", res.Expired),
		logx.Int("escalated", res.Escalated),
	)
	return res, nil
}

func (c *Coordinator) escalateIfStranded(ctx context.Context, orderID string, now time.Time) (bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	live, err := c.state.Offers().HasLive(ctx, orderID, now)
	if err != nil || live {
		return false, err
	}
	o, err := c.store.GetOrder(ctx, orderID)
	if err != nil || o == nil || !awaitingCaptain(o.Status) {
		return false, err
	}
	a, err := c.store.GetAssignment(ctx, orderID)
	if err != nil || a != nil {
		return false, err
	}
	if err := c.escalation.Escalate(ctx, o, now); err != nil {
		return false, err
	}
	c.metrics.Escalated()
	return true, nil
}

// announce publishes the change and tells the customer (and staff when
// toStaff is set). Failures are logged; the change is already durable.
func (c *Coordinator) announce(ctx context.Context, o *domain.Order, from domain.OrderStatus, notes string, toStaff bool) {
	if c.publisher != nil {
		change := domain.StatusChange{
			OrderID:     o.ID,
			OrderNumber: o.OrderNumber,
			CustomerID:  o.CustomerID,
			CaptainID:   o.CaptainID,
			From:        from,
			To:          o.Status,
			At:          o.UpdatedAt,
			Notes:       notes,
		}
		if err := c.publisher.PublishStatus(ctx, change); err != nil {
			c.logger.Warn("publish status failed", logx.String("order_id", o.ID), logx.Err(err))
		}
	}

	if o.CustomerID != "" {
		c.push.SendToUser(ctx, o.CustomerID, hub.NewEnvelope(hub.TypeOrderStatusUpdate, statusPayload(o)))
		c.emit(ctx, notify.StatusChanged(o, o.CustomerID))
	}
	if toStaff {
		ev := notify.StatusChanged(o, "")
		if _, err := c.notifier.EmitToRole(ctx, domain.RoleAdmin, ev); err != nil {
			c.logger.Warn("notify admins failed", logx.String("order_id", o.ID), logx.Err(err))
		}
	}
}

func (c *Coordinator) emit(ctx context.Context, ev notify.Event) {
	if _, err := c.notifier.Emit(ctx, ev); err != nil {
		c.logger.Warn("notification failed",
			logx.String("type", string(ev.Type)),
			logx.String("user_id", ev.RecipientID),
			logx.Err(err),
		)
	}
}

func awaitingCaptain(s domain.OrderStatus) bool {
	return s == domain.OrderReady || s == domain.OrderAssigned
}

func validateID(name, raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", apperr.Invalid(name + " is required")
	}
	return id, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, apperr.ErrConflict):
		return "conflict"
	case errors.Is(err, apperr.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperr.ErrInvalid):
		return "invalid"
	default:
		return "error"
	}
}
