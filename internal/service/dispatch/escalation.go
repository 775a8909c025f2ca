package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"captain-dispatch/internal/domain"
	"captain-dispatch/internal/service/notify"
)

// EscalationHook decides what happens to a ready order whose every offer
// expired without an accept. at is the time of the sweep that found it.
type EscalationHook interface {
	Escalate(ctx context.Context, o *domain.Order, at time.Time) error
}

// EscalationFunc adapts a function to EscalationHook.
type EscalationFunc func(ctx context.Context, o *domain.Order, at time.Time) error

func (f EscalationFunc) Escalate(ctx context.Context, o *domain.Order, at time.Time) error {
	return f(ctx, o, at)
}

// NotifyAdmins hands the order to staff for manual assignment. Each sweep
// that strands the order raises its own notice.
func NotifyAdmins(n Notifier) EscalationHook {
	return EscalationFunc(func(ctx context.Context, o *domain.Order, at time.Time) error {
		ev := notify.DriverUpdate("", o.ID, "Dispatch",
			fmt.Sprintf("No captain accepted order %s before its offers expired", o.OrderNumber))
		ev.SourceType = "offer_escalation"
		ev.SourceID = escalationSource(o.ID, at)
		ev.Priority = domain.NotifyUrgent
		_, err := n.EmitToRole(ctx, domain.RoleAdmin, ev)
		return err
	})
}

// RebroadcastHook offers the order again to whoever is eligible now.
func (c *Coordinator) RebroadcastHook() EscalationHook {
	return EscalationFunc(func(ctx context.Context, o *domain.Order, _ time.Time) error {
		_, err := c.BroadcastReadyOrder(ctx, o.ID)
		return err
	})
}

func escalationSource(orderID string, at time.Time) string {
	return orderID + "@" + strconv.FormatInt(at.UnixMilli(), 10)
}
