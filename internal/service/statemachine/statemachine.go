// Package statemachine owns the order lifecycle graph. Every status change
// of an order goes through Transition.
package statemachine

import (
	"fmt"
	"time"

	"captain-dispatch/internal/apperr"
	"captain-dispatch/internal/domain"
)

// Meta carries the optional context recorded in the timeline entry.
type Meta struct {
	Description string
	Notes       string
	Location    *domain.GeoPoint
	At          time.Time
}

var edges = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderNew:       {domain.OrderReady, domain.OrderCancelled},
	domain.OrderReady:     {domain.OrderAssigned, domain.OrderCancelled},
	domain.OrderAssigned:  {domain.OrderPickedUp, domain.OrderCancelled},
	domain.OrderPickedUp:  {domain.OrderInTransit, domain.OrderCancelled},
	domain.OrderInTransit: {domain.OrderDelivered, domain.OrderCancelled},
}

var descriptions = map[domain.OrderStatus]string{
	domain.OrderReady:     "Order is ready for pickup",
	domain.OrderAssigned:  "Order assigned to a captain",
	domain.OrderPickedUp:  "Captain picked up the order",
	domain.OrderInTransit: "Order is on the way",
	domain.OrderDelivered: "Order delivered",
	domain.OrderCancelled: "Order cancelled",
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to domain.OrderStatus) bool {
	for _, next := range edges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates the edge and returns a copy of o with the new status
// and exactly one appended timeline entry. o itself is never modified.
func Transition(o *domain.Order, to domain.OrderStatus, meta Meta) (*domain.Order, error) {
	if o == nil {
		return nil, apperr.Invalid("order is required")
	}
	if !to.Valid() {
		return nil, apperr.Invalid(fmt.Sprintf("unknown status %q", to))
	}
	if !CanTransition(o.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", apperr.ErrInvalidTransition, o.Status, to)
	}

	at := meta.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	desc := meta.Description
	if desc == "" {
		desc = descriptions[to]
	}
	var loc *domain.GeoPoint
	if meta.Location != nil {
		p := *meta.Location
		loc = &p
	}

	next := o.Clone()
	next.Status = to
	next.UpdatedAt = at
	next.Timeline = append(next.Timeline, domain.TimelineEntry{
		Timestamp:   at,
		Status:      to,
		Description: desc,
		Location:    loc,
		Notes:       meta.Notes,
	})
	return next, nil
}

// Steps returns the statuses to walk, in order, to reach to from from.
// Only forward non-cancel paths are resolved; nil means unreachable.
func Steps(from, to domain.OrderStatus) []domain.OrderStatus {
	if from == to {
		return nil
	}
	var path []domain.OrderStatus
	cur := from
	for !cur.Terminal() {
		next, ok := forward(cur)
		if !ok {
			return nil
		}
		path = append(path, next)
		if next == to {
			return path
		}
		cur = next
	}
	return nil
}

func forward(s domain.OrderStatus) (domain.OrderStatus, bool) {
	for _, next := range edges[s] {
		if next != domain.OrderCancelled {
			return next, true
		}
	}
	return "", false
}
