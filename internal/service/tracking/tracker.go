// Package tracking ingests captain position pings and forwards them to the
// customers whose orders the captain is carrying.
package tracking

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"captain-dispatch/internal/apperr"
	"captain-dispatch/internal/domain"
	"captain-dispatch/internal/hub"
	"captain-dispatch/internal/logx"
	"captain-dispatch/internal/metrics"
)

// Store keeps the last known location of captains.
type Store interface {
	// UpdateCaptainLocation overwrites the location and returns the previous one.
	UpdateCaptainLocation(ctx context.Context, captainID string, loc domain.Location) (*domain.Location, error)
	ListAssignedOrders(ctx context.Context, captainID string) ([]domain.Order, error)
}

// LocationInput is a raw ping. Lat and Lng are required.
type LocationInput struct {
	Lat      *float64
	Lng      *float64
	Heading  *float64
	Speed    *float64
	Accuracy *float64
}

// Result reports one ping.
type Result struct {
	Location  domain.Location
	Forwarded int
}

// Tracker is last-write-wins per captain; no history is kept.
type Tracker struct {
	store            Store
	push             hub.Pusher
	operationTimeout time.Duration
	logger           logx.Logger
	metrics          *metrics.Recorder
	now              func() time.Time

	mu sync.Mutex
	// reached holds, per captain, the orders the last forwarded ping went to.
	reached map[string]string
}

// NewTracker wires a tracker.
func NewTracker(store Store, push hub.Pusher, timeout time.Duration, logger logx.Logger, rec *metrics.Recorder) *Tracker {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = logx.Nop()
	}
	return &Tracker{
		store:            store,
		push:             push,
		operationTimeout: timeout,
		logger:           logger.With(logx.Component("tracking")),
		metrics:          rec,
		now:              func() time.Time { return time.Now().UTC() },
		reached:          make(map[string]string),
	}
}

func (t *Tracker) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, t.operationTimeout)
}

// UpdateLocation stores the ping with the server time and pushes it to the
// customer of every order the captain has picked up. A ping repeating the
// previous reading is stored but forwarded again only when the set of
// carried orders changed since the last forward.
func (t *Tracker) UpdateLocation(ctx context.Context, captainID string, in LocationInput) (Result, error) {
	captainID = strings.TrimSpace(captainID)
	if captainID == "" {
		return Result{}, apperr.Invalid("captain id is required")
	}
	loc, err := validate(in)
	if err != nil {
		t.metrics.Location("invalid")
		return Result{}, err
	}
	loc.Timestamp = t.now()

	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	prev, err := t.store.UpdateCaptainLocation(ctx, captainID, loc)
	if err != nil {
		t.metrics.Location("error")
		return Result{}, fmt.Errorf("update location: %w", err)
	}

	orders, err := t.store.ListAssignedOrders(ctx, captainID)
	if err != nil {
		t.metrics.Location("stored")
		t.logger.Warn("list assigned orders failed", logx.String("captain_id", captainID), logx.Err(err))
		return Result{Location: loc}, nil
	}
	carried := make([]domain.Order, 0, len(orders))
	for _, o := range orders {
		if o.Status != domain.OrderPickedUp && o.Status != domain.OrderInTransit {
			continue
		}
		if o.CustomerID == "" {
			continue
		}
		carried = append(carried, o)
	}

	key := reachKey(carried)
	if prev != nil && prev.SamePosition(loc) && t.alreadyReached(captainID, key) {
		t.metrics.Location("unchanged")
		return Result{Location: loc}, nil
	}

	for _, o := range carried {
		t.push.SendToUser(ctx, o.CustomerID, hub.NewEnvelope(hub.TypeCaptainLocationUpdate, map[string]any{
			"orderId":   o.ID,
			"captainId": captainID,
			"location":  locationPayload(loc),
		}))
	}
	t.markReached(captainID, key)

	t.metrics.Location("stored")
	t.logger.Debug("location updated",
		logx.String("event", "captain_location"),
		logx.String("captain_id", captainID),
		logx.Int("forwarded", len(carried)),
	)
	return Result{Location: loc, Forwarded: len(carried)}, nil
}

func reachKey(orders []domain.Order) string {
	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

func (t *Tracker) alreadyReached(captainID, key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, ok := t.reached[captainID]
	return ok && last == key
}

func (t *Tracker) markReached(captainID, key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reached[captainID] = key
}

func validate(in LocationInput) (domain.Location, error) {
	if in.Lat == nil || in.Lng == nil {
		return domain.Location{}, apperr.Invalid("lat and lng are required")
	}
	if !finite(*in.Lat) || *in.Lat < -90 || *in.Lat > 90 {
		return domain.Location{}, apperr.Invalid("lat must be within [-90, 90]")
	}
	if !finite(*in.Lng) || *in.Lng < -180 || *in.Lng > 180 {
		return domain.Location{}, apperr.Invalid("lng must be within [-180, 180]")
	}
	if in.Heading != nil && (!finite(*in.Heading) || *in.Heading < 0 || *in.Heading > 360) {
		return domain.Location{}, apperr.Invalid("heading must be within [0, 360]")
	}
	if in.Speed != nil && (!finite(*in.Speed) || *in.Speed < 0) {
		return domain.Location{}, apperr.Invalid("speed must not be negative")
	}
	if in.Accuracy != nil && (!finite(*in.Accuracy) || *in.Accuracy < 0) {
		return domain.Location{}, apperr.Invalid("accuracy must not be negative")
	}
	return domain.Location{
		Lat:      *in.Lat,
		Lng:      *in.Lng,
		Heading:  copyOpt(in.Heading),
		Speed:    copyOpt(in.Speed),
		Accuracy: copyOpt(in.Accuracy),
	}, nil
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

func copyOpt(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func locationPayload(l domain.Location) map[string]any {
	out := map[string]any{
		"lat":       l.Lat,
		"lng":       l.Lng,
		"timestamp": l.Timestamp.Format(time.RFC3339Nano),
	}
	if l.Heading != nil {
		out["heading"] = *l.Heading
	}
	if l.Speed != nil {
		out["speed"] = *l.Speed
	}
	if l.Accuracy != nil {
		out["accuracy"] = *l.Accuracy
	}
	return out
}
