package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// NewRateLimitExceededTotal returns a counter of HTTP requests rejected by the rate limiter.
func NewRateLimitExceededTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rate_limit_exceeded_total",
		Help: "Total number of rejected HTTP requests due to rate limiting",
	})
}

// NewStatusPublishRetriesTotal returns a counter of retried status publications.
func NewStatusPublishRetriesTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "status_publish_retries_total",
		Help: "Total number of retried order status publications",
	})
}

// Register registers c on reg; if an equal collector is already there, it is returned instead.
func Register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Recorder groups the dispatch metrics. A nil *Recorder records nothing.
type Recorder struct {
	broadcasts    *prometheus.CounterVec
	offers        prometheus.Counter
	offersExpired prometheus.Counter
	escalations   prometheus.Counter
	accepts       *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	locations     *prometheus.CounterVec
	notifications *prometheus.CounterVec
	realtime      *prometheus.CounterVec
	connections   prometheus.Gauge
}

// NewRecorder creates the dispatch collectors and registers them on reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	var firstErr error
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		c, err := Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels))
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("register %s: %w", name, err)
		}
		return c
	}
	counter := func(name, help string) prometheus.Counter {
		c, err := Register(reg, prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help}))
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("register %s: %w", name, err)
		}
		return c
	}

	r := &Recorder{
		broadcasts:    counterVec("dispatch_broadcasts_total", "Ready-order broadcasts by outcome", "outcome"),
		offers:        counter("dispatch_offers_total", "Offers handed to captains"),
		offersExpired: counter("dispatch_offers_expired_total", "Offers discarded after their window elapsed"),
		escalations:   counter("dispatch_escalations_total", "Orders escalated after every offer expired"),
		accepts:       counterVec("dispatch_accepts_total", "Accept attempts by outcome", "outcome"),
		transitions:   counterVec("order_transitions_total", "Applied order status transitions", "to"),
		locations:     counterVec("captain_location_updates_total", "Captain location pings by outcome", "outcome"),
		notifications: counterVec("notifications_total", "Notification emits by event type and outcome", "type", "outcome"),
		realtime:      counterVec("realtime_messages_total", "Realtime pushes by message type and outcome", "type", "outcome"),
	}
	gauge, err := Register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_connections",
		Help: "Open realtime connections",
	}))
	if err != nil && firstErr == nil {
		firstErr = fmt.Errorf("register realtime_connections: %w", err)
	}
	r.connections = gauge

	if firstErr != nil {
		return nil, firstErr
	}
	return r, nil
}

func (r *Recorder) Broadcast(outcome string, offers int) {
	if r == nil {
		return
	}
	r.broadcasts.WithLabelValues(outcome).Inc()
	r.offers.Add(float64(offers))
}

func (r *Recorder) OffersExpired(n int) {
	if r == nil {
		return
	}
	r.offersExpired.Add(float64(n))
}

func (r *Recorder) Escalated() {
	if r == nil {
		return
	}
	r.escalations.Inc()
}

func (r *Recorder) Accept(outcome string) {
	if r == nil {
		return
	}
	r.accepts.WithLabelValues(outcome).Inc()
}

func (r *Recorder) Transition(to string) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(to).Inc()
}

func (r *Recorder) Location(outcome string) {
	if r == nil {
		return
	}
	r.locations.WithLabelValues(outcome).Inc()
}

func (r *Recorder) Notification(eventType, outcome string) {
	if r == nil {
		return
	}
	r.notifications.WithLabelValues(eventType, outcome).Inc()
}

func (r *Recorder) Realtime(msgType string, delivered bool) {
	if r == nil {
		return
	}
	outcome := "dropped"
	if delivered {
		outcome = "delivered"
	}
	r.realtime.WithLabelValues(msgType, outcome).Inc()
}

func (r *Recorder) ConnectionOpened() {
	if r == nil {
		return
	}
	r.connections.Inc()
}

func (r *Recorder) ConnectionClosed() {
	if r == nil {
		return
	}
	r.connections.Dec()
}
