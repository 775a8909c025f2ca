// Package hub keeps the live realtime connections of each user and pushes
// messages to them. Delivery is best-effort: messages for users without a
// connection are dropped, the durable notification inbox is the source of truth.
package hub

import (
	"context"
	"encoding/json"
	"sync"

	"captain-dispatch/internal/logx"
	"captain-dispatch/internal/metrics"
)

// Conn is one live push connection.
type Conn interface {
	WriteMessage(payload []byte) error
	Close() error
}

// Pusher is what services use to reach users.
type Pusher interface {
	SendToUser(ctx context.Context, userID string, env Envelope) bool
}

// Hub maps user ids to their open connections. A user may hold several
// (phone and web at once); each gets every message.
type Hub struct {
	mu      sync.RWMutex
	conns   map[string]map[Conn]struct{}
	logger  logx.Logger
	metrics *metrics.Recorder
}

// New returns an empty Hub.
func New(logger logx.Logger, rec *metrics.Recorder) *Hub {
	if logger == nil {
		logger = logx.Nop()
	}
	return &Hub{
		conns:   make(map[string]map[Conn]struct{}),
		logger:  logger.With(logx.Component("hub")),
		metrics: rec,
	}
}

// Register adds c for userID and returns the function that removes it.
func (h *Hub) Register(userID string, c Conn) (unregister func()) {
	h.mu.Lock()
	set, ok := h.conns[userID]
	if !ok {
		set = make(map[Conn]struct{})
		h.conns[userID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
	h.metrics.ConnectionOpened()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.remove(userID, c)
			h.metrics.ConnectionClosed()
		})
	}
}

func (h *Hub) remove(userID string, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[userID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.conns, userID)
	}
}

// Online reports whether userID has at least one connection.
func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID]) > 0
}

// SendToUser pushes env to every connection of userID and reports whether at
// least one write succeeded.
func (h *Hub) SendToUser(_ context.Context, userID string, env Envelope) bool {
	payload, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("encode realtime message", logx.String("type", env.Type), logx.Err(err))
		return false
	}
	delivered := h.Deliver(userID, payload) > 0
	h.metrics.Realtime(env.Type, delivered)
	return delivered
}

// Deliver writes an encoded message to userID's connections and returns the
// number of successful writes. Connections that fail are closed and removed.
func (h *Hub) Deliver(userID string, payload []byte) int {
	h.mu.RLock()
	targets := make([]Conn, 0, len(h.conns[userID]))
	for c := range h.conns[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if err := c.WriteMessage(payload); err != nil {
			h.logger.Debug("drop broken connection", logx.String("user_id", userID), logx.Err(err))
			h.remove(userID, c)
			_ = c.Close()
			continue
		}
		sent++
	}
	return sent
}

var _ Pusher = (*Hub)(nil)
