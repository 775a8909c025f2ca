package hub

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"captain-dispatch/internal/logx"
)

// DefaultChannel is the pub/sub channel shared by all instances.
const DefaultChannel = "dispatch:realtime"

type relayMessage struct {
	Origin  string          `json:"origin"`
	UserID  string          `json:"user_id"`
	Payload json.RawMessage `json:"payload"`
}

// Relay fans pushes out to every instance through Redis pub/sub, so a user
// with devices on several instances receives the message on all of them.
type Relay struct {
	local   *Hub
	c       redis.UniversalClient
	channel string
	origin  string
	logger  logx.Logger
}

// NewRelay wraps the local hub.
func NewRelay(local *Hub, c redis.UniversalClient, channel string) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Relay{
		local:   local,
		c:       c,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  local.logger.With(logx.String("relay", channel)),
	}
}

// SendToUser delivers to local connections and publishes for the other
// instances. It reports only local delivery.
func (r *Relay) SendToUser(ctx context.Context, userID string, env Envelope) bool {
	payload, err := json.Marshal(env)
	if err != nil {
		r.logger.Error("encode realtime message", logx.String("type", env.Type), logx.Err(err))
		return false
	}
	delivered := r.local.Deliver(userID, payload) > 0
	if err := r.publish(ctx, userID, payload); err != nil {
		r.logger.Warn("relay publish failed", logx.String("user_id", userID), logx.Err(err))
	}
	r.local.metrics.Realtime(env.Type, delivered)
	return delivered
}

func (r *Relay) publish(ctx context.Context, userID string, payload []byte) error {
	msg, err := json.Marshal(relayMessage{Origin: r.origin, UserID: userID, Payload: payload})
	if err != nil {
		return errors.Wrap(err, "encode relay message")
	}
	if err := r.c.Publish(ctx, r.channel, msg).Err(); err != nil {
		return errors.Wrap(err, "redis publish")
	}
	return nil
}

// Run consumes relayed messages until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.c.Subscribe(ctx, r.channel)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrap(err, "redis subscribe")
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg relayMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				r.logger.Warn("relay bad message", logx.Err(err))
				continue
			}
			if msg.Origin == r.origin {
				continue
			}
			r.local.Deliver(msg.UserID, msg.Payload)
		}
	}
}

var _ Pusher = (*Relay)(nil)
