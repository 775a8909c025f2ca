// Package notify turns domain events into durable notifications and pushes
// them to connected users.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"captain-dispatch/internal/apperr"
	"captain-dispatch/internal/domain"
	"captain-dispatch/internal/hub"
	"captain-dispatch/internal/logx"
	"captain-dispatch/internal/metrics"
)

const (
	defaultUnreadLimit = 50
	maxUnreadLimit     = 200
)

// Options tune the engine.
type Options struct {
	Timeout           time.Duration
	DefaultActiveDays int
}

// Result describes the outcome of one emit.
type Result struct {
	Notification domain.Notification
	Delivered    bool
	Scheduled    bool
	Duplicate    bool
}

// Engine persists a notification before it tries to push it, so a failed
// push never loses the event.
type Engine struct {
	store            Store
	push             hub.Pusher
	templates        *Templates
	operationTimeout time.Duration
	activeDays       int
	logger           logx.Logger
	metrics          *metrics.Recorder
	now              func() time.Time
	newID            func() string
}

// NewEngine wires an engine.
func NewEngine(store Store, push hub.Pusher, tpl *Templates, opts Options, logger logx.Logger, rec *metrics.Recorder) *Engine {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.DefaultActiveDays <= 0 {
		opts.DefaultActiveDays = 7
	}
	if logger == nil {
		logger = logx.Nop()
	}
	return &Engine{
		store:            store,
		push:             push,
		templates:        tpl,
		operationTimeout: opts.Timeout,
		activeDays:       opts.DefaultActiveDays,
		logger:           logger.With(logx.Component("notify")),
		metrics:          rec,
		now:              func() time.Time { return time.Now().UTC() },
		newID:            uuid.NewString,
	}
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.operationTimeout)
}

// Emit renders, stores and pushes ev. A redelivered event (same recipient
// and source) is reported as Duplicate without error. Notifications
// scheduled in the future are stored and left for the scheduler.
func (e *Engine) Emit(ctx context.Context, ev Event) (Result, error) {
	if strings.TrimSpace(ev.RecipientID) == "" {
		return Result{}, apperr.Invalid("recipient is required")
	}
	rendered, err := e.templates.Render(ev)
	if err != nil {
		e.metrics.Notification(string(ev.Type), "invalid")
		return Result{}, err
	}

	now := e.now()
	n := domain.Notification{
		ID:           e.newID(),
		UserID:       ev.RecipientID,
		Title:        rendered.Title,
		Message:      rendered.Message,
		Category:     rendered.Category,
		Priority:     rendered.Priority,
		Icon:         rendered.Icon,
		SourceID:     ev.SourceID,
		SourceType:   ev.SourceType,
		ScheduledFor: ev.ScheduledFor,
		CreatedAt:    now,
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	if err := e.store.CreateNotification(ctx, &n); err != nil {
		if errors.Is(err, apperr.ErrConflict) && n.SourceID != "" {
			e.metrics.Notification(string(ev.Type), "duplicate")
			e.logger.Debug("notification already stored",
				logx.String("event", "notification_duplicate"),
				logx.String("user_id", n.UserID),
				logx.String("source_type", n.SourceType),
				logx.String("source_id", n.SourceID),
			)
			return Result{Duplicate: true}, nil
		}
		e.metrics.Notification(string(ev.Type), "failed")
		return Result{}, fmt.Errorf("store notification: %w", err)
	}

	if n.Deferred(now) {
		e.metrics.Notification(string(ev.Type), "scheduled")
		return Result{Notification: n, Scheduled: true}, nil
	}

	delivered := e.push.SendToUser(ctx, n.UserID, hub.NewEnvelope(hub.TypeNotification, payload(n, ev)))
	outcome := "stored"
	if delivered {
		outcome = "delivered"
	}
	e.metrics.Notification(string(ev.Type), outcome)
	e.logger.Debug("notification emitted",
		logx.String("event", "notification_emitted"),
		logx.String("type", string(ev.Type)),
		logx.String("user_id", n.UserID),
		logx.Bool("delivered", delivered),
	)
	return Result{Notification: n, Delivered: delivered}, nil
}

func payload(n domain.Notification, ev Event) map[string]any {
	out := make(map[string]any, len(ev.Data)+1)
	for k, v := range ev.Data {
		out[k] = v
	}
	out["notification"] = map[string]any{
		"id":         n.ID,
		"type":       string(ev.Type),
		"title":      n.Title,
		"message":    n.Message,
		"category":   string(n.Category),
		"priority":   string(n.Priority),
		"icon":       n.Icon,
		"sourceId":   n.SourceID,
		"sourceType": n.SourceType,
		"createdAt":  n.CreatedAt.Format(time.RFC3339Nano),
	}
	return out
}

// Audience selects the recipients of a bulk alert.
type Audience string

const (
	AudienceAll    Audience = "all"
	AudienceActive Audience = "active"
	AudienceRole   Audience = "role"
)

// Alert is a bulk system alert.
type Alert struct {
	Title            string
	Message          string
	Audience         Audience
	ActiveWithinDays int
	Role             domain.Role
	Priority         domain.NotificationPriority
	ScheduledFor     *time.Time
	// AlertID correlates redelivery; one is generated when empty.
	AlertID string
}

// Report counts the recipients of a fan-out.
type Report struct {
	Targeted int `json:"targeted"`
	Sent     int `json:"sent"`
	Failed   int `json:"failed"`
}

// SystemAlert emits a to every user of its audience. A failed recipient is
// counted and skipped; the batch goes on.
func (e *Engine) SystemAlert(ctx context.Context, a Alert) (Report, error) {
	filter, err := e.audienceFilter(a)
	if err != nil {
		return Report{}, err
	}
	if a.AlertID == "" {
		a.AlertID = e.newID()
	}
	ev := Event{
		Type:         EventSystemAlert,
		SourceType:   string(EventSystemAlert),
		SourceID:     a.AlertID,
		Params:       Params{Title: a.Title, Message: a.Message},
		Priority:     a.Priority,
		ScheduledFor: a.ScheduledFor,
		Data:         map[string]any{"alertId": a.AlertID},
	}
	if _, err := e.templates.Render(ev); err != nil {
		return Report{}, err
	}

	rep, err := e.fanOut(ctx, filter, ev)
	if err != nil {
		return rep, err
	}
	e.logger.Info("system alert sent",
		logx.String("event", "system_alert"),
		logx.String("alert_id", a.AlertID),
		logx.String("audience", string(a.Audience)),
		logx.Int("targeted", rep.Targeted),
		logx.Int("sent", rep.Sent),
		logx.Int("failed", rep.Failed),
	)
	return rep, nil
}

// EmitToRole sends ev to every user holding role.
func (e *Engine) EmitToRole(ctx context.Context, role domain.Role, ev Event) (Report, error) {
	if !role.Valid() {
		return Report{}, apperr.Invalid(fmt.Sprintf("unknown role %q", role))
	}
	return e.fanOut(ctx, domain.UserFilter{Role: role}, ev)
}

func (e *Engine) audienceFilter(a Alert) (domain.UserFilter, error) {
	switch a.Audience {
	case AudienceAll, "":
		return domain.UserFilter{}, nil
	case AudienceActive:
		days := a.ActiveWithinDays
		if days <= 0 {
			days = e.activeDays
		}
		return domain.UserFilter{ActiveSince: e.now().AddDate(0, 0, -days)}, nil
	case AudienceRole:
		if !a.Role.Valid() {
			return domain.UserFilter{}, apperr.Invalid("a valid role is required for a role audience")
		}
		return domain.UserFilter{Role: a.Role}, nil
	default:
		return domain.UserFilter{}, apperr.Invalid(fmt.Sprintf("unknown audience %q", a.Audience))
	}
}

func (e *Engine) fanOut(ctx context.Context, filter domain.UserFilter, ev Event) (Report, error) {
	lctx, cancel := e.withTimeout(ctx)
	users, err := e.store.ListUsers(lctx, filter)
	cancel()
	if err != nil {
		return Report{}, fmt.Errorf("resolve audience: %w", err)
	}

	rep := Report{Targeted: len(users)}
	for _, u := range users {
		if ctx.Err() != nil {
			rep.Failed += rep.Targeted - rep.Sent - rep.Failed
			break
		}
		one := ev
		one.RecipientID = u.ID
		if _, err := e.Emit(ctx, one); err != nil {
			rep.Failed++
			e.logger.Warn("notification write failed",
				logx.String("event", "notification_failed"),
				logx.String("type", string(ev.Type)),
				logx.String("user_id", u.ID),
				logx.Err(err),
			)
			continue
		}
		rep.Sent++
	}
	if rep.Targeted > 0 && rep.Sent == 0 {
		return rep, fmt.Errorf("every notification of %s failed", ev.Type)
	}
	return rep, nil
}

// Unread returns the user's unread notifications that became due after since
// and are due now, oldest due first. Clients call it after reconnecting.
func (e *Engine) Unread(ctx context.Context, userID string, since time.Time, limit int) ([]domain.Notification, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.Invalid("user id is required")
	}
	switch {
	case limit <= 0:
		limit = defaultUnreadLimit
	case limit > maxUnreadLimit:
		limit = maxUnreadLimit
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	return e.store.ListUnread(ctx, userID, since, e.now(), limit)
}

// MarkRead flags a notification of userID as read.
func (e *Engine) MarkRead(ctx context.Context, userID, notificationID string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(notificationID) == "" {
		return apperr.Invalid("user id and notification id are required")
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	return e.store.MarkNotificationRead(ctx, userID, notificationID, e.now())
}
