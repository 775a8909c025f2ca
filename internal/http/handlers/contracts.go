package handlers

import (
	"context"
	"time"

	"captain-dispatch/internal/domain"
	"captain-dispatch/internal/service/dispatch"
	"captain-dispatch/internal/service/notify"
	"captain-dispatch/internal/service/session"
	"captain-dispatch/internal/service/statemachine"
	"captain-dispatch/internal/service/tracking"
)

type sessionUsecase interface {
	CaptainLogin(ctx context.Context, username, password string) (session.Session, error)
	CaptainLogout(ctx context.Context, captainID string) error
	UserLogin(ctx context.Context, username, password string) (session.Session, error)
	GetCaptain(ctx context.Context, captainID string) (*domain.Captain, error)
}

type dispatchUsecase interface {
	BroadcastReadyOrder(ctx context.Context, orderID string) (dispatch.BroadcastResult, error)
	AcceptOrder(ctx context.Context, captainID, orderID string) (*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, captainID, orderID string, to domain.OrderStatus, meta statemachine.Meta) (*domain.Order, error)
	CancelOrder(ctx context.Context, actor dispatch.Actor, orderID, reason string) (*domain.Order, error)
	MarkReady(ctx context.Context, orderID, notes string) (*domain.Order, error)
	AvailableOrders(ctx context.Context, captainID string) ([]domain.Order, error)
}

type trackingUsecase interface {
	UpdateLocation(ctx context.Context, captainID string, in tracking.LocationInput) (tracking.Result, error)
}

type notificationUsecase interface {
	SystemAlert(ctx context.Context, a notify.Alert) (notify.Report, error)
	Unread(ctx context.Context, userID string, since time.Time, limit int) ([]domain.Notification, error)
	MarkRead(ctx context.Context, userID, notificationID string) error
}

// NewSessionUsecase wires a session service into the handlers.
func NewSessionUsecase(svc *session.Service) sessionUsecase { return svc }

// NewDispatchUsecase wires the coordinator into the handlers.
func NewDispatchUsecase(c *dispatch.Coordinator) dispatchUsecase { return c }

// NewTrackingUsecase wires the location tracker into the handlers.
func NewTrackingUsecase(t *tracking.Tracker) trackingUsecase { return t }

// NewNotificationUsecase wires the notification engine into the handlers.
func NewNotificationUsecase(e *notify.Engine) notificationUsecase { return e }
