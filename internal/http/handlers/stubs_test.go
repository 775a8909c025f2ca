package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"captain-dispatch/internal/auth"
	"captain-dispatch/internal/domain"
	"captain-dispatch/internal/service/dispatch"
	"captain-dispatch/internal/service/notify"
	"captain-dispatch/internal/service/session"
	"captain-dispatch/internal/service/statemachine"
	"captain-dispatch/internal/service/tracking"
)

type stubSession struct {
	captainLoginFn  func(ctx context.Context, username, password string) (session.Session, error)
	captainLogoutFn func(ctx context.Context, captainID string) error
	userLoginFn     func(ctx context.Context, username, password string) (session.Session, error)
	getCaptainFn    func(ctx context.Context, captainID string) (*domain.Captain, error)
}

func (s *stubSession) CaptainLogin(ctx context.Context, username, password string) (session.Session, error) {
	return s.captainLoginFn(ctx, username, password)
}

func (s *stubSession) CaptainLogout(ctx context.Context, captainID string) error {
	return s.captainLogoutFn(ctx, captainID)
}

func (s *stubSession) UserLogin(ctx context.Context, username, password string) (session.Session, error) {
	return s.userLoginFn(ctx, username, password)
}

func (s *stubSession) GetCaptain(ctx context.Context, captainID string) (*domain.Captain, error) {
	return s.getCaptainFn(ctx, captainID)
}

type stubDispatch struct {
	broadcastFn func(ctx context.Context, orderID string) (dispatch.BroadcastResult, error)
	acceptFn    func(ctx context.Context, captainID, orderID string) (*domain.Order, error)
	statusFn    func(ctx context.Context, captainID, orderID string, to domain.OrderStatus, meta statemachine.Meta) (*domain.Order, error)
	cancelFn    func(ctx context.Context, actor dispatch.Actor, orderID, reason string) (*domain.Order, error)
	readyFn     func(ctx context.Context, orderID, notes string) (*domain.Order, error)
	availableFn func(ctx context.Context, captainID string) ([]domain.Order, error)
}

func (s *stubDispatch) BroadcastReadyOrder(ctx context.Context, orderID string) (dispatch.BroadcastResult, error) {
	return s.broadcastFn(ctx, orderID)
}

func (s *stubDispatch) AcceptOrder(ctx context.Context, captainID, orderID string) (*domain.Order, error) {
	return s.acceptFn(ctx, captainID, orderID)
}

func (s *stubDispatch) UpdateOrderStatus(ctx context.Context, captainID, orderID string, to domain.OrderStatus, meta statemachine.Meta) (*domain.Order, error) {
	return s.statusFn(ctx, captainID, orderID, to, meta)
}

func (s *stubDispatch) CancelOrder(ctx context.Context, actor dispatch.Actor, orderID, reason string) (*domain.Order, error) {
	return s.cancelFn(ctx, actor, orderID, reason)
}

func (s *stubDispatch) MarkReady(ctx context.Context, orderID, notes string) (*domain.Order, error) {
	return s.readyFn(ctx, orderID, notes)
}

func (s *stubDispatch) AvailableOrders(ctx context.Context, captainID string) ([]domain.Order, error) {
	return s.availableFn(ctx, captainID)
}

type stubTracking struct {
	updateFn func(ctx context.Context, captainID string, in tracking.LocationInput) (tracking.Result, error)
}

func (s *stubTracking) UpdateLocation(ctx context.Context, captainID string, in tracking.LocationInput) (tracking.Result, error) {
	return s.updateFn(ctx, captainID, in)
}

type stubNotifications struct {
	alertFn    func(ctx context.Context, a notify.Alert) (notify.Report, error)
	unreadFn   func(ctx context.Context, userID string, since time.Time, limit int) ([]domain.Notification, error)
	markReadFn func(ctx context.Context, userID, notificationID string) error
}

func (s *stubNotifications) SystemAlert(ctx context.Context, a notify.Alert) (notify.Report, error) {
	return s.alertFn(ctx, a)
}

func (s *stubNotifications) Unread(ctx context.Context, userID string, since time.Time, limit int) ([]domain.Notification, error) {
	return s.unreadFn(ctx, userID, since, limit)
}

func (s *stubNotifications) MarkRead(ctx context.Context, userID, notificationID string) error {
	return s.markReadFn(ctx, userID, notificationID)
}

// newRequest builds a request with chi URL params given as name/value pairs.
func newRequest(method, target, body string, params ...string) *http.Request {
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, rd)
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(params); i += 2 {
		rctx.URLParams.Add(params[i], params[i+1])
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func asPrincipal(req *http.Request, id string, role domain.Role) *http.Request {
	return req.WithContext(auth.WithPrincipal(req.Context(), auth.Principal{ID: id, Role: role}))
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v))
	return v
}

func sampleOrder() domain.Order {
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	return domain.Order{
		ID:          "ord-1",
		OrderNumber: "PP-1001",
		Status:      domain.OrderPickedUp,
		CustomerID:  "cust-1",
		CaptainID:   "cap-1",
		DeliveryAddress: domain.Address{
			Street:      "King Fahd Rd",
			City:        "Riyadh",
			Coordinates: &domain.GeoPoint{Lat: 24.71, Lng: 46.67},
		},
		Items: []domain.OrderItem{
			{ProductID: "p-1", Name: "Poster A2", Quantity: 2, UnitPrice: decimal.RequireFromString("21.25")},
		},
		TotalAmount: decimal.RequireFromString("42.5"),
		Priority:    domain.PriorityNormal,
		Timeline: []domain.TimelineEntry{
			{Timestamp: created, Status: domain.OrderAssigned, Description: "Order assigned to captain"},
			{Timestamp: created.Add(time.Second), Status: domain.OrderPickedUp, Description: "Order picked up",
				Location: &domain.GeoPoint{Lat: 24.7, Lng: 46.6}},
		},
		CreatedAt: created,
		UpdatedAt: created.Add(time.Second),
	}
}
