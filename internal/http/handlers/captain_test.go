package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"captain-dispatch/internal/apperr"
	"captain-dispatch/internal/domain"
	"captain-dispatch/internal/logx"
	"captain-dispatch/internal/service/statemachine"
	"captain-dispatch/internal/service/tracking"
)

func TestCaptainHandler_AvailableOrders(t *testing.T) {
	t.Parallel()

	d := &stubDispatch{
		availableFn: func(_ context.Context, captainID string) ([]domain.Order, error) {
			require.Equal(t, "cap-1", captainID)
			o := sampleOrder()
			o.Status, o.CaptainID = domain.OrderReady, ""
			return []domain.Order{o}, nil
		},
	}
	h := NewCaptainHandler(logx.Nop(), d, nil)

	rr := httptest.NewRecorder()
	h.AvailableOrders(rr, newRequest(http.MethodGet, "/captain/cap-1/available-orders", "", "captainId", "cap-1"))

	require.Equal(t, http.StatusOK, rr.Code)
	list := decodeBody[[]orderDTO](t, rr)
	require.Len(t, list, 1)
	assert.Equal(t, "ready", list[0].Status)
	assert.Empty(t, list[0].CaptainID)
}

func TestCaptainHandler_AvailableOrdersEmptyIsArray(t *testing.T) {
	t.Parallel()

	d := &stubDispatch{
		availableFn: func(context.Context, string) ([]domain.Order, error) { return nil, nil },
	}
	h := NewCaptainHandler(logx.Nop(), d, nil)

	rr := httptest.NewRecorder()
	h.AvailableOrders(rr, newRequest(http.MethodGet, "/captain/cap-1/available-orders", "", "captainId", "cap-1"))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestCaptainHandler_AcceptOrder(t *testing.T) {
	t.Parallel()

	d := &stubDispatch{
		acceptFn: func(_ context.Context, captainID, orderID string) (*domain.Order, error) {
			if orderID == "taken" {
				return nil, fmt.Errorf("%w: order already assigned", apperr.ErrConflict)
			}
			o := sampleOrder()
			o.CaptainID = captainID
			return &o, nil
		},
	}
	h := NewCaptainHandler(logx.Nop(), d, nil)

	rr := httptest.NewRecorder()
	h.AcceptOrder(rr, newRequest(http.MethodPost, "/captain/cap-9/accept-order/ord-1", "",
		"captainId", "cap-9", "orderId", "ord-1"))
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody[orderDTO](t, rr)
	assert.Equal(t, "cap-9", body.CaptainID)
	assert.Equal(t, "picked_up", body.Status)

	rr = httptest.NewRecorder()
	h.AcceptOrder(rr, newRequest(http.MethodPost, "/captain/cap-9/accept-order/taken", "",
		"captainId", "cap-9", "orderId", "taken"))
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.JSONEq(t, `{"error":"order already assigned"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	h.AcceptOrder(rr, newRequest(http.MethodPost, "/captain/cap-9/accept-order/", "", "captainId", "cap-9"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCaptainHandler_UpdateLocation(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	tr := &stubTracking{
		updateFn: func(_ context.Context, captainID string, in tracking.LocationInput) (tracking.Result, error) {
			require.Equal(t, "cap-1", captainID)
			require.NotNil(t, in.Lat)
			if *in.Lat > 90 {
				return tracking.Result{}, apperr.Invalid("lat must be within [-90, 90]")
			}
			require.NotNil(t, in.Heading)
			assert.Nil(t, in.Speed)
			return tracking.Result{
				Location:  domain.Location{Lat: *in.Lat, Lng: *in.Lng, Heading: in.Heading, Timestamp: ts},
				Forwarded: 1,
			}, nil
		},
	}
	h := NewCaptainHandler(logx.Nop(), nil, tr)

	rr := httptest.NewRecorder()
	h.UpdateLocation(rr, newRequest(http.MethodPost, "/captain/cap-1/location",
		`{"lat":24.7,"lng":46.6,"heading":90}`, "captainId", "cap-1"))
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody[locationResponse](t, rr)
	assert.Equal(t, 1, body.Forwarded)
	assert.InDelta(t, 24.7, body.Location.Lat, 1e-9)
	require.NotNil(t, body.Location.Heading)
	assert.InDelta(t, 90, *body.Location.Heading, 1e-9)

	rr = httptest.NewRecorder()
	h.UpdateLocation(rr, newRequest(http.MethodPost, "/captain/cap-1/location",
		`{"lat":124.7,"lng":46.6,"heading":1}`, "captainId", "cap-1"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error":"lat must be within [-90, 90]"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	h.UpdateLocation(rr, newRequest(http.MethodPost, "/captain/cap-1/location", `{"lng":46.6}`, "captainId", "cap-1"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCaptainHandler_UpdateOrderStatus(t *testing.T) {
	t.Parallel()

	var gotMeta statemachine.Meta
	d := &stubDispatch{
		statusFn: func(_ context.Context, captainID, orderID string, to domain.OrderStatus, meta statemachine.Meta) (*domain.Order, error) {
			if captainID != "cap-1" {
				return nil, fmt.Errorf("%w: order belongs to another captain", apperr.ErrForbidden)
			}
			if to == domain.OrderReady {
				return nil, fmt.Errorf("%w: picked_up -> ready", apperr.ErrInvalidTransition)
			}
			gotMeta = meta
			o := sampleOrder()
			o.ID, o.Status = orderID, to
			return &o, nil
		},
	}
	h := NewCaptainHandler(logx.Nop(), d, nil)

	tests := []struct {
		name    string
		captain string
		body    string
		want    int
	}{
		{"in transit", "cap-1", `{"status":"in_transit","notes":"left the shop","location":{"lat":1,"lng":2}}`, http.StatusOK},
		{"other captain", "cap-2", `{"status":"in_transit"}`, http.StatusForbidden},
		{"illegal edge", "cap-1", `{"status":"ready"}`, http.StatusConflict},
		{"unknown status", "cap-1", `{"status":"teleported"}`, http.StatusBadRequest},
	}
	for _, tc := range tests {
		rr := httptest.NewRecorder()
		h.UpdateOrderStatus(rr, newRequest(http.MethodPost, "/captain/x/order/ord-1/status", tc.body,
			"captainId", tc.captain, "orderId", "ord-1"))
		assert.Equal(t, tc.want, rr.Code, tc.name)
	}

	assert.Equal(t, "left the shop", gotMeta.Notes)
	require.NotNil(t, gotMeta.Location)
	assert.InDelta(t, 2, gotMeta.Location.Lng, 1e-9)
}
