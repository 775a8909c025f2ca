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
	"captain-dispatch/internal/service/session"
)

func TestSessionHandler_CaptainLogin(t *testing.T) {
	t.Parallel()

	exp := time.Date(2024, 5, 1, 22, 0, 0, 0, time.UTC)
	uc := &stubSession{
		captainLoginFn: func(_ context.Context, username, password string) (session.Session, error) {
			require.Equal(t, "ahmed", username)
			require.Equal(t, "secret", password)
			return session.Session{
				Token:     "jwt",
				ExpiresAt: exp,
				Captain: &domain.Captain{
					ID: "cap-1", Username: "ahmed", Status: domain.CaptainOnline, IsAvailable: true,
					VehicleType: domain.VehicleCar,
				},
			}, nil
		},
	}
	h := NewSessionHandler(logx.Nop(), uc)

	rr := httptest.NewRecorder()
	h.CaptainLogin(rr, newRequest(http.MethodPost, "/captain/login", `{"username":"ahmed","password":"secret"}`))

	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody[captainLoginResponse](t, rr)
	assert.Equal(t, "jwt", body.Token)
	assert.True(t, body.ExpiresAt.Equal(exp))
	assert.Equal(t, "cap-1", body.Captain.ID)
	assert.Equal(t, "online", body.Captain.Status)
}

func TestSessionHandler_CaptainLoginRejects(t *testing.T) {
	t.Parallel()

	uc := &stubSession{
		captainLoginFn: func(context.Context, string, string) (session.Session, error) {
			return session.Session{}, fmt.Errorf("%w: invalid username or password", apperr.ErrUnauthorized)
		},
	}
	h := NewSessionHandler(logx.Nop(), uc)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"username":`, http.StatusBadRequest},
		{"unknown field", `{"username":"a","password":"b","extra":1}`, http.StatusBadRequest},
		{"missing password", `{"username":"a"}`, http.StatusBadRequest},
		{"bad credentials", `{"username":"a","password":"b"}`, http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rr := httptest.NewRecorder()
			h.CaptainLogin(rr, newRequest(http.MethodPost, "/captain/login", tc.body))
			assert.Equal(t, tc.want, rr.Code)
		})
	}
}

func TestSessionHandler_LogoutAndProfile(t *testing.T) {
	t.Parallel()

	uc := &stubSession{
		captainLogoutFn: func(_ context.Context, id string) error {
			if id == "cap-busy" {
				return fmt.Errorf("%w: captain has an active delivery", apperr.ErrConflict)
			}
			return nil
		},
		getCaptainFn: func(_ context.Context, id string) (*domain.Captain, error) {
			if id != "cap-1" {
				return nil, apperr.ErrNotFound
			}
			return &domain.Captain{ID: "cap-1", Name: "Ahmed", TotalDeliveries: 3}, nil
		},
	}
	h := NewSessionHandler(nil, uc)

	rr := httptest.NewRecorder()
	h.CaptainLogout(rr, newRequest(http.MethodPost, "/captain/cap-1/logout", "", "captainId", "cap-1"))
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = httptest.NewRecorder()
	h.CaptainLogout(rr, newRequest(http.MethodPost, "/captain/cap-busy/logout", "", "captainId", "cap-busy"))
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.JSONEq(t, `{"error":"captain has an active delivery"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	h.CaptainProfile(rr, newRequest(http.MethodGet, "/captain/cap-1", "", "captainId", "cap-1"))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 3, decodeBody[captainDTO](t, rr).TotalDeliveries)

	rr = httptest.NewRecorder()
	h.CaptainProfile(rr, newRequest(http.MethodGet, "/captain/x", "", "captainId", "x"))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSessionHandler_UserLogin(t *testing.T) {
	t.Parallel()

	uc := &stubSession{
		userLoginFn: func(_ context.Context, username, _ string) (session.Session, error) {
			return session.Session{
				Token: "admin-jwt",
				User:  &domain.User{ID: "u-1", Username: username, Role: domain.RoleAdmin},
			}, nil
		},
	}
	h := NewSessionHandler(logx.Nop(), uc)

	rr := httptest.NewRecorder()
	h.UserLogin(rr, newRequest(http.MethodPost, "/auth/login", `{"username":"root","password":"pw"}`))

	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody[userLoginResponse](t, rr)
	assert.Equal(t, "admin-jwt", body.Token)
	assert.Equal(t, "admin", body.User.Role)
	assert.Equal(t, "root", body.User.Username)
}
