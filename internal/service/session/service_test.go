package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"captain-dispatch/internal/apperr"
	"captain-dispatch/internal/auth"
	"captain-dispatch/internal/domain"
	"captain-dispatch/internal/logx"
	"captain-dispatch/internal/ports/dispatchtx"
	"captain-dispatch/internal/repository/memory"
	"captain-dispatch/internal/service/session"
)

var fastParams = auth.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}

type fixture struct {
	store *memory.Store
	svc   *session.Service
	jwt   *auth.Manager
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.NewStore()
	hasher := auth.NewHasher(fastParams)
	jwt, err := auth.NewManager("test-secret", "captain-dispatch", time.Hour)
	require.NoError(t, err)

	hash, err := hasher.Hash("pa55word")
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.CreateCaptain(ctx, &domain.Captain{
		ID: "cap-1", Username: "omar", PasswordHash: hash, Name: "Omar",
		VehicleType: domain.VehicleMotorcycle, Status: domain.CaptainOffline,
	}))
	require.NoError(t, store.CreateUser(ctx, &domain.User{
		ID: "admin-1", Username: "root", PasswordHash: hash, Role: domain.RoleAdmin,
	}))

	return fixture{
		store: store,
		svc:   session.NewService(store, jwt, hasher, time.Second, logx.Nop()),
		jwt:   jwt,
	}
}

func TestCaptainLogin_BringsCaptainOnline(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	s, err := fx.svc.CaptainLogin(context.Background(), "Omar", "pa55word")
	require.NoError(t, err)
	require.NotNil(t, s.Captain)
	assert.Equal(t, domain.CaptainOnline, s.Captain.Status)
	assert.True(t, s.Captain.IsAvailable)

	p, err := fx.jwt.Verify(s.Token)
	require.NoError(t, err)
	assert.Equal(t, auth.Principal{ID: "cap-1", Role: domain.RoleCaptain}, p)

	active, err := fx.store.ListUsers(context.Background(), domain.UserFilter{ActiveSince: time.Now().Add(-time.Minute)})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "cap-1", active[0].ID)
}

func TestCaptainLogin_BadCredentials(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	_, err := fx.svc.CaptainLogin(context.Background(), "omar", "nope")
	require.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = fx.svc.CaptainLogin(context.Background(), "nobody", "pa55word")
	require.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = fx.svc.CaptainLogin(context.Background(), "", "")
	require.ErrorIs(t, err, apperr.ErrInvalid)

	cp, err := fx.svc.GetCaptain(context.Background(), "cap-1")
	require.NoError(t, err)
	assert.Equal(t, domain.CaptainOffline, cp.Status)
}

func TestCaptainLogout(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()
	_, err := fx.svc.CaptainLogin(ctx, "omar", "pa55word")
	require.NoError(t, err)

	require.NoError(t, fx.store.WithTx(ctx, func(tx dispatchtx.Repository) error {
		return tx.UpdateCaptainPresence(ctx, "cap-1", domain.CaptainBusy, false, 0)
	}))
	require.ErrorIs(t, fx.svc.CaptainLogout(ctx, "cap-1"), apperr.ErrConflict)

	require.NoError(t, fx.store.WithTx(ctx, func(tx dispatchtx.Repository) error {
		return tx.UpdateCaptainPresence(ctx, "cap-1", domain.CaptainOnline, true, 0)
	}))
	require.NoError(t, fx.svc.CaptainLogout(ctx, "cap-1"))

	cp, err := fx.svc.GetCaptain(ctx, "cap-1")
	require.NoError(t, err)
	assert.Equal(t, domain.CaptainOffline, cp.Status)
	assert.False(t, cp.IsAvailable)

	require.ErrorIs(t, fx.svc.CaptainLogout(ctx, "ghost"), apperr.ErrNotFound)
}

func TestUserLogin(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	s, err := fx.svc.UserLogin(context.Background(), "root", "pa55word")
	require.NoError(t, err)
	require.NotNil(t, s.User)

	p, err := fx.jwt.Verify(s.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, p.Role)

	_, err = fx.svc.UserLogin(context.Background(), "omar", "pa55word")
	require.ErrorIs(t, err, apperr.ErrUnauthorized, "captains use the captain login")
}
