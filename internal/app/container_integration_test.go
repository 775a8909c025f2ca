//go:build integration

package app

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"captain-dispatch/internal/config"
	"captain-dispatch/internal/domain"
	"captain-dispatch/internal/logx"
)

func TestMustBuild_PostgresStorage_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("dispatch_app"),
		postgres.WithUsername("test_user"),
		postgres.WithPassword("test_pass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg := memoryConfig()
	cfg.Storage = config.StoragePostgres

	c := NewContainerBuilder().
		WithConfig(cfg).
		WithDBConnect(func(ctx context.Context, logger logx.Logger, _ string, retries int, delay time.Duration) (*pgxpool.Pool, error) {
			return connectDbWithRetry(ctx, logger, connStr, retries, delay)
		}).
		WithLogFatalf(func(format string, args ...interface{}) { t.Fatalf(format, args...) }).
		MustBuild(ctx)
	t.Cleanup(func() {
		_ = c.Invoke(func(cl *closer, logger logx.Logger) { cl.closeAll(logger) })
	})

	err = c.Invoke(func(store Storage) {
		cp, err := store.GetCaptainByUsername(ctx, "ahmed")
		require.NoError(t, err)
		require.NotNil(t, cp)
		require.Equal(t, domain.VehicleCar, cp.VehicleType)

		u, err := store.GetUserByUsername(ctx, "ops")
		require.NoError(t, err)
		require.NotNil(t, u)
		require.Equal(t, domain.RoleAdmin, u.Role)
	})
	require.NoError(t, err)

	// A second build reuses the schema and keeps the seeded accounts.
	c2, err := NewContainerBuilder().
		WithConfig(cfg).
		WithDBConnect(func(ctx context.Context, logger logx.Logger, _ string, retries int, delay time.Duration) (*pgxpool.Pool, error) {
			return connectDbWithRetry(ctx, logger, connStr, retries, delay)
		}).
		build(ctx)
	require.NoError(t, err)
	require.NoError(t, c2.Invoke(func(Storage, *closer) {}))
	require.NoError(t, c2.Invoke(func(cl *closer, logger logx.Logger) { cl.closeAll(logger) }))
}
