package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"captain-dispatch/internal/apperr"
	"captain-dispatch/internal/auth"
	"captain-dispatch/internal/config"
	"captain-dispatch/internal/domain"
	"captain-dispatch/internal/logx"
	"captain-dispatch/internal/repository"
	"captain-dispatch/internal/repository/memory"
	"captain-dispatch/internal/service/dispatch"
	"captain-dispatch/internal/service/notify"
	"captain-dispatch/internal/service/orders"
	"captain-dispatch/internal/service/session"
	"captain-dispatch/internal/service/tracking"
)

// Storage is everything the services need from a storage driver.
type Storage interface {
	dispatch.Store
	session.Store
	tracking.Store
	notify.Store
	orders.OrderStore
	CreateCaptain(ctx context.Context, c *domain.Captain) error
	CreateUser(ctx context.Context, u *domain.User) error
}

var (
	_ Storage = (*repository.Store)(nil)
	_ Storage = (*memory.Store)(nil)
)

func openStorage(
	ctx context.Context,
	cfg *config.Config,
	logger logx.Logger,
	hasher *auth.Hasher,
	cl *closer,
	dbConnect dbConnectFunc,
) (Storage, error) {
	var store Storage
	switch cfg.Storage {
	case config.StorageMemory:
		logger.Warn("using in-memory storage, data is lost on restart")
		store = memory.NewStore()
	default:
		pool, err := dbConnect(ctx, logger, cfg.DB.DSN(), 10, time.Second)
		if err != nil {
			return nil, err
		}
		cl.add("postgres", func() error { pool.Close(); return nil })
		if err := repository.InitSchema(ctx, pool); err != nil {
			return nil, err
		}
		store = repository.NewStore(pool)
	}

	if err := seedAccounts(ctx, store, hasher, cfg.Seed, logger); err != nil {
		return nil, fmt.Errorf("seed accounts: %w", err)
	}
	return store, nil
}

type accountWriter interface {
	CreateCaptain(ctx context.Context, c *domain.Captain) error
	CreateUser(ctx context.Context, u *domain.User) error
}

// seedAccounts creates the configured logins. Existing accounts are kept.
func seedAccounts(ctx context.Context, store accountWriter, hasher *auth.Hasher, seed []config.Account, logger logx.Logger) error {
	for _, a := range seed {
		if strings.TrimSpace(a.ID) == "" || strings.TrimSpace(a.Username) == "" || a.Password == "" {
			return fmt.Errorf("account %q: id, username and password are required", a.Username)
		}
		role := domain.Role(strings.ToLower(a.Role))
		if !role.Valid() {
			return fmt.Errorf("account %q: unknown role %q", a.Username, a.Role)
		}
		hash, err := hasher.Hash(a.Password)
		if err != nil {
			return err
		}

		if role == domain.RoleCaptain {
			vt := domain.VehicleType(a.VehicleType)
			if vt == "" {
				vt = domain.VehicleMotorcycle
			}
			if !vt.Valid() {
				return fmt.Errorf("account %q: unknown vehicle type %q", a.Username, a.VehicleType)
			}
			err = store.CreateCaptain(ctx, &domain.Captain{
				ID:           a.ID,
				Username:     a.Username,
				PasswordHash: hash,
				Name:         a.Name,
				VehicleType:  vt,
				Status:       domain.CaptainOffline,
			})
		} else {
			err = store.CreateUser(ctx, &domain.User{
				ID:           a.ID,
				Username:     a.Username,
				PasswordHash: hash,
				Name:         a.Name,
				Role:         role,
			})
		}
		switch {
		case errors.Is(err, apperr.ErrConflict):
			logger.Debug("seed account exists", logx.String("username", a.Username))
		case err != nil:
			return err
		default:
			logger.Info("seed account created", logx.String("username", a.Username), logx.String("role", string(role)))
		}
	}
	return nil
}
