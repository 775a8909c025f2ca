// Package session signs captains and users in and out.
package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"captain-dispatch/internal/apperr"
	"captain-dispatch/internal/domain"
	"captain-dispatch/internal/logx"
	"captain-dispatch/internal/ports/dispatchtx"
)

// Store is the account storage used by sessions.
type Store interface {
	dispatchtx.Runner
	GetCaptain(ctx context.Context, captainID string) (*domain.Captain, error)
	GetCaptainByUsername(ctx context.Context, username string) (*domain.Captain, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	TouchUser(ctx context.Context, userID string, at time.Time) error
}

// Issuer signs access tokens.
type Issuer interface {
	Issue(subject string, role domain.Role) (string, time.Time, error)
}

// PasswordVerifier checks a password against its stored hash.
type PasswordVerifier interface {
	Verify(password, encoded string) (bool, error)
}

// Session is a signed-in principal.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Captain   *domain.Captain
	User      *domain.User
}

var errBadCredentials = fmt.Errorf("%w: invalid username or password", apperr.ErrUnauthorized)

// Service implements login and logout.
type Service struct {
	store            Store
	issuer           Issuer
	passwords        PasswordVerifier
	operationTimeout time.Duration
	logger           logx.Logger
	now              func() time.Time
}

// NewService wires a session service.
func NewService(store Store, issuer Issuer, passwords PasswordVerifier, timeout time.Duration, logger logx.Logger) *Service {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = logx.Nop()
	}
	return &Service{
		store:            store,
		issuer:           issuer,
		passwords:        passwords,
		operationTimeout: timeout,
		logger:           logger.With(logx.Component("session")),
		now:              func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.operationTimeout)
}

// CaptainLogin checks the credentials, brings an offline captain online and
// available, and issues a captain token.
func (s *Service) CaptainLogin(ctx context.Context, username, password string) (Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Session{}, apperr.Invalid("username and password are required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	cp, err := s.store.GetCaptainByUsername(ctx, username)
	if err != nil {
		return Session{}, fmt.Errorf("get captain: %w", err)
	}
	if cp == nil || !s.passwordMatches(password, cp.PasswordHash, cp.ID) {
		s.logger.Info("captain login rejected", logx.String("event", "login_failed"), logx.String("username", username))
		return Session{}, errBadCredentials
	}

	err = s.store.WithTx(ctx, func(tx dispatchtx.Repository) error {
		cur, err := tx.GetCaptainForUpdate(ctx, cp.ID)
		if err != nil {
			return err
		}
		if cur == nil {
			return fmt.Errorf("captain %s: %w", cp.ID, apperr.ErrNotFound)
		}
		if cur.Status != domain.CaptainOffline {
			return nil
		}
		return tx.UpdateCaptainPresence(ctx, cp.ID, domain.CaptainOnline, true, 0)
	})
	if err != nil {
		return Session{}, fmt.Errorf("set captain online: %w", err)
	}

	cp, err = s.store.GetCaptain(ctx, cp.ID)
	if err != nil {
		return Session{}, fmt.Errorf("get captain: %w", err)
	}
	if cp == nil {
		return Session{}, apperr.ErrNotFound
	}
	s.touch(ctx, cp.ID)

	token, exp, err := s.issuer.Issue(cp.ID, domain.RoleCaptain)
	if err != nil {
		return Session{}, err
	}
	s.logger.Info("captain logged in",
		logx.String("event", "captain_login"),
		logx.String("captain_id", cp.ID),
		logx.String("status", string(cp.Status)),
	)
	return Session{Token: token, ExpiresAt: exp, Captain: cp}, nil
}

// CaptainLogout takes the captain offline. A captain holding an order
// cannot log out.
func (s *Service) CaptainLogout(ctx context.Context, captainID string) error {
	captainID = strings.TrimSpace(captainID)
	if captainID == "" {
		return apperr.Invalid("captain id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.store.WithTx(ctx, func(tx dispatchtx.Repository) error {
		cp, err := tx.GetCaptainForUpdate(ctx, captainID)
		if err != nil {
			return err
		}
		if cp == nil {
			return fmt.Errorf("captain %s: %w", captainID, apperr.ErrNotFound)
		}
		if cp.HasActiveDelivery() {
			return fmt.Errorf("%w: captain has an active delivery", apperr.ErrConflict)
		}
		return tx.UpdateCaptainPresence(ctx, captainID, domain.CaptainOffline, false, 0)
	})
	if err != nil {
		return err
	}
	s.logger.Info("captain logged out", logx.String("event", "captain_logout"), logx.String("captain_id", captainID))
	return nil
}

// UserLogin signs in a customer or admin account.
func (s *Service) UserLogin(ctx context.Context, username, password string) (Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Session{}, apperr.Invalid("username and password are required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	u, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return Session{}, fmt.Errorf("get user: %w", err)
	}
	if u == nil || u.Role == domain.RoleCaptain || !s.passwordMatches(password, u.PasswordHash, u.ID) {
		s.logger.Info("user login rejected", logx.String("event", "login_failed"), logx.String("username", username))
		return Session{}, errBadCredentials
	}
	s.touch(ctx, u.ID)

	token, exp, err := s.issuer.Issue(u.ID, u.Role)
	if err != nil {
		return Session{}, err
	}
	s.logger.Info("user logged in",
		logx.String("event", "user_login"),
		logx.String("user_id", u.ID),
		logx.String("role", string(u.Role)),
	)
	return Session{Token: token, ExpiresAt: exp, User: u}, nil
}

// GetCaptain returns a captain profile.
func (s *Service) GetCaptain(ctx context.Context, captainID string) (*domain.Captain, error) {
	captainID = strings.TrimSpace(captainID)
	if captainID == "" {
		return nil, apperr.Invalid("captain id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	cp, err := s.store.GetCaptain(ctx, captainID)
	if err != nil {
		return nil, fmt.Errorf("get captain: %w", err)
	}
	if cp == nil {
		return nil, fmt.Errorf("captain %s: %w", captainID, apperr.ErrNotFound)
	}
	return cp, nil
}

func (s *Service) passwordMatches(password, hash, id string) bool {
	ok, err := s.passwords.Verify(password, hash)
	if err != nil {
		s.logger.Error("stored password hash unreadable", logx.String("account_id", id), logx.Err(err))
		return false
	}
	return ok
}

func (s *Service) touch(ctx context.Context, id string) {
	if err := s.store.TouchUser(ctx, id, s.now()); err != nil {
		s.logger.Warn("touch user failed", logx.String("user_id", id), logx.Err(err))
	}
}
