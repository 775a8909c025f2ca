package notify

import (
	"context"
	"time"

	"captain-dispatch/internal/domain"
)

// Store persists notifications and resolves audiences.
type Store interface {
	// CreateNotification returns apperr.ErrConflict when the recipient already
	// holds a notification with the same non-empty source.
	CreateNotification(ctx context.Context, n *domain.Notification) error
	ListUsers(ctx context.Context, f domain.UserFilter) ([]domain.User, error)
	ListUnread(ctx context.Context, userID string, since, until time.Time, limit int) ([]domain.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID string, at time.Time) error
}
