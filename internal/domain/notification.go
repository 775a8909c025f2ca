package domain

import "time"

type (
	// NotificationCategory groups notifications in the client inbox.
	NotificationCategory string
	// NotificationPriority drives client-side presentation.
	NotificationPriority string
)

const (
	CategoryOrder    NotificationCategory = "order"
	CategoryDelivery NotificationCategory = "delivery"
	CategoryPrint    NotificationCategory = "print"
	CategoryReview   NotificationCategory = "review"
	CategorySystem   NotificationCategory = "system"
)

const (
	NotifyLow    NotificationPriority = "low"
	NotifyNormal NotificationPriority = "normal"
	NotifyHigh   NotificationPriority = "high"
	NotifyUrgent NotificationPriority = "urgent"
)

// Valid reports whether p is a known notification priority.
func (p NotificationPriority) Valid() bool {
	switch p {
	case NotifyLow, NotifyNormal, NotifyHigh, NotifyUrgent:
		return true
	}
	return false
}

// Notification is a durable message addressed to one user.
// Only IsRead and ReadAt change after creation.
type Notification struct {
	ID           string
	UserID       string
	Title        string
	Message      string
	Category     NotificationCategory
	Priority     NotificationPriority
	Icon         string
	SourceID     string
	SourceType   string
	ScheduledFor *time.Time
	IsRead       bool
	ReadAt       *time.Time
	CreatedAt    time.Time
}

// Deferred reports whether the notification is scheduled after now.
func (n Notification) Deferred(now time.Time) bool {
	return n.ScheduledFor != nil && n.ScheduledFor.After(now)
}

// DueAt is when the notification becomes deliverable.
func (n Notification) DueAt() time.Time {
	if n.ScheduledFor != nil {
		return *n.ScheduledFor
	}
	return n.CreatedAt
}
