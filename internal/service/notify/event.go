package notify

import (
	"strings"
	"time"

	"captain-dispatch/internal/domain"
)

// EventType names a domain event that produces notifications.
type EventType string

const (
	EventOrderCreated       EventType = "order_created"
	EventOrderStatusChanged EventType = "order_status_changed"
	EventPrintJobCompleted  EventType = "print_job_completed"
	EventDriverUpdate       EventType = "driver_update"
	EventReviewReceived     EventType = "review_received"
	EventSystemAlert        EventType = "system_alert"
)

// ParseEventType maps a raw event name onto a known type.
func ParseEventType(raw string) (EventType, bool) {
	t := EventType(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := templates[t]; !ok {
		return "", false
	}
	return t, true
}

// Params feed the template of an event.
type Params struct {
	OrderNumber string
	Status      domain.OrderStatus
	CaptainName string
	Rating      int
	Title       string
	Message     string
}

// Event is one notification request for one recipient.
//
// SourceType and SourceID correlate redeliveries: a second event with the
// same recipient and source is recognised as a duplicate and not stored twice.
type Event struct {
	Type         EventType
	RecipientID  string
	SourceID     string
	SourceType   string
	Params       Params
	Priority     domain.NotificationPriority
	ScheduledFor *time.Time
	// Data is merged into the realtime payload, e.g. orderId.
	Data map[string]any
}

// OrderCreated tells the customer their order was registered.
func OrderCreated(o *domain.Order) Event {
	return Event{
		Type:        EventOrderCreated,
		RecipientID: o.CustomerID,
		SourceType:  string(EventOrderCreated),
		SourceID:    o.ID,
		Params:      Params{OrderNumber: o.OrderNumber},
		Data:        map[string]any{"orderId": o.ID},
	}
}

// StatusChanged reports the current status of o to recipient. Each status
// of an order is a separate source, so every transition is stored once.
func StatusChanged(o *domain.Order, recipientID string) Event {
	return Event{
		Type:        EventOrderStatusChanged,
		RecipientID: recipientID,
		SourceType:  string(EventOrderStatusChanged),
		SourceID:    o.ID + ":" + string(o.Status),
		Params:      Params{OrderNumber: o.OrderNumber, Status: o.Status},
		Data:        map[string]any{"orderId": o.ID, "status": string(o.Status)},
	}
}

// PrintJobCompleted tells the customer the print job of an order finished.
func PrintJobCompleted(o *domain.Order) Event {
	return Event{
		Type:        EventPrintJobCompleted,
		RecipientID: o.CustomerID,
		SourceType:  string(EventPrintJobCompleted),
		SourceID:    o.ID,
		Params:      Params{OrderNumber: o.OrderNumber},
		Data:        map[string]any{"orderId": o.ID},
	}
}

// DriverUpdate carries a free-form captain or dispatch message about an order.
func DriverUpdate(recipientID, orderID, captainName, message string) Event {
	return Event{
		Type:        EventDriverUpdate,
		RecipientID: recipientID,
		Params:      Params{CaptainName: captainName, Message: message},
		Data:        map[string]any{"orderId": orderID},
	}
}

// ReviewReceived tells staff about a new review of an order.
func ReviewReceived(recipientID string, o *domain.Order, rating int) Event {
	return Event{
		Type:        EventReviewReceived,
		RecipientID: recipientID,
		SourceType:  string(EventReviewReceived),
		SourceID:    o.ID,
		Params:      Params{OrderNumber: o.OrderNumber, Rating: rating},
		Data:        map[string]any{"orderId": o.ID, "rating": rating},
	}
}
