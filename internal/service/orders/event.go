package orders

import (
	"time"

	"captain-dispatch/internal/domain"
)

// Event is a single event published by order management.
type Event struct {
	Type    string
	OrderID string
	// Order is set for order_created.
	Order     *domain.Order
	Rating    int
	Reason    string
	CreatedAt time.Time
}
