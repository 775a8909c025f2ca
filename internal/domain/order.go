package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// GeoPoint is a WGS84 coordinate pair.
type GeoPoint struct {
	Lat float64
	Lng float64
}

// Address is where an order is delivered.
type Address struct {
	Street      string
	City        string
	Notes       string
	Coordinates *GeoPoint
}

// OrderItem is a single printed product line.
type OrderItem struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// TimelineEntry is one audited status change of an order.
type TimelineEntry struct {
	Timestamp   time.Time
	Status      OrderStatus
	Description string
	Location    *GeoPoint
	Notes       string
}

// Order is a customer order as seen by dispatch.
// CaptainID keeps the last bound captain even after the assignment is released.
type Order struct {
	ID              string
	OrderNumber     string
	Status          OrderStatus
	CustomerID      string
	CaptainID       string
	DeliveryAddress Address
	Items           []OrderItem
	TotalAmount     decimal.Decimal
	Priority        OrderPriority
	Timeline        []TimelineEntry
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	cp.Items = append([]OrderItem(nil), o.Items...)
	cp.Timeline = make([]TimelineEntry, len(o.Timeline))
	for i, e := range o.Timeline {
		if e.Location != nil {
			loc := *e.Location
			e.Location = &loc
		}
		cp.Timeline[i] = e
	}
	if o.DeliveryAddress.Coordinates != nil {
		c := *o.DeliveryAddress.Coordinates
		cp.DeliveryAddress.Coordinates = &c
	}
	return &cp
}

// Assignment binds an order to the captain who accepted it.
type Assignment struct {
	OrderID    string
	CaptainID  string
	AssignedAt time.Time
}

// Offer is a time-boxed invitation for a captain to accept an order.
type Offer struct {
	OrderID   string
	CaptainID string
	OfferedAt time.Time
	ExpiresAt time.Time
}

// Live reports whether the offer can still be acted upon at now.
func (o Offer) Live(now time.Time) bool {
	return now.Before(o.ExpiresAt)
}

// StatusChange is the record of one applied order transition, published
// for downstream consumers.
type StatusChange struct {
	OrderID     string
	OrderNumber string
	CustomerID  string
	CaptainID   string
	From        OrderStatus
	To          OrderStatus
	At          time.Time
	Notes       string
}
