package kafka

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"captain-dispatch/internal/domain"
	"captain-dispatch/internal/service/orders"
)

// EventDTO is the wire form of an order-management event.
type EventDTO struct {
	Type      string    `json:"type"`
	OrderID   string    `json:"order_id"`
	Order     *OrderDTO `json:"order,omitempty"`
	Rating    int       `json:"rating,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// OrderDTO is the order snapshot carried by order_created.
type OrderDTO struct {
	ID          string          `json:"id"`
	OrderNumber string          `json:"order_number"`
	CustomerID  string          `json:"customer_id"`
	Priority    string          `json:"priority"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Items       []ItemDTO       `json:"items"`
	Address     AddressDTO      `json:"delivery_address"`
}

type ItemDTO struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type AddressDTO struct {
	Street string   `json:"street"`
	City   string   `json:"city"`
	Notes  string   `json:"notes"`
	Lat    *float64 `json:"lat,omitempty"`
	Lng    *float64 `json:"lng,omitempty"`
}

var errNoType = errors.New("event type is required")

// ToDomain converts EventDTO to orders.Event
func ToDomain(dto EventDTO) (orders.Event, error) {
	ev := orders.Event{
		Type:      strings.ToLower(strings.TrimSpace(dto.Type)),
		OrderID:   strings.TrimSpace(dto.OrderID),
		Rating:    dto.Rating,
		Reason:    strings.TrimSpace(dto.Reason),
		CreatedAt: dto.CreatedAt,
	}
	if ev.Type == "" {
		return orders.Event{}, errNoType
	}
	if dto.Order != nil {
		ev.Order = dto.Order.toDomain()
		if ev.OrderID == "" {
			ev.OrderID = ev.Order.ID
		}
	}
	return ev, nil
}

func (d OrderDTO) toDomain() *domain.Order {
	o := &domain.Order{
		ID:          strings.TrimSpace(d.ID),
		OrderNumber: strings.TrimSpace(d.OrderNumber),
		CustomerID:  strings.TrimSpace(d.CustomerID),
		Priority:    domain.OrderPriority(strings.ToLower(strings.TrimSpace(d.Priority))),
		TotalAmount: d.TotalAmount,
		DeliveryAddress: domain.Address{
			Street: d.Address.Street,
			City:   d.Address.City,
			Notes:  d.Address.Notes,
		},
	}
	if d.Address.Lat != nil && d.Address.Lng != nil {
		o.DeliveryAddress.Coordinates = &domain.GeoPoint{Lat: *d.Address.Lat, Lng: *d.Address.Lng}
	}
	for _, it := range d.Items {
		o.Items = append(o.Items, domain.OrderItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	return o
}

// StatusEventDTO is published for every applied order transition.
type StatusEventDTO struct {
	Type        string    `json:"type"`
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	CustomerID  string    `json:"customer_id"`
	CaptainID   string    `json:"captain_id,omitempty"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Notes       string    `json:"notes,omitempty"`
	At          time.Time `json:"at"`
}

// FromStatusChange converts a transition to its wire form.
func FromStatusChange(c domain.StatusChange) StatusEventDTO {
	return StatusEventDTO{
		Type:        "order_status_changed",
		OrderID:     c.OrderID,
		OrderNumber: c.OrderNumber,
		CustomerID:  c.CustomerID,
		CaptainID:   c.CaptainID,
		From:        string(c.From),
		To:          string(c.To),
		Notes:       c.Notes,
		At:          c.At,
	}
}
