package domain

import "time"

// Location is the last reported position of a captain.
type Location struct {
	Lat       float64
	Lng       float64
	Heading   *float64
	Speed     *float64
	Accuracy  *float64
	Timestamp time.Time
}

// SamePosition reports whether two fixes carry identical readings,
// ignoring the server timestamp.
func (l Location) SamePosition(o Location) bool {
	return l.Lat == o.Lat && l.Lng == o.Lng &&
		eqOpt(l.Heading, o.Heading) && eqOpt(l.Speed, o.Speed) && eqOpt(l.Accuracy, o.Accuracy)
}

func eqOpt(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Captain is a delivery courier.
type Captain struct {
	ID              string
	Username        string
	PasswordHash    string
	Name            string
	Phone           string
	VehicleType     VehicleType
	Status          CaptainStatus
	IsAvailable     bool
	CurrentLocation *Location
	Rating          float64
	TotalDeliveries int
	UpdatedAt       time.Time
}

// Eligible reports whether the captain may receive new order offers.
func (c Captain) Eligible() bool {
	return c.Status == CaptainOnline && c.IsAvailable
}

// HasActiveDelivery reports whether the captain is holding an order.
func (c Captain) HasActiveDelivery() bool {
	return c.Status == CaptainBusy || c.Status == CaptainOnDelivery
}

// User is a platform account able to receive notifications.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Name         string
	Role         Role
	LastActiveAt time.Time
}

// UserFilter narrows an audience lookup. Zero values match everything.
type UserFilter struct {
	Role        Role
	ActiveSince time.Time
}
