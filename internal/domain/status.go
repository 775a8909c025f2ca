package domain

import "strings"

type (
	// OrderStatus is a step of the order delivery lifecycle.
	OrderStatus string
	// CaptainStatus is the presence state of a captain.
	CaptainStatus string
	// VehicleType is the captain's means of transport.
	VehicleType string
	// OrderPriority orders the dispatch queue for admins.
	OrderPriority string
	// Role is the kind of authenticated principal.
	Role string
)

// Order statuses.
const (
	OrderNew       OrderStatus = "new"
	OrderReady     OrderStatus = "ready"
	OrderAssigned  OrderStatus = "assigned"
	OrderPickedUp  OrderStatus = "picked_up"
	OrderInTransit OrderStatus = "in_transit"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

// Captain statuses.
const (
	CaptainOffline    CaptainStatus = "offline"
	CaptainOnline     CaptainStatus = "online"
	CaptainBusy       CaptainStatus = "busy"
	CaptainOnDelivery CaptainStatus = "on_delivery"
)

// Vehicle types.
const (
	VehicleMotorcycle VehicleType = "motorcycle"
	VehicleCar        VehicleType = "car"
	VehicleBicycle    VehicleType = "bicycle"
)

// Order priorities.
const (
	PriorityLow    OrderPriority = "low"
	PriorityNormal OrderPriority = "normal"
	PriorityHigh   OrderPriority = "high"
	PriorityUrgent OrderPriority = "urgent"
)

// Roles.
const (
	RoleCustomer Role = "customer"
	RoleCaptain  Role = "captain"
	RoleAdmin    Role = "admin"
)

var allowedOrderStatuses = [...]OrderStatus{
	OrderNew, OrderReady, OrderAssigned, OrderPickedUp, OrderInTransit, OrderDelivered, OrderCancelled,
}

var allowedCaptainStatuses = [...]CaptainStatus{
	CaptainOffline, CaptainOnline, CaptainBusy, CaptainOnDelivery,
}

var allowedVehicleTypes = [...]VehicleType{
	VehicleMotorcycle, VehicleCar, VehicleBicycle,
}

var allowedPriorities = [...]OrderPriority{
	PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent,
}

var allowedRoles = [...]Role{RoleCustomer, RoleCaptain, RoleAdmin}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	for _, v := range allowedOrderStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}

// CourierOwned reports whether an order in s is held by a captain.
func (s OrderStatus) CourierOwned() bool {
	return s == OrderPickedUp || s == OrderInTransit
}

// ParseOrderStatus normalizes raw input into an OrderStatus.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	s := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	return s, s.Valid()
}

func (s CaptainStatus) Valid() bool {
	for _, v := range allowedCaptainStatuses {
		if s == v {
			return true
		}
	}
	return false
}

func (t VehicleType) Valid() bool {
	for _, v := range allowedVehicleTypes {
		if t == v {
			return true
		}
	}
	return false
}

func (p OrderPriority) Valid() bool {
	for _, v := range allowedPriorities {
		if p == v {
			return true
		}
	}
	return false
}

func (r Role) Valid() bool {
	for _, v := range allowedRoles {
		if r == v {
			return true
		}
	}
	return false
}
