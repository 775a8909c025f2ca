package handlers

import "time"

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type captainLoginResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	Captain   captainDTO `json:"captain"`
}

type userLoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      userDTO   `json:"user"`
}

type userDTO struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

type locationDTO struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Heading   *float64  `json:"heading,omitempty"`
	Speed     *float64  `json:"speed,omitempty"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type captainDTO struct {
	ID              string       `json:"id"`
	Username        string       `json:"username"`
	Name            string       `json:"name"`
	Phone           string       `json:"phone,omitempty"`
	VehicleType     string       `json:"vehicleType"`
	Status          string       `json:"status"`
	IsAvailable     bool         `json:"isAvailable"`
	CurrentLocation *locationDTO `json:"currentLocation,omitempty"`
	Rating          float64      `json:"rating"`
	TotalDeliveries int          `json:"totalDeliveries"`
}

type geoPointDTO struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type addressDTO struct {
	Street      string       `json:"street"`
	City        string       `json:"city"`
	Notes       string       `json:"notes,omitempty"`
	Coordinates *geoPointDTO `json:"coordinates,omitempty"`
}

type itemDTO struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
}

type timelineEntryDTO struct {
	Timestamp   time.Time    `json:"timestamp"`
	Status      string       `json:"status"`
	Description string       `json:"description"`
	Location    *geoPointDTO `json:"location,omitempty"`
	Notes       string       `json:"notes,omitempty"`
}

type orderDTO struct {
	ID              string             `json:"id"`
	OrderNumber     string             `json:"orderNumber"`
	Status          string             `json:"status"`
	CustomerID      string             `json:"customerId"`
	CaptainID       string             `json:"captainId,omitempty"`
	DeliveryAddress addressDTO         `json:"deliveryAddress"`
	Items           []itemDTO          `json:"items"`
	TotalAmount     string             `json:"totalAmount"`
	Priority        string             `json:"priority"`
	Timeline        []timelineEntryDTO `json:"timeline"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}

type locationRequest struct {
	Lat      *float64 `json:"lat"`
	Lng      *float64 `json:"lng"`
	Heading  *float64 `json:"heading,omitempty"`
	Speed    *float64 `json:"speed,omitempty"`
	Accuracy *float64 `json:"accuracy,omitempty"`
}

type locationResponse struct {
	Location  locationDTO `json:"location"`
	Forwarded int         `json:"forwarded"`
}

type statusRequest struct {
	Status   string       `json:"status"`
	Notes    string       `json:"notes,omitempty"`
	Location *geoPointDTO `json:"location,omitempty"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type readyRequest struct {
	Notes string `json:"notes,omitempty"`
}

type broadcastResponse struct {
	OrderID          string    `json:"orderId"`
	CaptainsNotified int       `json:"captainsNotified"`
	Delivered        int       `json:"delivered"`
	ExpiresAt        time.Time `json:"expiresAt"`
}

type systemAlertRequest struct {
	Title            string     `json:"title"`
	Message          string     `json:"message"`
	Audience         string     `json:"audience"`
	ActiveWithinDays int        `json:"activeWithinDays,omitempty"`
	Role             string     `json:"role,omitempty"`
	Priority         string     `json:"priority,omitempty"`
	ScheduledFor     *time.Time `json:"scheduledFor,omitempty"`
	AlertID          string     `json:"alertId,omitempty"`
}

type notificationDTO struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Message      string     `json:"message"`
	Category     string     `json:"category"`
	Priority     string     `json:"priority"`
	Icon         string     `json:"icon,omitempty"`
	SourceID     string     `json:"sourceId,omitempty"`
	SourceType   string     `json:"sourceType,omitempty"`
	ScheduledFor *time.Time `json:"scheduledFor,omitempty"`
	IsRead       bool       `json:"isRead"`
	ReadAt       *time.Time `json:"readAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}
