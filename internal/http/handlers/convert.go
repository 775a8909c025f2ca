package handlers

import (
	"captain-dispatch/internal/domain"
	"captain-dispatch/internal/service/notify"
	"captain-dispatch/internal/service/tracking"
)

func toLocationDTO(l domain.Location) locationDTO {
	return locationDTO{
		Lat:       l.Lat,
		Lng:       l.Lng,
		Heading:   l.Heading,
		Speed:     l.Speed,
		Accuracy:  l.Accuracy,
		Timestamp: l.Timestamp,
	}
}

func toGeoPointDTO(p *domain.GeoPoint) *geoPointDTO {
	if p == nil {
		return nil
	}
	return &geoPointDTO{Lat: p.Lat, Lng: p.Lng}
}

func (p *geoPointDTO) toModel() *domain.GeoPoint {
	if p == nil {
		return nil
	}
	return &domain.GeoPoint{Lat: p.Lat, Lng: p.Lng}
}

func captainToResponse(c domain.Captain) captainDTO {
	out := captainDTO{
		ID:              c.ID,
		Username:        c.Username,
		Name:            c.Name,
		Phone:           c.Phone,
		VehicleType:     string(c.VehicleType),
		Status:          string(c.Status),
		IsAvailable:     c.IsAvailable,
		Rating:          c.Rating,
		TotalDeliveries: c.TotalDeliveries,
	}
	if c.CurrentLocation != nil {
		loc := toLocationDTO(*c.CurrentLocation)
		out.CurrentLocation = &loc
	}
	return out
}

func userToResponse(u domain.User) userDTO {
	return userDTO{ID: u.ID, Username: u.Username, Name: u.Name, Role: string(u.Role)}
}

func orderToResponse(o domain.Order) orderDTO {
	out := orderDTO{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		Status:      string(o.Status),
		CustomerID:  o.CustomerID,
		CaptainID:   o.CaptainID,
		DeliveryAddress: addressDTO{
			Street:      o.DeliveryAddress.Street,
			City:        o.DeliveryAddress.City,
			Notes:       o.DeliveryAddress.Notes,
			Coordinates: toGeoPointDTO(o.DeliveryAddress.Coordinates),
		},
		Items:       make([]itemDTO, 0, len(o.Items)),
		TotalAmount: o.TotalAmount.StringFixed(2),
		Priority:    string(o.Priority),
		Timeline:    make([]timelineEntryDTO, 0, len(o.Timeline)),
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
	for _, it := range o.Items {
		out.Items = append(out.Items, itemDTO{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.String(),
		})
	}
	for _, e := range o.Timeline {
		out.Timeline = append(out.Timeline, timelineEntryDTO{
			Timestamp:   e.Timestamp,
			Status:      string(e.Status),
			Description: e.Description,
			Location:    toGeoPointDTO(e.Location),
			Notes:       e.Notes,
		})
	}
	return out
}

func ordersToResponse(list []domain.Order) []orderDTO {
	out := make([]orderDTO, 0, len(list))
	for _, o := range list {
		out = append(out, orderToResponse(o))
	}
	return out
}

func notificationsToResponse(list []domain.Notification) []notificationDTO {
	out := make([]notificationDTO, 0, len(list))
	for _, n := range list {
		out = append(out, notificationDTO{
			ID:           n.ID,
			Title:        n.Title,
			Message:      n.Message,
			Category:     string(n.Category),
			Priority:     string(n.Priority),
			Icon:         n.Icon,
			SourceID:     n.SourceID,
			SourceType:   n.SourceType,
			ScheduledFor: n.ScheduledFor,
			IsRead:       n.IsRead,
			ReadAt:       n.ReadAt,
			CreatedAt:    n.CreatedAt,
		})
	}
	return out
}

func (r locationRequest) toInput() tracking.LocationInput {
	return tracking.LocationInput{
		Lat:      r.Lat,
		Lng:      r.Lng,
		Heading:  r.Heading,
		Speed:    r.Speed,
		Accuracy: r.Accuracy,
	}
}

func (r systemAlertRequest) toModel() notify.Alert {
	return notify.Alert{
		Title:            r.Title,
		Message:          r.Message,
		Audience:         notify.Audience(r.Audience),
		ActiveWithinDays: r.ActiveWithinDays,
		Role:             domain.Role(r.Role),
		Priority:         domain.NotificationPriority(r.Priority),
		ScheduledFor:     r.ScheduledFor,
		AlertID:          r.AlertID,
	}
}
