package dispatch

import (
	"time"

	"captain-dispatch/internal/domain"
)

func offerPayload(o *domain.Order, expiresAt time.Time) map[string]any {
	addr := map[string]any{
		"street": o.DeliveryAddress.Street,
		"city":   o.DeliveryAddress.City,
	}
	if c := o.DeliveryAddress.Coordinates; c != nil {
		addr["coordinates"] = map[string]float64{"lat": c.Lat, "lng": c.Lng}
	}
	return map[string]any{
		"orderId":         o.ID,
		"orderNumber":     o.OrderNumber,
		"priority":        string(o.Priority),
		"totalAmount":     o.TotalAmount.StringFixed(2),
		"itemCount":       len(o.Items),
		"deliveryAddress": addr,
		"expiresAt":       expiresAt.UTC().Format(time.RFC3339),
	}
}

func statusPayload(o *domain.Order) map[string]any {
	out := map[string]any{
		"orderId":     o.ID,
		"orderNumber": o.OrderNumber,
		"status":      string(o.Status),
	}
	if o.CaptainID != "" {
		out["captainId"] = o.CaptainID
	}
	if n := len(o.Timeline); n > 0 {
		e := o.Timeline[n-1]
		entry := map[string]any{
			"timestamp":   e.Timestamp.UTC().Format(time.RFC3339Nano),
			"status":      string(e.Status),
			"description": e.Description,
		}
		if e.Notes != "" {
			entry["notes"] = e.Notes
		}
		if e.Location != nil {
			entry["location"] = map[string]float64{"lat": e.Location.Lat, "lng": e.Location.Lng}
		}
		out["timelineEntry"] = entry
	}
	return out
}
