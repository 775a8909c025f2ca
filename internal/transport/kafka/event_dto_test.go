package kafka_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"captain-dispatch/internal/domain"
	"captain-dispatch/internal/transport/kafka"
)

func TestToDomain_TrimsAndCopiesFields(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	got, err := kafka.ToDomain(kafka.EventDTO{
		Type:      "  Order_Cancelled  ",
		OrderID:   "  order-1  ",
		Reason:    " out of paper ",
		CreatedAt: ts,
	})
	require.NoError(t, err)
	require.Equal(t, "order_cancelled", got.Type)
	require.Equal(t, "order-1", got.OrderID)
	require.Equal(t, "out of paper", got.Reason)
	require.Equal(t, ts, got.CreatedAt)
	require.Nil(t, got.Order)
}

func TestToDomain_DecodesOrderSnapshot(t *testing.T) {
	t.Parallel()

	raw := `{
		"type": "order_created",
		"order": {
			"id": "order-7",
			"order_number": "PR-7",
			"customer_id": "cust-7",
			"priority": "HIGH",
			"total_amount": "41.90",
			"items": [{"product_id": "p-1", "name": "A3 poster", "quantity": 2, "unit_price": "20.95"}],
			"delivery_address": {"street": "Tahrir 1", "city": "Cairo", "lat": 30.04, "lng": 31.23}
		},
		"created_at": "2025-01-02T03:04:05Z"
	}`
	var dto kafka.EventDTO
	require.NoError(t, json.Unmarshal([]byte(raw), &dto))

	got, err := kafka.ToDomain(dto)
	require.NoError(t, err)
	require.Equal(t, "order-7", got.OrderID, "order id falls back to the snapshot")
	require.NotNil(t, got.Order)
	require.Equal(t, domain.PriorityHigh, got.Order.Priority)
	require.True(t, decimal.RequireFromString("41.9").Equal(got.Order.TotalAmount))
	require.Len(t, got.Order.Items, 1)
	require.Equal(t, 2, got.Order.Items[0].Quantity)
	require.Equal(t, &domain.GeoPoint{Lat: 30.04, Lng: 31.23}, got.Order.DeliveryAddress.Coordinates)
}

func TestToDomain_RequiresType(t *testing.T) {
	t.Parallel()

	_, err := kafka.ToDomain(kafka.EventDTO{OrderID: "order-1"})
	require.Error(t, err)
}
