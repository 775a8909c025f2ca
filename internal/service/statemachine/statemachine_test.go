package statemachine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"captain-dispatch/internal/apperr"
	"captain-dispatch/internal/domain"
	"captain-dispatch/internal/service/statemachine"
)

func newOrder(status domain.OrderStatus) *domain.Order {
	return &domain.Order{
		ID:     "order-1",
		Status: status,
		Timeline: []domain.TimelineEntry{
			{Status: domain.OrderNew, Description: "Order created"},
		},
	}
}

func TestTransition_HappyPathAppendsOneEntryPerStep(t *testing.T) {
	t.Parallel()

	o := newOrder(domain.OrderNew)
	path := []domain.OrderStatus{
		domain.OrderReady, domain.OrderAssigned, domain.OrderPickedUp,
		domain.OrderInTransit, domain.OrderDelivered,
	}

	for i, next := range path {
		prev := o
		var err error
		o, err = statemachine.Transition(o, next, statemachine.Meta{})
		require.NoError(t, err)
		require.Equal(t, next, o.Status)
		require.Len(t, o.Timeline, i+2)
		require.Equal(t, prev.Timeline, o.Timeline[:len(prev.Timeline)], "timeline prefix must be preserved")
		require.Equal(t, next, o.Timeline[len(o.Timeline)-1].Status)
	}
}

func TestTransition_CancelFromEveryNonTerminalState(t *testing.T) {
	t.Parallel()

	for _, from := range []domain.OrderStatus{
		domain.OrderNew, domain.OrderReady, domain.OrderAssigned, domain.OrderPickedUp, domain.OrderInTransit,
	} {
		o, err := statemachine.Transition(newOrder(from), domain.OrderCancelled, statemachine.Meta{Notes: "customer request"})
		require.NoError(t, err, "from %s", from)
		assert.Equal(t, domain.OrderCancelled, o.Status)
		assert.Equal(t, "customer request", o.Timeline[len(o.Timeline)-1].Notes)
	}
}

func TestTransition_DeliveredToCancelledRejected(t *testing.T) {
	t.Parallel()

	o := newOrder(domain.OrderDelivered)
	got, err := statemachine.Transition(o, domain.OrderCancelled, statemachine.Meta{})

	require.ErrorIs(t, err, apperr.ErrInvalidTransition)
	require.ErrorIs(t, err, apperr.ErrConflict)
	require.Nil(t, got)
	require.Len(t, o.Timeline, 1)
	require.Equal(t, domain.OrderDelivered, o.Status)
}

func TestTransition_SkippingStepsRejected(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from, to domain.OrderStatus
	}{
		{domain.OrderNew, domain.OrderPickedUp},
		{domain.OrderReady, domain.OrderDelivered},
		{domain.OrderPickedUp, domain.OrderReady},
		{domain.OrderReady, domain.OrderReady},
		{domain.OrderCancelled, domain.OrderReady},
	}
	for _, tc := range cases {
		_, err := statemachine.Transition(newOrder(tc.from), tc.to, statemachine.Meta{})
		assert.ErrorIs(t, err, apperr.ErrInvalidTransition, "%s -> %s", tc.from, tc.to)
	}
}

func TestTransition_UnknownStatusIsValidationError(t *testing.T) {
	t.Parallel()

	_, err := statemachine.Transition(newOrder(domain.OrderReady), domain.OrderStatus("lost"), statemachine.Meta{})
	require.ErrorIs(t, err, apperr.ErrInvalid)

	_, err = statemachine.Transition(nil, domain.OrderReady, statemachine.Meta{})
	require.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestTransition_RecordsMeta(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	loc := &domain.GeoPoint{Lat: 30.0, Lng: 31.2}

	o, err := statemachine.Transition(newOrder(domain.OrderPickedUp), domain.OrderInTransit, statemachine.Meta{
		Description: "leaving the print shop",
		Location:    loc,
		At:          at,
	})
	require.NoError(t, err)

	last := o.Timeline[len(o.Timeline)-1]
	assert.Equal(t, at, last.Timestamp)
	assert.Equal(t, at, o.UpdatedAt)
	assert.Equal(t, "leaving the print shop", last.Description)
	require.NotNil(t, last.Location)
	assert.Equal(t, *loc, *last.Location)

	loc.Lat = 0
	assert.Equal(t, 30.0, last.Location.Lat)
}

func TestSteps(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		[]domain.OrderStatus{domain.OrderAssigned, domain.OrderPickedUp},
		statemachine.Steps(domain.OrderReady, domain.OrderPickedUp))
	assert.Equal(t,
		[]domain.OrderStatus{domain.OrderPickedUp},
		statemachine.Steps(domain.OrderAssigned, domain.OrderPickedUp))
	assert.Nil(t, statemachine.Steps(domain.OrderPickedUp, domain.OrderReady))
	assert.Nil(t, statemachine.Steps(domain.OrderReady, domain.OrderReady))
	assert.Nil(t, statemachine.Steps(domain.OrderDelivered, domain.OrderPickedUp))
}
