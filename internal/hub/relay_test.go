package hub

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"captain-dispatch/internal/logx"
)

func TestRelay_ForwardsToOtherInstance(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	newClient := func() *redis.Client {
		c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = c.Close() })
		return c
	}

	hubA, hubB := New(logx.Nop(), nil), New(logx.Nop(), nil)
	relayA := NewRelay(hubA, newClient(), "")
	relayB := NewRelay(hubB, newClient(), "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = relayA.Run(ctx) }()
	go func() { _ = relayB.Run(ctx) }()

	remote := &fakeConn{}
	hubB.Register("cust-1", remote)

	// Subscription timing is unknown, so keep publishing until it lands.
	assert.Eventually(t, func() bool {
		delivered := relayA.SendToUser(ctx, "cust-1", NewEnvelope(TypeOrderStatusUpdate, map[string]string{"orderId": "o1"}))
		assert.False(t, delivered, "remote delivery is not reported as local")
		return len(remote.received()) > 0
	}, 3*time.Second, 50*time.Millisecond)

	got := remote.received()[0]
	assert.Equal(t, TypeOrderStatusUpdate, got["type"])
	assert.Equal(t, "o1", got["orderId"])
}

func TestRelay_UserOnBothInstancesReceivesEverywhere(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	newClient := func() *redis.Client {
		c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = c.Close() })
		return c
	}

	hubA, hubB := New(logx.Nop(), nil), New(logx.Nop(), nil)
	relayA := NewRelay(hubA, newClient(), "test:channel")
	relayB := NewRelay(hubB, newClient(), "test:channel")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = relayA.Run(ctx) }()
	go func() { _ = relayB.Run(ctx) }()

	phone, tablet := &fakeConn{}, &fakeConn{}
	hubA.Register("cap-1", phone)
	hubB.Register("cap-1", tablet)

	sends := 0
	assert.Eventually(t, func() bool {
		sends++
		assert.True(t, relayA.SendToUser(ctx, "cap-1", NewEnvelope(TypeNewOrderAvailable, map[string]string{"orderId": "o7"})))
		return len(tablet.received()) > 0
	}, 3*time.Second, 50*time.Millisecond)

	assert.Equal(t, "o7", tablet.received()[0]["orderId"])
	// own publications are not delivered a second time
	assert.Never(t, func() bool { return len(phone.received()) != sends }, 200*time.Millisecond, 20*time.Millisecond)
}
