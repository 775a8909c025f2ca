package kafka

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"

	"captain-dispatch/internal/domain"
	testlog "captain-dispatch/internal/testutil"
)

type publisherFunc func(context.Context, domain.StatusChange) error

func (f publisherFunc) PublishStatus(ctx context.Context, c domain.StatusChange) error {
	return f(ctx, c)
}

type counterStub struct{ n int64 }

func (c *counterStub) Inc() { atomic.AddInt64(&c.n, 1) }
func (c *counterStub) Count() int64 {
	return atomic.LoadInt64(&c.n)
}

func TestRetryingPublisher_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	rec := testlog.New()

	var calls int32
	next := publisherFunc(func(context.Context, domain.StatusChange) error {
		switch atomic.AddInt32(&calls, 1) {
		case 1, 2:
			return sarama.ErrNotLeaderForPartition
		default:
			return nil
		}
	})
	ctr := &counterStub{}
	p := NewRetryingPublisher(next, rec.Logger(), ctr, RetryConfig{MaxAttempts: 5})
	require.NotNil(t, p)

	err := p.PublishStatus(context.Background(), domain.StatusChange{OrderID: "order-1"})
	require.NoError(t, err)
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))
	require.EqualValues(t, 2, ctr.Count())

	e, ok := rec.Find("warn", "status publish retry")
	require.True(t, ok)
	id, _ := e.Field("order_id")
	require.Equal(t, "order-1", id)
}

func TestRetryingPublisher_NoRetryOnPermanentError(t *testing.T) {
	t.Parallel()

	var calls int32
	boom := errors.New("marshal failed")
	next := publisherFunc(func(context.Context, domain.StatusChange) error {
		atomic.AddInt32(&calls, 1)
		return boom
	})
	ctr := &counterStub{}
	p := NewRetryingPublisher(next, nil, ctr, RetryConfig{MaxAttempts: 5})

	err := p.PublishStatus(context.Background(), domain.StatusChange{OrderID: "order-1"})
	require.ErrorIs(t, err, boom)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	require.Zero(t, ctr.Count())
}

func TestRetryingPublisher_StopsAtMaxAttempts(t *testing.T) {
	t.Parallel()

	var calls int32
	next := publisherFunc(func(context.Context, domain.StatusChange) error {
		atomic.AddInt32(&calls, 1)
		return sarama.ErrOutOfBrokers
	})
	p := NewRetryingPublisher(next, nil, nil, RetryConfig{MaxAttempts: 3})

	err := p.PublishStatus(context.Background(), domain.StatusChange{OrderID: "order-1"})
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestRetryingPublisher_StopsWhenContextDone(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	next := publisherFunc(func(context.Context, domain.StatusChange) error {
		atomic.AddInt32(&calls, 1)
		cancel()
		return sarama.ErrRequestTimedOut
	})
	p := NewRetryingPublisher(next, nil, nil, RetryConfig{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour})

	err := p.PublishStatus(ctx, domain.StatusChange{OrderID: "order-1"})
	require.ErrorIs(t, err, sarama.ErrRequestTimedOut)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestRetryingPublisher_WrapsStatusProducer(t *testing.T) {
	t.Parallel()

	mp := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	mp.ExpectSendMessageAndFail(sarama.ErrLeaderNotAvailable)
	mp.ExpectSendMessageAndSucceed()

	p := NewRetryingPublisher(NewStatusProducerWith(mp, "order-status"), nil, nil, RetryConfig{MaxAttempts: 2})
	require.NoError(t, p.PublishStatus(context.Background(), domain.StatusChange{OrderID: "order-1"}))
	require.NoError(t, mp.Close())
}

func TestNewRetryingPublisher_NilNext(t *testing.T) {
	t.Parallel()
	require.Nil(t, NewRetryingPublisher(nil, nil, nil, RetryConfig{}))
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{5, time.Second},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, backoff(100*time.Millisecond, time.Second, tt.attempt))
	}
}
