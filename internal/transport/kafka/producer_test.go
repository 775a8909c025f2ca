package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"

	"captain-dispatch/internal/domain"
)

func TestStatusProducer_PublishesKeyedJSON(t *testing.T) {
	t.Parallel()

	mp := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	mp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var got StatusEventDTO
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got.Type != "order_status_changed" || got.OrderID != "order-1" || got.From != "picked_up" || got.To != "in_transit" {
			return errors.New("unexpected payload: " + string(val))
		}
		return nil
	})

	p := NewStatusProducerWith(mp, "order-status")
	err := p.PublishStatus(context.Background(), domain.StatusChange{
		OrderID:   "order-1",
		CaptainID: "cap-1",
		From:      domain.OrderPickedUp,
		To:        domain.OrderInTransit,
		At:        time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestStatusProducer_WrapsSendError(t *testing.T) {
	t.Parallel()

	mp := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	mp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewStatusProducerWith(mp, "order-status")
	err := p.PublishStatus(context.Background(), domain.StatusChange{OrderID: "order-1"})
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.Contains(t, err.Error(), "order-1")
	require.NoError(t, p.Close())
}

func TestStatusProducer_NilAndUnconfigured(t *testing.T) {
	t.Parallel()

	var p *StatusProducer
	require.NoError(t, p.PublishStatus(context.Background(), domain.StatusChange{}))
	require.NoError(t, p.Close())

	got, err := NewStatusProducer(nil, "order-status")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestNewStatusProducer_ReturnsErrorWhenSaramaFails(t *testing.T) {
	orig := newSyncProducer
	t.Cleanup(func() { newSyncProducer = orig })

	sentinel := errors.New("boom")
	newSyncProducer = func([]string, *sarama.Config) (sarama.SyncProducer, error) {
		return nil, sentinel
	}

	got, err := NewStatusProducer([]string{"b:9092"}, "order-status")
	require.ErrorIs(t, err, sentinel)
	require.Nil(t, got)
}
