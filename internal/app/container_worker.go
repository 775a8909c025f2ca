package app

import (
	"go.uber.org/dig"

	"captain-dispatch/internal/config"
	"captain-dispatch/internal/logx"
	"captain-dispatch/internal/service/dispatch"
	"captain-dispatch/internal/service/notify"
	"captain-dispatch/internal/service/orders"
	"captain-dispatch/internal/transport/kafka"
)

func newProcessor(store Storage, c *dispatch.Coordinator, e *notify.Engine, logger logx.Logger) *orders.Processor {
	return orders.NewProcessor(store, c, e, logger)
}

func newOrdersConsumer(cfg *config.Config, p *orders.Processor, logger logx.Logger, cl *closer) (*kafka.Consumer, error) {
	c, err := kafka.NewConsumer(logger, cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.OrdersTopic, p.Handle)
	if err != nil {
		return nil, err
	}
	if c != nil {
		cl.add("kafka consumer", c.Close)
	}
	return c, nil
}

// embeddedConsumer runs the order consumer inside the API process. Only the
// memory driver needs it: a separate worker could not see the API's state.
type embeddedConsumer struct {
	*kafka.Consumer
}

func newEmbeddedConsumer(cfg *config.Config, p *orders.Processor, logger logx.Logger, cl *closer) (*embeddedConsumer, error) {
	if cfg.Storage != config.StorageMemory {
		return nil, nil
	}
	c, err := newOrdersConsumer(cfg, p, logger, cl)
	if err != nil || c == nil {
		return nil, err
	}
	return &embeddedConsumer{Consumer: c}, nil
}

func registerWorker(container *dig.Container) error {
	return provideAll(container, newOrdersConsumer)
}
