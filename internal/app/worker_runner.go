package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/dig"

	"captain-dispatch/internal/logx"
	"captain-dispatch/internal/transport/kafka"
)

// WorkerRunner runs the order-event consumer.
type WorkerRunner struct {
	runFn func(*dig.Container) error
}

// NewWorkerRunner returns a new WorkerRunner
func NewWorkerRunner() *WorkerRunner {
	return &WorkerRunner{runFn: runWorker}
}

// MustRun consumes until the container context is done.
func (r *WorkerRunner) MustRun(container *dig.Container) {
	err := r.runFn(container)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	panic(err)
}

type workerIn struct {
	dig.In

	Ctx      context.Context
	Logger   logx.Logger
	Consumer *kafka.Consumer
	Closer   *closer
}

func runWorker(container *dig.Container) error {
	return container.Invoke(func(in workerIn) error {
		return workerRun(in.Ctx, in.Logger, in.Consumer, in.Closer)
	})
}

// workerRun holds no sockets; with redis configured its pushes are
// published for the API instances.
func workerRun(ctx context.Context, logger logx.Logger, consumer *kafka.Consumer, cl *closer) error {
	if consumer == nil {
		return fmt.Errorf("kafka consumer is nil: worker container misconfigured")
	}
	if cl != nil {
		defer cl.closeAll(logger)
	}

	logger.Info("service-dispatch-worker started")
	return consumer.Run(ctx)
}
