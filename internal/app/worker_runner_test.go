package app

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/dig"

	"captain-dispatch/internal/logx"
)

func TestWorkerRunner_MustRun_NoPanicOnNil(t *testing.T) {
	r := &WorkerRunner{runFn: func(*dig.Container) error { return nil }}
	require.NotPanics(t, func() { r.MustRun(dig.New()) })
}

func TestWorkerRunner_MustRun_NoPanicOnCancel(t *testing.T) {
	r := &WorkerRunner{runFn: func(*dig.Container) error {
		return fmt.Errorf("consume: %w", context.Canceled)
	}}
	require.NotPanics(t, func() { r.MustRun(dig.New()) })
}

func TestWorkerRunner_MustRun_PanicsOnOtherError(t *testing.T) {
	sentinel := errors.New("boom")
	r := &WorkerRunner{runFn: func(*dig.Container) error { return sentinel }}
	require.Panics(t, func() { r.MustRun(dig.New()) })
}

func TestNewWorkerRunner_DefaultRunFn(t *testing.T) {
	r := NewWorkerRunner()
	require.NotNil(t, r.runFn)
	require.Equal(t, fmt.Sprintf("%p", runWorker), fmt.Sprintf("%p", r.runFn))
}

func TestWorkerRun_ReturnsError_WhenConsumerNil(t *testing.T) {
	cl := newCloser()
	closed := false
	cl.add("redis", func() error { closed = true; return nil })

	err := workerRun(context.Background(), logx.Nop(), nil, cl)
	require.Error(t, err)
	require.Contains(t, err.Error(), "kafka consumer is nil")
	require.False(t, closed, "nothing is released before the consumer exists")
}
