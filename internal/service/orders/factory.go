package orders

import (
	"context"
	"strings"
)

type actionFunc func(context.Context, Event) error

type actionFactory struct {
	byType map[string]actionFunc
}

func newActionFactory(p *Processor) *actionFactory {
	return &actionFactory{
		byType: map[string]actionFunc{
			"order_created":       p.onCreated,
			"print_job_completed": p.onPrintCompleted,
			"order_ready":         p.onReady,
			"order_cancelled":     p.onCancelled,
			// older producers still spell it the american way
			"order_canceled":  p.onCancelled,
			"review_received": p.onReview,
		},
	}
}

func (f *actionFactory) get(eventType string) (actionFunc, bool) {
	eventType = strings.ToLower(strings.TrimSpace(eventType))
	fn, ok := f.byType[eventType]
	return fn, ok
}
