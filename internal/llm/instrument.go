package llm

import (
	"context"
	"time"

	"agribot/internal/domain"
	"agribot/internal/metrics"
)

// Instrumented decorates a completer with request counting and latency
// observation. Health checks are not counted.
type Instrumented struct {
	inner    domain.Completer
	requests *metrics.Counter
	latency  *metrics.Histogram
}

func NewInstrumented(inner domain.Completer, requests *metrics.Counter, latency *metrics.Histogram) *Instrumented {
	return &Instrumented{inner: inner, requests: requests, latency: latency}
}

func (i *Instrumented) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	reply, err := i.inner.Complete(ctx, prompt)
	if i.requests != nil {
		i.requests.Inc()
	}
	if i.latency != nil {
		i.latency.Observe(time.Since(start).Seconds())
	}
	return reply, err
}

func (i *Instrumented) Name() string { return i.inner.Name() }

func (i *Instrumented) Healthy(ctx context.Context) error { return i.inner.Healthy(ctx) }
