package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"agribot/internal/domain"
)

// Coordinator fans a request out to the selected handlers concurrently and
// collects one ExecutionResult per handler. A failing, timed-out or panicking
// handler only poisons its own result slot, never its siblings.
type Coordinator struct {
	registry       *Registry
	handlerTimeout time.Duration
	logger         *slog.Logger
}

func NewCoordinator(registry *Registry, handlerTimeout time.Duration, logger *slog.Logger) *Coordinator {
	if handlerTimeout <= 0 {
		handlerTimeout = 30 * time.Second
	}
	return &Coordinator{
		registry:       registry,
		handlerTimeout: handlerTimeout,
		logger:         logger,
	}
}

// Execute runs every selected handler and returns a result map keyed by
// handler id, with exactly one entry per selected handler. Wall time is
// bounded by the slowest handler. There is no retry at this layer; handlers
// own their internal escalation.
func (c *Coordinator) Execute(ctx context.Context, decision domain.RoutingDecision, req *domain.Request) map[string]domain.ExecutionResult {
	results := make(map[string]domain.ExecutionResult, len(decision.Selected))
	if decision.Direct() {
		return results
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, id := range decision.Selected {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			res := c.runOne(ctx, id, req)
			mu.Lock()
			results[id] = res
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return results
}

func (c *Coordinator) runOne(ctx context.Context, id string, req *domain.Request) (res domain.ExecutionResult) {
	start := time.Now()
	res = domain.ExecutionResult{HandlerID: id}

	defer func() {
		res.Elapsed = time.Since(start)
		if r := recover(); r != nil {
			c.logger.Error("handler panicked", "handler", id, "panic", r)
			res.Success = false
			res.Payload = nil
			res.Err = fmt.Sprintf("handler panic: %v", r)
		}
	}()

	h, ok := c.registry.Get(id)
	if !ok {
		res.Err = "handler not registered"
		return res
	}

	hctx, cancel := context.WithTimeout(ctx, c.handlerTimeout)
	defer cancel()

	payload, err := h.Execute(hctx, req)
	if err != nil {
		c.logger.Warn("handler failed", "handler", id, "error", err, "elapsed", time.Since(start))
		res.Err = err.Error()
		return res
	}

	res.Success = true
	res.Payload = payload
	c.logger.Debug("handler succeeded", "handler", id, "elapsed", time.Since(start))
	return res
}
