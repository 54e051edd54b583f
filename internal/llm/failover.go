package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"agribot/internal/domain"
)

// Failover tries multiple completers in order, falling back to the next one
// when the current fails or returns an empty reply.
type Failover struct {
	completers []domain.Completer
	logger     *slog.Logger
}

// NewFailover creates a failover chain from the given completers.
// At least one completer is required.
func NewFailover(completers []domain.Completer, logger *slog.Logger) *Failover {
	return &Failover{
		completers: completers,
		logger:     logger,
	}
}

func (f *Failover) Name() string {
	names := make([]string, len(f.completers))
	for i, c := range f.completers {
		names[i] = c.Name()
	}
	return "failover(" + strings.Join(names, ",") + ")"
}

func (f *Failover) Healthy(ctx context.Context) error {
	for _, c := range f.completers {
		if err := c.Healthy(ctx); err == nil {
			return nil
		}
	}
	return fmt.Errorf("no healthy completer in failover chain")
}

// Complete tries each completer in order. An empty reply counts as a failure
// so the next completer gets a chance before the caller's fallback kicks in.
func (f *Failover) Complete(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for i, c := range f.completers {
		reply, err := c.Complete(ctx, prompt)
		if err == nil && strings.TrimSpace(reply) != "" {
			if i > 0 {
				f.logger.Info("failover: used fallback completer",
					"completer", c.Name(),
					"attempt", i+1,
				)
			}
			return reply, nil
		}
		if err == nil {
			err = fmt.Errorf("empty reply")
		}
		lastErr = err
		f.logger.Warn("failover: completer failed, trying next",
			"completer", c.Name(),
			"attempt", i+1,
			"error", err,
		)
	}
	return "", fmt.Errorf("all completers in failover chain failed: %w", lastErr)
}
