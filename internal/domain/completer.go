package domain

import "context"

// Completer is the text-generation capability consumed by the router and
// synthesizer. Implementations may return an empty string or malformed
// structured content on failure; callers must treat both as recoverable
// misses, never as a crash.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Name() string
	Healthy(ctx context.Context) error
}
