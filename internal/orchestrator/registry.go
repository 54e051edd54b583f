package orchestrator

import (
	"log/slog"
	"sort"

	"agribot/internal/domain"
)

// Registry maps handler ids to their implementations. It is populated once
// at process start and read-only afterwards, so no locking is needed.
type Registry struct {
	handlers map[string]domain.CapabilityHandler
	logger   *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		handlers: make(map[string]domain.CapabilityHandler),
		logger:   logger,
	}
}

func (r *Registry) Register(h domain.CapabilityHandler) {
	d := h.Descriptor()
	r.handlers[d.ID] = h
	r.logger.Debug("registered handler", "id", d.ID, "priority", d.Priority)
}

func (r *Registry) Get(id string) (domain.CapabilityHandler, bool) {
	h, ok := r.handlers[id]
	return h, ok
}

// Descriptors returns all registered descriptors ordered by priority. The
// router shows these to the classifier; the synthesizer uses the order for
// its deterministic fallback.
func (r *Registry) Descriptors() []domain.HandlerDescriptor {
	out := make([]domain.HandlerDescriptor, 0, len(r.handlers))
	for _, h := range r.handlers {
		out = append(out, h.Descriptor())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

func (r *Registry) Len() int { return len(r.handlers) }
