// Package bus decouples the chat channels from the request pipeline with an
// in-process message bus.
package bus

import (
	"log/slog"
	"sync"
	"time"

	"agribot/internal/domain"
)

const publishTimeout = 10 * time.Second

// InMemoryBus is a Go-channel based request bus for in-process communication.
type InMemoryBus struct {
	inbound  chan domain.InboundRequest
	handlers map[string]func(domain.OutboundAnswer)
	mu       sync.RWMutex
	closed   bool
	logger   *slog.Logger
}

// New creates a new InMemoryBus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		inbound:  make(chan domain.InboundRequest, bufferSize),
		handlers: make(map[string]func(domain.OutboundAnswer)),
		logger:   logger,
	}
}

// Publish blocks up to 10 seconds if the bus is full instead of dropping.
func (b *InMemoryBus) Publish(req domain.InboundRequest) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus")
		return
	}

	select {
	case b.inbound <- req:
	default:
		b.logger.Warn("inbound bus full, waiting...", "channel", req.Channel, "sender", req.SenderID)
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case b.inbound <- req:
			b.logger.Info("request delivered after wait", "channel", req.Channel)
		case <-timer.C:
			b.logger.Error("request dropped: bus full for 10s",
				"channel", req.Channel,
				"sender", req.SenderID,
			)
		}
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.InboundRequest {
	return b.inbound
}

func (b *InMemoryBus) SendOutbound(ans domain.OutboundAnswer) {
	b.mu.RLock()
	handler, ok := b.handlers[ans.Channel]
	b.mu.RUnlock()

	if !ok {
		b.logger.Warn("no handler registered for channel",
			"channel", ans.Channel,
		)
		return
	}

	handler(ans)
}

func (b *InMemoryBus) OnOutbound(channelName string, handler func(domain.OutboundAnswer)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[channelName] = handler
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}
