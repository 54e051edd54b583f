package domain

import "context"

// InboundRequest is a raw request arriving from a channel (CLI, Telegram).
type InboundRequest struct {
	Channel   string
	ChatID    string
	SenderID  string
	Text      string
	Modality  Modality
	Language  string
	ImageRef  string
	Location  string
	Crop      string
}

// OutboundAnswer is the synthesized answer routed back to its channel.
type OutboundAnswer struct {
	Channel string
	ChatID  string
	Text    string
	Quality float64
}

// RequestBus decouples channels from the pipeline.
type RequestBus interface {
	Publish(req InboundRequest)
	Subscribe() <-chan InboundRequest
	SendOutbound(ans OutboundAnswer)
	OnOutbound(channelName string, handler func(OutboundAnswer))
	Close()
}

// Channel is a chat frontend (CLI, Telegram). Start blocks until the context
// is cancelled.
type Channel interface {
	Name() string
	Start(ctx context.Context, bus RequestBus) error
	Stop() error
}
