package domain

import (
	"context"
	"time"
)

// Conversation groups the exchanges of one chat session.
type Conversation struct {
	ID        string
	Channel   string
	ChatID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Exchange records one completed request/answer pair for context recall.
type Exchange struct {
	ID             int64
	ConversationID string
	Query          string
	Answer         string
	Handlers       string // comma-separated handler ids
	Quality        float64
	ElapsedMs      int64
	CreatedAt      time.Time
}

// MemoryStore persists conversation history. The core owns no other state;
// caches are in-process and rebuilt on restart.
type MemoryStore interface {
	EnsureConversation(ctx context.Context, conv Conversation) error
	AddExchange(ctx context.Context, ex Exchange) error
	RecentExchanges(ctx context.Context, conversationID string, limit int) ([]Exchange, error)
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
	Close() error
}
