package memory

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"agribot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "agribot.db"), testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestEnsureConversationIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	conv := domain.Conversation{ID: "cli:1", Channel: "cli", ChatID: "1"}

	if err := s.EnsureConversation(ctx, conv); err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	if err := s.EnsureConversation(ctx, conv); err != nil {
		t.Fatalf("second ensure must not fail: %v", err)
	}
}

func TestAddAndRecentExchanges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	conv := domain.Conversation{ID: "telegram:7", Channel: "telegram", ChatID: "7"}
	if err := s.EnsureConversation(ctx, conv); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		ex := domain.Exchange{
			ConversationID: conv.ID,
			Query:          "q",
			Answer:         "a",
			Handlers:       "weather",
			Quality:        0.9,
			ElapsedMs:      120,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.AddExchange(ctx, ex); err != nil {
			t.Fatalf("add exchange %d: %v", i, err)
		}
	}

	got, err := s.RecentExchanges(ctx, conv.ID, 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 exchanges, got %d", len(got))
	}
	if !got[0].CreatedAt.Before(got[2].CreatedAt) {
		t.Error("exchanges should be chronological")
	}
	if got[0].Handlers != "weather" || got[0].Quality != 0.9 {
		t.Errorf("unexpected exchange fields: %+v", got[0])
	}
}

func TestRecentExchangesUnknownConversation(t *testing.T) {
	s := newTestStore(t)
	got, err := s.RecentExchanges(context.Background(), "missing", 5)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no exchanges, got %d", len(got))
	}
}

func TestPrune(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	conv := domain.Conversation{ID: "cli:1", Channel: "cli", ChatID: "1"}
	if err := s.EnsureConversation(ctx, conv); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	old := domain.Exchange{ConversationID: conv.ID, Query: "old", CreatedAt: time.Now().Add(-48 * time.Hour)}
	fresh := domain.Exchange{ConversationID: conv.ID, Query: "fresh", CreatedAt: time.Now()}
	if err := s.AddExchange(ctx, old); err != nil {
		t.Fatalf("add old: %v", err)
	}
	if err := s.AddExchange(ctx, fresh); err != nil {
		t.Fatalf("add fresh: %v", err)
	}

	removed, err := s.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}

	got, err := s.RecentExchanges(ctx, conv.ID, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 || got[0].Query != "fresh" {
		t.Errorf("expected only the fresh exchange, got %+v", got)
	}
}
