// Package memory persists conversation history in SQLite so follow-up
// questions can see their recent context across restarts.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"agribot/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.MemoryStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection: SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, logger: logger}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id          TEXT PRIMARY KEY,
		channel     TEXT NOT NULL,
		chat_id     TEXT NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS exchanges (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		query           TEXT NOT NULL,
		answer          TEXT,
		handlers        TEXT,
		quality         REAL DEFAULT 0,
		elapsed_ms      INTEGER DEFAULT 0,
		created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_exchanges_conv ON exchanges(conversation_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) EnsureConversation(ctx context.Context, conv domain.Conversation) error {
	now := time.Now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = now
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO conversations (id, channel, chat_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		conv.ID, conv.Channel, conv.ChatID, conv.CreatedAt, conv.UpdatedAt,
	)
	return err
}

func (s *SQLiteStore) AddExchange(ctx context.Context, ex domain.Exchange) error {
	now := time.Now()
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = now
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exchanges (conversation_id, query, answer, handlers, quality, elapsed_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ex.ConversationID, ex.Query, ex.Answer, ex.Handlers, ex.Quality, ex.ElapsedMs, ex.CreatedAt,
	)
	if err != nil {
		return err
	}

	_, _ = s.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, now, ex.ConversationID,
	)
	return nil
}

// RecentExchanges returns the last N exchanges in chronological order.
func (s *SQLiteStore) RecentExchanges(ctx context.Context, conversationID string, limit int) ([]domain.Exchange, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, query, answer, handlers, quality, elapsed_ms, created_at
		 FROM exchanges WHERE conversation_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`, conversationID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Exchange
	for rows.Next() {
		var ex domain.Exchange
		var answer, handlers sql.NullString
		if err := rows.Scan(&ex.ID, &ex.ConversationID, &ex.Query, &answer,
			&handlers, &ex.Quality, &ex.ElapsedMs, &ex.CreatedAt); err != nil {
			return nil, err
		}
		ex.Answer = answer.String
		ex.Handlers = handlers.String
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Prune removes exchanges older than the retention window, then drops
// conversations left with no exchanges. Returns the number of exchanges
// removed.
func (s *SQLiteStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM exchanges WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	removed, _ := res.RowsAffected()

	_, err = s.db.ExecContext(ctx,
		`DELETE FROM conversations
		 WHERE id NOT IN (SELECT DISTINCT conversation_id FROM exchanges)`)
	if err != nil {
		return removed, err
	}

	if removed > 0 {
		s.logger.Info("pruned conversation history", "exchanges", removed, "cutoff", cutoff)
	}
	return removed, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
