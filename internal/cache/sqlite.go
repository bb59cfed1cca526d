// Package cache persists a last-N-messages snapshot per (user, conversation)
// so a timeline can be painted instantly before the network fetch resolves.
// It is never a source of truth: read failures degrade to a miss.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"petchat/internal/domain"
)

// Cache is a SQLite-backed key-value snapshot store.
type Cache struct {
	db *sql.DB
}

// Open opens (and migrates) the cache database at the given path. Use
// ":memory:" for an ephemeral cache.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping cache db: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Cache{db: db}, nil
}

func migrate(db *sql.DB) error {
	const stmt = `CREATE TABLE IF NOT EXISTS message_snapshots (
		user_id TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, conversation_id)
	);`
	if _, err := db.Exec(stmt); err != nil {
		return fmt.Errorf("migrate cache db: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached snapshot for the conversation, reporting a miss for
// absent or undecodable entries.
func (c *Cache) Get(ctx context.Context, userID, conversationID string) ([]domain.Message, bool, error) {
	const query = `SELECT payload FROM message_snapshots WHERE user_id = ? AND conversation_id = ?`

	var payload []byte
	err := c.db.QueryRowContext(ctx, query, userID, conversationID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read snapshot: %w", err)
	}

	var msgs []domain.Message
	if err := json.Unmarshal(payload, &msgs); err != nil {
		// A corrupt snapshot is a miss, not an error.
		return nil, false, nil
	}
	return msgs, true, nil
}

// Put stores the snapshot for the conversation, replacing any previous one.
func (c *Cache) Put(ctx context.Context, userID, conversationID string, msgs []domain.Message) error {
	payload, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	const stmt = `INSERT INTO message_snapshots (user_id, conversation_id, payload, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id, conversation_id) DO UPDATE SET
			payload = excluded.payload,
			updated_at = CURRENT_TIMESTAMP`
	if _, err := c.db.ExecContext(ctx, stmt, userID, conversationID, payload); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}
