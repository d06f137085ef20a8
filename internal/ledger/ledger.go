// Package ledger implements idempotent webhook ingestion over SQLite.
//
// Event processing is made idempotent by an insert-as-lock: inserting the
// event ID into a uniquely-constrained table is the lock acquisition, so
// correctness holds across concurrent deliveries, process restarts, and
// multiple instances without any in-process mutex.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Ledger is the idempotency store plus the entitlement state webhooks mutate.
type Ledger struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (or creates) the ledger database at the given DSN and
// initialises the schema. Use ":memory:" for an in-memory database.
func Open(dsn string, logger zerolog.Logger) (*Ledger, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite allows one writer; a single pooled connection avoids
	// SQLITE_BUSY under concurrent deliveries and keeps :memory: databases
	// on one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS webhook_events (
			event_id    TEXT PRIMARY KEY,
			event_type  TEXT NOT NULL,
			received_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS subscriptions (
			user_id    TEXT PRIMARY KEY,
			tier       TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Ledger{
		db:     db,
		logger: logger.With().Str("component", "ledger").Logger(),
	}, nil
}

// Acquire attempts the Unseen -> Locked transition for an event.
//
// Returns true when this call inserted the row and the caller now holds the
// processing lock; false when the event ID already exists, meaning another
// delivery processed it or is processing it. The row is never removed on
// side-effect failure, so a failed event stays "seen"; that gap is deliberate
// (at-least-once delivery, at-most-once side effects, no automatic retry).
func (l *Ledger) Acquire(ctx context.Context, eventID, eventType string) (bool, error) {
	res, err := l.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO webhook_events (event_id, event_type, received_at) VALUES (?, ?, ?)`,
		eventID, eventType, time.Now().Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("insert event lock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	return affected == 1, nil
}

// Seen reports whether an event ID has been recorded.
func (l *Ledger) Seen(ctx context.Context, eventID string) (bool, error) {
	var one int
	err := l.db.QueryRowContext(ctx,
		`SELECT 1 FROM webhook_events WHERE event_id = ?`, eventID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query event: %w", err)
	}
	return true, nil
}

// SetTier upserts a user's entitlement tier. This is the side effect webhook
// events apply after lock acquisition.
func (l *Ledger) SetTier(ctx context.Context, userID, tier string) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO subscriptions (user_id, tier, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET tier = excluded.tier, updated_at = excluded.updated_at`,
		userID, tier, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// Tier returns a user's current entitlement tier, or "" when none is set.
func (l *Ledger) Tier(ctx context.Context, userID string) (string, error) {
	var tier string
	err := l.db.QueryRowContext(ctx,
		`SELECT tier FROM subscriptions WHERE user_id = ?`, userID,
	).Scan(&tier)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query subscription: %w", err)
	}
	return tier, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}
