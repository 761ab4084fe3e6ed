package buffer

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/speedwagon-io/icinga-status/internal/lib/logger/sl"
	"github.com/speedwagon-io/icinga-status/internal/model"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Buffer spools events the sink could not accept so they can be replayed.
// Events are status snapshots: only the newest per name is kept.
type Buffer interface {
	Store(ctx context.Context, event *model.Event) error
	GetPending(ctx context.Context, limit int) ([]*model.Event, error)
	MarkSent(ctx context.Context, ids []string) error
	Drop(ctx context.Context, name string) error
	Cleanup(ctx context.Context, maxAge time.Duration) error
	Count(ctx context.Context) (int64, error)
	Close() error
}

type SQLiteBuffer struct {
	log *slog.Logger
	db  *sql.DB
}

func NewSQLiteBuffer(log *slog.Logger, dbPath string) (*SQLiteBuffer, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create buffer directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	buf := &SQLiteBuffer{
		log: log,
		db:  db,
	}

	if err := buf.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return buf, nil
}

func (b *SQLiteBuffer) migrate() error {
	query := `
		CREATE TABLE IF NOT EXISTS pending_events (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			event_json TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_pending_events_created_at ON pending_events(created_at);
	`
	_, err := b.db.Exec(query)
	return err
}

// Store keeps event as the pending snapshot for its name, replacing any
// older one.
func (b *SQLiteBuffer) Store(ctx context.Context, event *model.Event) error {
	eventJSON, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	query := `
		INSERT INTO pending_events (id, name, event_json, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			id = excluded.id,
			event_json = excluded.event_json,
			created_at = excluded.created_at
	`

	_, err = b.db.ExecContext(ctx, query,
		event.ID,
		event.Name,
		string(eventJSON),
		time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to store event: %w", err)
	}

	b.log.Debug("event stored in buffer", slog.String("id", event.ID), slog.String("event", event.Name))
	return nil
}

// GetPending returns the oldest pending events first.
func (b *SQLiteBuffer) GetPending(ctx context.Context, limit int) ([]*model.Event, error) {
	query := `
		SELECT id, event_json
		FROM pending_events
		ORDER BY created_at ASC
		LIMIT ?
	`

	rows, err := b.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending events: %w", err)
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		var id, eventJSON string

		if err := rows.Scan(&id, &eventJSON); err != nil {
			b.log.Error("failed to scan row", sl.Err(err))
			continue
		}

		event, err := model.EventFromJSON([]byte(eventJSON))
		if err != nil {
			b.log.Error("failed to decode buffered event", slog.String("id", id), sl.Err(err))
			continue
		}

		events = append(events, event)
	}

	return events, rows.Err()
}

func (b *SQLiteBuffer) MarkSent(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "DELETE FROM pending_events WHERE id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("failed to delete event %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	b.log.Debug("marked events as sent", slog.Int("count", len(ids)))
	return nil
}

// Cleanup drops events older than maxAge; a stale status summary is
// worse than none.
func (b *SQLiteBuffer) Cleanup(ctx context.Context, maxAge time.Duration) error {
	cutoff := time.Now().UTC().Add(-maxAge).Format(timeLayout)

	result, err := b.db.ExecContext(ctx, "DELETE FROM pending_events WHERE created_at < ?", cutoff)
	if err != nil {
		return fmt.Errorf("failed to cleanup old events: %w", err)
	}

	deleted, _ := result.RowsAffected()
	if deleted > 0 {
		b.log.Info("cleaned up old buffer entries", slog.Int64("deleted", deleted))
	}

	return nil
}

// Drop discards the pending snapshot for name, once a newer one has been
// delivered.
func (b *SQLiteBuffer) Drop(ctx context.Context, name string) error {
	result, err := b.db.ExecContext(ctx, "DELETE FROM pending_events WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("failed to drop pending %s: %w", name, err)
	}

	if dropped, _ := result.RowsAffected(); dropped > 0 {
		b.log.Debug("dropped superseded event", slog.String("event", name))
	}
	return nil
}

func (b *SQLiteBuffer) Count(ctx context.Context) (int64, error) {
	var count int64
	err := b.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pending_events").Scan(&count)
	return count, err
}

func (b *SQLiteBuffer) Close() error {
	return b.db.Close()
}
