package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/vincentbai/mindfulweb-agent/internal/models"
)

// QueueStore persists pending activity events so they survive an agent
// restart. Rows are ordered by insertion sequence.
type QueueStore struct {
	db *sql.DB
}

func (d *Database) Queue() *QueueStore {
	return &QueueStore{db: d.db}
}

func (s *QueueStore) Append(ctx context.Context, event models.Event) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO queue_events(event_id, kind, domain, ts_utc) VALUES(?,?,?,?)`,
		event.ID, string(event.Kind), event.Domain, event.Timestamp.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to append queued event: %w", err)
	}
	return nil
}

func (s *QueueStore) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	transaction, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// chunked to stay under SQLite's bound-variable limit
	const chunkSize = 500
	for start := 0; start < len(ids); start += chunkSize {
		end := min(start+chunkSize, len(ids))
		chunk := ids[start:end]
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		if _, err := transaction.ExecContext(ctx, `DELETE FROM queue_events WHERE event_id IN (`+placeholders+`)`, args...); err != nil {
			_ = transaction.Rollback()
			return fmt.Errorf("failed to remove queued events: %w", err)
		}
	}
	if err := transaction.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *QueueStore) Load(ctx context.Context) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT event_id, kind, domain, ts_utc FROM queue_events ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to load queued events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var (
			event models.Event
			kind  string
			tsUTC int64
		)
		if err := rows.Scan(&event.ID, &kind, &event.Domain, &tsUTC); err != nil {
			return nil, fmt.Errorf("failed to scan queued event: %w", err)
		}
		event.Kind = models.EventKind(kind)
		event.Timestamp = time.UnixMilli(tsUTC).UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate queued events: %w", err)
	}
	return events, nil
}
