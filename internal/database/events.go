package database

import (
	"context"
	"fmt"
	"time"

	"github.com/vincentbai/mindfulweb-agent/internal/models"
)

// ValidateEvent checks an event received by the collector.
func ValidateEvent(event models.Event) error {
	if event.ID == "" {
		return fmt.Errorf("id cannot be empty")
	}
	if event.Domain == "" {
		return fmt.Errorf("domain cannot be empty")
	}
	if !event.Kind.Valid() {
		return fmt.Errorf("invalid event kind: %q", event.Kind)
	}
	if event.Timestamp.IsZero() || event.Timestamp.Unix() <= 0 {
		return fmt.Errorf("timestamp must be positive")
	}
	return nil
}

// InsertEvents stores a delivered batch in one transaction. Events already
// stored under the same id are skipped, so redelivery after a lost response is
// harmless. It returns the number of newly stored events.
func (d *Database) InsertEvents(ctx context.Context, events []models.Event) (int, error) {
	for _, event := range events {
		if err := ValidateEvent(event); err != nil {
			return 0, fmt.Errorf("invalid event: %w", err)
		}
	}

	transaction, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	statement, err := transaction.PrepareContext(ctx, `INSERT OR IGNORE INTO events(event_id, kind, domain, ts_utc, ts_iso, received_at) VALUES(?,?,?,?,?,?)`)
	if err != nil {
		_ = transaction.Rollback()
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer statement.Close()

	receivedAt := time.Now().UTC().UnixMilli()
	inserted := 0
	for _, event := range events {
		ts := event.Timestamp.UTC()
		result, err := statement.ExecContext(ctx, event.ID, string(event.Kind), event.Domain, ts.UnixMilli(), ts.Format(time.RFC3339Nano), receivedAt)
		if err != nil {
			_ = transaction.Rollback()
			return 0, fmt.Errorf("failed to execute statement: %w", err)
		}
		if affected, err := result.RowsAffected(); err == nil {
			inserted += int(affected)
		}
	}
	if err := transaction.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inserted, nil
}

func (d *Database) CountEvents(ctx context.Context) (int, error) {
	var count int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}
