package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // CGO-free SQLite
)

type Database struct {
	db *sql.DB
}

func NewDatabase(databasePath string) (*Database, error) {
	return Open(context.Background(), databasePath)
}

func Open(ctx context.Context, databasePath string) (*Database, error) {
	if err := os.MkdirAll(filepath.Dir(databasePath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	// WAL + busy timeout to avoid "database is locked"
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", databasePath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := os.Chmod(databasePath, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
		db.Close()
		return nil, fmt.Errorf("failed to restrict database permissions: %w", err)
	}

	if err := createTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Database{db: db}, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS settings(
	  key        TEXT PRIMARY KEY,
	  value      TEXT NOT NULL,
	  updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS queue_events(
	  seq       INTEGER PRIMARY KEY AUTOINCREMENT,
	  event_id  TEXT    NOT NULL UNIQUE,
	  kind      TEXT    NOT NULL CHECK (kind IN ('active','inactive')),
	  domain    TEXT    NOT NULL,
	  ts_utc    INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS events(
	  id          INTEGER PRIMARY KEY,
	  event_id    TEXT    NOT NULL UNIQUE,
	  kind        TEXT    NOT NULL CHECK (kind IN ('active','inactive')),
	  domain      TEXT    NOT NULL,
	  ts_utc      INTEGER NOT NULL,
	  ts_iso      TEXT    NOT NULL,
	  received_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_ts     ON events(ts_utc);
	CREATE INDEX IF NOT EXISTS idx_events_domain ON events(domain);
	`)
	if err != nil {
		return fmt.Errorf("failed to create database tables: %w", err)
	}
	return nil
}

func (d *Database) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}
