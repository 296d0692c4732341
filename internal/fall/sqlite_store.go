package fall

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore keeps fall history in a local file when Postgres is not configured
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (creating if needed) the database at path.
// ":memory:" opens a private in-memory database.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path not set")
	}

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Debug("SQLite fall store ready", "path", path)
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, event FallEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}

	confirmed := 0
	if event.WasConfirmedFall {
		confirmed = 1
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO fall_events (id, device_id, occurred_at, was_confirmed_fall, response_time_seconds) VALUES (?, ?, ?, ?, ?)`,
		event.ID.String(), event.Device, event.Timestamp.UnixMilli(), confirmed, event.ResponseTimeSeconds)
	if err != nil {
		return fmt.Errorf("failed to insert fall event %s: %w", event.ID, err)
	}

	s.logger.Debug("Stored fall event", "id", event.ID, "confirmed", event.WasConfirmedFall)
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]FallEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, device_id, occurred_at, was_confirmed_fall, response_time_seconds FROM fall_events ORDER BY occurred_at DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query fall events: %w", err)
	}
	defer rows.Close()

	var events []FallEvent
	for rows.Next() {
		var (
			id        string
			e         FallEvent
			millis    int64
			confirmed int
		)
		if err := rows.Scan(&id, &e.Device, &millis, &confirmed, &e.ResponseTimeSeconds); err != nil {
			return nil, fmt.Errorf("failed to scan fall event: %w", err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("invalid fall event id %q: %w", id, err)
		}
		e.ID = parsed
		e.Timestamp = time.UnixMilli(millis)
		e.WasConfirmedFall = confirmed != 0
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate fall events: %w", err)
	}
	return events, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
