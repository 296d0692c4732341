package fall

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/saaga0h/sahay-platform/pkg/postgres"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS fall_events (
    id UUID PRIMARY KEY,
    device_id TEXT NOT NULL,
    occurred_at TIMESTAMPTZ NOT NULL,
    was_confirmed_fall BOOLEAN NOT NULL,
    response_time_seconds INTEGER NOT NULL CHECK (response_time_seconds BETWEEN 0 AND 45)
);
CREATE INDEX IF NOT EXISTS idx_fall_events_occurred_at ON fall_events (occurred_at DESC);
`

// PostgresStore keeps fall history in Postgres
type PostgresStore struct {
	db     postgres.Client
	logger *slog.Logger
}

// NewPostgresStore wraps a connected client
func NewPostgresStore(db postgres.Client, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

// EnsureSchema creates the table if needed
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to create fall_events schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, event FallEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO fall_events (id, device_id, occurred_at, was_confirmed_fall, response_time_seconds)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`

	if _, err := s.db.Exec(ctx, query,
		event.ID, event.Device, event.Timestamp, event.WasConfirmedFall, event.ResponseTimeSeconds,
	); err != nil {
		return fmt.Errorf("failed to insert fall event %s: %w", event.ID, err)
	}

	s.logger.Debug("Stored fall event", "id", event.ID, "confirmed", event.WasConfirmedFall)
	return nil
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]FallEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, device_id, occurred_at, was_confirmed_fall, response_time_seconds
		FROM fall_events
		ORDER BY occurred_at DESC
		LIMIT $1`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query fall events: %w", err)
	}
	defer rows.Close()

	var events []FallEvent
	for rows.Next() {
		var e FallEvent
		if err := rows.Scan(&e.ID, &e.Device, &e.Timestamp, &e.WasConfirmedFall, &e.ResponseTimeSeconds); err != nil {
			return nil, fmt.Errorf("failed to scan fall event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate fall events: %w", err)
	}
	return events, nil
}
