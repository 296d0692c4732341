package postgres

import (
	"context"
	"database/sql"
)

// Client is the subset of database/sql the stores rely on
type Client interface {
	// Connect opens the pool and verifies the server is reachable
	Connect(ctx context.Context) error

	// Disconnect closes the pool
	Disconnect() error

	// Exec executes a statement without returning rows
	Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error)

	// Query executes a query that returns rows
	Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)

	// HealthCheck reports connection state for the health endpoint
	HealthCheck(ctx context.Context) (*HealthStatus, error)
}
