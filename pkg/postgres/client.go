package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/lib/pq"
	"github.com/saaga0h/sahay-platform/pkg/config"
)

// ErrNotConnected is returned when an operation runs before Connect
var ErrNotConnected = errors.New("postgres client not connected")

// PostgresClient holds the fall-history pool. It is safe for concurrent use;
// Disconnect makes later calls fail with ErrNotConnected.
type PostgresClient struct {
	cfg    *config.Config
	logger *slog.Logger

	mu sync.RWMutex
	db *sql.DB
}

// NewClient creates an unconnected client
func NewClient(cfg *config.Config, logger *slog.Logger) *PostgresClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresClient{cfg: cfg, logger: logger}
}

// NewClientFromDB wraps an already open pool, such as a sqlmock in tests
func NewClientFromDB(db *sql.DB, cfg *config.Config, logger *slog.Logger) *PostgresClient {
	c := NewClient(cfg, logger)
	c.db = db
	return c
}

func (c *PostgresClient) pool() (*sql.DB, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.db == nil {
		return nil, ErrNotConnected
	}
	return c.db, nil
}

// Connect opens the pool with the configured limits and pings it
func (c *PostgresClient) Connect(ctx context.Context) error {
	c.logger.Info("Connecting to Postgres",
		"host", c.cfg.PostgresHost,
		"port", c.cfg.PostgresPort,
		"database", c.cfg.PostgresDB)

	db, err := sql.Open("postgres", c.cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("failed to open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(c.cfg.PostgresMaxConnections)
	db.SetMaxIdleConns(c.cfg.PostgresMaxIdleConnections)
	db.SetConnMaxLifetime(c.cfg.PostgresConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping postgres at %s:%d: %w", c.cfg.PostgresHost, c.cfg.PostgresPort, err)
	}

	c.mu.Lock()
	c.db = db
	c.mu.Unlock()
	return nil
}

// Disconnect closes the pool; it is a no-op when not connected
func (c *PostgresClient) Disconnect() error {
	c.mu.Lock()
	db := c.db
	c.db = nil
	c.mu.Unlock()

	if db == nil {
		return nil
	}
	c.logger.Info("Disconnecting from Postgres")
	if err := db.Close(); err != nil {
		return fmt.Errorf("failed to close postgres connection: %w", err)
	}
	return nil
}

func (c *PostgresClient) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	db, err := c.pool()
	if err != nil {
		return nil, err
	}
	return db.ExecContext(ctx, query, args...)
}

func (c *PostgresClient) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	db, err := c.pool()
	if err != nil {
		return nil, err
	}
	return db.QueryContext(ctx, query, args...)
}
