package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saaga0h/sahay-platform/pkg/config"
)

func TestNotConnected(t *testing.T) {
	c := NewClient(config.NewConfig(), nil)
	ctx := context.Background()

	_, err := c.Exec(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = c.Query(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.NoError(t, c.Disconnect())

	status, err := c.HealthCheck(ctx)
	require.NoError(t, err)
	assert.False(t, status.Connected)
	assert.Equal(t, "not connected", status.Error)
}

func TestHealthCheck(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	cfg := config.NewConfig()
	c := NewClientFromDB(db, cfg, nil)

	mock.ExpectQuery("SHOW server_version").
		WillReturnRows(sqlmock.NewRows([]string{"server_version"}).AddRow("16.4"))

	status, err := c.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Connected)
	assert.Equal(t, "16.4", status.ServerVersion)
	assert.Equal(t, cfg.PostgresDB, status.Database)

	mock.ExpectClose()
	require.NoError(t, c.Disconnect())
	assert.NoError(t, mock.ExpectationsWereMet())

	_, err = c.Exec(context.Background(), "DELETE FROM fall_events")
	assert.ErrorIs(t, err, ErrNotConnected)
}
