package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/saaga0h/sahay-platform/internal/settings"
)

// DefaultWatchdogInterval is how often the watchdog checks the service
const DefaultWatchdogInterval = 15 * time.Minute

// Service is what the watchdog keeps alive
type Service interface {
	Alive() bool
	Start(ctx context.Context) error
}

// Watchdog restarts the monitoring service when the user has it enabled but
// it is not running.
type Watchdog struct {
	service  Service
	settings *settings.Store
	interval time.Duration
	logger   *slog.Logger
}

// NewWatchdog creates a watchdog. A non-positive interval uses the default.
func NewWatchdog(service Service, store *settings.Store, interval time.Duration, logger *slog.Logger) *Watchdog {
	if interval <= 0 {
		interval = DefaultWatchdogInterval
	}
	return &Watchdog{service: service, settings: store, interval: interval, logger: logger}
}

// Run checks immediately and then every interval until ctx is cancelled
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("Watchdog started", "interval", w.interval)
	w.Check(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}

// Check restarts the service if needed. It reports whether a restart happened.
func (w *Watchdog) Check(ctx context.Context) bool {
	enabled, err := w.settings.MonitoringEnabled(ctx)
	if err != nil {
		w.logger.Warn("Watchdog could not read monitoring toggle", "error", err)
		return false
	}
	if !enabled || w.service.Alive() {
		return false
	}

	w.logger.Warn("Monitoring enabled but service not running, restarting")
	if err := w.service.Start(ctx); err != nil {
		w.logger.Error("Watchdog restart failed", "error", err)
		return false
	}
	return true
}
