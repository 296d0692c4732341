// Package inactivity raises an alert when the handset has seen neither touch
// nor motion for longer than the configured threshold.
package inactivity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/saaga0h/sahay-platform/internal/settings"
	"github.com/saaga0h/sahay-platform/internal/timeline"
)

// MinCheckInterval is the floor for the polling interval
const MinCheckInterval = 5 * time.Second

// CheckInterval returns max(threshold/3, MinCheckInterval)
func CheckInterval(thresholdSeconds int) time.Duration {
	interval := time.Duration(thresholdSeconds) * time.Second / 3
	if interval < MinCheckInterval {
		return MinCheckInterval
	}
	return interval
}

// Detector polls the activity timestamps and latches an alert
type Detector struct {
	store    *settings.Store
	timeline timeline.Recorder
	now      func() time.Time
	logger   *slog.Logger

	mu          sync.Mutex
	onInactive  func(ctx context.Context)
	lastTouch   time.Time
	lastMotion  time.Time
	alertActive bool
	alertCancel context.CancelFunc
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewDetector creates a stopped detector
func NewDetector(store *settings.Store, recorder timeline.Recorder, logger *slog.Logger) *Detector {
	return &Detector{
		store:    store,
		timeline: recorder,
		now:      time.Now,
		logger:   logger,
	}
}

// OnInactive sets the callback fired once per latched alert. The callback's
// context is cancelled as soon as touch or motion clears the alert.
func (d *Detector) OnInactive(fn func(ctx context.Context)) {
	d.mu.Lock()
	d.onInactive = fn
	d.mu.Unlock()
}

// Start resets the activity timestamps to now and begins polling.
// Starting a running detector is a no-op; a loop that already exited is
// replaced.
func (d *Detector) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.cancel != nil {
		if !closed(d.done) {
			d.mu.Unlock()
			return nil
		}
		d.cancel()
	}

	now := d.now()
	d.lastTouch = now
	d.lastMotion = now
	d.alertActive = false

	loopCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	done := d.done
	d.mu.Unlock()

	if err := d.store.ResetActivity(ctx, now); err != nil {
		d.logger.Warn("Failed to persist activity reset", "error", err)
	}

	go d.loop(loopCtx, done)

	d.logger.Info("Inactivity detector started")
	return nil
}

// Stop halts polling. It is safe to call repeatedly.
func (d *Detector) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	done := d.done
	d.cancel = nil
	d.done = nil
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	d.logger.Info("Inactivity detector stopped")
}

// Running reports whether the polling loop is active. A loop whose parent
// context ended is not running even if Stop was never called.
func (d *Detector) Running() bool {
	d.mu.Lock()
	done := d.done
	d.mu.Unlock()

	return done != nil && !closed(done)
}

func closed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// AlertActive reports whether an inactivity alert is latched
func (d *Detector) AlertActive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.alertActive
}

// OnTouchDetected records a touch and clears any active alert, cancelling
// the alert handler if it is still running
func (d *Detector) OnTouchDetected(ctx context.Context) {
	now := d.now()
	d.mu.Lock()
	d.lastTouch = now
	d.clearAlertLocked()
	d.mu.Unlock()

	if err := d.store.RecordTouch(ctx, now); err != nil {
		d.logger.Warn("Failed to persist touch", "error", err)
	}
}

// OnMotionDetected records motion and clears any active alert, cancelling
// the alert handler if it is still running
func (d *Detector) OnMotionDetected(ctx context.Context) {
	now := d.now()
	d.mu.Lock()
	d.lastMotion = now
	d.clearAlertLocked()
	d.mu.Unlock()

	if err := d.store.RecordMotion(ctx, now); err != nil {
		d.logger.Warn("Failed to persist motion", "error", err)
	}
}

// ResetAlert clears the latch so the next inactivity period can alert again
func (d *Detector) ResetAlert() {
	d.mu.Lock()
	d.clearAlertLocked()
	d.mu.Unlock()
}

func (d *Detector) clearAlertLocked() {
	d.alertActive = false
	if d.alertCancel != nil {
		d.alertCancel()
		d.alertCancel = nil
	}
}

func (d *Detector) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		threshold, err := d.store.Threshold(ctx)
		if err != nil {
			d.logger.Warn("Failed to read threshold, using default", "error", err)
		}
		interval := CheckInterval(threshold)

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		d.check(ctx)
	}
}

// check evaluates one polling cycle. It returns true when an alert was raised.
func (d *Detector) check(ctx context.Context) bool {
	now := d.now()

	asleep, err := d.store.InSleepWindow(ctx, now)
	if err != nil {
		d.logger.Warn("Failed to read sleep window", "error", err)
	}
	if asleep {
		d.logger.Debug("Inside sleep window, skipping inactivity check")
		return false
	}

	threshold, err := d.store.Threshold(ctx)
	if err != nil {
		d.logger.Warn("Failed to read threshold, using default", "error", err)
	}
	limit := time.Duration(threshold) * time.Second

	d.mu.Lock()
	if d.alertActive {
		d.mu.Unlock()
		return false
	}
	touchIdle := now.Sub(d.lastTouch)
	motionIdle := now.Sub(d.lastMotion)
	if touchIdle <= limit || motionIdle <= limit {
		d.mu.Unlock()
		return false
	}
	d.alertActive = true
	alertCtx, alertCancel := context.WithCancel(ctx)
	d.alertCancel = alertCancel
	callback := d.onInactive
	d.mu.Unlock()

	d.logger.Warn("Inactivity detected",
		"threshold_sec", threshold,
		"touch_idle_sec", int(touchIdle.Seconds()),
		"motion_idle_sec", int(motionIdle.Seconds()))

	if d.timeline != nil {
		desc := fmt.Sprintf("No touch or motion for %d seconds", threshold)
		if err := d.timeline.Append(ctx, timeline.InactivityDetected, desc); err != nil {
			d.logger.Warn("Failed to record inactivity event", "error", err)
		}
	}

	if callback != nil {
		callback(alertCtx)
	}
	return true
}
