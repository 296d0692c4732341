package fall

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Countdown defaults
const (
	CountdownSeconds   = 45
	VibrateEverySecond = 5
	VibrationPulse     = 500 * time.Millisecond
)

// Vibrator pulses the handset motor
type Vibrator interface {
	Vibrate(ctx context.Context, d time.Duration) error
}

// EscalateFunc runs the SOS cascade
type EscalateFunc func(ctx context.Context, reason string)

// Ticker delivers one tick per second; swapped out in tests
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// Status is a snapshot of the countdown for the UI
type Status struct {
	Active    bool      `json:"active"`
	AlertID   string    `json:"alert_id,omitempty"`
	Remaining int       `json:"remaining_seconds"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

type alert struct {
	id      uuid.UUID
	started time.Time
	elapsed atomic.Int32
	handled atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Countdown gives the user CountdownSeconds to dismiss a fall alert before
// the SOS cascade runs. Dismissal and expiry race; the first one wins.
type Countdown struct {
	device   string
	store    Store
	vibrator Vibrator
	escalate EscalateFunc
	logger   *slog.Logger

	seconds   int
	newTicker func() Ticker
	now       func() time.Time
	onTick    func(Status)

	mu      sync.Mutex
	current *alert
}

// NewCountdown creates an idle countdown
func NewCountdown(device string, store Store, vibrator Vibrator, escalate EscalateFunc, logger *slog.Logger) *Countdown {
	return &Countdown{
		device:   device,
		store:    store,
		vibrator: vibrator,
		escalate: escalate,
		logger:   logger,
		seconds:  CountdownSeconds,
		newTicker: func() Ticker {
			return realTicker{t: time.NewTicker(time.Second)}
		},
		now: time.Now,
	}
}

// OnTick registers a callback invoked with the status after every tick and
// on resolution. Call before Trigger.
func (c *Countdown) OnTick(fn func(Status)) {
	c.onTick = fn
}

// Status returns the current state
func (c *Countdown) Status() Status {
	c.mu.Lock()
	a := c.current
	c.mu.Unlock()

	if a == nil || a.handled.Load() {
		return Status{Remaining: c.seconds}
	}
	return Status{
		Active:    true,
		AlertID:   a.id.String(),
		Remaining: c.seconds - int(a.elapsed.Load()),
		StartedAt: a.started,
	}
}

// Active reports whether a countdown is running and unresolved
func (c *Countdown) Active() bool {
	return c.Status().Active
}

// Trigger starts a countdown. It returns false when one is already running.
func (c *Countdown) Trigger(ctx context.Context) bool {
	c.mu.Lock()
	if c.current != nil && !c.current.handled.Load() {
		c.mu.Unlock()
		c.logger.Info("Fall alert already active, ignoring new event")
		return false
	}

	runCtx, cancel := context.WithCancel(ctx)
	a := &alert{
		id:      uuid.New(),
		started: c.now(),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	c.current = a
	ticker := c.newTicker()
	c.mu.Unlock()

	c.logger.Warn("Fall detected, countdown started", "alert_id", a.id, "seconds", c.seconds)
	c.vibrate(runCtx)
	c.report()

	go c.run(runCtx, a, ticker)
	return true
}

// Dismiss resolves the active alert as a false alarm. It returns false when
// nothing was pending or expiry already won.
func (c *Countdown) Dismiss(ctx context.Context) bool {
	c.mu.Lock()
	a := c.current
	c.mu.Unlock()

	if a == nil || !a.handled.CompareAndSwap(false, true) {
		return false
	}
	a.cancel()

	elapsed := int(a.elapsed.Load())
	c.logger.Info("Fall alert dismissed", "alert_id", a.id, "elapsed_sec", elapsed)
	c.record(ctx, a, false, elapsed)
	c.report()
	return true
}

// Wait blocks until the current alert's loop has exited
func (c *Countdown) Wait() {
	c.mu.Lock()
	a := c.current
	c.mu.Unlock()
	if a != nil {
		<-a.done
	}
}

func (c *Countdown) run(ctx context.Context, a *alert, ticker Ticker) {
	defer close(a.done)
	defer a.cancel()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
		}

		if a.handled.Load() {
			return
		}

		elapsed := int(a.elapsed.Add(1))
		if elapsed >= c.seconds {
			c.expire(ctx, a)
			return
		}
		if elapsed%VibrateEverySecond == 0 {
			c.vibrate(ctx)
		}
		c.report()
	}
}

func (c *Countdown) expire(ctx context.Context, a *alert) {
	if !a.handled.CompareAndSwap(false, true) {
		return
	}

	c.logger.Warn("Fall countdown expired, escalating", "alert_id", a.id)
	c.record(ctx, a, true, c.seconds)
	c.report()

	if c.escalate != nil {
		c.escalate(ctx, "Fall detected by wearable and not dismissed within 45 seconds")
	}
}

// record writes the resolution. It uses a detached context so a dismissal
// that cancels the loop still persists.
func (c *Countdown) record(ctx context.Context, a *alert, confirmed bool, responseSeconds int) {
	if c.store == nil {
		return
	}
	event := FallEvent{
		ID:                  a.id,
		Device:              c.device,
		Timestamp:           a.started,
		WasConfirmedFall:    confirmed,
		ResponseTimeSeconds: responseSeconds,
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := c.store.Save(saveCtx, event); err != nil {
		c.logger.Error("Failed to store fall event", "alert_id", a.id, "error", err)
	}
}

func (c *Countdown) vibrate(ctx context.Context) {
	if c.vibrator == nil {
		return
	}
	if err := c.vibrator.Vibrate(ctx, VibrationPulse); err != nil {
		c.logger.Debug("Vibration failed", "error", err)
	}
}

func (c *Countdown) report() {
	if c.onTick != nil {
		c.onTick(c.Status())
	}
}
