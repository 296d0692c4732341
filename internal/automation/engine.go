package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Locate-and-act polling
const (
	PollInterval     = 500 * time.Millisecond
	ActAttempts      = 5
	WaitAttempts     = 10
	stepTimeoutError = "step timed out after %dms"
)

// ErrNodeNotFound means a selector did not resolve within its attempts
var ErrNodeNotFound = errors.New("node not found")

// StepState is reported in status events
type StepState string

const (
	StepRunning   StepState = "running"
	StepSucceeded StepState = "succeeded"
	StepFailed    StepState = "failed"
	StepStopped   StepState = "stopped"
	StepCancelled StepState = "cancelled"
)

// StatusEvent is emitted before and after each step. StepIndex is the
// index in the original step list, also on retries.
type StatusEvent struct {
	StepIndex   int       `json:"stepIndex"`
	Total       int       `json:"total"`
	StepName    string    `json:"stepName"`
	Description string    `json:"description"`
	State       StepState `json:"state"`
}

// Observer receives status events on the executing goroutine
type Observer func(StatusEvent)

// Engine interprets flow configs against a Driver
type Engine struct {
	driver Driver
	logger *slog.Logger

	poll  time.Duration
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine creates an engine for driver
func NewEngine(driver Driver, logger *slog.Logger) *Engine {
	return &Engine{
		driver: driver,
		logger: logger,
		poll:   PollInterval,
		sleep:  sleepCtx,
	}
}

// ExecuteFlow runs every step of cfg. The app is launched first when the
// driver supports it.
func (e *Engine) ExecuteFlow(ctx context.Context, cfg UiFlowConfig, query string, observer Observer) Result {
	if launcher, ok := e.driver.(Launcher); ok && cfg.PackageName != "" {
		if err := launcher.LaunchApp(ctx, cfg.PackageName); err != nil {
			e.logger.Warn("Failed to launch app", "package", cfg.PackageName, "error", err)
		}
	}

	e.logger.Info("Starting flow", "platform", cfg.PlatformID, "steps", cfg.StepCount())
	return e.run(ctx, cfg, query, 0, observer)
}

// RetryFromStep runs the suffix of cfg starting at from
func (e *Engine) RetryFromStep(ctx context.Context, cfg UiFlowConfig, query string, from int, observer Observer) Result {
	if from < 0 || from >= cfg.StepCount() {
		return Failed{FailedAtStep: from, Reason: fmt.Sprintf("step index %d out of range", from)}
	}

	e.logger.Info("Retrying flow", "platform", cfg.PlatformID, "from", from)
	return e.run(ctx, cfg, query, from, observer)
}

func (e *Engine) run(ctx context.Context, cfg UiFlowConfig, query string, from int, observer Observer) Result {
	steps := cfg.Steps()
	total := len(steps)

	emit := func(i int, step FlowStep, state StepState) {
		if observer == nil {
			return
		}
		b := step.Base()
		observer(StatusEvent{StepIndex: i, Total: total, StepName: b.Name, Description: b.Description, State: state})
	}

	for i := from; i < total; i++ {
		step := steps[i]
		name := step.Base().Name

		if ctx.Err() != nil {
			e.logger.Info("Flow cancelled", "platform", cfg.PlatformID, "step", name)
			return Cancelled{}
		}

		emit(i, step, StepRunning)

		// Terminal steps end the flow before anything else is considered
		switch s := step.(type) {
		case StopBeforePayment:
			emit(i, step, StepStopped)
			e.logger.Info("Flow stopped before payment", "platform", cfg.PlatformID)
			return StoppedAtPayment{Message: s.Message}
		case StopForAuth:
			emit(i, step, StepStopped)
			e.logger.Info("Flow stopped for authentication", "platform", cfg.PlatformID, "reason", s.Reason)
			return StoppedForAuth{Reason: s.Reason}
		}

		err := e.runStep(ctx, step, query)
		if ctx.Err() != nil {
			emit(i, step, StepCancelled)
			e.logger.Info("Flow cancelled", "platform", cfg.PlatformID, "step", name)
			return Cancelled{}
		}
		if err != nil {
			emit(i, step, StepFailed)
			e.logger.Warn("Flow step failed", "platform", cfg.PlatformID, "step", name, "index", i, "error", err)
			return Failed{FailedAtStep: i, StepName: name, Reason: err.Error()}
		}

		emit(i, step, StepSucceeded)
	}

	e.logger.Info("Flow completed", "platform", cfg.PlatformID)
	return Completed{}
}

// runStep applies the step timeout. Expiry of the step context alone is a
// step failure; the caller checks the parent for cancellation.
func (e *Engine) runStep(ctx context.Context, step FlowStep, query string) error {
	base := step.Base()
	stepCtx := ctx
	if timeout := base.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := e.execute(stepCtx, step, query)
	if ctx.Err() == nil && stepCtx.Err() != nil {
		return fmt.Errorf(stepTimeoutError, base.TimeoutMs)
	}
	return err
}

func (e *Engine) execute(ctx context.Context, step FlowStep, query string) error {
	switch s := step.(type) {
	case WaitForNode:
		return e.locate(ctx, WaitAttempts, selectorFinder(s.Selector), func(Node) error { return nil })

	case ClickNode:
		return e.locate(ctx, ActAttempts, selectorFinder(s.Selector), func(n Node) error {
			return e.driver.Click(ctx, ClickTarget(n))
		})

	case TypeText:
		text := s.TextKey
		if text == TextKeyQuery {
			text = query
		}
		return e.locate(ctx, ActAttempts, selectorFinder(s.Selector), func(n Node) error {
			return e.typeInto(ctx, n, text)
		})

	case PerformIme:
		return e.driver.PerformIme(ctx, s.Action)

	case ClickFirstMatch:
		return e.locate(ctx, ActAttempts, firstMatchFinder(s.Selector), func(n Node) error {
			return e.driver.Click(ctx, ClickTarget(n))
		})

	case Scroll:
		return e.locate(ctx, ActAttempts, scrollFinder(s.Selector), func(n Node) error {
			return e.driver.Scroll(ctx, n, s.Direction)
		})

	case Delay:
		return e.sleep(ctx, s.Duration)

	case StopBeforePayment, StopForAuth:
		return nil

	default:
		return fmt.Errorf("unsupported step %T", step)
	}
}

// typeInto focuses, clears and sets text as separate actions. Focus and
// clear failures are tolerated; some fields accept text without them.
func (e *Engine) typeInto(ctx context.Context, n Node, text string) error {
	if err := e.driver.Focus(ctx, n); err != nil {
		e.logger.Debug("Focus failed", "node", n.ID(), "error", err)
	}
	if err := e.driver.ClearText(ctx, n); err != nil {
		e.logger.Debug("Clear failed", "node", n.ID(), "error", err)
	}
	return e.driver.SetText(ctx, n, text)
}

type finder func(root Node) Node

func selectorFinder(sel NodeSelector) finder {
	return func(root Node) Node { return Resolve(root, sel) }
}

func firstMatchFinder(sel NodeSelector) finder {
	return func(root Node) Node {
		if n := Resolve(root, sel); n != nil {
			return n
		}
		return find(root, firstClickable)
	}
}

func scrollFinder(sel NodeSelector) finder {
	return func(root Node) Node {
		if sel.IsZero() && len(sel.AlternateSelectors) == 0 {
			return FirstScrollable(root)
		}
		n := Resolve(root, sel)
		if n == nil {
			return nil
		}
		return ScrollTarget(n)
	}
}

// locate snapshots the tree, finds a node and acts on it, polling up to
// attempts times.
func (e *Engine) locate(ctx context.Context, attempts int, lookup finder, act func(Node) error) error {
	lastErr := ErrNodeNotFound
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		root, err := e.driver.Snapshot(ctx)
		switch {
		case err != nil:
			lastErr = fmt.Errorf("snapshot failed: %w", err)
		case root == nil:
			lastErr = fmt.Errorf("%w: no active window", ErrNodeNotFound)
		default:
			n := lookup(root)
			if n == nil {
				lastErr = ErrNodeNotFound
				break
			}
			if err := act(n); err != nil {
				lastErr = err
				break
			}
			return nil
		}

		if attempt < attempts {
			if err := e.sleep(ctx, e.poll); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
