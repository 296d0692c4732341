package voice

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saaga0h/sahay-platform/internal/classifier"
)

// ListenerTimings are the restart delays used by the trigger listener
type ListenerTimings struct {
	NoMatchRestart time.Duration
	BusyRestart    time.Duration
	ClientRestart  time.Duration
	ErrorRestart   time.Duration
	Cooldown       time.Duration
	Grace          time.Duration
	MaxErrors      int
}

// DefaultListenerTimings returns the production delays
func DefaultListenerTimings() ListenerTimings {
	return ListenerTimings{
		NoMatchRestart: 300 * time.Millisecond,
		BusyRestart:    2 * time.Second,
		ClientRestart:  300 * time.Millisecond,
		ErrorRestart:   1500 * time.Millisecond,
		Cooldown:       30 * time.Second,
		Grace:          500 * time.Millisecond,
		MaxErrors:      10,
	}
}

// ListenerState is the lifecycle of a trigger listener
type ListenerState int32

const (
	ListenerIdle ListenerState = iota
	ListenerRunning
	ListenerTriggered
	ListenerStopped
	ListenerFailed
)

func (s ListenerState) String() string {
	return [...]string{"idle", "running", "triggered", "stopped", "failed"}[s]
}

// TriggerEvent is emitted once when an emergency phrase is heard
type TriggerEvent struct {
	Transcript string            `json:"transcript"`
	Partial    bool              `json:"partial"`
	Result     classifier.Result `json:"result"`
	Timestamp  time.Time         `json:"timestamp"`
}

// TriggerListener keeps one recognizer listening for emergency phrases,
// restarting it after every session until a phrase is heard.
type TriggerListener struct {
	recognizer Recognizer
	arbiter    *Arbiter
	timings    ListenerTimings
	logger     *slog.Logger

	state     atomic.Int32
	listening atomic.Bool
	triggered atomic.Bool
	closed    atomic.Bool

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	timer       *time.Timer
	errorCount  int
	subscribers []chan TriggerEvent
	sessions    sync.WaitGroup
}

// NewTriggerListener creates an idle listener owning recognizer
func NewTriggerListener(recognizer Recognizer, arbiter *Arbiter, logger *slog.Logger) *TriggerListener {
	return &TriggerListener{
		recognizer: recognizer,
		arbiter:    arbiter,
		timings:    DefaultListenerTimings(),
		logger:     logger,
	}
}

// SetTimings overrides the restart delays. Call before Start.
func (l *TriggerListener) SetTimings(t ListenerTimings) {
	l.timings = t
}

// State returns the lifecycle state
func (l *TriggerListener) State() ListenerState {
	return ListenerState(l.state.Load())
}

// Subscribe returns a channel that receives the trigger event. The channel
// is closed when the listener stops.
func (l *TriggerListener) Subscribe() <-chan TriggerEvent {
	ch := make(chan TriggerEvent, 1)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed.Load() {
		close(ch)
		return ch
	}
	l.subscribers = append(l.subscribers, ch)
	return ch
}

// Start begins listening. Starting twice is a no-op.
func (l *TriggerListener) Start(ctx context.Context) error {
	if l.closed.Load() {
		return errors.New("listener closed")
	}
	if !l.state.CompareAndSwap(int32(ListenerIdle), int32(ListenerRunning)) {
		return nil
	}

	l.mu.Lock()
	l.ctx, l.cancel = context.WithCancel(ctx)
	l.mu.Unlock()

	l.logger.Info("Voice trigger listener started")
	l.beginListening()
	return nil
}

// Close stops listening and releases the recognizer. Safe to call repeatedly.
func (l *TriggerListener) Close() error {
	l.shutdown(ListenerStopped)
	l.sessions.Wait()
	return nil
}

// beginListening is the only place a recognition session starts
func (l *TriggerListener) beginListening() {
	l.mu.Lock()
	if l.closed.Load() || l.triggered.Load() || !l.listening.CompareAndSwap(false, true) {
		l.mu.Unlock()
		return
	}
	ctx := l.ctx

	listenCtx, release, ok := l.arbiter.TryAcquireRecognizer(ctx)
	if !ok {
		l.listening.Store(false)
		l.mu.Unlock()
		l.logger.Debug("Recognizer in use, retrying later")
		l.scheduleRestart(l.timings.BusyRestart)
		return
	}
	l.sessions.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.sessions.Done()
		defer release()

		text, err := l.recognizer.Listen(listenCtx, func(partial string) {
			l.handleTranscript(partial, true)
		})
		l.listening.Store(false)

		if l.closed.Load() || l.triggered.Load() {
			return
		}
		if ctx.Err() != nil {
			l.shutdown(ListenerStopped)
			return
		}
		if err != nil {
			l.handleError(err)
			return
		}
		if !l.handleTranscript(text, false) {
			l.resetErrors()
			l.scheduleRestart(l.timings.NoMatchRestart)
		}
	}()
}

// scheduleRestart replaces any pending restart with one after delay
func (l *TriggerListener) scheduleRestart(delay time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed.Load() {
		return
	}
	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = time.AfterFunc(delay, l.beginListening)
}

func (l *TriggerListener) handleError(err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		l.logger.Debug("Recognition session interrupted")
		l.scheduleRestart(l.timings.BusyRestart)
		return
	}

	code, ok := CodeOf(err)
	if !ok {
		code = CodeUnknown
	}

	switch code {
	case CodePermission:
		l.logger.Error("Microphone permission denied, listener stopped")
		l.shutdown(ListenerFailed)

	case CodeUnavailable:
		l.logger.Error("Speech recognition unavailable on device, listener stopped")
		l.shutdown(ListenerFailed)

	case CodeNoMatch, CodeSpeechTimeout:
		l.resetErrors()
		l.scheduleRestart(l.timings.NoMatchRestart)

	case CodeBusy:
		l.recognizer.Cancel()
		l.scheduleRestart(l.timings.BusyRestart)

	case CodeClient:
		l.scheduleRestart(l.timings.ClientRestart)

	default:
		l.mu.Lock()
		l.errorCount++
		count := l.errorCount
		cooldown := count > l.timings.MaxErrors
		if cooldown {
			l.errorCount = 0
		}
		l.mu.Unlock()

		if cooldown {
			l.logger.Warn("Too many recognizer errors, cooling down", "errors", count, "cooldown", l.timings.Cooldown)
			l.scheduleRestart(l.timings.Cooldown)
			return
		}
		l.logger.Debug("Recognizer error", "code", code, "errors", count)
		l.scheduleRestart(l.timings.ErrorRestart)
	}
}

// handleTranscript runs the local classifier and takes the trigger latch on a
// hit. It returns true when this transcript triggered.
func (l *TriggerListener) handleTranscript(text string, partial bool) bool {
	result := classifier.ClassifyLocal(text)
	if !result.ShouldTrigger {
		return false
	}
	if !l.triggered.CompareAndSwap(false, true) {
		return false
	}

	l.state.Store(int32(ListenerTriggered))
	l.recognizer.Cancel()

	event := TriggerEvent{
		Transcript: text,
		Partial:    partial,
		Result:     result,
		Timestamp:  time.Now(),
	}
	l.logger.Warn("Emergency phrase detected", "transcript", text, "partial", partial)
	l.emit(event)

	l.mu.Lock()
	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = time.AfterFunc(l.timings.Grace, func() {
		l.shutdown(ListenerStopped)
	})
	l.mu.Unlock()
	return true
}

func (l *TriggerListener) emit(event TriggerEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, ch := range l.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- event
	}
}

func (l *TriggerListener) resetErrors() {
	l.mu.Lock()
	l.errorCount = 0
	l.mu.Unlock()
}

// shutdown moves to a terminal state exactly once
func (l *TriggerListener) shutdown(final ListenerState) {
	if !l.closed.CompareAndSwap(false, true) {
		return
	}

	l.state.Store(int32(final))

	l.mu.Lock()
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	if l.cancel != nil {
		l.cancel()
	}
	subscribers := l.subscribers
	l.subscribers = nil
	l.mu.Unlock()

	l.recognizer.Cancel()
	if err := l.recognizer.Close(); err != nil {
		l.logger.Debug("Recognizer close failed", "error", err)
	}
	for _, ch := range subscribers {
		close(ch)
	}
	l.logger.Info("Voice trigger listener stopped", "state", l.State())
}
