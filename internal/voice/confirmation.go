package voice

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"
)

// Prompt is spoken before listening
const Prompt = "Are you safe? Say yes or help"

// DefaultConfirmationTimeout bounds the listening phase
const DefaultConfirmationTimeout = 15 * time.Second

// ErrAlreadyStarted is returned when a confirmation is reused
var ErrAlreadyStarted = errors.New("confirmation already started")

var helpWords = []string{"help", "emergency", "hurt", "pain", "fell", "fallen", "ambulance", "bachao", "madad", "no"}

var safeWords = []string{"yes", "safe", "fine", "okay", "ok", "good", "alright", "haan", "theek"}

// Outcome is how a confirmation resolved
type Outcome int

const (
	OutcomeSafe Outcome = iota + 1
	OutcomeHelp
	OutcomeTimeout
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSafe:
		return "safe"
	case OutcomeHelp:
		return "help"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// State of a confirmation
type State int

const (
	StateIdle State = iota
	StateSpeaking
	StateListening
	StateProcessing
	StateResolved
)

func (s State) String() string {
	return [...]string{"idle", "speaking", "listening", "processing", "resolved"}[s]
}

// ClassifyResponse maps a transcript to an outcome. Help words win over safe
// words; any other speech counts as safe; silence is a timeout.
func ClassifyResponse(transcript string) Outcome {
	words := strings.FieldsFunc(strings.ToLower(transcript), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return OutcomeTimeout
	}

	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	for _, w := range helpWords {
		if _, ok := set[w]; ok {
			return OutcomeHelp
		}
	}
	for _, w := range safeWords {
		if _, ok := set[w]; ok {
			return OutcomeSafe
		}
	}
	return OutcomeSafe
}

// Confirmation asks the user whether they are safe. It is single use.
type Confirmation struct {
	speaker    Speaker
	recognizer Recognizer
	arbiter    *Arbiter
	timeout    time.Duration
	logger     *slog.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
}

// NewConfirmation creates an idle confirmation
func NewConfirmation(speaker Speaker, recognizer Recognizer, arbiter *Arbiter, logger *slog.Logger) *Confirmation {
	return &Confirmation{
		speaker:    speaker,
		recognizer: recognizer,
		arbiter:    arbiter,
		timeout:    DefaultConfirmationTimeout,
		logger:     logger,
	}
}

// SetTimeout overrides the listening timeout
func (c *Confirmation) SetTimeout(d time.Duration) {
	c.timeout = d
}

// State returns the current state
func (c *Confirmation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start runs the confirmation in the background and fires exactly one of the
// callbacks, or none if cancelled.
func (c *Confirmation) Start(ctx context.Context, onSafe, onHelp, onTimeout func()) error {
	runCtx, err := c.begin(ctx)
	if err != nil {
		return err
	}

	go func() {
		switch c.run(runCtx) {
		case OutcomeSafe:
			call(onSafe)
		case OutcomeHelp:
			call(onHelp)
		case OutcomeTimeout:
			call(onTimeout)
		}
	}()
	return nil
}

// Run performs the confirmation synchronously
func (c *Confirmation) Run(ctx context.Context) (Outcome, error) {
	runCtx, err := c.begin(ctx)
	if err != nil {
		return 0, err
	}
	return c.run(runCtx), nil
}

// Cancel stops speech and recognition. No callback fires afterwards.
func (c *Confirmation) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (c *Confirmation) begin(ctx context.Context) (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle || c.cancel != nil {
		return nil, ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	return runCtx, nil
}

func (c *Confirmation) run(ctx context.Context) Outcome {
	outcome := c.converse(ctx)
	if ctx.Err() != nil {
		outcome = OutcomeCancelled
	}

	c.setState(StateResolved)
	c.logger.Info("Voice confirmation resolved", "outcome", outcome)
	return outcome
}

func (c *Confirmation) converse(ctx context.Context) Outcome {
	c.setState(StateSpeaking)
	if err := c.speak(ctx); err != nil {
		if ctx.Err() != nil {
			return OutcomeCancelled
		}
		c.logger.Warn("Prompt could not be spoken, listening anyway", "error", err)
	}

	c.setState(StateListening)
	transcript, err := c.listen(ctx)
	if ctx.Err() != nil {
		return OutcomeCancelled
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.logger.Info("No response before timeout", "timeout", c.timeout)
		} else if code, ok := CodeOf(err); ok {
			c.logger.Info("No usable response", "code", code)
		} else {
			c.logger.Warn("Recognition failed", "error", err)
		}
		return OutcomeTimeout
	}

	c.setState(StateProcessing)
	return ClassifyResponse(transcript)
}

func (c *Confirmation) speak(ctx context.Context) error {
	if c.speaker == nil {
		return errors.New("no speaker")
	}
	speakCtx, release := c.arbiter.AcquireSpeaker(ctx)
	defer release()

	err := c.speaker.Speak(speakCtx, Prompt)
	if speakCtx.Err() != nil {
		c.speaker.Stop()
	}
	return err
}

type listenResult struct {
	text string
	err  error
}

// listen bounds the recognizer by the timeout even if it ignores ctx
func (c *Confirmation) listen(ctx context.Context) (string, error) {
	if c.recognizer == nil {
		return "", errors.New("no recognizer")
	}

	listenCtx, release := c.arbiter.AcquireRecognizer(ctx)
	defer release()
	listenCtx, cancel := context.WithTimeout(listenCtx, c.timeout)
	defer cancel()

	done := make(chan listenResult, 1)
	go func() {
		text, err := c.recognizer.Listen(listenCtx, nil)
		done <- listenResult{text: text, err: err}
	}()

	select {
	case res := <-done:
		return res.text, res.err
	case <-listenCtx.Done():
		c.recognizer.Cancel()
		return "", listenCtx.Err()
	}
}

func (c *Confirmation) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}

// Confirmer runs a fresh Confirmation for every request
type Confirmer struct {
	speaker    Speaker
	recognizer Recognizer
	arbiter    *Arbiter
	timeout    time.Duration
	logger     *slog.Logger
}

// NewConfirmer creates a confirmer sharing one speaker and recognizer
func NewConfirmer(speaker Speaker, recognizer Recognizer, arbiter *Arbiter, timeout time.Duration, logger *slog.Logger) *Confirmer {
	if timeout <= 0 {
		timeout = DefaultConfirmationTimeout
	}
	return &Confirmer{
		speaker:    speaker,
		recognizer: recognizer,
		arbiter:    arbiter,
		timeout:    timeout,
		logger:     logger,
	}
}

// Confirm asks once and returns the outcome
func (c *Confirmer) Confirm(ctx context.Context) Outcome {
	conf := NewConfirmation(c.speaker, c.recognizer, c.arbiter, c.logger)
	conf.SetTimeout(c.timeout)

	outcome, err := conf.Run(ctx)
	if err != nil {
		c.logger.Error("Voice confirmation could not start", "error", err)
		return OutcomeTimeout
	}
	return outcome
}
