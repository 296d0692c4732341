// Package classifier decides whether an utterance is an emergency.
//
// Classification is tiered: a local keyword match is instant and always wins;
// otherwise an optional remote classifier is consulted under a strict budget,
// and anything that goes wrong there degrades to a non-triggering default.
package classifier

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Result is the outcome of classifying one utterance
type Result struct {
	ShouldTrigger bool `json:"should_trigger"`
	Confidence    int  `json:"confidence"` // 0..100, informational
}

var (
	// LocalMatch is returned for any local keyword hit
	LocalMatch = Result{ShouldTrigger: true, Confidence: 95}

	// NoLocalMatch is returned by ClassifyLocal when nothing matched
	NoLocalMatch = Result{ShouldTrigger: false, Confidence: 0}

	// SafeDefault is the "unknown" result when the remote tier is unavailable
	SafeDefault = Result{ShouldTrigger: false, Confidence: 50}
)

// DefaultTimeout bounds a single remote classification
const DefaultTimeout = 3000 * time.Millisecond

// DefaultThreshold is the confidence callers require before acting
const DefaultThreshold = 70

// emergencyKeywords are matched by containment against normalized text
var emergencyKeywords = []string{
	"help me",
	"help",
	"i fell",
	"i have fallen",
	"i've fallen",
	"call an ambulance",
	"ambulance",
	"emergency",
	"save me",
	"bachao",
	"madad",
}

// ClassifyLocal lowercases and trims text and checks it against the fixed
// keyword set. It performs no I/O and is safe for concurrent use.
func ClassifyLocal(text string) Result {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return NoLocalMatch
	}
	for _, kw := range emergencyKeywords {
		if strings.Contains(normalized, kw) {
			return LocalMatch
		}
	}
	return NoLocalMatch
}

// Triggers applies the caller-side gate
func Triggers(r Result, threshold int) bool {
	return r.ShouldTrigger && r.Confidence >= threshold
}

// Remote is the black-box semantic classifier
type Remote interface {
	Classify(ctx context.Context, text string) (Result, error)
}

// Classifier runs the tiered classification
type Classifier struct {
	remote  Remote
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a classifier. remote may be nil, which disables the second tier.
func New(remote Remote, timeout time.Duration, logger *slog.Logger) *Classifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Classifier{
		remote:  remote,
		timeout: timeout,
		logger:  logger,
	}
}

// Classify returns the local result on a hit, else the remote result within
// the timeout budget, else SafeDefault. It never blocks past the budget even
// if the remote ignores its context.
func (c *Classifier) Classify(ctx context.Context, text string) Result {
	if local := ClassifyLocal(text); local.ShouldTrigger {
		return local
	}

	if c.remote == nil {
		return SafeDefault
	}

	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type outcome struct {
		result Result
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		r, err := c.remote.Classify(rctx, text)
		done <- outcome{result: r, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			c.logger.Warn("Remote classifier failed, using safe default", "error", o.err)
			return SafeDefault
		}
		return clamp(o.result)
	case <-rctx.Done():
		c.logger.Warn("Remote classifier timed out, using safe default",
			"timeout_ms", c.timeout.Milliseconds())
		return SafeDefault
	}
}

func clamp(r Result) Result {
	if r.Confidence < 0 {
		r.Confidence = 0
	}
	if r.Confidence > 100 {
		r.Confidence = 100
	}
	return r
}
