package voice

import (
	"context"
	"log/slog"
	"os"
	"sync"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// session scripts one recognizer Listen call
type session struct {
	partials []string
	final    string
	err      error
	block    bool // wait for cancellation
	ignore   bool // ignore ctx and Cancel entirely until release is closed
}

type fakeRecognizer struct {
	mu       sync.Mutex
	script   []session
	sessions int
	cancels  int
	closes   int
	cancelCh chan struct{}
	release  chan struct{}
	started  chan struct{}
}

func newFakeRecognizer(script ...session) *fakeRecognizer {
	return &fakeRecognizer{
		script:  script,
		release: make(chan struct{}),
		started: make(chan struct{}, 100),
	}
}

func (f *fakeRecognizer) Listen(ctx context.Context, onPartial func(string)) (string, error) {
	f.mu.Lock()
	f.sessions++
	var s session
	if len(f.script) > 0 {
		s = f.script[0]
		f.script = f.script[1:]
	} else {
		s = session{block: true}
	}
	cancelCh := make(chan struct{})
	f.cancelCh = cancelCh
	f.mu.Unlock()

	f.started <- struct{}{}

	for _, p := range s.partials {
		if onPartial != nil {
			onPartial(p)
		}
	}

	switch {
	case s.ignore:
		<-f.release
		return s.final, s.err
	case s.block:
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-cancelCh:
			return "", &RecognitionError{Code: CodeClient, Message: "cancelled"}
		}
	}
	return s.final, s.err
}

func (f *fakeRecognizer) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	if f.cancelCh != nil {
		select {
		case <-f.cancelCh:
		default:
			close(f.cancelCh)
		}
	}
}

func (f *fakeRecognizer) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	return nil
}

func (f *fakeRecognizer) Sessions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions
}

func (f *fakeRecognizer) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

type fakeSpeaker struct {
	mu     sync.Mutex
	err    error
	spoken []string
	stops  int
	block  bool
}

func (f *fakeSpeaker) Speak(ctx context.Context, text string) error {
	f.mu.Lock()
	f.spoken = append(f.spoken, text)
	block := f.block
	err := f.err
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (f *fakeSpeaker) Stop() {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
}
