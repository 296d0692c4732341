package voice

import (
	"context"
	"sync"
)

// Arbiter grants the microphone and the speaker to one user at a time.
// Acquire preempts the current holder; TryAcquire yields to it.
type Arbiter struct {
	mu         sync.Mutex
	recognizer *lease
	speaker    *lease
}

type lease struct {
	cancel context.CancelFunc
}

// NewArbiter creates an arbiter with nothing held
func NewArbiter() *Arbiter {
	return &Arbiter{}
}

// AcquireRecognizer cancels the current recognizer holder and returns a
// context valid until release is called or the next acquisition.
func (a *Arbiter) AcquireRecognizer(ctx context.Context) (context.Context, func()) {
	return a.acquire(ctx, &a.recognizer)
}

// TryAcquireRecognizer acquires only when the recognizer is free
func (a *Arbiter) TryAcquireRecognizer(ctx context.Context) (context.Context, func(), bool) {
	return a.tryAcquire(ctx, &a.recognizer)
}

// AcquireSpeaker cancels the current speaker holder
func (a *Arbiter) AcquireSpeaker(ctx context.Context) (context.Context, func()) {
	return a.acquire(ctx, &a.speaker)
}

// RecognizerHeld reports whether someone holds the recognizer
func (a *Arbiter) RecognizerHeld() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recognizer != nil
}

func (a *Arbiter) acquire(ctx context.Context, slot **lease) (context.Context, func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if *slot != nil {
		(*slot).cancel()
	}
	return a.grant(ctx, slot)
}

func (a *Arbiter) tryAcquire(ctx context.Context, slot **lease) (context.Context, func(), bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if *slot != nil {
		return nil, nil, false
	}
	leaseCtx, release := a.grant(ctx, slot)
	return leaseCtx, release, true
}

// grant must be called with a.mu held
func (a *Arbiter) grant(ctx context.Context, slot **lease) (context.Context, func()) {
	leaseCtx, cancel := context.WithCancel(ctx)
	l := &lease{cancel: cancel}
	*slot = l

	release := func() {
		cancel()
		a.mu.Lock()
		if *slot == l {
			*slot = nil
		}
		a.mu.Unlock()
	}
	return leaseCtx, release
}
