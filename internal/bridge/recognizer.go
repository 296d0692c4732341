package bridge

import (
	"context"
	"errors"
	"sync"

	"github.com/saaga0h/sahay-platform/internal/voice"
)

// Recognizer runs speech recognition sessions on the handset
type Recognizer struct {
	b *Bridge

	mu     sync.Mutex
	cancel context.CancelFunc
}

var _ voice.Recognizer = (*Recognizer)(nil)

// NewRecognizer returns a fresh recognizer. The voice trigger loop asks for
// a new one every cycle.
func (h *Handset) NewRecognizer() voice.Recognizer {
	return &Recognizer{b: h.b}
}

// Listen opens one session. Handset error codes map onto voice error codes.
func (r *Recognizer) Listen(ctx context.Context, onPartial func(string)) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	defer cancel()

	partial := func(ev Event) {
		if onPartial == nil {
			return
		}
		var p struct {
			Text string `json:"text"`
		}
		if err := decode(ev.Data, &p); err == nil && p.Text != "" {
			onPartial(p.Text)
		}
	}

	// Without a deadline the bridge timeout applies and reads as a speech timeout
	data, err := r.b.request(ctx, CapRecognizer, "listen", nil, partial)
	if err != nil {
		var he *HandsetError
		if errors.As(err, &he) {
			return "", &voice.RecognitionError{Code: voice.ParseErrorCode(he.Code), Message: he.Message}
		}
		if errors.Is(err, ErrTimeout) {
			return "", &voice.RecognitionError{Code: voice.CodeSpeechTimeout, Message: err.Error()}
		}
		return "", err
	}

	var out struct {
		Transcript string `json:"transcript"`
	}
	if err := decode(data, &out); err != nil {
		return "", &voice.RecognitionError{Code: voice.CodeClient, Message: err.Error()}
	}
	if out.Transcript == "" {
		return "", &voice.RecognitionError{Code: voice.CodeNoMatch}
	}
	return out.Transcript, nil
}

// Cancel stops the current session without waiting
func (r *Recognizer) Cancel() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if err := r.b.Notify(CapRecognizer, "cancel", nil); err != nil {
		r.b.logger.Debug("Failed to cancel recognizer", "error", err)
	}
}

func (r *Recognizer) Close() error {
	r.Cancel()
	return r.b.Notify(CapRecognizer, "destroy", nil)
}
