// Package voice holds the spoken "are you safe?" check, the always-on
// emergency keyword listener, and the arbiter that keeps them from fighting
// over the microphone and speaker.
package voice

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode classifies recognizer failures
type ErrorCode int

const (
	CodeNoMatch ErrorCode = iota + 1
	CodeSpeechTimeout
	CodeBusy
	CodeClient
	CodePermission
	CodeAudio
	CodeNetwork
	CodeUnavailable
	CodeUnknown
)

func (c ErrorCode) String() string {
	switch c {
	case CodeNoMatch:
		return "no_match"
	case CodeSpeechTimeout:
		return "speech_timeout"
	case CodeBusy:
		return "busy"
	case CodeClient:
		return "client"
	case CodePermission:
		return "permission"
	case CodeAudio:
		return "audio"
	case CodeNetwork:
		return "network"
	case CodeUnavailable:
		return "unavailable"
	case CodeUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("code_%d", int(c))
	}
}

// ParseErrorCode maps a wire name back to a code; unrecognized names map to CodeUnknown
func ParseErrorCode(s string) ErrorCode {
	for c := CodeNoMatch; c <= CodeUnknown; c++ {
		if c.String() == s {
			return c
		}
	}
	return CodeUnknown
}

// RecognitionError is returned by a Recognizer
type RecognitionError struct {
	Code    ErrorCode
	Message string
}

func (e *RecognitionError) Error() string {
	if e.Message == "" {
		return "recognition failed: " + e.Code.String()
	}
	return fmt.Sprintf("recognition failed: %s: %s", e.Code, e.Message)
}

// CodeOf extracts the recognition error code, if err carries one
func CodeOf(err error) (ErrorCode, bool) {
	var re *RecognitionError
	if errors.As(err, &re) {
		return re.Code, true
	}
	return 0, false
}

// Recognizer is a speech-to-text session on the handset
type Recognizer interface {
	// Listen runs one recognition session. onPartial receives interim
	// transcripts. It returns the final transcript or a *RecognitionError.
	Listen(ctx context.Context, onPartial func(text string)) (string, error)

	// Cancel aborts the current session. It must not block.
	Cancel()

	// Close releases the recognizer
	Close() error
}

// Speaker is text-to-speech on the handset
type Speaker interface {
	// Speak blocks until the utterance finishes or ctx is done
	Speak(ctx context.Context, text string) error

	// Stop interrupts the current utterance
	Stop()
}
