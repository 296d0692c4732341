// Package fall runs the 45 second "are you OK?" countdown after the wearable
// reports a fall, and keeps the history of how each alert was resolved.
package fall

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidEvent is returned when a FallEvent violates its bounds
var ErrInvalidEvent = errors.New("invalid fall event")

// FallEvent records how one fall alert was resolved. Records are written once.
type FallEvent struct {
	ID                  uuid.UUID `json:"id"`
	Device              string    `json:"device"`
	Timestamp           time.Time `json:"timestamp"`
	WasConfirmedFall    bool      `json:"was_confirmed_fall"`
	ResponseTimeSeconds int       `json:"response_time_seconds"`
}

// Validate checks the response time bound
func (e FallEvent) Validate() error {
	if e.ID == uuid.Nil {
		return errors.Join(ErrInvalidEvent, errors.New("missing id"))
	}
	if e.ResponseTimeSeconds < 0 || e.ResponseTimeSeconds > CountdownSeconds {
		return errors.Join(ErrInvalidEvent, errors.New("response time out of range"))
	}
	return nil
}

// Store persists fall events
type Store interface {
	Save(ctx context.Context, event FallEvent) error

	// List returns up to limit events, newest first
	List(ctx context.Context, limit int) ([]FallEvent, error)
}
