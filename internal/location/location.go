// Package location resolves where the user is for SOS messages.
package location

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Unavailable is the text used when no fix can be obtained
const Unavailable = "Location unavailable"

// Coordinates is a latitude/longitude pair in degrees
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Provider is the handset's location service
type Provider interface {
	// CurrentLocation requests a fresh fix; nil means none was obtained
	CurrentLocation(ctx context.Context) (*Coordinates, error)

	// LastKnownLocation returns the cached fix, if any
	LastKnownLocation(ctx context.Context) (*Coordinates, error)
}

// MapsLink returns a Google Maps URL for the coordinates
func MapsLink(c Coordinates) string {
	return fmt.Sprintf("https://maps.google.com/?q=%.6f,%.6f", c.Lat, c.Lon)
}

// Resolver applies the current → last-known → unavailable fallback chain
type Resolver struct {
	provider Provider
	timeout  time.Duration
	logger   *slog.Logger
}

// NewResolver creates a resolver. timeout bounds the fresh-fix request.
func NewResolver(provider Provider, timeout time.Duration, logger *slog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Resolver{provider: provider, timeout: timeout, logger: logger}
}

// Resolve returns the best available coordinates, or nil
func (r *Resolver) Resolve(ctx context.Context) *Coordinates {
	if r.provider == nil {
		return nil
	}

	fixCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	current, err := r.provider.CurrentLocation(fixCtx)
	if err == nil && current != nil {
		return current
	}
	if err != nil {
		r.logger.Warn("Current location unavailable, trying last known", "error", err)
	}

	last, err := r.provider.LastKnownLocation(ctx)
	if err != nil {
		r.logger.Warn("Last known location unavailable", "error", err)
		return nil
	}
	return last
}

// Describe returns a maps link for the best fix, or Unavailable
func (r *Resolver) Describe(ctx context.Context) string {
	if c := r.Resolve(ctx); c != nil {
		return MapsLink(*c)
	}
	return Unavailable
}
