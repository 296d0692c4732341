package cascade

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoCall is returned when there is no call to hang up
var ErrNoCall = errors.New("no call to end")

// WhatsApp packages that can deliver a WhatsApp message
var WhatsAppPackages = []string{"com.whatsapp", "com.whatsapp.w4b"}

// SMSSender sends an SMS without user interaction
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// SMSComposer opens the handset's compose screen prefilled with the message
type SMSComposer interface {
	ComposeSMS(ctx context.Context, to, body string) error
}

// WhatsAppSender delivers a WhatsApp message to one number
type WhatsAppSender interface {
	SendWhatsApp(ctx context.Context, to, body string) error
}

// PackageChecker reports whether an app is installed on the handset
type PackageChecker interface {
	IsInstalled(ctx context.Context, pkg string) bool
}

// Caller places a call immediately
type Caller interface {
	Call(ctx context.Context, number string) error
}

// CallEnder is an optional Caller capability to hang up the current call
type CallEnder interface {
	EndCall(ctx context.Context) error
}

// Dialer opens the dial pad with the number filled in
type Dialer interface {
	Dial(ctx context.Context, number string) error
}

// Foreground brings the SAHAY app back to the front
type Foreground interface {
	BringToFront(ctx context.Context) error
}

// Channels bundles the delivery collaborators. Any field may be nil, which
// disables that path.
type Channels struct {
	SMS        SMSSender
	Composer   SMSComposer
	WhatsApp   WhatsAppSender
	Packages   PackageChecker
	Caller     Caller
	Dialer     Dialer
	Foreground Foreground
}

// WhatsAppFallback tries Primary and falls back to Fallback on error
type WhatsAppFallback struct {
	Primary  WhatsAppSender
	Fallback WhatsAppSender
}

func (w *WhatsAppFallback) SendWhatsApp(ctx context.Context, to, body string) error {
	if err := w.Primary.SendWhatsApp(ctx, to, body); err == nil {
		return nil
	}
	return w.Fallback.SendWhatsApp(ctx, to, body)
}

// CallerFallback calls through Primary and falls back to Fallback on error.
// EndCall hangs up on whichever caller placed the current call.
type CallerFallback struct {
	Primary  Caller
	Fallback Caller

	mu     sync.Mutex
	active Caller
}

func (c *CallerFallback) Call(ctx context.Context, number string) error {
	used := c.Primary
	err := c.Primary.Call(ctx, number)
	if err != nil {
		used = c.Fallback
		if fbErr := c.Fallback.Call(ctx, number); fbErr != nil {
			return fmt.Errorf("%w; fallback: %v", err, fbErr)
		}
	}

	c.mu.Lock()
	c.active = used
	c.mu.Unlock()
	return nil
}

// EndCall returns ErrNoCall when nothing was placed or the caller that placed
// it cannot hang up
func (c *CallerFallback) EndCall(ctx context.Context) error {
	c.mu.Lock()
	active := c.active
	c.active = nil
	c.mu.Unlock()

	ender, ok := active.(CallEnder)
	if !ok {
		return ErrNoCall
	}
	return ender.EndCall(ctx)
}
