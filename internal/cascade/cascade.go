// Package cascade fans an SOS out over every configured channel. Each
// contact and channel fails independently; nothing here returns an error to
// the caller.
package cascade

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/saaga0h/sahay-platform/internal/location"
	"github.com/saaga0h/sahay-platform/pkg/config"
)

// Timings controls the missed-call sequence and escalation pauses
type Timings struct {
	Settle         time.Duration // after placing a call before restoring the app
	RingTotal      time.Duration // total ring time per contact, settle included
	Gap            time.Duration // between contacts
	EmergencyPause time.Duration // after the emergency call before missed calls
}

// DefaultTimings returns the production timings
func DefaultTimings() Timings {
	return Timings{
		Settle:         2 * time.Second,
		RingTotal:      20 * time.Second,
		Gap:            3 * time.Second,
		EmergencyPause: 5 * time.Second,
	}
}

const hangUpTimeout = 5 * time.Second

// CallResult summarizes a missed-call sequence
type CallResult struct {
	TotalContacts     int `json:"total_contacts"`
	CallsPlaced       int `json:"calls_placed"`
	CallsDisconnected int `json:"calls_disconnected"`
}

// EscalationReport summarizes a full SOS cascade
type EscalationReport struct {
	Reason              string     `json:"reason"`
	Location            string     `json:"location"`
	SMSSent             int        `json:"sms_sent"`
	WhatsAppSent        bool       `json:"whatsapp_sent"`
	EmergencyNumber     string     `json:"emergency_number"`
	EmergencyCallPlaced bool       `json:"emergency_call_placed"`
	MissedCalls         CallResult `json:"missed_calls"`
}

// FormatMessage renders the SOS text
func FormatMessage(reason, locationText string) string {
	return fmt.Sprintf("🚨 SOS ALERT from SAHAY\n%s\nLocation: %s", reason, locationText)
}

// Cascade delivers SOS alerts
type Cascade struct {
	channels        Channels
	contacts        []config.Contact
	emergencyNumber string
	location        *location.Resolver
	timings         Timings
	sleep           func(ctx context.Context, d time.Duration) error
	logger          *slog.Logger
}

// New creates a cascade for the given contacts
func New(channels Channels, contacts []config.Contact, emergencyNumber string, resolver *location.Resolver, logger *slog.Logger) *Cascade {
	return &Cascade{
		channels:        channels,
		contacts:        append([]config.Contact(nil), contacts...),
		emergencyNumber: emergencyNumber,
		location:        resolver,
		timings:         DefaultTimings(),
		sleep:           sleepCtx,
		logger:          logger,
	}
}

// SetTimings overrides the default timings
func (c *Cascade) SetTimings(t Timings) {
	c.timings = t
}

// Contacts returns a copy of the configured contacts
func (c *Cascade) Contacts() []config.Contact {
	return append([]config.Contact(nil), c.contacts...)
}

// SendSMS texts every contact and returns how many succeeded. The silent path
// is tried first, the compose intent only when it fails.
func (c *Cascade) SendSMS(ctx context.Context, contacts []config.Contact, message string) int {
	sent := 0
	for _, contact := range contacts {
		if ctx.Err() != nil {
			break
		}

		number := NormalizePhone(contact.Phone)
		if number == "" {
			c.logger.Warn("Skipping contact with empty phone number", "contact", contact.Name)
			continue
		}

		if c.channels.SMS != nil {
			err := c.channels.SMS.SendSMS(ctx, number, message)
			if err == nil {
				sent++
				c.logger.Info("SOS SMS sent", "contact", contact.Name)
				continue
			}
			c.logger.Warn("Silent SMS failed, falling back to compose", "contact", contact.Name, "error", err)
		}

		if c.channels.Composer == nil {
			continue
		}
		if err := c.channels.Composer.ComposeSMS(ctx, number, message); err != nil {
			c.logger.Warn("SMS compose failed", "contact", contact.Name, "error", err)
			continue
		}
		sent++
		c.logger.Info("SOS SMS composed", "contact", contact.Name)
	}
	return sent
}

// WhatsAppInstalled reports whether either WhatsApp package is present
func (c *Cascade) WhatsAppInstalled(ctx context.Context) bool {
	if c.channels.Packages == nil {
		return false
	}
	for _, pkg := range WhatsAppPackages {
		if c.channels.Packages.IsInstalled(ctx, pkg) {
			return true
		}
	}
	return false
}

// SendWhatsApp messages each contact. It returns false without sending
// anything when WhatsApp is not installed.
func (c *Cascade) SendWhatsApp(ctx context.Context, contacts []config.Contact, message string) bool {
	if c.channels.WhatsApp == nil || !c.WhatsAppInstalled(ctx) {
		c.logger.Info("WhatsApp not available, skipping")
		return false
	}

	delivered := false
	for _, contact := range contacts {
		if ctx.Err() != nil {
			break
		}
		number := NormalizePhone(contact.Phone)
		if number == "" {
			continue
		}
		if err := c.channels.WhatsApp.SendWhatsApp(ctx, number, message); err != nil {
			c.logger.Warn("WhatsApp send failed", "contact", contact.Name, "error", err)
			continue
		}
		delivered = true
		c.logger.Info("SOS WhatsApp sent", "contact", contact.Name)
	}

	c.restoreForeground(ctx)
	return delivered
}

// PlaceCall calls number, degrading to the dial pad when the call fails
func (c *Cascade) PlaceCall(ctx context.Context, number string) error {
	number = NormalizePhone(number)
	if number == "" {
		return fmt.Errorf("empty phone number")
	}

	var callErr error
	if c.channels.Caller != nil {
		callErr = c.channels.Caller.Call(ctx, number)
		if callErr == nil {
			return nil
		}
		c.logger.Warn("Call failed, falling back to dial pad", "number", number, "error", callErr)
	}

	if c.channels.Dialer == nil {
		if callErr != nil {
			return fmt.Errorf("failed to call %s: %w", number, callErr)
		}
		return fmt.Errorf("no call channel configured")
	}
	if err := c.channels.Dialer.Dial(ctx, number); err != nil {
		return fmt.Errorf("failed to dial %s: %w", number, err)
	}
	return nil
}

// PlaceSequentialMissedCalls rings each contact in turn and hangs up, so the
// contact sees a missed call from the elder. Contacts with an empty number
// are counted but not called.
func (c *Cascade) PlaceSequentialMissedCalls(ctx context.Context, contacts []config.Contact) CallResult {
	result := CallResult{TotalContacts: len(contacts)}
	ender, canEnd := c.channels.Caller.(CallEnder)

	for i, contact := range contacts {
		if ctx.Err() != nil {
			break
		}

		number := NormalizePhone(contact.Phone)
		if number == "" {
			c.logger.Warn("Skipping missed call for empty number", "contact", contact.Name)
			continue
		}
		if c.channels.Caller == nil {
			c.logger.Warn("No caller configured, skipping missed calls")
			break
		}

		if err := c.channels.Caller.Call(ctx, number); err != nil {
			c.logger.Warn("Missed call failed", "contact", contact.Name, "error", err)
		} else {
			result.CallsPlaced++
			rang := c.ring(ctx)

			if canEnd && c.hangUp(ctx, ender, contact.Name) {
				result.CallsDisconnected++
			}
			if !rang {
				break
			}
		}

		if i < len(contacts)-1 {
			if c.sleep(ctx, c.timings.Gap) != nil {
				break
			}
		}
	}

	c.logger.Info("Missed call sequence finished",
		"total", result.TotalContacts,
		"placed", result.CallsPlaced,
		"disconnected", result.CallsDisconnected)
	return result
}

// ring waits out the settle and ring periods of a placed call. It reports
// false when ctx ended first.
func (c *Cascade) ring(ctx context.Context) bool {
	if c.sleep(ctx, c.timings.Settle) != nil {
		return false
	}
	c.restoreForeground(ctx)
	return c.sleep(ctx, c.timings.RingTotal-c.timings.Settle) == nil
}

// hangUp ends the current call. The hang-up outlives ctx so a cancelled
// sequence never leaves a call ringing.
func (c *Cascade) hangUp(ctx context.Context, ender CallEnder, contact string) bool {
	endCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), hangUpTimeout)
	defer cancel()

	if err := ender.EndCall(endCtx); err != nil {
		c.logger.Warn("Failed to end missed call", "contact", contact, "error", err)
		return false
	}
	return true
}

// Escalate runs the full SOS cascade: location, SMS to everyone, WhatsApp to
// the top contact, the emergency number, then missed calls to everyone.
func (c *Cascade) Escalate(ctx context.Context, reason string) EscalationReport {
	report := EscalationReport{Reason: reason, EmergencyNumber: c.emergencyNumber}

	report.Location = location.Unavailable
	if c.location != nil {
		report.Location = c.location.Describe(ctx)
	}

	message := FormatMessage(reason, report.Location)
	c.logger.Warn("Escalating SOS", "reason", reason, "contacts", len(c.contacts))

	report.SMSSent = c.SendSMS(ctx, c.contacts, message)

	if len(c.contacts) > 0 {
		report.WhatsAppSent = c.SendWhatsApp(ctx, c.contacts[:1], message)
	}

	if c.emergencyNumber != "" {
		if err := c.PlaceCall(ctx, c.emergencyNumber); err != nil {
			c.logger.Error("Emergency call failed", "number", c.emergencyNumber, "error", err)
		} else {
			report.EmergencyCallPlaced = true
		}
	}

	if c.sleep(ctx, c.timings.EmergencyPause) == nil {
		report.MissedCalls = c.PlaceSequentialMissedCalls(ctx, c.contacts)
	}

	c.logger.Info("SOS cascade finished",
		"sms_sent", report.SMSSent,
		"whatsapp", report.WhatsAppSent,
		"emergency_call", report.EmergencyCallPlaced,
		"missed_calls", report.MissedCalls.CallsPlaced)
	return report
}

func (c *Cascade) restoreForeground(ctx context.Context) {
	if c.channels.Foreground == nil {
		return
	}
	if err := c.channels.Foreground.BringToFront(ctx); err != nil {
		c.logger.Debug("Foreground restore failed", "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
