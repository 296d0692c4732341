// Package twilio wraps the Twilio REST API for the SOS channels: silent SMS,
// WhatsApp messages and outbound voice calls.
package twilio

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// ErrNoActiveCall is returned by EndCall when nothing is ringing
var ErrNoActiveCall = errors.New("no active call")

// Sender is the subset of Twilio used by the notification cascade
type Sender interface {
	SendSMS(ctx context.Context, to, body string) error
	SendWhatsApp(ctx context.Context, to, body string) error
	Call(ctx context.Context, number string) error
	EndCall(ctx context.Context) error
}

// Opts holds the Twilio account settings
type Opts struct {
	AccountSID   string
	AuthToken    string
	FromNumber   string
	WhatsAppFrom string
	CallMessage  string
	RingSeconds  int
}

// Option configures the client
type Option func(*Opts)

func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

func WithFromNumber(from string) Option {
	return func(o *Opts) { o.FromNumber = from }
}

// WithWhatsAppFrom sets the WhatsApp sender; "whatsapp:" is added if missing
func WithWhatsAppFrom(from string) Option {
	return func(o *Opts) { o.WhatsAppFrom = from }
}

// WithCallMessage sets what is spoken when a call is answered
func WithCallMessage(msg string) Option {
	return func(o *Opts) { o.CallMessage = msg }
}

// WithRingSeconds bounds how long an outbound call rings before Twilio gives up
func WithRingSeconds(n int) Option {
	return func(o *Opts) { o.RingSeconds = n }
}

// Client sends messages and places calls through Twilio
type Client struct {
	client *twilio.RestClient
	opts   Opts
	logger *slog.Logger

	mu        sync.Mutex
	activeSID string
}

// NewClient creates a Twilio client. Account SID, auth token and a from
// number are required.
func NewClient(logger *slog.Logger, opts ...Option) (*Client, error) {
	cfg := Opts{
		CallMessage: "This is an emergency alert from SAHAY. Please check your messages.",
		RingSeconds: 20,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	logger.Debug("Twilio client config loaded",
		"account_sid_set", cfg.AccountSID != "",
		"auth_token_set", cfg.AuthToken != "",
		"from_set", cfg.FromNumber != "",
		"whatsapp_from_set", cfg.WhatsAppFrom != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("from number must be provided")
	}
	if cfg.WhatsAppFrom != "" && !strings.HasPrefix(cfg.WhatsAppFrom, "whatsapp:") {
		cfg.WhatsAppFrom = "whatsapp:" + cfg.WhatsAppFrom
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return &Client{client: client, opts: cfg, logger: logger}, nil
}

// SendSMS sends a plain SMS
func (c *Client) SendSMS(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(c.opts.FromNumber)
	params.SetBody(body)

	if _, err := c.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("failed to send SMS to %s: %w", to, err)
	}

	c.logger.Debug("Twilio SMS sent", "to", to)
	return nil
}

// SendWhatsApp sends a WhatsApp message from the configured sender
func (c *Client) SendWhatsApp(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.opts.WhatsAppFrom == "" {
		return fmt.Errorf("WhatsApp sender not configured")
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:" + to)
	params.SetFrom(c.opts.WhatsAppFrom)
	params.SetBody(body)

	if _, err := c.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("failed to send WhatsApp message to %s: %w", to, err)
	}

	c.logger.Debug("Twilio WhatsApp message sent", "to", to)
	return nil
}

// Call places an outbound call that speaks the call message. The call SID is
// kept so EndCall can hang it up.
func (c *Client) Call(ctx context.Context, number string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioApi.CreateCallParams{}
	params.SetTo(number)
	params.SetFrom(c.opts.FromNumber)
	params.SetTwiml(CallTwiML(c.opts.CallMessage))
	params.SetTimeout(c.opts.RingSeconds)

	call, err := c.client.Api.CreateCall(params)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", number, err)
	}

	sid := ""
	if call != nil && call.Sid != nil {
		sid = *call.Sid
	}

	c.mu.Lock()
	c.activeSID = sid
	c.mu.Unlock()

	c.logger.Info("Twilio call placed", "to", number, "sid", sid)
	return nil
}

// EndCall hangs up the most recent call
func (c *Client) EndCall(ctx context.Context) error {
	c.mu.Lock()
	sid := c.activeSID
	c.activeSID = ""
	c.mu.Unlock()

	if sid == "" {
		return ErrNoActiveCall
	}

	params := &twilioApi.UpdateCallParams{}
	params.SetStatus("completed")

	if _, err := c.client.Api.UpdateCall(sid, params); err != nil {
		return fmt.Errorf("failed to end call %s: %w", sid, err)
	}

	c.logger.Debug("Twilio call ended", "sid", sid)
	return nil
}

// CallTwiML renders the TwiML document for an alert call
func CallTwiML(message string) string {
	var escaped strings.Builder
	_ = xml.EscapeText(&escaped, []byte(message))
	return fmt.Sprintf("<Response><Say>%s</Say><Pause length=\"2\"/><Say>%s</Say></Response>",
		escaped.String(), escaped.String())
}
var _ Sender = (*Client)(nil)
