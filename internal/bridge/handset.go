package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/saaga0h/sahay-platform/internal/automation"
	"github.com/saaga0h/sahay-platform/internal/cascade"
	"github.com/saaga0h/sahay-platform/internal/fall"
	"github.com/saaga0h/sahay-platform/internal/location"
	"github.com/saaga0h/sahay-platform/internal/voice"
)

// Handset exposes the bridge as the collaborator interfaces the safety and
// automation components need.
type Handset struct {
	b *Bridge
}

// NewHandset wraps a bridge
func NewHandset(b *Bridge) *Handset {
	return &Handset{b: b}
}

var (
	_ voice.Speaker          = (*Handset)(nil)
	_ fall.Vibrator          = (*Handset)(nil)
	_ cascade.SMSSender      = (*Handset)(nil)
	_ cascade.SMSComposer    = (*Handset)(nil)
	_ cascade.WhatsAppSender = (*Handset)(nil)
	_ cascade.PackageChecker = (*Handset)(nil)
	_ cascade.Caller         = (*Handset)(nil)
	_ cascade.CallEnder      = (*Handset)(nil)
	_ cascade.Dialer         = (*Handset)(nil)
	_ cascade.Foreground     = (*Handset)(nil)
	_ location.Provider      = (*Handset)(nil)
	_ automation.Driver      = (*Handset)(nil)
	_ automation.Launcher    = (*Handset)(nil)
)

type textArgs struct {
	Text string `json:"text"`
}

type messageArgs struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type numberArgs struct {
	Number string `json:"number"`
}

type packageArgs struct {
	Package string `json:"package"`
}

// Speak blocks until the handset finished the utterance. Long prompts get
// a minute unless ctx says otherwise.
func (h *Handset) Speak(ctx context.Context, text string) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Minute)
		defer cancel()
	}
	_, err := h.b.Request(ctx, CapSpeech, "speak", textArgs{Text: text})
	return err
}

func (h *Handset) Stop() {
	if err := h.b.Notify(CapSpeech, "stop", nil); err != nil {
		h.b.logger.Debug("Failed to stop speech", "error", err)
	}
}

func (h *Handset) Vibrate(ctx context.Context, d time.Duration) error {
	_, err := h.b.Request(ctx, CapHaptics, "vibrate", struct {
		Ms int64 `json:"ms"`
	}{Ms: d.Milliseconds()})
	return err
}

// SendSMS sends silently through the handset's SMS manager
func (h *Handset) SendSMS(ctx context.Context, to, body string) error {
	_, err := h.b.Request(ctx, CapSMS, "send", messageArgs{To: to, Body: body})
	return err
}

// ComposeSMS opens the messaging app prefilled
func (h *Handset) ComposeSMS(ctx context.Context, to, body string) error {
	_, err := h.b.Request(ctx, CapSMS, "compose", messageArgs{To: to, Body: body})
	return err
}

func (h *Handset) SendWhatsApp(ctx context.Context, to, body string) error {
	_, err := h.b.Request(ctx, CapWhatsApp, "send", messageArgs{To: to, Body: body})
	return err
}

// IsInstalled reports false when the handset cannot be asked
func (h *Handset) IsInstalled(ctx context.Context, pkg string) bool {
	data, err := h.b.Request(ctx, CapApp, "installed", packageArgs{Package: pkg})
	if err != nil {
		h.b.logger.Debug("Package check failed", "package", pkg, "error", err)
		return false
	}
	var out struct {
		Installed bool `json:"installed"`
	}
	if err := decode(data, &out); err != nil {
		return false
	}
	return out.Installed
}

func (h *Handset) Call(ctx context.Context, number string) error {
	_, err := h.b.Request(ctx, CapTelephony, "call", numberArgs{Number: number})
	return err
}

func (h *Handset) EndCall(ctx context.Context) error {
	_, err := h.b.Request(ctx, CapTelephony, "end_call", nil)
	return err
}

func (h *Handset) Dial(ctx context.Context, number string) error {
	_, err := h.b.Request(ctx, CapTelephony, "dial", numberArgs{Number: number})
	return err
}

func (h *Handset) BringToFront(ctx context.Context) error {
	_, err := h.b.Request(ctx, CapApp, "front", nil)
	return err
}

func (h *Handset) CurrentLocation(ctx context.Context) (*location.Coordinates, error) {
	return h.location(ctx, "current")
}

func (h *Handset) LastKnownLocation(ctx context.Context) (*location.Coordinates, error) {
	return h.location(ctx, "last")
}

func (h *Handset) location(ctx context.Context, action string) (*location.Coordinates, error) {
	data, err := h.b.Request(ctx, CapLocation, action, nil)
	if err != nil {
		return nil, err
	}
	var out *location.Coordinates
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode location: %w", err)
	}
	return out, nil
}

// Snapshot fetches the foreground window's accessibility tree
func (h *Handset) Snapshot(ctx context.Context) (automation.Node, error) {
	data, err := h.b.Request(ctx, CapUI, "snapshot", nil)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	root, err := automation.ParseTree(data)
	if err != nil {
		return nil, err
	}
	return root, nil
}

type nodeArgs struct {
	NodeID    string `json:"nodeId"`
	Text      string `json:"text,omitempty"`
	Direction string `json:"direction,omitempty"`
}

func (h *Handset) nodeAction(ctx context.Context, action string, args nodeArgs) error {
	_, err := h.b.Request(ctx, CapUI, action, args)
	var he *HandsetError
	if errors.As(err, &he) {
		return fmt.Errorf("%w: %s", automation.ErrActionFailed, he.Message)
	}
	return err
}

func (h *Handset) Click(ctx context.Context, n automation.Node) error {
	return h.nodeAction(ctx, "click", nodeArgs{NodeID: n.ID()})
}

func (h *Handset) Focus(ctx context.Context, n automation.Node) error {
	return h.nodeAction(ctx, "focus", nodeArgs{NodeID: n.ID()})
}

func (h *Handset) ClearText(ctx context.Context, n automation.Node) error {
	return h.nodeAction(ctx, "clear_text", nodeArgs{NodeID: n.ID()})
}

func (h *Handset) SetText(ctx context.Context, n automation.Node, text string) error {
	return h.nodeAction(ctx, "set_text", nodeArgs{NodeID: n.ID(), Text: text})
}

func (h *Handset) Scroll(ctx context.Context, n automation.Node, dir automation.ScrollDirection) error {
	return h.nodeAction(ctx, "scroll", nodeArgs{NodeID: n.ID(), Direction: string(dir)})
}

func (h *Handset) PerformIme(ctx context.Context, action string) error {
	_, err := h.b.Request(ctx, CapUI, "ime", struct {
		Action string `json:"action"`
	}{Action: action})
	return err
}

func (h *Handset) LaunchApp(ctx context.Context, packageName string) error {
	_, err := h.b.Request(ctx, CapUI, "launch", packageArgs{Package: packageName})
	return err
}
