package cascade

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saaga0h/sahay-platform/internal/location"
	"github.com/saaga0h/sahay-platform/pkg/config"
	"github.com/saaga0h/sahay-platform/pkg/twilio"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// device records handset-side actions in order
type device struct {
	mu        sync.Mutex
	actions   []string
	installed map[string]bool
	dialErr   error
}

func (d *device) record(a string) {
	d.mu.Lock()
	d.actions = append(d.actions, a)
	d.mu.Unlock()
}

func (d *device) ComposeSMS(ctx context.Context, to, body string) error {
	d.record("compose:" + to)
	return nil
}

func (d *device) IsInstalled(ctx context.Context, pkg string) bool {
	return d.installed[pkg]
}

func (d *device) Dial(ctx context.Context, number string) error {
	d.record("dial:" + number)
	return d.dialErr
}

func (d *device) BringToFront(ctx context.Context) error {
	d.record("front")
	return nil
}

// plainCaller cannot hang up
type plainCaller struct {
	calls []string
}

func (p *plainCaller) Call(ctx context.Context, number string) error {
	p.calls = append(p.calls, number)
	return nil
}

// failingSMS fails for specific numbers
type failingSMS struct {
	fail map[string]bool
	sent []string
}

func (f *failingSMS) SendSMS(ctx context.Context, to, body string) error {
	if f.fail[to] {
		return errors.New("carrier rejected")
	}
	f.sent = append(f.sent, to)
	return nil
}

type fakeLocation struct {
	c *location.Coordinates
}

func (f fakeLocation) CurrentLocation(ctx context.Context) (*location.Coordinates, error) {
	return f.c, nil
}

func (f fakeLocation) LastKnownLocation(ctx context.Context) (*location.Coordinates, error) {
	return nil, nil
}

type sleepLog struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepLog) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func newTestCascade(ch Channels, contacts []config.Contact) (*Cascade, *sleepLog) {
	c := New(ch, contacts, "112", nil, testLogger())
	sl := &sleepLog{}
	c.sleep = sl.sleep
	return c, sl
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+91 98765 43210", "+919876543210"},
		{"(098) 765-4321", "0987654321"},
		{"", ""},
		{"+", ""},
		{"abc", ""},
		{"12+34", "1234"},
		{"  +1-555-0100 ", "+15550100"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePhone(tt.in))
		})
	}
}

func TestNormalizePhone_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("output is digits with optional leading plus", prop.ForAll(
		func(s string) bool {
			out := NormalizePhone(s)
			for i, r := range out {
				if r == '+' && i == 0 {
					continue
				}
				if r < '0' || r > '9' {
					return false
				}
			}
			return true
		},
		gen.AnyString(),
	))

	properties.Property("idempotent", prop.ForAll(
		func(s string) bool {
			once := NormalizePhone(s)
			return NormalizePhone(once) == once
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func TestEmergencyNumber(t *testing.T) {
	assert.Equal(t, "112", EmergencyNumber("IN", ""))
	assert.Equal(t, "911", EmergencyNumber("us", ""))
	assert.Equal(t, "999", EmergencyNumber("GB", ""))
	assert.Equal(t, "000", EmergencyNumber("AU", ""))
	assert.Equal(t, "112", EmergencyNumber("ZZ", ""))
	assert.Equal(t, "100", EmergencyNumber("IN", "100"))
}

func TestFormatMessage(t *testing.T) {
	msg := FormatMessage("Fall detected", "https://maps.google.com/?q=1,2")
	assert.Equal(t, "🚨 SOS ALERT from SAHAY\nFall detected\nLocation: https://maps.google.com/?q=1,2", msg)
}

func TestSendSMS_PerContactIsolation(t *testing.T) {
	sms := &failingSMS{fail: map[string]bool{"+222": true}}
	dev := &device{}
	contacts := []config.Contact{
		{Name: "A", Phone: "+111"},
		{Name: "B", Phone: "+222"},
		{Name: "C", Phone: ""},
		{Name: "D", Phone: "+444"},
	}

	c, _ := newTestCascade(Channels{SMS: sms, Composer: dev}, contacts)
	sent := c.SendSMS(context.Background(), contacts, "help")

	assert.Equal(t, 3, sent)
	assert.Equal(t, []string{"+111", "+444"}, sms.sent)
	assert.Equal(t, []string{"compose:+222"}, dev.actions)
}

func TestSendSMS_NoChannels(t *testing.T) {
	c, _ := newTestCascade(Channels{}, nil)
	assert.Equal(t, 0, c.SendSMS(context.Background(), []config.Contact{{Phone: "+1"}}, "x"))
}

func TestSendWhatsApp_RequiresPackage(t *testing.T) {
	tw := twilio.NewMockClient()
	contacts := []config.Contact{{Name: "A", Phone: "+111"}}

	t.Run("absent", func(t *testing.T) {
		dev := &device{installed: map[string]bool{}}
		c, _ := newTestCascade(Channels{WhatsApp: tw, Packages: dev, Foreground: dev}, contacts)
		assert.False(t, c.SendWhatsApp(context.Background(), contacts, "x"))
		assert.Empty(t, tw.WhatsApp)
		assert.Empty(t, dev.actions)
	})

	t.Run("business app", func(t *testing.T) {
		dev := &device{installed: map[string]bool{"com.whatsapp.w4b": true}}
		c, _ := newTestCascade(Channels{WhatsApp: tw, Packages: dev, Foreground: dev}, contacts)
		assert.True(t, c.SendWhatsApp(context.Background(), contacts, "x"))
		assert.Len(t, tw.WhatsApp, 1)
		assert.Equal(t, []string{"front"}, dev.actions)
	})
}

func TestPlaceCall_FallsBackToDial(t *testing.T) {
	tw := twilio.NewMockClient()
	tw.CallErr = errors.New("no balance")
	dev := &device{}

	c, _ := newTestCascade(Channels{Caller: tw, Dialer: dev}, nil)
	require.NoError(t, c.PlaceCall(context.Background(), "1 1 2"))
	assert.Equal(t, []string{"dial:112"}, dev.actions)

	dev.dialErr = errors.New("no dialer")
	assert.Error(t, c.PlaceCall(context.Background(), "112"))
	assert.Error(t, c.PlaceCall(context.Background(), "   "))
}

func TestPlaceSequentialMissedCalls(t *testing.T) {
	tw := twilio.NewMockClient()
	dev := &device{}
	contacts := []config.Contact{
		{Name: "A", Phone: "+91 111"},
		{Name: "B", Phone: "--"},
		{Name: "C", Phone: "+91 333"},
	}

	c, sl := newTestCascade(Channels{Caller: tw, Foreground: dev}, contacts)
	result := c.PlaceSequentialMissedCalls(context.Background(), contacts)

	assert.Equal(t, CallResult{TotalContacts: 3, CallsPlaced: 2, CallsDisconnected: 2}, result)
	assert.Equal(t, []string{"+91111", "+91333"}, tw.Calls)
	assert.Equal(t, []string{"front", "front"}, dev.actions)
	assert.Equal(t, []time.Duration{
		2 * time.Second, 18 * time.Second, 3 * time.Second,
		2 * time.Second, 18 * time.Second,
	}, sl.waits)
}

func TestPlaceSequentialMissedCalls_WithoutHangUp(t *testing.T) {
	caller := &plainCaller{}
	contacts := []config.Contact{{Phone: "+1"}, {Phone: "+2"}}

	c, _ := newTestCascade(Channels{Caller: caller}, contacts)
	result := c.PlaceSequentialMissedCalls(context.Background(), contacts)

	assert.Equal(t, CallResult{TotalContacts: 2, CallsPlaced: 2, CallsDisconnected: 0}, result)
}

func TestPlaceSequentialMissedCalls_Cancelled(t *testing.T) {
	tw := twilio.NewMockClient()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c, _ := newTestCascade(Channels{Caller: tw}, nil)
	result := c.PlaceSequentialMissedCalls(ctx, []config.Contact{{Phone: "+1"}, {Phone: "+2"}})

	assert.Equal(t, 2, result.TotalContacts)
	assert.Equal(t, 0, result.CallsPlaced)
	assert.Empty(t, tw.Calls)
}

func TestPlaceSequentialMissedCalls_CancelDuringRingHangsUp(t *testing.T) {
	tw := twilio.NewMockClient()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, _ := newTestCascade(Channels{Caller: tw}, nil)
	sleeps := 0
	c.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps++
		if sleeps == 2 {
			cancel()
		}
		return ctx.Err()
	}

	result := c.PlaceSequentialMissedCalls(ctx, []config.Contact{{Phone: "+1"}, {Phone: "+2"}})

	assert.Equal(t, CallResult{TotalContacts: 2, CallsPlaced: 1, CallsDisconnected: 1}, result)
	assert.Equal(t, []string{"+1"}, tw.Calls)
	assert.Equal(t, 1, tw.Ended)
}

func TestCallerFallback(t *testing.T) {
	t.Run("primary places and ends the call", func(t *testing.T) {
		primary := twilio.NewMockClient()
		fallback := twilio.NewMockClient()
		cf := &CallerFallback{Primary: primary, Fallback: fallback}

		require.NoError(t, cf.Call(context.Background(), "+1"))
		require.NoError(t, cf.EndCall(context.Background()))

		assert.Equal(t, []string{"+1"}, primary.Calls)
		assert.Equal(t, 1, primary.Ended)
		assert.Empty(t, fallback.Calls)
	})

	t.Run("fallback used when primary fails", func(t *testing.T) {
		primary := twilio.NewMockClient()
		primary.CallErr = errors.New("handset offline")
		fallback := twilio.NewMockClient()
		cf := &CallerFallback{Primary: primary, Fallback: fallback}

		require.NoError(t, cf.Call(context.Background(), "+1"))
		require.NoError(t, cf.EndCall(context.Background()))

		assert.Equal(t, []string{"+1"}, fallback.Calls)
		assert.Equal(t, 1, fallback.Ended)
		assert.Equal(t, 0, primary.Ended)
	})

	t.Run("both fail", func(t *testing.T) {
		primary := twilio.NewMockClient()
		primary.CallErr = errors.New("handset offline")
		fallback := twilio.NewMockClient()
		fallback.CallErr = errors.New("no balance")
		cf := &CallerFallback{Primary: primary, Fallback: fallback}

		assert.Error(t, cf.Call(context.Background(), "+1"))
		assert.ErrorIs(t, cf.EndCall(context.Background()), ErrNoCall)
	})

	t.Run("caller without hang up", func(t *testing.T) {
		cf := &CallerFallback{Primary: &plainCaller{}, Fallback: twilio.NewMockClient()}

		require.NoError(t, cf.Call(context.Background(), "+1"))
		assert.ErrorIs(t, cf.EndCall(context.Background()), ErrNoCall)
	})
}

func TestWhatsAppFallback(t *testing.T) {
	primary := twilio.NewMockClient()
	primary.WhatsAppErr = errors.New("sandbox expired")
	fallback := twilio.NewMockClient()

	w := &WhatsAppFallback{Primary: primary, Fallback: fallback}
	require.NoError(t, w.SendWhatsApp(context.Background(), "+1", "help"))
	assert.Equal(t, []twilio.SentMessage{{To: "+1", Body: "help"}}, fallback.WhatsApp)
}

func TestEscalate_Order(t *testing.T) {
	tw := twilio.NewMockClient()
	dev := &device{installed: map[string]bool{"com.whatsapp": true}}
	contacts := []config.Contact{
		{Name: "Son", Phone: "+91 98765 43210"},
		{Name: "Daughter", Phone: "+91 91234 56789"},
	}
	resolver := location.NewResolver(fakeLocation{c: &location.Coordinates{Lat: 12.97, Lon: 77.59}}, time.Second, testLogger())

	c := New(Channels{SMS: tw, WhatsApp: tw, Packages: dev, Caller: tw, Foreground: dev}, contacts, "112", resolver, testLogger())
	sl := &sleepLog{}
	c.sleep = sl.sleep

	report := c.Escalate(context.Background(), "Fall detected")

	assert.Equal(t, 2, report.SMSSent)
	assert.True(t, report.WhatsAppSent)
	assert.True(t, report.EmergencyCallPlaced)
	assert.Equal(t, CallResult{TotalContacts: 2, CallsPlaced: 2, CallsDisconnected: 2}, report.MissedCalls)
	assert.Equal(t, location.MapsLink(location.Coordinates{Lat: 12.97, Lon: 77.59}), report.Location)

	require.Len(t, tw.WhatsApp, 1)
	assert.Equal(t, "+919876543210", tw.WhatsApp[0].To)
	assert.True(t, strings.HasPrefix(tw.SMS[0].Body, "🚨 SOS ALERT from SAHAY\nFall detected\nLocation: https://"))

	assert.Equal(t, []string{"112", "+919876543210", "+919123456789"}, tw.Calls)
	assert.Equal(t, 5*time.Second, sl.waits[0])
}

func TestEscalate_NoLocation(t *testing.T) {
	tw := twilio.NewMockClient()
	c, _ := newTestCascade(Channels{SMS: tw}, []config.Contact{{Name: "A", Phone: "+1"}})

	report := c.Escalate(context.Background(), "SOS")

	assert.Equal(t, location.Unavailable, report.Location)
	assert.Contains(t, tw.SMS[0].Body, "Location: Location unavailable")
	assert.False(t, report.EmergencyCallPlaced)
}
