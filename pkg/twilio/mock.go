package twilio

import (
	"context"
	"sync"
)

// SentMessage records one message handed to the mock
type SentMessage struct {
	To   string
	Body string
}

// MockClient records everything instead of calling Twilio
type MockClient struct {
	mu sync.Mutex

	SMS      []SentMessage
	WhatsApp []SentMessage
	Calls    []string
	Ended    int

	SMSErr      error
	WhatsAppErr error
	CallErr     error
	EndErr      error
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SendSMS(ctx context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SMSErr != nil {
		return m.SMSErr
	}
	m.SMS = append(m.SMS, SentMessage{To: to, Body: body})
	return nil
}

func (m *MockClient) SendWhatsApp(ctx context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WhatsAppErr != nil {
		return m.WhatsAppErr
	}
	m.WhatsApp = append(m.WhatsApp, SentMessage{To: to, Body: body})
	return nil
}

func (m *MockClient) Call(ctx context.Context, number string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CallErr != nil {
		return m.CallErr
	}
	m.Calls = append(m.Calls, number)
	return nil
}

func (m *MockClient) EndCall(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EndErr != nil {
		return m.EndErr
	}
	m.Ended++
	return nil
}
