package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/you/accountsvc/domain"
)

// SentCode is one verification email captured by MockMailer
type SentCode struct {
	To   string
	Code string
	TTL  time.Duration
}

// MockMailer implements domain.Mailer and records every send.
// It is called from dispatcher goroutines, so access is synchronised.
type MockMailer struct {
	SendVerificationCodeFunc func(ctx context.Context, to, code string, ttl time.Duration) error

	mu   sync.Mutex
	sent []SentCode
}

// NewMockMailer creates a new MockMailer with default behaviors
func NewMockMailer() *MockMailer {
	return &MockMailer{}
}

// SendVerificationCode records the message and returns SendVerificationCodeFunc's result
func (m *MockMailer) SendVerificationCode(ctx context.Context, to, code string, ttl time.Duration) error {
	m.mu.Lock()
	m.sent = append(m.sent, SentCode{To: to, Code: code, TTL: ttl})
	m.mu.Unlock()

	if m.SendVerificationCodeFunc != nil {
		return m.SendVerificationCodeFunc(ctx, to, code, ttl)
	}
	return nil
}

// Sent returns a copy of the recorded messages
func (m *MockMailer) Sent() []SentCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentCode(nil), m.sent...)
}

// Compile-time interface compliance verification
var _ domain.Mailer = (*MockMailer)(nil)
