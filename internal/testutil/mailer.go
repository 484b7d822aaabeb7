// mailer.go
//
// MockMailer captures outbound OTP deliveries so tests can read back the code
// a real user would have found in their inbox.
package testutil

import (
	"context"
	"sync"
	"time"
)

// SentOTP is one captured SendOTP call.
type SentOTP struct {
	ToEmail   string
	Code      string
	ExpiresIn time.Duration
	Vars      map[string]string
}

// MockMailer implements mail.Mailer for tests.
// Set SendErr to simulate a delivery channel failure.
type MockMailer struct {
	SendErr error

	Sent []SentOTP

	mu sync.Mutex
}

func (m *MockMailer) SendOTP(_ context.Context, toEmail, code string, expiresIn time.Duration, vars map[string]string) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, SentOTP{ToEmail: toEmail, Code: code, ExpiresIn: expiresIn, Vars: vars})
	return nil
}

// LastCode returns the most recent code sent to toEmail, or "" if none.
func (m *MockMailer) LastCode(toEmail string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Sent) - 1; i >= 0; i-- {
		if m.Sent[i].ToEmail == toEmail {
			return m.Sent[i].Code
		}
	}
	return ""
}

// Count returns how many OTPs were sent.
func (m *MockMailer) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}
