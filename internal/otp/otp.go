// Package otp issues and checks one-time passcodes for the second login step.
//
// A challenge is the plain code stored at otp:user{id} with the policy TTL.
// Expiry is the cache TTL; nothing is kept in process memory, so any server
// instance can verify a code issued by another.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/hieuhoangm38/Ecommerce/internal/store"
	pqotp "github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
)

// secretLen is the per-challenge HOTP key size (160 bits, RFC 4226 recommendation).
const secretLen = 20

// Cache is the slice of the session cache the OTP manager needs.
// Satisfied by *store.RedisStore.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
}

// Manager generates, stores and verifies OTP challenges.
type Manager struct {
	cache  Cache
	ttl    time.Duration
	digits pqotp.Digits
}

// NewManager returns a Manager issuing codes of the given length (6 or 8) valid for ttl.
func NewManager(cache Cache, ttl time.Duration, digits int) (*Manager, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("otp ttl must be positive, got %v", ttl)
	}
	d := pqotp.Digits(digits)
	if d != pqotp.DigitsSix && d != pqotp.DigitsEight {
		return nil, fmt.Errorf("otp digits must be 6 or 8, got %d", digits)
	}
	return &Manager{cache: cache, ttl: ttl, digits: d}, nil
}

// Key returns the cache key holding userID's challenge.
func Key(userID int64) string {
	return fmt.Sprintf("otp:user%d", userID)
}

// TTL returns how long a freshly generated code stays valid.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Generate creates a new code for userID and stores it, replacing any live challenge.
// Returns the plaintext code for delivery.
func (m *Manager) Generate(ctx context.Context, userID int64) (string, error) {
	code, err := m.newCode()
	if err != nil {
		return "", err
	}
	if err := m.cache.Set(ctx, Key(userID), code, m.ttl); err != nil {
		return "", fmt.Errorf("storing otp: %w", err)
	}
	return code, nil
}

// Verify reports whether code matches userID's live challenge.
// Returns false when there is no challenge, it has expired, or the code differs.
// Does not consume the challenge.
func (m *Manager) Verify(ctx context.Context, userID int64, code string) (bool, error) {
	stored, err := m.cache.Get(ctx, Key(userID))
	if err != nil {
		if errors.Is(err, store.ErrCacheMiss) {
			return false, nil
		}
		return false, fmt.Errorf("reading otp: %w", err)
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(code)) == 1, nil
}

// Consume verifies code and deletes the challenge in one atomic step.
// At most one caller can succeed per challenge, even under concurrent requests.
func (m *Manager) Consume(ctx context.Context, userID int64, code string) (bool, error) {
	if code == "" {
		return false, nil
	}
	ok, err := m.cache.CompareAndDelete(ctx, Key(userID), code)
	if err != nil {
		return false, fmt.Errorf("consuming otp: %w", err)
	}
	return ok, nil
}

// Discard drops userID's challenge, if any.
func (m *Manager) Discard(ctx context.Context, userID int64) error {
	if _, err := m.cache.Delete(ctx, Key(userID)); err != nil {
		return fmt.Errorf("discarding otp: %w", err)
	}
	return nil
}

// newCode derives a decimal HOTP code from a fresh random key and counter.
func (m *Manager) newCode() (string, error) {
	var buf [secretLen + 8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generating otp secret with rand: %w", err)
	}
	secret := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf[:secretLen])
	counter := binary.BigEndian.Uint64(buf[secretLen:])

	code, err := hotp.GenerateCodeCustom(secret, counter, hotp.ValidateOpts{
		Digits:    m.digits,
		Algorithm: pqotp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("deriving otp code: %w", err)
	}
	return code, nil
}
