// password_test.go

// unit tests for HashPassword, VerifyPassword and the input validators.
package auth

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// --- HashPassword ---

func TestHashPassword(t *testing.T) {
	t.Run("output matches PHC format", func(t *testing.T) {
		hash, err := HashPassword("correcthorsebatterystaple")
		if err != nil {
			t.Fatalf("HashPassword returned error: %v", err)
		}
		parts := strings.Split(hash, "$")
		if len(parts) != 6 {
			t.Fatalf("expected 6 parts, got %d: %q", len(parts), hash)
		}
		if parts[1] != "argon2id" {
			t.Errorf("algorithm: expected argon2id, got %q", parts[1])
		}
		if parts[2] != "v=19" {
			t.Errorf("version: expected v=19, got %q", parts[2])
		}
		if parts[3] != "m=65536,t=3,p=2" {
			t.Errorf("params: expected m=65536,t=3,p=2, got %q", parts[3])
		}
	})

	t.Run("unique salts per call", func(t *testing.T) {
		h1, _ := HashPassword("same-password")
		h2, _ := HashPassword("same-password")
		if h1 == h2 {
			t.Error("two hashes of the same password should differ")
		}
	})
}

// --- VerifyPassword ---

func TestVerifyPassword(t *testing.T) {
	t.Run("argon2id correct and wrong password", func(t *testing.T) {
		hash, err := HashPassword("real-password")
		if err != nil {
			t.Fatalf("HashPassword: %v", err)
		}
		if ok, err := VerifyPassword("real-password", hash); err != nil || !ok {
			t.Errorf("correct password: ok=%v err=%v", ok, err)
		}
		if ok, err := VerifyPassword("wrong-password", hash); err != nil || ok {
			t.Errorf("wrong password: ok=%v err=%v", ok, err)
		}
	})

	t.Run("bcrypt legacy hashes verify", func(t *testing.T) {
		raw, err := bcrypt.GenerateFromPassword([]byte("legacy-password"), bcrypt.MinCost)
		if err != nil {
			t.Fatalf("bcrypt: %v", err)
		}
		if ok, err := VerifyPassword("legacy-password", string(raw)); err != nil || !ok {
			t.Errorf("correct password: ok=%v err=%v", ok, err)
		}
		if ok, err := VerifyPassword("nope", string(raw)); err != nil || ok {
			t.Errorf("wrong password: ok=%v err=%v", ok, err)
		}
	})

	t.Run("dummy hash parses", func(t *testing.T) {
		if _, err := VerifyPassword("anything", dummyPasswordHash); err != nil {
			t.Errorf("dummy hash must be well-formed: %v", err)
		}
	})

	t.Run("malformed hashes are errors", func(t *testing.T) {
		cases := map[string]string{
			"too few parts":   "$argon2id$v=19$salt",
			"wrong algorithm": "$argon2i$v=19$m=65536,t=3,p=2$YWJj$YWJj",
			"wrong version":   "$argon2id$v=16$m=65536,t=3,p=2$YWJj$YWJj",
			"bad params":      "$argon2id$v=19$garbage$YWJj$YWJj",
			"bad salt":        "$argon2id$v=19$m=65536,t=3,p=2$!!!$YWJj",
			"bad bcrypt":      "$2a$10$short",
		}
		for name, h := range cases {
			t.Run(name, func(t *testing.T) {
				if _, err := VerifyPassword("pw", h); err == nil {
					t.Errorf("expected error for %q", h)
				}
			})
		}
	})
}

// --- Validators ---

func TestValidateEmail(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", "No email provided"},
		{"a@b", "Email too short"},
		{strings.Repeat("a", 250) + "@b.co", "Email too long"},
		{"not an email", "Invalid email format"},
		{"alice@example.com", ""},
	}
	for _, tc := range cases {
		if got := ValidateEmail(tc.in); got != tc.want {
			t.Errorf("ValidateEmail(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestValidateUsername(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"", false},
		{"ab", false},
		{"alice", true},
		{"alice.smith_01-x", true},
		{"alice smith", false},
		{"al\"ice", false},
		{strings.Repeat("a", 65), false},
	}
	for _, tc := range cases {
		if got := ValidateUsername(tc.in) == ""; got != tc.want {
			t.Errorf("ValidateUsername(%q) valid=%v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	if got := ValidatePassword(""); got != "No password provided" {
		t.Errorf("empty: %q", got)
	}
	if got := ValidatePassword("short"); got != "Password too short" {
		t.Errorf("short: %q", got)
	}
	if got := ValidatePassword(strings.Repeat("x", 129)); got != "Password too long" {
		t.Errorf("long: %q", got)
	}
	if got := ValidatePassword("longenough"); got != "" {
		t.Errorf("valid: %q", got)
	}
}
