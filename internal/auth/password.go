// password.go

// Password hashing and verification. New hashes are Argon2id; bcrypt hashes
// carried over from imported accounts still verify.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	netmail "net/mail"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	argonSaltLen = 16
	argonTime    = uint32(3)
	argonMemory  = uint32(64 * 1024)
	argonThreads = uint8(2)
	argonKeyLen  = uint32(32)
)

// dummyPasswordHash is verified against when the username does not exist,
// so unknown and known accounts take the same time to reject.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=3,p=2$YWJjZGVmZ2hpamtsbW5vcA$kC6C6jqLzC0JLlJgXhHbKMhLLpVvLJLLQw/IqT9ZYPU"

// HashPassword returns a PHC-formatted Argon2id hash of password.
// Format: $argon2id$v=19$m=65536,t=3,p=2$<base64 salt>$<base64 hash>
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// isBcryptHash reports whether encodedHash carries a bcrypt prefix ($2a$, $2b$ or $2y$).
func isBcryptHash(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, "$2a$") ||
		strings.HasPrefix(encodedHash, "$2b$") ||
		strings.HasPrefix(encodedHash, "$2y$")
}

// VerifyPassword checks password against a stored Argon2id or bcrypt hash.
// Argon2id params are read from the hash so old passwords verify after param changes.
// A malformed hash is an error; a wrong password is (false, nil).
func VerifyPassword(password, encodedHash string) (bool, error) {
	if isBcryptHash(encodedHash) {
		err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return false, nil
		default:
			return false, fmt.Errorf("verifying bcrypt hash: %w", err)
		}
	}

	// $argon2id$v=19$m=65536,t=3,p=2$<salt>$<hash> splits into 6 parts, the first empty.
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false, fmt.Errorf("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return false, fmt.Errorf("unsupported algorithm %q", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, fmt.Errorf("parsing hash version: %w", err)
	}
	if version != argon2.Version {
		return false, fmt.Errorf("unsupported argon2 version: %d", version)
	}

	var memory, iterations uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false, fmt.Errorf("parsing hash params: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("decoding salt: %w", err)
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("decoding hash: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, iterations, memory, threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(hash, expected) == 1, nil
}

// ValidateEmail checks format and length; returns an error message or "".
// RFC 5321: min ~5 chars (a@b.c), max 254.
func ValidateEmail(email string) string {
	switch {
	case email == "":
		return "No email provided"
	case len(email) < 5:
		return "Email too short"
	case len(email) > 254:
		return "Email too long"
	}
	if _, err := netmail.ParseAddress(email); err != nil {
		return "Invalid email format"
	}
	return ""
}

// ValidateUsername checks length and charset; returns an error message or "".
func ValidateUsername(username string) string {
	switch {
	case username == "":
		return "No username provided"
	case utf8.RuneCountInString(username) < 3:
		return "Username too short"
	case len(username) > 64:
		return "Username too long"
	}
	for _, r := range username {
		if !(r == '_' || r == '-' || r == '.' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return "Username may only contain letters, digits, '.', '_' and '-'"
		}
	}
	return ""
}

// ValidatePassword checks length; returns an error message or "".
// Min 8 runes; max 128 bytes to bound Argon2id work.
func ValidatePassword(password string) string {
	switch {
	case password == "":
		return "No password provided"
	case utf8.RuneCountInString(password) < 8:
		return "Password too short"
	case len(password) > 128:
		return "Password too long"
	}
	return ""
}
