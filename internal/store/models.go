// models.go -- Shared domain types for the store package.
// Used by both Postgres (user directory) and Redis (session cache).
package store

import (
	"errors"
	"time"
)

// ErrCacheMiss is returned by Get and HashGet when the key (or field) is not in Redis.
// Callers use errors.Is to distinguish a true miss from a Redis infrastructure failure.
var ErrCacheMiss = errors.New("cache miss")

// ErrInvalidTTL is returned by Set and HashSet for a non-positive TTL.
// Redis treats a zero expiry as "never expire", which no cache entry here may do.
var ErrInvalidTTL = errors.New("ttl must be positive")

// ErrUserNotFound is returned by the user lookups when no row matches.
var ErrUserNotFound = errors.New("user not found")

// ErrUsernameTaken is returned by CreateUser and UpdateUser on a unique violation
// (username or email already belongs to another user).
var ErrUsernameTaken = errors.New("username or email already taken")

// User represents a row in the users table.
// Nullable columns are pointers; nil means SQL NULL.
type User struct {
	ID           int64
	Username     string
	Email        string
	FirstName    *string
	LastName     *string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserUpdate carries the mutable user columns for UpdateUser.
// nil fields are left unchanged.
type UserUpdate struct {
	Username     *string
	Email        *string
	FirstName    *string
	LastName     *string
	PasswordHash *string
}
