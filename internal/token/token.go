// Package token mints and reads the credentials handed out after a successful
// second factor: a signed short-lived access token (HS256 JWT) and an opaque,
// IP-bound refresh token whose server state lives in the session cache.
package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/hieuhoangm38/Ecommerce/internal/store"
)

// Separator splits a refresh token into its user id prefix and signature.
const Separator = '.'

// Refresh hash field names under RefreshToken:user{id}.
const (
	FieldCreatedByIP = "CreatedByIp"
	FieldTokenHash   = "TokenHash"
	FieldCreated     = "Created"
	FieldExpires     = "Expires"
)

// refreshSigLen is the number of random bytes in a refresh token signature.
const refreshSigLen = 32

var (
	// ErrMalformedToken is returned when a refresh token does not have the "<id>.<sig>" shape.
	ErrMalformedToken = errors.New("malformed token")
	// ErrInvalidToken is returned when an access token fails signature, algorithm or expiry checks.
	ErrInvalidToken = errors.New("invalid token")
)

// Cache is the slice of the session cache the issuer writes refresh state to.
// Satisfied by *store.RedisStore.
type Cache interface {
	HashSet(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
}

// AccessClaims is the JWT payload of an access token.
type AccessClaims struct {
	UserID   int64  `json:"uid"`
	Username string `json:"username"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

// Issuer signs access tokens and persists refresh tokens.
type Issuer struct {
	cache      Cache
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer returns an Issuer signing with secret. now defaults to time.Now when nil.
func NewIssuer(cache Cache, secret []byte, accessTTL, refreshTTL time.Duration, now func() time.Time) *Issuer {
	if now == nil {
		now = time.Now
	}
	return &Issuer{
		cache:      cache,
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        now,
	}
}

// AllowListKey returns the cache key holding userID's currently accepted access token.
func AllowListKey(userID int64) string {
	return fmt.Sprintf("AllowList:user%d", userID)
}

// RefreshKey returns the cache key of userID's refresh token hash.
func RefreshKey(userID int64) string {
	return fmt.Sprintf("RefreshToken:user%d", userID)
}

// AccessTTL returns the access-token lifetime policy.
func (i *Issuer) AccessTTL() time.Duration { return i.accessTTL }

// GenerateAccessToken signs a JWT identifying user, valid for the access TTL.
func (i *Issuer) GenerateAccessToken(user *store.User) (string, error) {
	jti, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generating token id: %w", err)
	}
	now := i.now()
	claims := AccessClaims{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
			ID:        jti.String(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// GenerateRefreshToken creates "<id>.<sig>" and records it, bound to ip, under RefreshKey.
// Any earlier refresh record for the user is replaced.
func (i *Issuer) GenerateRefreshToken(ctx context.Context, user *store.User, ip string) (string, error) {
	sig := make([]byte, refreshSigLen)
	if _, err := rand.Read(sig); err != nil {
		return "", fmt.Errorf("generating refresh token with rand: %w", err)
	}
	value := strconv.FormatInt(user.ID, 10) + string(Separator) + base64.RawURLEncoding.EncodeToString(sig)

	now := i.now().UTC()
	fields := map[string]string{
		FieldCreatedByIP: ip,
		FieldTokenHash:   HashRefreshToken(value),
		FieldCreated:     now.Format(time.RFC3339),
		FieldExpires:     now.Add(i.refreshTTL).Format(time.RFC3339),
	}
	if err := i.cache.HashSet(ctx, RefreshKey(user.ID), fields, i.refreshTTL); err != nil {
		return "", fmt.Errorf("storing refresh token: %w", err)
	}
	return value, nil
}

// HashRefreshToken returns the base64url SHA-256 digest stored alongside a refresh record.
func HashRefreshToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// ReadExpiry returns the exp claim of an access token without checking its signature.
// It is not a validity check.
func (i *Issuer) ReadExpiry(tokenString string) (time.Time, error) {
	var claims AccessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, &claims); err != nil {
		return time.Time{}, fmt.Errorf("reading token expiry: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("reading token expiry: %w", ErrInvalidToken)
	}
	return claims.ExpiresAt.Time, nil
}

// ParseAccessToken verifies signature, algorithm and expiry and returns the claims.
func (i *Issuer) ParseAccessToken(tokenString string) (*AccessClaims, error) {
	var claims AccessClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.UserID <= 0 || claims.Subject != strconv.FormatInt(claims.UserID, 10) {
		return nil, fmt.Errorf("%w: subject does not match uid", ErrInvalidToken)
	}
	return &claims, nil
}

// ParseRefreshToken extracts the user id prefix from a refresh token.
// Returns ErrMalformedToken unless value is "<positive decimal id>.<non-empty signature>".
func ParseRefreshToken(value string) (int64, error) {
	prefix, sig, ok := strings.Cut(value, string(Separator))
	if !ok || prefix == "" || sig == "" || prefix[0] < '0' || prefix[0] > '9' {
		return 0, ErrMalformedToken
	}
	id, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrMalformedToken
	}
	return id, nil
}

// RevokeRefreshToken deletes userID's refresh record. Reports whether one existed.
func (i *Issuer) RevokeRefreshToken(ctx context.Context, userID int64) (bool, error) {
	ok, err := i.cache.Delete(ctx, RefreshKey(userID))
	if err != nil {
		return false, fmt.Errorf("revoking refresh token: %w", err)
	}
	return ok, nil
}
