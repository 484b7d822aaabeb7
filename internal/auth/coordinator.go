// coordinator.go -- Two-step login: password, then emailed OTP, then tokens.
//
// The coordinator holds no per-login state. A pending login is the OTP key,
// a signed-in session is the AllowList key, and refresh eligibility is the
// RefreshToken hash; all three live in the shared cache with TTL expiry, so
// any instance can serve any step.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hieuhoangm38/Ecommerce/internal/mail"
	"github.com/hieuhoangm38/Ecommerce/internal/otp"
	"github.com/hieuhoangm38/Ecommerce/internal/store"
	"github.com/hieuhoangm38/Ecommerce/internal/token"
)

// UserDirectory is the read side of the user store the coordinator needs.
// Satisfied by *store.PostgresStore -- defined here (at consumer) per Go convention.
type UserDirectory interface {
	GetUserByID(ctx context.Context, id int64) (*store.User, error)
	GetUserByUsername(ctx context.Context, username string) (*store.User, error)
	GetUserByEmail(ctx context.Context, email string) (*store.User, error)
}

// SessionCache is the set of cache operations the coordinator performs directly.
// Satisfied by *store.RedisStore.
type SessionCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	HashGet(ctx context.Context, key, field string) (string, error)
}

// LoginChallenge is the result of a successful password step. It carries no credential.
type LoginChallenge struct {
	Message     string
	Destination string // masked email the code was sent to
	ExpiresIn   time.Duration
}

// UserClaims is the public profile returned alongside tokens.
type UserClaims struct {
	ID        int64
	Username  string
	Email     string
	FirstName *string
	LastName  *string
}

// Authenticated is the result of a successful OTP step.
type Authenticated struct {
	AccessToken  string
	RefreshToken string
	User         UserClaims
}

// Refreshed is the result of redeeming a refresh token.
type Refreshed struct {
	AccessToken string
	User        UserClaims
}

// Coordinator drives the login state machine over the cache, OTP manager and token issuer.
type Coordinator struct {
	users  UserDirectory
	cache  SessionCache
	otps   *otp.Manager
	tokens *token.Issuer
	mailer mail.Mailer
	log    *slog.Logger
	now    func() time.Time
}

// NewCoordinator wires a Coordinator. A nil logger falls back to slog.Default().
func NewCoordinator(users UserDirectory, cache SessionCache, otps *otp.Manager, tokens *token.Issuer, mailer mail.Mailer, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		users:  users,
		cache:  cache,
		otps:   otps,
		tokens: tokens,
		mailer: mailer,
		log:    logger,
		now:    time.Now,
	}
}

// Authenticate checks username and password, then issues and emails an OTP.
// Returns ErrInvalidCredentials for an unknown username or wrong password; no challenge is left behind.
func (c *Coordinator) Authenticate(ctx context.Context, username, password string) (*LoginChallenge, error) {
	user, err := c.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			// Equalise timing with the found-user path.
			VerifyPassword(password, dummyPasswordHash)
			c.log.InfoContext(ctx, "login attempted with unknown username")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up user by username: %w", err)
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password for user %d: %w", user.ID, err)
	}
	if !ok {
		c.log.InfoContext(ctx, "login attempted with wrong password", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}

	code, err := c.otps.Generate(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("generating otp: %w", err)
	}
	if err := c.mailer.SendOTP(ctx, user.Email, code, c.otps.TTL(), map[string]string{"username": user.Username}); err != nil {
		// The user never saw this code; do not leave it redeemable.
		if derr := c.otps.Discard(ctx, user.ID); derr != nil {
			c.log.WarnContext(ctx, "failed to discard undelivered otp", "user_id", user.ID, "error", derr)
		}
		return nil, fmt.Errorf("delivering otp: %w", err)
	}

	dest := maskEmail(user.Email)
	c.log.InfoContext(ctx, "otp issued", "user_id", user.ID)
	return &LoginChallenge{
		Message:     "A verification code was sent to " + dest + ". Submit it to finish signing in.",
		Destination: dest,
		ExpiresIn:   c.otps.TTL(),
	}, nil
}

// VerifyOtp redeems the emailed code and mints an access token and an IP-bound refresh token.
// The challenge is consumed atomically, so one code signs in at most once.
func (c *Coordinator) VerifyOtp(ctx context.Context, email, code, ip string) (*Authenticated, error) {
	user, err := c.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("looking up user by email: %w", err)
	}

	ok, err := c.otps.Consume(ctx, user.ID, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		c.log.InfoContext(ctx, "otp rejected", "user_id", user.ID)
		return nil, ErrOtpInvalidOrExpired
	}

	access, err := c.tokens.GenerateAccessToken(user)
	if err != nil {
		return nil, err
	}
	refresh, err := c.tokens.GenerateRefreshToken(ctx, user, ip)
	if err != nil {
		return nil, err
	}
	if err := c.allow(ctx, user.ID, access); err != nil {
		// Nothing was handed out; drop the refresh record written above.
		if _, rerr := c.tokens.RevokeRefreshToken(ctx, user.ID); rerr != nil {
			c.log.WarnContext(ctx, "failed to revoke refresh record after sign-in failure", "user_id", user.ID, "error", rerr)
		}
		return nil, err
	}

	c.log.InfoContext(ctx, "user signed in", "user_id", user.ID)
	return &Authenticated{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         claimsOf(user),
	}, nil
}

// RefreshToken redeems a refresh token for a fresh access token. The refresh token is not rotated.
// The new access token replaces the user's AllowList entry.
func (c *Coordinator) RefreshToken(ctx context.Context, value, ip string) (*Refreshed, error) {
	userID, err := token.ParseRefreshToken(value)
	if err != nil {
		return nil, ErrMalformedToken
	}

	user, err := c.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("looking up user by id: %w", err)
	}

	key := token.RefreshKey(userID)
	exists, err := c.cache.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("checking refresh record: %w", err)
	}
	if !exists {
		c.log.InfoContext(ctx, "refresh rejected", "user_id", userID, "reason", "no_record")
		return nil, ErrRefreshTokenRejected
	}
	stored, err := c.cache.HashGet(ctx, key, token.FieldTokenHash)
	if err != nil {
		if errors.Is(err, store.ErrCacheMiss) {
			c.log.InfoContext(ctx, "refresh rejected", "user_id", userID, "reason", "no_hash")
			return nil, ErrRefreshTokenRejected
		}
		return nil, fmt.Errorf("reading refresh record: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(token.HashRefreshToken(value))) != 1 {
		c.log.WarnContext(ctx, "refresh rejected", "user_id", userID, "reason", "token_mismatch")
		return nil, ErrRefreshTokenRejected
	}
	createdBy, err := c.cache.HashGet(ctx, key, token.FieldCreatedByIP)
	if err != nil {
		if errors.Is(err, store.ErrCacheMiss) {
			c.log.InfoContext(ctx, "refresh rejected", "user_id", userID, "reason", "no_ip")
			return nil, ErrRefreshTokenRejected
		}
		return nil, fmt.Errorf("reading refresh record: %w", err)
	}
	if createdBy != ip {
		c.log.WarnContext(ctx, "refresh rejected", "user_id", userID, "reason", "ip_mismatch")
		return nil, ErrRefreshTokenRejected
	}

	access, err := c.tokens.GenerateAccessToken(user)
	if err != nil {
		return nil, err
	}
	if err := c.allow(ctx, user.ID, access); err != nil {
		return nil, err
	}
	return &Refreshed{AccessToken: access, User: claimsOf(user)}, nil
}

// Logout removes the user's AllowList entry. Idempotent.
func (c *Coordinator) Logout(ctx context.Context, userID int64) error {
	if _, err := c.cache.Delete(ctx, token.AllowListKey(userID)); err != nil {
		return fmt.Errorf("deleting allow-list entry: %w", err)
	}
	return nil
}

// RevokeRefreshToken removes the user's refresh record so no device can redeem it. Idempotent.
func (c *Coordinator) RevokeRefreshToken(ctx context.Context, userID int64) error {
	_, err := c.tokens.RevokeRefreshToken(ctx, userID)
	return err
}

// Authorize validates a presented access token and returns its user id.
// The token must verify and must equal the user's current AllowList entry.
func (c *Coordinator) Authorize(ctx context.Context, accessToken string) (int64, error) {
	claims, err := c.tokens.ParseAccessToken(accessToken)
	if err != nil {
		return 0, ErrAccessTokenRejected
	}
	current, err := c.cache.Get(ctx, token.AllowListKey(claims.UserID))
	if err != nil {
		if errors.Is(err, store.ErrCacheMiss) {
			return 0, ErrAccessTokenRejected
		}
		return 0, fmt.Errorf("reading allow-list entry: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(current), []byte(accessToken)) != 1 {
		return 0, ErrAccessTokenRejected
	}
	return claims.UserID, nil
}

// allow registers accessToken as userID's accepted token for the rest of its lifetime.
func (c *Coordinator) allow(ctx context.Context, userID int64, accessToken string) error {
	exp, err := c.tokens.ReadExpiry(accessToken)
	if err != nil {
		return err
	}
	remaining := exp.Sub(c.now())
	if remaining <= 0 {
		return fmt.Errorf("access token for user %d already expired at mint time", userID)
	}
	if err := c.cache.Set(ctx, token.AllowListKey(userID), accessToken, remaining); err != nil {
		return fmt.Errorf("writing allow-list entry: %w", err)
	}
	return nil
}

func claimsOf(u *store.User) UserClaims {
	return UserClaims{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

// maskEmail hides most of the local part: "alice@example.com" -> "a***e@example.com".
// Cuts on rune boundaries.
func maskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return "***"
	}
	if local == "" {
		return "***@" + domain
	}
	_, firstLen := utf8.DecodeRuneInString(local)
	if utf8.RuneCountInString(local) <= 2 {
		return local[:firstLen] + "***@" + domain
	}
	_, lastLen := utf8.DecodeLastRuneInString(local)
	return local[:firstLen] + "***" + local[len(local)-lastLen:] + "@" + domain
}
