// config.go

// Environment variable loading and validation.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// minJWTSecretLen is the HS256 key floor (256 bits).
const minJWTSecretLen = 32

// Config holds all env configuration vars for the service.
type Config struct {
	DatabaseURL string
	RedisURL    string
	Port        string
	LogLevel    slog.Level

	// JWTSecret signs access tokens. Required, at least 32 bytes.
	JWTSecret []byte

	// Token and OTP policy. Defaults: 15m access, 168h (7d) refresh, 2m OTP, 6 digits.
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	OTPTTL          time.Duration
	OTPDigits       int

	// SMTP configuration for OTP delivery. All optional -- empty Host disables sending.
	SMTPHost        string
	SMTPPort        string // defaults to 587
	SMTPUsername    string
	SMTPPassword    string
	SMTPFromAddress string

	// MailQueueMax caps the Redis mail queue. 0 = unlimited. Default 1000.
	MailQueueMax int64

	// TrustedProxies lists peers whose X-Forwarded-For / X-Real-IP headers are honoured.
	// Empty = use the socket address only.
	TrustedProxies []netip.Prefix
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables already set in the environment win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// LoadConfig reads environment variables and returns a validated Config.
// Returns an error if required variables (DATABASE_URL, REDIS_URL, JWT_SECRET) are missing or invalid.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if len(secret) < minJWTSecretLen {
		return nil, fmt.Errorf("JWT_SECRET must be at least %d bytes", minJWTSecretLen)
	}
	cfg.JWTSecret = []byte(secret)

	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		cfg.Port = "7865"
	}

	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		cfg.LogLevel = slog.LevelDebug
	case "warn":
		cfg.LogLevel = slog.LevelWarn
	case "error":
		cfg.LogLevel = slog.LevelError
	default:
		cfg.LogLevel = slog.LevelInfo
	}

	cfg.AccessTokenTTL = envDuration("ACCESS_TOKEN_TTL", 15*time.Minute)
	cfg.RefreshTokenTTL = envDuration("REFRESH_TOKEN_TTL", 168*time.Hour)
	cfg.OTPTTL = envDuration("OTP_TTL", 2*time.Minute)

	cfg.OTPDigits = envInt("OTP_DIGITS", 6)
	if cfg.OTPDigits != 6 && cfg.OTPDigits != 8 {
		slog.Warn("invalid env var, using default", "key", "OTP_DIGITS", "value", cfg.OTPDigits, "default", 6)
		cfg.OTPDigits = 6
	}

	// SMTP -- all optional; empty Host means no email sending (NopMailer).
	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	cfg.SMTPPort = os.Getenv("SMTP_PORT")
	if cfg.SMTPPort == "" {
		cfg.SMTPPort = "587"
	}
	cfg.SMTPUsername = os.Getenv("SMTP_USERNAME")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.SMTPFromAddress = os.Getenv("SMTP_FROM")
	if cfg.SMTPHost != "" && cfg.SMTPFromAddress == "" {
		return nil, fmt.Errorf("SMTP_FROM must be set when SMTP_HOST is set")
	}

	cfg.MailQueueMax = 1000
	if v := os.Getenv("MAIL_QUEUE_MAX"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			slog.Warn("invalid env var, using default", "key", "MAIL_QUEUE_MAX", "value", v, "default", cfg.MailQueueMax)
		} else {
			cfg.MailQueueMax = n
		}
	}

	proxies, err := parsePrefixes(os.Getenv("TRUSTED_PROXIES"))
	if err != nil {
		return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}
	cfg.TrustedProxies = proxies

	return cfg, nil
}

// parsePrefixes reads a comma-separated list of CIDRs or bare IPs.
// A bare IP becomes a single-address prefix.
func parsePrefixes(v string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if p, err := netip.ParsePrefix(item); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(item)
		if err != nil {
			return nil, fmt.Errorf("invalid address or CIDR %q", item)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// envInt reads an env var as int, returning def if missing or unparseable.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

// envDuration reads an env var as time.Duration, returning def if missing or unparseable.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}
