// smtp.go
//
// Mailer interface and SMTPMailer implementation.
// Add other implementations (ses.go, sms gateways, etc.) as separate files in this package.
package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"regexp"
	"strings"
	"time"
)

// Mailer delivers one-time passcodes out of band.
type Mailer interface {
	// SendOTP sends the login code to toEmail.
	// vars is a map of %%key%% placeholder names to replacement values (e.g. "username": "john").
	// Unresolved placeholders are stripped rather than left in the email.
	// Reserved keys (code, toEmail, expiresIn) are owned by the mailer and cannot be overridden via vars.
	SendOTP(ctx context.Context, toEmail, code string, expiresIn time.Duration, vars map[string]string) error
}

// SMTPConfig holds all configuration for SMTPMailer.
type SMTPConfig struct {
	Host        string
	Port        string
	Username    string
	Password    string
	FromAddress string
}

// SMTPMailer sends transactional email via SMTP.
// Compatible with any SMTP provider: SES, Mailgun, Gmail, Mailpit (local dev), etc.
type SMTPMailer struct {
	cfg SMTPConfig
}

// NewSMTPMailer creates an SMTPMailer with the given config.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// NopMailer discards all outbound email. Used when SMTP is not configured.
type NopMailer struct{}

func (n *NopMailer) SendOTP(_ context.Context, _, _ string, _ time.Duration, _ map[string]string) error {
	return nil
}

// reservedVars holds placeholder keys owned by the mailer.
// Caller-supplied vars with these keys are silently dropped to prevent override.
var reservedVars = map[string]bool{
	"code":      true,
	"toEmail":   true,
	"expiresIn": true,
}

// unresolvedPlaceholder matches any %%word%% placeholder left after substitution.
var unresolvedPlaceholder = regexp.MustCompile(`%%\w+%%`)

// applyVars substitutes %%key%% placeholders in tmpl using vars, then strips any
// that remain unresolved rather than leaving them in the output.
func applyVars(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for key, value := range vars {
		pairs = append(pairs, "%%"+key+"%%", value)
	}
	substituted := strings.NewReplacer(pairs...).Replace(tmpl)
	return unresolvedPlaceholder.ReplaceAllString(substituted, "")
}

// formatDuration renders a duration as a human-readable expiry string.
// e.g. time.Hour → "1 hour", 2*time.Minute → "2 minutes", 45*time.Second → "45 seconds".
func formatDuration(d time.Duration) string {
	switch {
	case d >= 24*time.Hour:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	case d >= time.Hour:
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	case d >= time.Minute:
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", mins)
	default:
		secs := int(d.Seconds())
		if secs == 1 {
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", secs)
	}
}

// mergeVars copies caller vars, skipping reserved keys, then injects mailer-owned keys.
func mergeVars(vars map[string]string, toEmail, code string, expiresIn time.Duration) map[string]string {
	merged := make(map[string]string, len(vars)+3)
	for k, v := range vars {
		if !reservedVars[k] {
			merged[k] = v
		}
	}
	merged["toEmail"] = toEmail
	merged["code"] = code
	merged["expiresIn"] = formatDuration(expiresIn)
	return merged
}

// otpMessage builds the full RFC 5322 message for a login code.
func (m *SMTPMailer) otpMessage(toEmail, code string, expiresIn time.Duration, vars map[string]string) string {
	body := "Hello %%username%%,\n\n" +
		"Your login verification code is:\n\n" +
		"    %%code%%\n\n" +
		"This code expires in %%expiresIn%% and can be used once. " +
		"If you did not try to sign in, change your password."

	msg := "From: " + m.cfg.FromAddress + "\r\n" +
		"To: " + toEmail + "\r\n" +
		"Subject: Your login verification code\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/plain; charset=UTF-8\r\n" +
		"\r\n" +
		body

	return applyVars(msg, mergeVars(vars, toEmail, code, expiresIn))
}

// sendMail dials the SMTP server, enforces STARTTLS (rejects plaintext sessions),
// authenticates, and delivers msg. The connection respects ctx cancellation.
func (m *SMTPMailer) sendMail(ctx context.Context, toEmail, msg string) error {
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", net.JoinHostPort(m.cfg.Host, m.cfg.Port))
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer c.Close()

	// Enforce STARTTLS -- reject the session if server does not advertise it.
	if ok, _ := c.Extension("STARTTLS"); !ok {
		return fmt.Errorf("smtp server does not advertise STARTTLS: refusing plaintext session")
	}
	if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
		return fmt.Errorf("smtp starttls: %w", err)
	}

	if err := c.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}

	if err := c.Mail(m.cfg.FromAddress); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := c.Rcpt(toEmail); err != nil {
		return fmt.Errorf("smtp RCPT TO: %w", err)
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := fmt.Fprint(wc, msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}

	return c.Quit()
}

// SendOTP emails a login code to toEmail.
func (m *SMTPMailer) SendOTP(ctx context.Context, toEmail, code string, expiresIn time.Duration, vars map[string]string) error {
	if err := m.sendMail(ctx, toEmail, m.otpMessage(toEmail, code, expiresIn, vars)); err != nil {
		return fmt.Errorf("sending otp email: %w", err)
	}
	return nil
}
