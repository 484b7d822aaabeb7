package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hieuhoangm38/Ecommerce/internal/auth"
	"github.com/hieuhoangm38/Ecommerce/internal/config"
	"github.com/hieuhoangm38/Ecommerce/internal/mail"
	"github.com/hieuhoangm38/Ecommerce/internal/otp"
	"github.com/hieuhoangm38/Ecommerce/internal/store"
	"github.com/hieuhoangm38/Ecommerce/internal/token"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Embeds the migration files INTO the go bin

//go:embed migrations/*.sql
var migrationsDir embed.FS

func main() {
	// .env is optional; real env vars win over it.
	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}

	// Load config first so we can set log level
	cfg, err := config.LoadConfig()
	if err != nil {
		// Fallback logger before config is available
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}

	// Include source location in log entries at debug level only.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     cfg.LogLevel,
		AddSource: cfg.LogLevel == slog.LevelDebug,
	})))

	// Cancel ctx on SIGINT/SIGTERM; run() shuts down when ctx is done.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run() is a separate func so deferred closes (ps, rdb) always execute before os.Exit.
	if err := run(ctx, cfg, nil, nil); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

// run holds all server logic and returns error instead of calling os.Exit,
// so deferred resource cleanup always runs.
// Shuts down when ctx is cancelled (signal handling is the caller's concern).
// If ready is non-nil, the server's base URL is sent on it once the listener is bound.
// If ml is non-nil it replaces the mailer chosen from config (tests capture OTPs this way).
func run(ctx context.Context, cfg *config.Config, ready chan<- string, ml mail.Mailer) error {
	ps, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to set up postgres store: %w", err)
	}
	defer ps.Close()

	migrationsFS, err := fs.Sub(migrationsDir, "migrations")
	if err != nil {
		return fmt.Errorf("failed to access embedded migrations: %w", err)
	}
	if err := ps.Migrate(ctx, migrationsFS); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Shared Redis client; the session cache and the mail queue share one connection pool.
	rdb, err := store.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to set up redis client: %w", err)
	}
	defer rdb.Close()

	rs := store.NewRedisStore(rdb)

	// Worker goroutines are cancelled via workerCtx when run() returns.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	if ml == nil {
		if cfg.SMTPHost != "" {
			qm := mail.NewQueuedMailer(mail.NewSMTPMailer(mail.SMTPConfig{
				Host:        cfg.SMTPHost,
				Port:        cfg.SMTPPort,
				Username:    cfg.SMTPUsername,
				Password:    cfg.SMTPPassword,
				FromAddress: cfg.SMTPFromAddress,
			}), rdb, cfg.MailQueueMax)
			go qm.StartWorker(workerCtx)
			ml = qm
		} else {
			slog.Warn("SMTP_HOST not set; OTP emails will be discarded")
			ml = &mail.NopMailer{}
		}
	}

	otps, err := otp.NewManager(rs, cfg.OTPTTL, cfg.OTPDigits)
	if err != nil {
		return fmt.Errorf("failed to set up otp manager: %w", err)
	}
	tokens := token.NewIssuer(rs, cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, nil)
	coord := auth.NewCoordinator(ps, rs, otps, tokens, ml, slog.Default().With("component", "auth"))

	h := auth.AuthHandler{PS: ps, RS: rs, AC: coord}

	// Bind listener; ":0" picks a free port (useful in tests).
	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	server := &http.Server{
		Handler:           buildRouter(&h, cfg.TrustedProxies),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("ecommerce auth listening", "addr", ln.Addr().String())
		// Send error only if server stops for a reason other than explicit shutdown.
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Signal readiness to caller (used by tests; nil in production).
	if ready != nil {
		ready <- "http://" + ln.Addr().String()
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	// Stops accepting new conns, then waits for in-flight requests or the 30s timeout.
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

// buildRouter wires all routes and middleware.
// Forwarding headers are honoured only from trustedProxies; refresh tokens are bound to the resulting address.
// Called from run() and from smoke tests.
func buildRouter(h *auth.AuthHandler, trustedProxies []netip.Prefix) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(auth.RealIP(trustedProxies))
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", h.CheckHealth)

	r.Route("/users", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/authenticate", h.Authenticate)
		r.Post("/verify-otp", h.VerifyOtp)
		r.Post("/refresh-token", h.RefreshToken)

		// Bearer access token required
		r.Group(func(r chi.Router) {
			r.Use(h.RequireAuth)
			r.Post("/logout", h.Logout)
			r.Post("/revoke-token", h.RevokeToken)
			r.Get("/", h.ListUsers)
			r.Get("/{id}", h.GetUser)
			r.Put("/{id}", h.UpdateUser)
			r.Delete("/{id}", h.DeleteUser)
		})
	})

	return r
}
