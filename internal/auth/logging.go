// logging.go -- Request-scoped logging helpers.
//
// Wraps slog with automatic extraction of request context (request id, IP,
// user agent, method, path) so handlers don't repeat these fields on every call.
package auth

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// reqAttrs returns standard request-scoped attributes for logging.
func reqAttrs(r *http.Request) []any {
	attrs := []any{
		"ip", clientIP(r),
		"user_agent", r.UserAgent(),
		"method", r.Method,
		"path", r.URL.Path,
	}
	if id := middleware.GetReqID(r.Context()); id != "" {
		attrs = append(attrs, "request_id", id)
	}
	return attrs
}

func logInfo(r *http.Request, msg string, args ...any) {
	slog.InfoContext(r.Context(), msg, append(reqAttrs(r), args...)...)
}

func logWarn(r *http.Request, msg string, args ...any) {
	slog.WarnContext(r.Context(), msg, append(reqAttrs(r), args...)...)
}

func logError(r *http.Request, msg string, args ...any) {
	slog.ErrorContext(r.Context(), msg, append(reqAttrs(r), args...)...)
}
