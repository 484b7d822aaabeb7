// middleware.go

// Bearer access-token middleware.
package auth

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// contextKey is unexported to prevent collisions with other packages using the same context.
type contextKey string

const userIDKey contextKey = "user_id"

// UserIDFromContext retrieves the authenticated user's id.
// Returns 0 and false if RequireAuth hasn't run.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}

// clientIP returns the host part of RemoteAddr. RealIP has already replaced
// RemoteAddr with the forwarded client address when the peer is a trusted proxy.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RealIP rewrites RemoteAddr from X-Forwarded-For or X-Real-IP, but only for
// requests whose immediate peer is inside trusted. Any other peer keeps its
// socket address and the headers are ignored. A nil trusted list trusts nobody.
func RealIP(trusted []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ip, ok := forwardedIP(r, trusted); ok {
				r.RemoteAddr = ip
			}
			next.ServeHTTP(w, r)
		})
	}
}

// forwardedIP returns the client address a trusted proxy reported.
// X-Forwarded-For is walked right to left; the first hop outside trusted is the client.
func forwardedIP(r *http.Request, trusted []netip.Prefix) (string, bool) {
	if len(trusted) == 0 {
		return "", false
	}
	peer, err := netip.ParseAddr(clientIP(r))
	if err != nil || !isTrusted(peer, trusted) {
		return "", false
	}

	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				return "", false
			}
			if !isTrusted(hop, trusted) {
				return hop.Unmap().String(), true
			}
		}
	}

	if xr := strings.TrimSpace(r.Header.Get("X-Real-IP")); xr != "" {
		if addr, err := netip.ParseAddr(xr); err == nil {
			return addr.Unmap().String(), true
		}
	}
	return "", false
}

func isTrusted(addr netip.Addr, trusted []netip.Prefix) bool {
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

// RequireAuth accepts a request only if its bearer token verifies and is the
// user's current AllowList entry. Injects user_id into context; 401 otherwise.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, ok := bearerToken(r)
		if !ok {
			logWarn(r, "require auth failed", "reason", "missing_bearer_token")
			Unauthorized(w, r, "unauthorized")
			return
		}

		userID, err := h.AC.Authorize(r.Context(), tok)
		if err != nil {
			if errors.Is(err, ErrAccessTokenRejected) {
				logWarn(r, "require auth failed", "reason", "token_rejected")
				Unauthorized(w, r, "unauthorized")
				return
			}
			InternalServerError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
