// middleware_test.go

// unit tests for RequireAuth and the helpers it depends on.
package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"
)

// contextCapture records what RequireAuth injected for downstream assertion.
type contextCapture struct {
	called   bool
	userID   int64
	userIDOK bool
}

// capturingHandler records context values then responds 200.
func capturingHandler(cap *contextCapture) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cap.called = true
		cap.userID, cap.userIDOK = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

// bearerRequest returns a GET with the given Authorization header value.
func bearerRequest(auth string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/users", nil)
	if auth != "" {
		r.Header.Set("Authorization", auth)
	}
	return r
}

func TestRequireAuth(t *testing.T) {
	t.Run("allow-listed token passes and injects user id", func(t *testing.T) {
		h, f := newTestHandler(t)
		tokens := doVerify(t, h, doAuthenticate(t, h, f))

		var cap contextCapture
		w := httptest.NewRecorder()
		h.RequireAuth(capturingHandler(&cap)).ServeHTTP(w, bearerRequest("Bearer "+tokens.AccessToken))

		if w.Code != http.StatusOK || !cap.called {
			t.Fatalf("expected pass-through, got %d", w.Code)
		}
		if !cap.userIDOK || cap.userID != 42 {
			t.Errorf("user id = %d (ok=%v), want 42", cap.userID, cap.userIDOK)
		}
	})

	t.Run("scheme is case-insensitive", func(t *testing.T) {
		h, f := newTestHandler(t)
		tokens := doVerify(t, h, doAuthenticate(t, h, f))
		var cap contextCapture
		w := httptest.NewRecorder()
		h.RequireAuth(capturingHandler(&cap)).ServeHTTP(w, bearerRequest("bearer "+tokens.AccessToken))
		if !cap.called {
			t.Errorf("expected pass-through, got %d", w.Code)
		}
	})

	rejects := []struct {
		name  string
		auth  func(tok string) string
		setup func(f *fixture)
	}{
		{"missing header", func(string) string { return "" }, nil},
		{"wrong scheme", func(tok string) string { return "Basic " + tok }, nil},
		{"empty token", func(string) string { return "Bearer " }, nil},
		{"garbage token", func(string) string { return "Bearer garbage" }, nil},
		{"logged out", func(tok string) string { return "Bearer " + tok }, func(f *fixture) {
			f.c.Logout(context.Background(), 42)
		}},
		{"expired", func(tok string) string { return "Bearer " + tok }, func(f *fixture) {
			f.cache.Advance(16 * time.Minute)
		}},
	}
	for _, tc := range rejects {
		t.Run("rejects "+tc.name, func(t *testing.T) {
			h, f := newTestHandler(t)
			tokens := doVerify(t, h, doAuthenticate(t, h, f))
			if tc.setup != nil {
				tc.setup(f)
			}

			var cap contextCapture
			w := httptest.NewRecorder()
			h.RequireAuth(capturingHandler(&cap)).ServeHTTP(w, bearerRequest(tc.auth(tokens.AccessToken)))

			assertMessage(t, w, http.StatusUnauthorized, "unauthorized")
			if cap.called {
				t.Error("next handler must not run")
			}
		})
	}

	t.Run("cache failure is 500, not 401", func(t *testing.T) {
		h, f := newTestHandler(t)
		tokens := doVerify(t, h, doAuthenticate(t, h, f))
		f.cache.GetErr = errors.New("redis down")

		var cap contextCapture
		w := httptest.NewRecorder()
		h.RequireAuth(capturingHandler(&cap)).ServeHTTP(w, bearerRequest("Bearer "+tokens.AccessToken))
		assertMessage(t, w, http.StatusInternalServerError, "internal server error")
		if cap.called {
			t.Error("next handler must not run")
		}
	})
}

// --- Seam: RequireAuth -> Logout ---

// The token minted by VerifyOtp authenticates Logout through the middleware,
// and the same token is refused afterwards.
func TestRequireAuthLogoutSeam(t *testing.T) {
	h, f := newTestHandler(t)
	tokens := doVerify(t, h, doAuthenticate(t, h, f))
	protected := h.RequireAuth(http.HandlerFunc(h.Logout))

	w := httptest.NewRecorder()
	protected.ServeHTTP(w, bearerRequest("Bearer "+tokens.AccessToken))
	assertMessage(t, w, http.StatusOK, "logged out")

	w = httptest.NewRecorder()
	protected.ServeHTTP(w, bearerRequest("Bearer "+tokens.AccessToken))
	assertMessage(t, w, http.StatusUnauthorized, "unauthorized")
}

// --- clientIP ---

func TestClientIP(t *testing.T) {
	cases := map[string]string{
		"192.0.2.1:1234":   "192.0.2.1",
		"[2001:db8::1]:80": "2001:db8::1",
		"203.0.113.5":      "203.0.113.5", // RealIP sets RemoteAddr without a port
	}
	for addr, want := range cases {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = addr
		if got := clientIP(r); got != want {
			t.Errorf("clientIP(%q) = %q, want %q", addr, got, want)
		}
	}
}

// --- RealIP ---

func TestRealIP(t *testing.T) {
	proxies := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}

	cases := []struct {
		name    string
		trusted []netip.Prefix
		remote  string
		xff     string
		realIP  string
		want    string
	}{
		{"no trusted proxies ignores headers", nil, "198.51.100.1:4000", "203.0.113.9", "203.0.113.9", "198.51.100.1"},
		{"untrusted peer ignores X-Forwarded-For", proxies, "198.51.100.1:4000", "203.0.113.9", "", "198.51.100.1"},
		{"untrusted peer ignores X-Real-IP", proxies, "198.51.100.1:4000", "", "203.0.113.9", "198.51.100.1"},
		{"trusted peer uses X-Forwarded-For", proxies, "10.0.0.5:4000", "203.0.113.9", "", "203.0.113.9"},
		{"rightmost untrusted hop wins", proxies, "10.0.0.5:4000", "192.0.2.66, 203.0.113.9, 10.1.1.1", "", "203.0.113.9"},
		{"trusted peer falls back to X-Real-IP", proxies, "10.0.0.5:4000", "", "203.0.113.9", "203.0.113.9"},
		{"malformed hop keeps the peer", proxies, "10.0.0.5:4000", "203.0.113.9, junk", "", "10.0.0.5"},
		{"no headers keeps the peer", proxies, "10.0.0.5:4000", "", "", "10.0.0.5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/users/refresh-token", nil)
			r.RemoteAddr = tc.remote
			if tc.xff != "" {
				r.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.realIP != "" {
				r.Header.Set("X-Real-IP", tc.realIP)
			}

			var got string
			RealIP(tc.trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = clientIP(r)
			})).ServeHTTP(httptest.NewRecorder(), r)

			if got != tc.want {
				t.Errorf("client ip = %q, want %q", got, tc.want)
			}
		})
	}
}
