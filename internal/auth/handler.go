// handler.go -- HTTP handlers for the login flow under /users.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hieuhoangm38/Ecommerce/internal/store"
)

// Store defines the user directory operations needed by HTTP handlers.
// Satisfied by *store.PostgresStore -- defined here (at consumer) per Go convention.
type Store interface {
	UserDirectory

	// CreateUser inserts u and returns its id. ErrUsernameTaken on a duplicate username or email.
	CreateUser(ctx context.Context, u *store.User) (int64, error)

	// ListUsers returns every user ordered by id.
	ListUsers(ctx context.Context) ([]*store.User, error)

	// UpdateUser applies the non-nil fields of upd.
	UpdateUser(ctx context.Context, id int64, upd store.UserUpdate) error

	// DeleteUser removes the user. ErrUserNotFound if absent.
	DeleteUser(ctx context.Context, id int64) error

	CheckHealth(ctx context.Context) error
}

// HealthChecker is satisfied by *store.RedisStore.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// AuthHandler holds dependencies for all /users/* HTTP handlers and middleware.
type AuthHandler struct {
	PS Store
	RS HealthChecker
	AC *Coordinator
}

// userClaimsResponse is the JSON shape of UserClaims.
type userClaimsResponse struct {
	ID        int64   `json:"id"`
	Username  string  `json:"username"`
	Email     string  `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

func toClaimsResponse(c UserClaims) userClaimsResponse {
	return userClaimsResponse{
		ID:        c.ID,
		Username:  c.Username,
		Email:     c.Email,
		FirstName: c.FirstName,
		LastName:  c.LastName,
	}
}

// Authenticate handles POST /users/authenticate -- username + password, first factor.
// Returns 200 with a check-your-email notice, 401 for bad credentials, 500 for server or delivery errors.
func (h *AuthHandler) Authenticate(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		logWarn(r, "failed to decode authenticate input", "error", err)
		BadRequest(w, r, "error decoding request body")
		return
	}
	if input.Username == "" || input.Password == "" {
		Unauthorized(w, r, "invalid credentials")
		return
	}

	challenge, err := h.AC.Authenticate(r.Context(), input.Username, input.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			Unauthorized(w, r, "invalid credentials")
			return
		}
		InternalServerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Message     string `json:"message"`
		Destination string `json:"destination"`
		ExpiresIn   int64  `json:"expires_in"`
	}{challenge.Message, challenge.Destination, int64(challenge.ExpiresIn.Seconds())})
}

// VerifyOtp handles POST /users/verify-otp -- email + code, second factor.
// Returns 200 with tokens and profile, 401 for a bad or expired code, 404 for an unknown email.
func (h *AuthHandler) VerifyOtp(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		logWarn(r, "failed to decode verify-otp input", "error", err)
		BadRequest(w, r, "error decoding request body")
		return
	}
	if input.Email == "" || input.Code == "" {
		BadRequest(w, r, "email and code are required")
		return
	}

	res, err := h.AC.VerifyOtp(r.Context(), input.Email, input.Code, clientIP(r))
	if err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			NotFound(w, "user not found")
		case errors.Is(err, ErrOtpInvalidOrExpired):
			Unauthorized(w, r, "otp invalid or expired")
		default:
			InternalServerError(w, r, err)
		}
		return
	}

	logInfo(r, "otp verified", "user_id", res.User.ID)
	writeJSON(w, http.StatusOK, struct {
		userClaimsResponse
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}{toClaimsResponse(res.User), res.AccessToken, res.RefreshToken})
}

// RefreshToken handles POST /users/refresh-token.
// Returns 200 with a new access token, 400 malformed, 404 unknown user, 401 rejected.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var input struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		logWarn(r, "failed to decode refresh-token input", "error", err)
		BadRequest(w, r, "error decoding request body")
		return
	}

	res, err := h.AC.RefreshToken(r.Context(), input.RefreshToken, clientIP(r))
	if err != nil {
		switch {
		case errors.Is(err, ErrMalformedToken):
			BadRequest(w, r, "malformed token")
		case errors.Is(err, ErrUserNotFound):
			NotFound(w, "user not found")
		case errors.Is(err, ErrRefreshTokenRejected):
			logWarn(r, "refresh token rejected")
			Unauthorized(w, r, "refresh token rejected")
		default:
			InternalServerError(w, r, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, struct {
		ID          int64  `json:"id"`
		Username    string `json:"username"`
		Email       string `json:"email"`
		AccessToken string `json:"access_token"`
	}{res.User.ID, res.User.Username, res.User.Email, res.AccessToken})
}

// Logout handles POST /users/logout. Requires RequireAuth middleware.
// Removes the caller's AllowList entry; their access token stops working immediately.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		Unauthorized(w, r, "unauthorized")
		return
	}
	if err := h.AC.Logout(r.Context(), userID); err != nil {
		InternalServerError(w, r, err)
		return
	}
	logInfo(r, "user logged out", "user_id", userID)
	OK(w, "logged out")
}

// RevokeToken handles POST /users/revoke-token. Requires RequireAuth middleware.
// Deletes the caller's refresh record so it can no longer be redeemed.
func (h *AuthHandler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		Unauthorized(w, r, "unauthorized")
		return
	}
	if err := h.AC.RevokeRefreshToken(r.Context(), userID); err != nil {
		InternalServerError(w, r, err)
		return
	}
	logInfo(r, "refresh token revoked", "user_id", userID)
	OK(w, "refresh token revoked")
}
