// user_handler.go -- Registration and user CRUD under /users.
package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hieuhoangm38/Ecommerce/internal/store"
)

// userResponse is the public JSON shape of a user. The password hash never leaves the server.
type userResponse struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName *string   `json:"first_name"`
	LastName  *string   `json:"last_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toUserResponse(u *store.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// userIDParam parses the {id} URL parameter.
func userIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Register handles POST /users/register.
// Returns 201 with user_id, 400 for validation errors, 409 when username or email is taken.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Username  string  `json:"username"`
		Email     string  `json:"email"`
		Password  string  `json:"password"`
		FirstName *string `json:"first_name"`
		LastName  *string `json:"last_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		logWarn(r, "failed to decode register input", "error", err)
		BadRequest(w, r, "error decoding request body")
		return
	}

	if msg := ValidateUsername(input.Username); msg != "" {
		BadRequest(w, r, msg)
		return
	}
	if msg := ValidateEmail(input.Email); msg != "" {
		BadRequest(w, r, msg)
		return
	}
	if msg := ValidatePassword(input.Password); msg != "" {
		BadRequest(w, r, msg)
		return
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		InternalServerError(w, r, err)
		return
	}

	id, err := h.PS.CreateUser(r.Context(), &store.User{
		Username:     input.Username,
		Email:        input.Email,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			logInfo(r, "registration attempted with taken username or email")
			Conflict(w, "username or email already taken")
			return
		}
		InternalServerError(w, r, err)
		return
	}

	logInfo(r, "user registered", "user_id", id)
	writeJSON(w, http.StatusCreated, map[string]int64{"user_id": id})
}

// ListUsers handles GET /users. Requires RequireAuth middleware.
func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.PS.ListUsers(r.Context())
	if err != nil {
		InternalServerError(w, r, err)
		return
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetUser handles GET /users/{id}. Requires RequireAuth middleware.
func (h *AuthHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(r)
	if !ok {
		BadRequest(w, r, "invalid user id")
		return
	}
	u, err := h.PS.GetUserByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			NotFound(w, "user not found")
			return
		}
		InternalServerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// UpdateUser handles PUT /users/{id}. Requires RequireAuth middleware; callers may only update themselves.
// Omitted fields are left unchanged. A new password is re-hashed.
func (h *AuthHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(r)
	if !ok {
		BadRequest(w, r, "invalid user id")
		return
	}
	if callerID, _ := UserIDFromContext(r.Context()); callerID != id {
		logWarn(r, "update of another user refused", "caller_id", callerID, "target_id", id)
		Forbidden(w)
		return
	}

	var input struct {
		Username  *string `json:"username"`
		Email     *string `json:"email"`
		Password  *string `json:"password"`
		FirstName *string `json:"first_name"`
		LastName  *string `json:"last_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		logWarn(r, "failed to decode update input", "error", err)
		BadRequest(w, r, "error decoding request body")
		return
	}

	upd := store.UserUpdate{
		Username:  input.Username,
		Email:     input.Email,
		FirstName: input.FirstName,
		LastName:  input.LastName,
	}
	if input.Username != nil {
		if msg := ValidateUsername(*input.Username); msg != "" {
			BadRequest(w, r, msg)
			return
		}
	}
	if input.Email != nil {
		if msg := ValidateEmail(*input.Email); msg != "" {
			BadRequest(w, r, msg)
			return
		}
	}
	if input.Password != nil && *input.Password != "" {
		if msg := ValidatePassword(*input.Password); msg != "" {
			BadRequest(w, r, msg)
			return
		}
		hash, err := HashPassword(*input.Password)
		if err != nil {
			InternalServerError(w, r, err)
			return
		}
		upd.PasswordHash = &hash
	}

	if err := h.PS.UpdateUser(r.Context(), id, upd); err != nil {
		switch {
		case errors.Is(err, store.ErrUserNotFound):
			NotFound(w, "user not found")
		case errors.Is(err, store.ErrUsernameTaken):
			Conflict(w, "username or email already taken")
		default:
			InternalServerError(w, r, err)
		}
		return
	}

	logInfo(r, "user updated", "user_id", id)
	OK(w, "user updated")
}

// DeleteUser handles DELETE /users/{id}. Requires RequireAuth middleware; callers may only delete themselves.
// The caller's session and refresh record are revoked with the account.
func (h *AuthHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(r)
	if !ok {
		BadRequest(w, r, "invalid user id")
		return
	}
	if callerID, _ := UserIDFromContext(r.Context()); callerID != id {
		logWarn(r, "delete of another user refused", "caller_id", callerID, "target_id", id)
		Forbidden(w)
		return
	}

	if err := h.PS.DeleteUser(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			NotFound(w, "user not found")
			return
		}
		InternalServerError(w, r, err)
		return
	}

	// Account is gone; stale credentials are cleaned up best-effort.
	if err := h.AC.Logout(r.Context(), id); err != nil {
		logWarn(r, "failed to clear allow-list after delete", "user_id", id, "error", err)
	}
	if err := h.AC.RevokeRefreshToken(r.Context(), id); err != nil {
		logWarn(r, "failed to revoke refresh token after delete", "user_id", id, "error", err)
	}

	logInfo(r, "user deleted", "user_id", id)
	OK(w, "user deleted")
}
