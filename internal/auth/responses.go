// responses.go -- Package-wide HTTP response helpers.
//
// Shared by handlers and middleware. Error bodies are always {"message": "..."}
// and never carry internal error text.
package auth

import (
	"encoding/json"
	"net/http"
)

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeMessage writes {"message": message} with the given status.
func writeMessage(w http.ResponseWriter, status int, message string) {
	body, _ := json.Marshal(struct {
		Message string `json:"message"`
	}{message})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// InternalServerError logs the error and returns a generic 500 JSON response.
func InternalServerError(w http.ResponseWriter, r *http.Request, err error) {
	logError(r, "internal server error", "error", err)
	writeMessage(w, http.StatusInternalServerError, "internal server error")
}

// BadRequest returns a 400 JSON response. Use for client input validation failures.
func BadRequest(w http.ResponseWriter, r *http.Request, message string) {
	writeMessage(w, http.StatusBadRequest, message)
}

// Unauthorized returns a 401 JSON response. Keep message generic to prevent user enumeration.
func Unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	writeMessage(w, http.StatusUnauthorized, message)
}

// Forbidden returns a 403 JSON response.
func Forbidden(w http.ResponseWriter) {
	writeMessage(w, http.StatusForbidden, "forbidden")
}

// NotFound returns a 404 JSON response.
func NotFound(w http.ResponseWriter, message string) {
	writeMessage(w, http.StatusNotFound, message)
}

// Conflict returns a 409 JSON response.
func Conflict(w http.ResponseWriter, message string) {
	writeMessage(w, http.StatusConflict, message)
}

// OK returns a 200 JSON response with the given message.
func OK(w http.ResponseWriter, message string) {
	writeMessage(w, http.StatusOK, message)
}
