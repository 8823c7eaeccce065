// Package httpx holds the JSON response and request-logging helpers shared by
// every HTTP handler package (auth, chat, assistant).
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// JSON writes payload with the given status.
func JSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("encoding response", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"message":"internal server error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// Message writes {"message": msg} with the given status.
func Message(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, struct {
		Message string `json:"message"`
	}{msg})
}

// InternalServerError logs the error and returns a generic 500 JSON response.
// Never exposes internal error details to prevent information leakage.
func InternalServerError(w http.ResponseWriter, r *http.Request, err error) {
	LogError(r, "internal server error", "error", err)
	Message(w, http.StatusInternalServerError, "internal server error")
}

// BadRequest returns a 400 JSON response with the given message.
// Use for client input validation failures.
func BadRequest(w http.ResponseWriter, message string) {
	Message(w, http.StatusBadRequest, message)
}

// Unauthorized returns a 401 JSON response.
// Keep message generic to prevent user enumeration.
func Unauthorized(w http.ResponseWriter, message string) {
	Message(w, http.StatusUnauthorized, message)
}

// Forbidden returns a 403 JSON response.
func Forbidden(w http.ResponseWriter, message string) {
	Message(w, http.StatusForbidden, message)
}

// NotFound returns a 404 JSON response.
func NotFound(w http.ResponseWriter, message string) {
	Message(w, http.StatusNotFound, message)
}

// TooManyRequests returns a 429 JSON response.
func TooManyRequests(w http.ResponseWriter) {
	Message(w, http.StatusTooManyRequests, "too many attempts, please try again later")
}

// NotImplemented returns a 501 JSON response for features disabled by configuration.
func NotImplemented(w http.ResponseWriter, message string) {
	Message(w, http.StatusNotImplemented, message)
}

// BadGateway returns a 502 JSON response for upstream failures.
func BadGateway(w http.ResponseWriter, message string) {
	Message(w, http.StatusBadGateway, message)
}

// GatewayTimeout returns a 504 JSON response; the client may retry.
func GatewayTimeout(w http.ResponseWriter) {
	Message(w, http.StatusGatewayTimeout, "service temporarily unavailable, please retry")
}

// OK returns a 200 JSON response with the given message.
func OK(w http.ResponseWriter, message string) {
	Message(w, http.StatusOK, message)
}

// StoreError maps a failed store or upstream call to 504 when it ran out of
// time, otherwise to a logged generic 500.
func StoreError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		LogWarn(r, "dependency timed out", "error", err)
		GatewayTimeout(w)
		return
	}
	InternalServerError(w, r, err)
}
