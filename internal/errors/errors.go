// Package errors defines the router's error taxonomy and its mapping
// onto NativeResponse status codes.
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// RouterError represents an error that can be translated directly into
// a NativeResponse.
type RouterError struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	underlying error
}

func (e *RouterError) Error() string {
	if e.underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.underlying)
	}
	return e.Message
}

func (e *RouterError) Unwrap() error {
	return e.underlying
}

// WriteJSON writes the error as a JSON NativeResponse-shaped body.
func (e *RouterError) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Code)
	json.NewEncoder(w).Encode(struct {
		Status  int    `json:"status"`
		Content string `json:"content"`
	}{Status: e.Code, Content: e.Details})
}

// Taxonomy of spec §7. Each sentinel carries the default status and
// message; WithDetails attaches the concrete reason.
var (
	ErrValidation = &RouterError{Code: http.StatusBadRequest, Message: "Bad Request"}
	ErrAuth       = &RouterError{Code: http.StatusUnauthorized, Message: "Authentication failed"}
	ErrThrottle   = &RouterError{Code: http.StatusTooManyRequests, Message: "Requests limit reached"}
	ErrConfig     = &RouterError{Code: http.StatusBadRequest, Message: "Bad Request"}
	ErrInternal   = &RouterError{Code: http.StatusInternalServerError, Message: "Internal Server Error"}
	ErrTransport  = &RouterError{Code: http.StatusInternalServerError, Message: "Internal Server Error"}
	ErrTimeout    = &RouterError{Code: http.StatusRequestTimeout, Message: "Request Timeout"}
)

// New creates a RouterError with a specific status code.
func New(code int, message string) *RouterError {
	return &RouterError{Code: code, Message: message}
}

// Wrap attaches an underlying error for logging while keeping the
// public-facing message stable.
func Wrap(err error, code int, message string) *RouterError {
	return &RouterError{Code: code, Message: message, underlying: err}
}

// WithDetails returns a copy of e carrying a specific reason string.
func (e *RouterError) WithDetails(details string) *RouterError {
	return &RouterError{
		Code:       e.Code,
		Message:    e.Message,
		Details:    details,
		underlying: e.underlying,
	}
}
