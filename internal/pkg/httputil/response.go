package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/ignite/mailpro-dashboard/internal/pkg/logger"
)

// ErrorResponse is the standard error envelope for all API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("httputil: JSON encode failed", "err", err)
	}
}

// OK writes a 200 response with the given data.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// Unauthorized writes a 401 error.
func Unauthorized(w http.ResponseWriter) {
	Error(w, http.StatusUnauthorized, "unauthorized")
}

// GatewayTimeout writes a 504 with code "timeout" for operations that
// outlived their deadline.
func GatewayTimeout(w http.ResponseWriter, message string) {
	JSON(w, http.StatusGatewayTimeout, ErrorResponse{Error: message, Code: "timeout"})
}

// OperatorError writes a 500 carrying the real error message. Only use it on
// operator-facing endpoints (cron triggers, manual sync); public handlers
// should call InternalError instead.
func OperatorError(w http.ResponseWriter, err error) {
	logger.Error("httputil: operator request failed", "err", err)
	JSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
}

// InternalError writes a 500 error with a generic message and logs the cause.
func InternalError(w http.ResponseWriter, err error) {
	logger.Error("httputil: internal error", "err", err)
	Error(w, http.StatusInternalServerError, "internal server error")
}
