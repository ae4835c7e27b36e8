// Package handlers implements the HTTP handlers of the cairn API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"cairn/internal/agent"
	"cairn/internal/checkpoint"
	"cairn/internal/permission"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error code and message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SendJSON writes a JSON response with the given status code.
func SendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// SendError writes an error response with the given status code, error code, and message.
func SendError(w http.ResponseWriter, status int, code, message string) {
	SendJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// Common error codes.
const (
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeGatewayTimeout     = "GATEWAY_TIMEOUT"
)

// SendAgentError maps an engine error to a status and an error body.
// Normalized generation errors keep their own code.
func SendAgentError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	SendError(w, status, code, err.Error())
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, agent.ErrEmptyInput),
		errors.Is(err, agent.ErrNoModel),
		errors.Is(err, permission.ErrInvalidMode):
		return http.StatusBadRequest, ErrCodeInvalidRequest
	case errors.Is(err, agent.ErrCheckpointNotFound), errors.Is(err, checkpoint.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, agent.ErrNoPendingInterrupt),
		errors.Is(err, agent.ErrInterruptMismatch),
		errors.Is(err, agent.ErrInterruptPending),
		errors.Is(err, agent.ErrStepRegression):
		return http.StatusConflict, ErrCodeConflict
	case errors.Is(err, agent.ErrNoCheckpointStore):
		return http.StatusServiceUnavailable, ErrCodeServiceUnavailable
	}

	var ae *agent.Error
	if errors.As(err, &ae) {
		switch ae.Code {
		case agent.CodeRateLimit:
			return http.StatusTooManyRequests, ae.Code
		case agent.CodeTimeout:
			return http.StatusGatewayTimeout, ae.Code
		case agent.CodeModel:
			return http.StatusBadGateway, ae.Code
		case agent.CodeAgent:
			return http.StatusUnprocessableEntity, ae.Code
		default:
			return http.StatusInternalServerError, ae.Code
		}
	}
	return http.StatusInternalServerError, ErrCodeInternalError
}
