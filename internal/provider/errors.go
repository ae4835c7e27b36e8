package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode identifies the provider-side failure.
type ErrorCode string

const (
	ErrCodeAuthFailed            ErrorCode = "AUTH_FAILED"
	ErrCodeRateLimited           ErrorCode = "RATE_LIMITED"
	ErrCodeQuotaExceeded         ErrorCode = "QUOTA_EXCEEDED"
	ErrCodeServiceUnavailable    ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeModelNotFound         ErrorCode = "MODEL_NOT_FOUND"
	ErrCodeNetworkError          ErrorCode = "NETWORK_ERROR"
	ErrCodeInvalidRequest        ErrorCode = "INVALID_REQUEST"
	ErrCodeTimeout               ErrorCode = "TIMEOUT"
	ErrCodeContextWindowExceeded ErrorCode = "CONTEXT_WINDOW_EXCEEDED"
	ErrCodeUnknown               ErrorCode = "UNKNOWN"
)

var (
	// ErrEmptyModel is returned when a pool lookup has no model name.
	ErrEmptyModel = errors.New("model name cannot be empty")

	// ErrScriptExhausted is returned by the scripted provider when it runs out of turns.
	ErrScriptExhausted = errors.New("scripted provider has no more turns")
)

// ProviderError is a structured error for provider operations.
type ProviderError struct {
	Code       ErrorCode     `json:"code"`
	Message    string        `json:"message"`
	Provider   string        `json:"provider"`
	Retryable  bool          `json:"retryable"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Code, e.Message)
}

// NewProviderError creates a new ProviderError.
func NewProviderError(code ErrorCode, message, provider string, retryable bool) *ProviderError {
	return &ProviderError{
		Code:      code,
		Message:   message,
		Provider:  provider,
		Retryable: retryable,
	}
}

// Class is the coarse failure class the retry loop reasons about.
type Class string

const (
	ClassRateLimit        Class = "rate_limit"
	ClassTimeout          Class = "timeout"
	ClassModelUnavailable Class = "model_unavailable"
	ClassContextLength    Class = "context_length"
	ClassUnknown          Class = "unknown"
)

// RetryEligible reports whether the class is a transient condition that a
// retry or a fallback model may cure.
func (c Class) RetryEligible() bool {
	switch c {
	case ClassRateLimit, ClassTimeout, ClassModelUnavailable:
		return true
	default:
		return false
	}
}

// Classify maps an error to a Class. Typed ProviderErrors are trusted first;
// untyped errors fall back to keyword matching on the message.
func Classify(err error) Class {
	if err == nil {
		return ClassUnknown
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		switch pe.Code {
		case ErrCodeRateLimited, ErrCodeQuotaExceeded:
			return ClassRateLimit
		case ErrCodeTimeout:
			return ClassTimeout
		case ErrCodeServiceUnavailable, ErrCodeModelNotFound, ErrCodeNetworkError:
			return ClassModelUnavailable
		case ErrCodeContextWindowExceeded:
			return ClassContextLength
		default:
			return ClassUnknown
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	if IsContextWindowExceeded(err) {
		return ClassContextLength
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "429"), strings.Contains(msg, "too many requests"):
		return ClassRateLimit
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return ClassTimeout
	case strings.Contains(msg, "unavailable"), strings.Contains(msg, "503"), strings.Contains(msg, "overloaded"),
		strings.Contains(msg, "model not found"):
		return ClassModelUnavailable
	}
	return ClassUnknown
}

// IsContextWindowExceeded checks if the error indicates that the input
// exceeded the model's context window limit.
func IsContextWindowExceeded(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeContextWindowExceeded
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "context window") ||
		strings.Contains(msg, "context length exceeded") ||
		strings.Contains(msg, "maximum context length") ||
		strings.Contains(msg, "token limit exceeded") ||
		strings.Contains(msg, "too many tokens")
}

// RetryAfter returns the provider-suggested delay, if any.
func RetryAfter(err error) time.Duration {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.RetryAfter
	}
	return 0
}
