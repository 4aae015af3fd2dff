package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ModelError is the base type for all model-communication failures. The
// agent loop never produces one itself; seeing it means the provider call
// failed.
type ModelError struct {
	Message    string
	Provider   string
	StatusCode int
	Retryable  bool
	Cause      error
}

func (e *ModelError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("[%s] %s (status=%d, retryable=%v)", e.Provider, e.Message, e.StatusCode, e.Retryable)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ModelError) Unwrap() error {
	return e.Cause
}

// Concrete failure classes. Each embeds ModelError, so the promoted Error
// and Unwrap methods make them errors in their own right.

type AuthenticationError struct{ ModelError }
type RateLimitError struct{ ModelError }
type ServerError struct{ ModelError }
type TimeoutError struct{ ModelError }

// IsModelError reports whether err originated in the language-model client.
func IsModelError(err error) bool {
	var e *ModelError
	if errors.As(err, &e) {
		return true
	}
	// Concrete classes embed ModelError by value, so check them explicitly.
	var auth *AuthenticationError
	var rate *RateLimitError
	var srv *ServerError
	var to *TimeoutError
	return errors.As(err, &auth) || errors.As(err, &rate) || errors.As(err, &srv) || errors.As(err, &to)
}

// IsRetryable reports whether the failure is safe to retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch e := err.(type) {
	case *AuthenticationError:
		return false
	case *RateLimitError:
		return true
	case *ServerError:
		return true
	case *TimeoutError:
		return true
	case *ModelError:
		return e.Retryable
	default:
		return false
	}
}

// classifyError converts a raw provider error into the typed hierarchy using
// message-content heuristics, since gollm surfaces provider failures as
// opaque errors.
func classifyError(provider string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	base := ModelError{Message: msg, Provider: provider, Cause: err}

	switch {
	case strings.Contains(lower, "401") || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key"):
		base.StatusCode = 401
		return &AuthenticationError{ModelError: base}
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit"):
		base.StatusCode = 429
		base.Retryable = true
		return &RateLimitError{ModelError: base}
	case strings.Contains(lower, "500") || strings.Contains(lower, "502") || strings.Contains(lower, "503") || strings.Contains(lower, "internal server") || strings.Contains(lower, "overloaded"):
		base.StatusCode = 500
		base.Retryable = true
		return &ServerError{ModelError: base}
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		base.Retryable = true
		return &TimeoutError{ModelError: base}
	default:
		base.Retryable = true
		return &base
	}
}
