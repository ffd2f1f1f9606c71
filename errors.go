package authgate

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error codes surfaced by the auth service, gate and outbox. These map the
// failure taxonomy onto stable strings suitable for JSON payloads.
const (
	ErrCodeProviderUnavailable = "provider_unavailable"
	ErrCodeInvalidCreds        = "invalid_credentials"
	ErrCodeInvalidLink         = "invalid_link"
	ErrCodeRateLimited         = "rate_limited"
	ErrCodeExpiredSession      = "expired_session"
	ErrCodeInvalidEmail        = "invalid_email"
	ErrCodeInvalidPIN          = "invalid_pin"
	ErrCodeMissingField        = "missing_field"
	ErrCodeSyncPartialFailure  = "sync_partial_failure"
)

// AuthError is the structured error every public method returns instead of
// letting an internal failure escape to a UI handler. Message is always
// plain language, never a stack trace.
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	Field   string `json:"field,omitempty"`

	// RetryAfter is a hint for rate_limited errors; zero otherwise.
	RetryAfter time.Duration `json:"-"`
}

func (e *AuthError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s (%s): %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAuthError creates an AuthError with the given code, message and
// optional field name.
func NewAuthError(code, message, field string) *AuthError {
	return &AuthError{Code: code, Message: message, Field: field}
}

// AsAuthError maps an arbitrary error into the taxonomy. Errors the adapter
// already classified pass through; anything else (timeouts, connection
// resets, surprises) counts as the provider being unavailable, which callers
// handle by failing safe.
func AsAuthError(err error) *AuthError {
	if err == nil {
		return nil
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewAuthError(ErrCodeProviderUnavailable, "We couldn't reach the sign-in service. Please try again.", "")
	}
	return NewAuthError(ErrCodeProviderUnavailable, "Something went wrong talking to the sign-in service. Please try again.", "")
}
