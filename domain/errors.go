package domain

import (
	"errors"
	"fmt"
	"time"
)

// Registration errors
var (
	ErrEmailAlreadyExists    = errors.New("email already exists")
	ErrNicknameAlreadyExists = errors.New("nickname already exists")
	ErrValidation            = errors.New("validation failed")
	ErrWeakPassword          = errors.New("password does not meet complexity requirements")
)

// Authentication errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotVerified   = errors.New("email not verified")
)

// Verification errors
var (
	ErrCodeNotFound        = errors.New("verification code not found")
	ErrInvalidCode         = errors.New("invalid verification code")
	ErrResendLimitExceeded = errors.New("verification email resend limit exceeded")
)

// Delivery errors
var (
	// ErrDeliveryUnconfirmed means the message body reached the mail server
	// but its acceptance reply did not arrive, so the email may have been sent.
	ErrDeliveryUnconfirmed = errors.New("verification email delivery not confirmed")
)

// Store errors
var (
	ErrKeyNotFound = errors.New("key not found")
)

// Token errors
var (
	ErrTokenInvalid   = errors.New("invalid token")
	ErrTokenExpired   = errors.New("token has expired")
	ErrTokenMalformed = errors.New("malformed token")
)

// Session errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session has expired")
)

// ValidationError reports a rejected input field
type ValidationError struct {
	Field  string
	Reason string
	Cause  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrValidation, e.Cause}
	}
	return []error{ErrValidation}
}

// NewValidationError builds a ValidationError for field
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ResendLimitError is returned once the resend counter passed the configured maximum.
// Attempt is the counter value after the rejected increment.
type ResendLimitError struct {
	MaxAttempts int
	Window      time.Duration
	Attempt     int64
}

func (e *ResendLimitError) Error() string {
	return fmt.Sprintf("resend limit exceeded: at most %d verification emails per %s", e.MaxAttempts, FormatWindow(e.Window))
}

func (e *ResendLimitError) Unwrap() error { return ErrResendLimitExceeded }

// FormatWindow renders d in the largest whole unit that divides it,
// e.g. "1 hour", "30 minutes", "90 seconds".
func FormatWindow(d time.Duration) string {
	units := []struct {
		size time.Duration
		name string
	}{
		{24 * time.Hour, "day"},
		{time.Hour, "hour"},
		{time.Minute, "minute"},
		{time.Second, "second"},
	}
	for _, u := range units {
		if d >= u.size && d%u.size == 0 {
			return plural(int64(d/u.size), u.name)
		}
	}
	return d.String()
}

func plural(n int64, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
