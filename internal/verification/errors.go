package verification

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrNoSession indicates neither a login session nor a verification
	// session could be tied to a user.
	ErrNoSession = errors.New("no verification session")
	// ErrAlreadyVerified indicates the email address was verified before.
	ErrAlreadyVerified = errors.New("email already verified")
	// ErrNoActiveCode indicates no code was issued or it was cleared.
	ErrNoActiveCode = errors.New("no active verification code")
	// ErrCodeExpired indicates the code was past its expiry.
	ErrCodeExpired = errors.New("verification code expired")
	// ErrCodeInvalid indicates the code did not match.
	ErrCodeInvalid = errors.New("invalid verification code")
	// ErrInvalidCodeFormat indicates the input was not six digits.
	ErrInvalidCodeFormat = errors.New("verification code must be 6 digits")
	// ErrEmailDispatch indicates a code was issued but the email could not be sent.
	ErrEmailDispatch = errors.New("failed to send verification email")
)

// CooldownError is returned when a resend is requested too soon after
// the previous code was sent.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("resend cooldown active, %ds remaining", e.Seconds())
}

// Seconds returns the remaining cooldown in whole seconds, rounded up.
func (e *CooldownError) Seconds() int {
	return int(math.Ceil(e.Remaining.Seconds()))
}

// RateLimitedError is returned when the rate limiter denied a resend.
type RateLimitedError struct {
	Message string
}

func (e *RateLimitedError) Error() string {
	return "rate limited: " + e.Message
}
