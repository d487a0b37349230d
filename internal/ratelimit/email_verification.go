package ratelimit

import (
	"context"
	"time"

	"github.com/inkpost/inkpost/internal/email"
)

// DeniedMessage is shown to users when the limiter denies a request.
const DeniedMessage = "Too many verification attempts. Please try again later."

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed bool
	// Message is set when the request was denied.
	Message string
}

// EmailVerificationConfig configures the EmailVerificationLimiter.
type EmailVerificationConfig struct {
	// Window is the length of the fixed window.
	Window time.Duration
	// MaxPerEmail is the number of codes that can be sent to an address per window.
	MaxPerEmail int64
	// MaxPerIP is the number of codes a single client IP can request per window.
	MaxPerIP int64
}

func DefaultEmailVerificationConfig() EmailVerificationConfig {
	return EmailVerificationConfig{
		Window:      15 * time.Minute,
		MaxPerEmail: 5,
		MaxPerIP:    20,
	}
}

// EmailVerificationLimiter limits how often verification codes are sent,
// both per email address and per client IP.
type EmailVerificationLimiter struct {
	counter Counter
	cfg     EmailVerificationConfig
}

func NewEmailVerificationLimiter(counter Counter, cfg EmailVerificationConfig) *EmailVerificationLimiter {
	return &EmailVerificationLimiter{
		counter: counter,
		cfg:     cfg,
	}
}

// CheckEmailVerification counts the request against both limits. An empty
// clientIP is only counted against the email address.
func (l *EmailVerificationLimiter) CheckEmailVerification(ctx context.Context, addr email.Address, clientIP string) (Decision, error) {
	n, err := l.counter.Incr(ctx, "ev:email:"+string(addr), l.cfg.Window)
	if err != nil {
		return Decision{}, err
	}

	if n > l.cfg.MaxPerEmail {
		return denied(), nil
	}

	if clientIP != "" {
		n, err = l.counter.Incr(ctx, "ev:ip:"+clientIP, l.cfg.Window)
		if err != nil {
			return Decision{}, err
		}

		if n > l.cfg.MaxPerIP {
			return denied(), nil
		}
	}

	return Decision{Allowed: true}, nil
}

func denied() Decision {
	return Decision{
		Allowed: false,
		Message: DeniedMessage,
	}
}
