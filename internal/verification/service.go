// Package verification manages the email verification lifecycle of users: issuing
// one-time codes, binding browsers to a pending verification through a session
// token, verifying submitted codes and throttling resends.
package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/inkpost/inkpost/internal/email"
	"github.com/inkpost/inkpost/internal/errorz"
	"github.com/inkpost/inkpost/internal/krypto"
	"github.com/inkpost/inkpost/internal/ratelimit"
	"golang.org/x/crypto/bcrypt"
)

// CodeEmailTemplate is the name of the email template used to send codes.
const CodeEmailTemplate = "email-verification-code"

// Emailer is used to send templated emails.
type Emailer interface {
	Send(ctx context.Context, template string, to email.Address, data any) error
}

// RateLimiter decides whether another code may be sent to an email address
// on behalf of a client.
type RateLimiter interface {
	CheckEmailVerification(ctx context.Context, addr email.Address, clientIP string) (ratelimit.Decision, error)
}

// Config configures the Service.
type Config struct {
	// CodeTTL is how long an issued code can be used.
	CodeTTL time.Duration
	// SessionTTL is how long the verification session binding is valid.
	SessionTTL time.Duration
	// ResendCooldown is the minimum duration between two sent codes.
	ResendCooldown time.Duration
	// CodeHashCost is the bcrypt cost used to hash codes.
	CodeHashCost int
}

// DefaultConfig returns the production configuration.
func DefaultConfig() Config {
	return Config{
		CodeTTL:        5 * time.Minute,
		SessionTTL:     30 * time.Minute,
		ResendCooldown: 60 * time.Second,
		CodeHashCost:   12,
	}
}

// Validate checks the configuration for invalid values.
func (c Config) Validate() error {
	var errs errorz.InvalidInput
	if c.CodeTTL <= 0 {
		errs.Add("CodeTTL", errors.New("must be positive"))
	}
	if c.SessionTTL <= 0 {
		errs.Add("SessionTTL", errors.New("must be positive"))
	}
	if c.ResendCooldown < 0 {
		errs.Add("ResendCooldown", errors.New("must not be negative"))
	}
	if c.CodeHashCost < bcrypt.MinCost || c.CodeHashCost > bcrypt.MaxCost {
		errs.Add("CodeHashCost", fmt.Errorf("must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}

	return errs.OrNil()
}

// CodeEmail is the data passed to the code email template.
type CodeEmail struct {
	Name             string
	Code             Code
	ExpiresInMinutes int
}

// Service implements the verification lifecycle on top of a Store.
type Service struct {
	store   Store
	emailer Emailer
	limiter RateLimiter
	logger  *slog.Logger
	cfg     Config

	// NowFunc is used to get the current time.
	// Exposed for testing purposes.
	NowFunc func() time.Time
}

func NewService(store Store, emailer Emailer, limiter RateLimiter, logger *slog.Logger, cfg Config) (*Service, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &Service{
		store:   store,
		emailer: emailer,
		limiter: limiter,
		logger:  logger,
		cfg:     cfg,
		NowFunc: time.Now,
	}, nil
}

// Config returns the configuration of the service.
func (s *Service) Config() Config {
	return s.cfg
}

// Issue creates a fresh code and session binding. If existing is not nil that
// session token is kept, otherwise a new one is generated. Nothing is persisted.
func (s *Service) Issue(existing *krypto.Token) (State, error) {
	code, err := GenerateCode()
	if err != nil {
		return State{}, err
	}

	codeHash, err := code.Hash(s.cfg.CodeHashCost)
	if err != nil {
		return State{}, err
	}

	var token krypto.Token
	if existing != nil {
		token = *existing
	} else {
		token, err = krypto.GenerateToken()
		if err != nil {
			return State{}, fmt.Errorf("failed to generate session token: %w", err)
		}
	}

	now := s.NowFunc()
	return State{
		Code:             code,
		CodeHash:         codeHash,
		ExpiresAt:        now.Add(s.cfg.CodeTTL),
		SessionToken:     token,
		SessionHash:      token.Hash(),
		SessionExpiresAt: now.Add(s.cfg.SessionTTL),
		LastSentAt:       now,
	}, nil
}

// Persist writes the state onto the user, replacing any earlier state.
func (s *Service) Persist(ctx context.Context, userID uuid.UUID, st State) error {
	err := s.store.SaveState(ctx, userID, st)
	if err != nil {
		return fmt.Errorf("failed to save verification state for user %s: %w", userID, err)
	}
	return nil
}

// SendCode emails the code of the state to the user.
func (s *Service) SendCode(ctx context.Context, rec Record, st State) error {
	name := rec.Name
	if name == "" {
		name = rec.Email.LocalPart()
	}

	err := s.emailer.Send(ctx, CodeEmailTemplate, rec.Email, CodeEmail{
		Name:             name,
		Code:             st.Code,
		ExpiresInMinutes: int(math.Round(s.cfg.CodeTTL.Minutes())),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEmailDispatch, err)
	}

	s.logger.Info("verification code sent", "user", rec.UserID, "email", rec.Email.Masked(), "state", st)
	return nil
}

// Resolve determines who is verifying. A logged in user (userID not uuid.Nil)
// takes precedence over the verification session token from a cookie.
func (s *Service) Resolve(ctx context.Context, userID uuid.UUID, token *krypto.Token) (Actor, error) {
	now := s.NowFunc()

	if userID != uuid.Nil {
		rec, err := s.store.FindRecord(ctx, userID)
		switch {
		case err == nil:
			a := AuthenticatedUser{Record: rec}
			if token != nil && sessionValid(rec, *token, now) {
				tok := *token
				a.SessionToken = &tok
			}
			return a, nil
		case errors.Is(err, errorz.ErrNotFound):
			// stale login session, try the cookie.
		default:
			return nil, fmt.Errorf("failed to find user %s: %w", userID, err)
		}
	}

	if token == nil {
		return Unresolved{}, nil
	}

	rec, err := s.store.FindRecordBySession(ctx, token.Hash())
	if errors.Is(err, errorz.ErrNotFound) {
		return Unresolved{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by verification session: %w", err)
	}

	if !sessionValid(rec, *token, now) {
		return Unresolved{}, nil
	}

	return SessionUser{Record: rec, Token: *token}, nil
}

func sessionValid(rec Record, token krypto.Token, now time.Time) bool {
	if rec.SessionHash == nil || rec.SessionExpiresAt == nil {
		return false
	}
	return rec.SessionHash.Match(token) && now.Before(*rec.SessionExpiresAt)
}

// Verify checks the submitted code for the actor and marks the email address as
// verified when it matches.
func (s *Service) Verify(ctx context.Context, a Actor, rawCode string) error {
	code, err := ParseCode(rawCode)
	if err != nil {
		return err
	}

	rec, ok := RecordOf(a)
	if !ok {
		return ErrNoSession
	}

	if rec.IsVerified() {
		return ErrAlreadyVerified
	}

	if !rec.HasActiveCode() {
		return ErrNoActiveCode
	}

	now := s.NowFunc()
	codeHash := *rec.CodeHash

	if !now.Before(*rec.CodeExpiresAt) {
		_, err = s.store.ClearCode(ctx, rec.UserID, codeHash)
		if err != nil {
			return fmt.Errorf("failed to clear expired code for user %s: %w", rec.UserID, err)
		}

		s.logFailure(rec, "verification code expired")
		return ErrCodeExpired
	}

	if !code.Match(codeHash) {
		s.logFailure(rec, "invalid verification code")
		return ErrCodeInvalid
	}

	changed, err := s.store.MarkVerified(ctx, rec.UserID, codeHash, now)
	if err != nil {
		return fmt.Errorf("failed to mark user %s as verified: %w", rec.UserID, err)
	}

	// Another request replaced or consumed the code in the meantime.
	if !changed {
		return ErrNoActiveCode
	}

	s.logger.Info("email verified", "user", rec.UserID, "email", rec.Email.Masked())
	return nil
}

// Resend issues and sends a new code to the actor, subject to the resend cooldown
// and the rate limiter.
//
// When the email could not be sent the new state is still persisted, in that case
// both the Issued value and an error wrapping ErrEmailDispatch are returned.
func (s *Service) Resend(ctx context.Context, a Actor, clientIP string) (Issued, error) {
	rec, ok := RecordOf(a)
	if !ok {
		return Issued{}, ErrNoSession
	}

	if rec.IsVerified() {
		return Issued{}, ErrAlreadyVerified
	}

	now := s.NowFunc()
	if rec.LastSentAt != nil {
		elapsed := now.Sub(*rec.LastSentAt)
		if elapsed < s.cfg.ResendCooldown {
			return Issued{}, &CooldownError{Remaining: s.cfg.ResendCooldown - elapsed}
		}
	}

	decision, err := s.limiter.CheckEmailVerification(ctx, rec.Email, clientIP)
	if err != nil {
		return Issued{}, fmt.Errorf("failed to check rate limit: %w", err)
	}

	if !decision.Allowed {
		s.logFailure(rec, "verification resend rate limited")
		return Issued{}, &RateLimitedError{Message: decision.Message}
	}

	st, err := s.Issue(sessionTokenOf(a))
	if err != nil {
		return Issued{}, err
	}

	err = s.Persist(ctx, rec.UserID, st)
	if err != nil {
		return Issued{}, err
	}

	issued := Issued{
		SessionToken:     st.SessionToken,
		SessionExpiresAt: st.SessionExpiresAt,
	}

	err = s.SendCode(ctx, rec, st)
	if err != nil {
		s.logger.Error("failed to resend verification code", "user", rec.UserID, "email", rec.Email.Masked(), "error", err)
		return issued, err
	}

	return issued, nil
}

// CleanupExpired removes expired codes and sessions of unverified users.
func (s *Service) CleanupExpired(ctx context.Context) (Cleanup, error) {
	c, err := s.store.ClearExpired(ctx, s.NowFunc())
	if err != nil {
		return Cleanup{}, fmt.Errorf("failed to clear expired verification state: %w", err)
	}

	if c.Codes > 0 || c.Sessions > 0 {
		s.logger.Info("cleared expired verification state", "codes", c.Codes, "sessions", c.Sessions)
	}

	return c, nil
}

func (s *Service) logFailure(rec Record, reason string) {
	s.logger.Warn("email verification failed", "user", rec.UserID, "email", rec.Email.Masked(), "reason", reason)
}
