package verification

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/inkpost/inkpost/internal/email"
	"github.com/inkpost/inkpost/internal/krypto"
)

// State is a freshly issued code and session binding. It holds the raw
// code and token, which are only used to send the email and set the cookie.
type State struct {
	Code             Code
	CodeHash         CodeHash
	ExpiresAt        time.Time
	SessionToken     krypto.Token
	SessionHash      krypto.TokenHash
	SessionExpiresAt time.Time
	LastSentAt       time.Time
}

// LogValue only exposes the timestamps of the state.
func (s State) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Time("expiresAt", s.ExpiresAt),
		slog.Time("sessionExpiresAt", s.SessionExpiresAt),
		slog.Time("lastSentAt", s.LastSentAt),
	)
}

// Record is the verification related part of a user as it is persisted.
// Nil fields are absent.
type Record struct {
	UserID           uuid.UUID
	Email            email.Address
	Name             string
	VerifiedAt       *time.Time
	CodeHash         *CodeHash
	CodeExpiresAt    *time.Time
	SessionHash      *krypto.TokenHash
	SessionExpiresAt *time.Time
	LastSentAt       *time.Time
}

// IsVerified reports whether the email address of the user was verified.
func (r Record) IsVerified() bool {
	return r.VerifiedAt != nil
}

// HasActiveCode reports whether a code hash and its expiry are present.
func (r Record) HasActiveCode() bool {
	return r.CodeHash != nil && r.CodeExpiresAt != nil
}

// Issued is what a client needs to keep its session binding.
type Issued struct {
	SessionToken     krypto.Token
	SessionExpiresAt time.Time
}
