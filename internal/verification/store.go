package verification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/inkpost/inkpost/internal/krypto"
)

// Store persists verification state on user records. Every method is a
// single atomic statement.
type Store interface {
	// FindRecord returns errorz.ErrNotFound if no user exists.
	FindRecord(ctx context.Context, userID uuid.UUID) (Record, error)
	// FindRecordBySession returns errorz.ErrNotFound if no user is bound to the hash.
	FindRecordBySession(ctx context.Context, hash krypto.TokenHash) (Record, error)
	// SaveState overwrites all verification fields of the user.
	// It returns errorz.ErrNotFound if no user exists.
	SaveState(ctx context.Context, userID uuid.UUID, s State) error
	// ClearCode nulls the code hash and expiry, but only if the stored hash
	// still equals expected. It reports whether a row was changed.
	ClearCode(ctx context.Context, userID uuid.UUID, expected CodeHash) (bool, error)
	// MarkVerified sets the verification time and nulls all verification
	// fields, but only if the stored code hash still equals expected.
	// It reports whether a row was changed.
	MarkVerified(ctx context.Context, userID uuid.UUID, expected CodeHash, at time.Time) (bool, error)
	// ClearExpired nulls expired codes and sessions of unverified users.
	ClearExpired(ctx context.Context, now time.Time) (Cleanup, error)
}

// Cleanup reports how many codes and sessions were cleared.
type Cleanup struct {
	Codes    int64
	Sessions int64
}
