package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/inkpost/inkpost/internal/email"
	"github.com/inkpost/inkpost/internal/krypto"
)

// EmailToken contains the state of a random token that is sent via email.
// Such tokens should be only used once and have a limited lifetime.
type EmailToken struct {
	ID uuid.UUID
	// TokenHash is the hash of the token. We hash the token to prevent someone with
	// access to the database from mis-using the tokens.
	TokenHash  krypto.TokenHash
	UserID     uuid.UUID
	Email      email.Address
	Purpose    EmailTokenPurpose
	CreatedAt  time.Time
	ConsumedAt *time.Time
}

// EmailTokenPurpose represents the purpose of an email token.
type EmailTokenPurpose string

const (
	// EmailTokenPurposePasswordReset indicates an email token is for resetting a password.
	EmailTokenPurposePasswordReset EmailTokenPurpose = "password-reset"
)

// PasswordResetRequest identifies an email token, it is embedded in the
// password reset link.
type PasswordResetRequest struct {
	ID    uuid.UUID
	Token krypto.Token
}

// NewPassword is a request to replace the password of the user that
// received the identified email token.
type NewPassword struct {
	ID       uuid.UUID
	Token    krypto.Token
	Password Password
}
