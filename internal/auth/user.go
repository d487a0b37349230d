package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/inkpost/inkpost/internal/email"
	"github.com/inkpost/inkpost/internal/krypto"
)

// User contains the data for a user.
type User struct {
	ID              uuid.UUID
	Email           email.Address
	Name            string
	PasswordHash    krypto.Argon2Hash
	EmailVerifiedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsVerified reports whether the user verified their email address.
func (u User) IsVerified() bool {
	return u.EmailVerifiedAt != nil
}

// Credentials are used to log in.
type Credentials struct {
	Email    email.Address
	Password Password
}

// NewUser is the input for registering a user.
type NewUser struct {
	Credentials
	// Name is optional, the local part of the email address is used when empty.
	Name string
}
