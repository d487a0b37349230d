package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/inkpost/inkpost/internal/email"
	"github.com/inkpost/inkpost/internal/verification"
)

// UserFilter is used filter users.
// Returned users must match all the provided fields.
// If a field is empty or nil, it's ignored.
type UserFilter struct {
	IDs        []uuid.UUID
	Emails     []email.Address
	IsVerified *bool
}

// EmailTokenFilter is used to filter email tokens.
// Returned tokens must match all the provided fields.
// If a field is empty or nil, it's ignored.
type EmailTokenFilter struct {
	IDs        []uuid.UUID
	UserIDs    []uuid.UUID
	Purposes   []EmailTokenPurpose
	IsConsumed *bool
}

// Store provides access to the user store.
type Store interface {
	BeginTx(ctx context.Context) (Tx, error)
	FindUsers(ctx context.Context, filter UserFilter) ([]User, error)
}

// Tx is a transaction. If an error occurs on any of the Create/Update/Find methods,
// the transaction is considered to have failed and should be rolled back.
// Tx is not safe for concurrent use.
type Tx interface {
	Commit() error
	Rollback() error

	CreateUser(u User) error
	UpdateUser(u User) error
	FindUsers(filter UserFilter) ([]User, error)
	SaveVerificationState(userID uuid.UUID, s verification.State) error

	CreateEmailToken(t EmailToken) error
	UpdateEmailToken(t EmailToken) error
	FindEmailTokens(filter EmailTokenFilter) ([]EmailToken, error)
}
