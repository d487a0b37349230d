package db

import (
	"database/sql"

	"github.com/google/uuid"
	"github.com/inkpost/inkpost/internal/auth"
	"github.com/inkpost/inkpost/internal/db"
	"github.com/inkpost/inkpost/internal/verification"
)

type Tx struct {
	tx *sql.Tx
}

func (t *Tx) Commit() error {
	return t.tx.Commit()
}

func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

// CreateUser creates a user in the database.
// The ID of the user needs to be set by the caller.
func (t *Tx) CreateUser(u auth.User) error {
	return insertUser(&db.Query{}, t.tx.Exec, u)
}

// UpdateUser updates a user in the database.
// It returns errorz.ErrNotFound if no user is found.
// Verification state is not touched, use SaveVerificationState for that.
func (t *Tx) UpdateUser(u auth.User) error {
	return updateUser(&db.Query{}, t.tx.Exec, u)
}

// FindUsers queries for users based on the provided filter.
// It returns an empty slice if no users are found.
func (t *Tx) FindUsers(filter auth.UserFilter) ([]auth.User, error) {
	return selectUsers(&db.Query{}, t.tx.Query, filter)
}

// SaveVerificationState overwrites the verification state of the user.
// It returns errorz.ErrNotFound if no user is found.
func (t *Tx) SaveVerificationState(userID uuid.UUID, s verification.State) error {
	return updateVerificationState(&db.Query{}, t.tx.Exec, userID, s)
}

// CreateEmailToken creates an email token in the database.
// The ID of the token needs to be set by the caller.
func (t *Tx) CreateEmailToken(tok auth.EmailToken) error {
	return insertEmailToken(&db.Query{}, t.tx.Exec, tok)
}

// UpdateEmailToken updates an email token in the database.
// It returns errorz.ErrNotFound if no email token is found.
func (t *Tx) UpdateEmailToken(tok auth.EmailToken) error {
	return updateEmailToken(&db.Query{}, t.tx.Exec, tok)
}

// FindEmailTokens queries for email tokens based on the provided filter.
func (t *Tx) FindEmailTokens(filter auth.EmailTokenFilter) ([]auth.EmailToken, error) {
	return selectEmailTokens(&db.Query{}, t.tx.Query, filter)
}
