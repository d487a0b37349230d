package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/inkpost/inkpost/internal/auth"
	"github.com/inkpost/inkpost/internal/db"
	"github.com/inkpost/inkpost/internal/errorz"
)

type execFunc func(query string, params ...any) (sql.Result, error)
type queryFunc func(query string, params ...any) (*sql.Rows, error)

const userColumns = `id, email, name, password_hash, email_verified_at, created_at, updated_at`

func insertUser(q *db.Query, ef execFunc, u auth.User) error {
	if u.ID == uuid.Nil {
		return fmt.Errorf("zero uuid provided: %w", errorz.ErrConstraintViolated)
	}

	q.Unsafe(`INSERT INTO users (` + userColumns + `) VALUES (`)
	q.Params(u.ID, u.Email, u.Name, u.PasswordHash.String(), utcPtr(u.EmailVerifiedAt), u.CreatedAt.UTC(), u.UpdatedAt.UTC())
	q.Unsafe(`)`)

	s, params := q.Get()
	_, err := ef(s, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	return nil
}

func updateUser(q *db.Query, ef execFunc, u auth.User) error {
	q.Unsafe(`UPDATE users SET `)
	q.Set(true, "email", u.Email)
	q.Set(false, "name", u.Name)
	q.Set(false, "password_hash", u.PasswordHash.String())
	q.Set(false, "email_verified_at", utcPtr(u.EmailVerifiedAt))
	q.Set(false, "created_at", u.CreatedAt.UTC())
	q.Set(false, "updated_at", u.UpdatedAt.UTC())
	q.Unsafe(` WHERE id = `)
	q.Param(u.ID)

	s, params := q.Get()
	return execOne(ef, s, params, "user")
}

func selectUsers(q *db.Query, qf queryFunc, f auth.UserFilter) ([]auth.User, error) {
	q.Unsafe(`SELECT ` + userColumns + ` FROM users WHERE 1=1 `)

	if len(f.IDs) > 0 {
		q.Unsafe(`AND id IN (`)
		q.Params(db.AnySlice(f.IDs)...)
		q.Unsafe(`) `)
	}

	if len(f.Emails) > 0 {
		q.Unsafe(`AND email IN (`)
		q.Params(db.AnySlice(f.Emails)...)
		q.Unsafe(`) `)
	}

	if f.IsVerified != nil {
		q.Unsafe(`AND email_verified_at IS `)
		if *f.IsVerified {
			q.Unsafe(`NOT `)
		}
		q.Unsafe(`NULL `)
	}

	q.Unsafe(`ORDER BY created_at ASC, id ASC`)

	s, params := q.Get()
	rows, err := qf(s, params...)
	if err != nil {
		return nil, errorz.MapDBErr(err)
	}

	defer rows.Close()

	out := make([]auth.User, 0)
	for rows.Next() {
		var u auth.User
		err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.EmailVerifiedAt, &u.CreatedAt, &u.UpdatedAt)
		if err != nil {
			return nil, errorz.MapDBErr(err)
		}

		out = append(out, u)
	}

	if err := rows.Err(); err != nil {
		return nil, errorz.MapDBErr(err)
	}

	return out, nil
}

func insertEmailToken(q *db.Query, ef execFunc, tok auth.EmailToken) error {
	if tok.ID == uuid.Nil {
		return fmt.Errorf("zero uuid provided: %w", errorz.ErrConstraintViolated)
	}

	q.Unsafe(`INSERT INTO email_tokens (id, token_hash, user_id, email, purpose, created_at, consumed_at) VALUES (`)
	q.Params(tok.ID, tok.TokenHash, tok.UserID, tok.Email, tok.Purpose, tok.CreatedAt.UTC(), utcPtr(tok.ConsumedAt))
	q.Unsafe(`)`)

	s, params := q.Get()
	_, err := ef(s, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	return nil
}

func updateEmailToken(q *db.Query, ef execFunc, tok auth.EmailToken) error {
	q.Unsafe(`UPDATE email_tokens SET `)
	q.Set(true, "token_hash", tok.TokenHash)
	q.Set(false, "user_id", tok.UserID)
	q.Set(false, "email", tok.Email)
	q.Set(false, "purpose", tok.Purpose)
	q.Set(false, "created_at", tok.CreatedAt.UTC())
	q.Set(false, "consumed_at", utcPtr(tok.ConsumedAt))
	q.Unsafe(` WHERE id = `)
	q.Param(tok.ID)

	s, params := q.Get()
	return execOne(ef, s, params, "email token")
}

func selectEmailTokens(q *db.Query, qf queryFunc, f auth.EmailTokenFilter) ([]auth.EmailToken, error) {
	q.Unsafe(`SELECT id, token_hash, user_id, email, purpose, created_at, consumed_at FROM email_tokens WHERE 1=1 `)

	if len(f.IDs) > 0 {
		q.Unsafe(`AND id IN (`)
		q.Params(db.AnySlice(f.IDs)...)
		q.Unsafe(`) `)
	}

	if len(f.UserIDs) > 0 {
		q.Unsafe(`AND user_id IN (`)
		q.Params(db.AnySlice(f.UserIDs)...)
		q.Unsafe(`) `)
	}

	if len(f.Purposes) > 0 {
		q.Unsafe(`AND purpose IN (`)
		q.Params(db.AnySlice(f.Purposes)...)
		q.Unsafe(`) `)
	}

	if f.IsConsumed != nil {
		q.Unsafe(`AND consumed_at IS `)
		if *f.IsConsumed {
			q.Unsafe(`NOT `)
		}
		q.Unsafe(`NULL `)
	}

	q.Unsafe(`ORDER BY created_at ASC, id ASC`)

	s, params := q.Get()
	rows, err := qf(s, params...)
	if err != nil {
		return nil, errorz.MapDBErr(err)
	}

	defer rows.Close()

	out := make([]auth.EmailToken, 0)
	for rows.Next() {
		var tok auth.EmailToken
		err := rows.Scan(&tok.ID, &tok.TokenHash, &tok.UserID, &tok.Email, &tok.Purpose, &tok.CreatedAt, &tok.ConsumedAt)
		if err != nil {
			return nil, errorz.MapDBErr(err)
		}

		out = append(out, tok)
	}

	if err := rows.Err(); err != nil {
		return nil, errorz.MapDBErr(err)
	}

	return out, nil
}

// execOne runs a statement that is expected to change exactly one row.
func execOne(ef execFunc, s string, params []any, what string) error {
	result, err := ef(s, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errorz.MapDBErr(err)
	}

	if rows == 0 {
		return fmt.Errorf("%s not found: %w", what, errorz.ErrNotFound)
	}

	return nil
}

// SQLite compares timestamps as text, so all of them are stored in UTC.
func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
