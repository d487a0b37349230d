package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/inkpost/inkpost/internal/db"
	"github.com/inkpost/inkpost/internal/errorz"
	"github.com/inkpost/inkpost/internal/krypto"
	"github.com/inkpost/inkpost/internal/verification"
)

const recordColumns = `id, email, name, email_verified_at,
	email_verification_code_hash, email_verification_code_expires_at,
	email_verification_session_hash, email_verification_session_expires_at,
	email_verification_last_sent_at`

// FindRecord returns the verification record of a user.
// It returns errorz.ErrNotFound if no user is found.
func (s *Store) FindRecord(ctx context.Context, userID uuid.UUID) (verification.Record, error) {
	q := &db.Query{}
	q.Unsafe(`SELECT ` + recordColumns + ` FROM users WHERE id = `)
	q.Param(userID)

	return selectRecord(q, queryCtx(ctx, s.readDB))
}

// FindRecordBySession returns the verification record of the user the session
// hash is bound to. It returns errorz.ErrNotFound if no user is found.
func (s *Store) FindRecordBySession(ctx context.Context, hash krypto.TokenHash) (verification.Record, error) {
	q := &db.Query{}
	q.Unsafe(`SELECT ` + recordColumns + ` FROM users WHERE email_verification_session_hash = `)
	q.Param(hash)

	return selectRecord(q, queryCtx(ctx, s.readDB))
}

// SaveState overwrites the verification state of the user.
func (s *Store) SaveState(ctx context.Context, userID uuid.UUID, st verification.State) error {
	return updateVerificationState(&db.Query{}, execCtx(ctx, s.writeDB), userID, st)
}

// ClearCode removes the code of the user if it still has the expected hash.
func (s *Store) ClearCode(ctx context.Context, userID uuid.UUID, expected verification.CodeHash) (bool, error) {
	q := &db.Query{}
	q.Unsafe(`UPDATE users SET `)
	q.Unsafe(`email_verification_code_hash = NULL, email_verification_code_expires_at = NULL`)
	q.Unsafe(` WHERE id = `)
	q.Param(userID)
	q.Unsafe(` AND email_verification_code_hash = `)
	q.Param(expected)

	return execChanged(q, execCtx(ctx, s.writeDB))
}

// MarkVerified marks the email of the user as verified and removes all verification
// state, if the code of the user still has the expected hash.
func (s *Store) MarkVerified(ctx context.Context, userID uuid.UUID, expected verification.CodeHash, at time.Time) (bool, error) {
	q := &db.Query{}
	q.Unsafe(`UPDATE users SET `)
	q.Set(true, "email_verified_at", at.UTC())
	q.Set(false, "updated_at", at.UTC())
	q.Unsafe(`, email_verification_code_hash = NULL`)
	q.Unsafe(`, email_verification_code_expires_at = NULL`)
	q.Unsafe(`, email_verification_session_hash = NULL`)
	q.Unsafe(`, email_verification_session_expires_at = NULL`)
	q.Unsafe(`, email_verification_last_sent_at = NULL`)
	q.Unsafe(` WHERE id = `)
	q.Param(userID)
	q.Unsafe(` AND email_verified_at IS NULL AND email_verification_code_hash = `)
	q.Param(expected)

	return execChanged(q, execCtx(ctx, s.writeDB))
}

// ClearExpired removes codes and sessions of unverified users that expired at or before now.
func (s *Store) ClearExpired(ctx context.Context, now time.Time) (out verification.Cleanup, err error) {
	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return verification.Cleanup{}, err
	}

	defer func() {
		if err != nil {
			rBackErr := tx.Rollback()
			if rBackErr != nil {
				err = errors.Join(err, rBackErr)
			}
		}
	}()

	clearColumns := func(hashCol, expiresCol string) (int64, error) {
		q := &db.Query{}
		q.Unsafe(fmt.Sprintf(`UPDATE users SET %s = NULL, %s = NULL WHERE email_verified_at IS NULL AND %s <= `, hashCol, expiresCol, expiresCol))
		q.Param(now.UTC())

		stmt, params := q.Get()
		result, err := tx.ExecContext(ctx, stmt, params...)
		if err != nil {
			return 0, errorz.MapDBErr(err)
		}

		return result.RowsAffected()
	}

	out.Codes, err = clearColumns("email_verification_code_hash", "email_verification_code_expires_at")
	if err != nil {
		return verification.Cleanup{}, err
	}

	out.Sessions, err = clearColumns("email_verification_session_hash", "email_verification_session_expires_at")
	if err != nil {
		return verification.Cleanup{}, err
	}

	err = tx.Commit()
	if err != nil {
		return verification.Cleanup{}, err
	}

	return out, nil
}

func updateVerificationState(q *db.Query, ef execFunc, userID uuid.UUID, st verification.State) error {
	q.Unsafe(`UPDATE users SET `)
	q.Set(true, "email_verification_code_hash", st.CodeHash)
	q.Set(false, "email_verification_code_expires_at", st.ExpiresAt.UTC())
	q.Set(false, "email_verification_session_hash", st.SessionHash)
	q.Set(false, "email_verification_session_expires_at", st.SessionExpiresAt.UTC())
	q.Set(false, "email_verification_last_sent_at", st.LastSentAt.UTC())
	q.Set(false, "updated_at", st.LastSentAt.UTC())
	q.Unsafe(` WHERE id = `)
	q.Param(userID)

	s, params := q.Get()
	return execOne(ef, s, params, "user")
}

func selectRecord(q *db.Query, qf queryFunc) (verification.Record, error) {
	s, params := q.Get()
	rows, err := qf(s, params...)
	if err != nil {
		return verification.Record{}, errorz.MapDBErr(err)
	}

	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return verification.Record{}, errorz.MapDBErr(err)
		}
		return verification.Record{}, fmt.Errorf("user not found: %w", errorz.ErrNotFound)
	}

	var r verification.Record
	err = rows.Scan(
		&r.UserID, &r.Email, &r.Name, &r.VerifiedAt,
		&r.CodeHash, &r.CodeExpiresAt,
		&r.SessionHash, &r.SessionExpiresAt,
		&r.LastSentAt,
	)
	if err != nil {
		return verification.Record{}, errorz.MapDBErr(err)
	}

	return r, nil
}

func execChanged(q *db.Query, ef execFunc) (bool, error) {
	s, params := q.Get()
	result, err := ef(s, params...)
	if err != nil {
		return false, errorz.MapDBErr(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, errorz.MapDBErr(err)
	}

	return rows > 0, nil
}
