package errorz

import (
	"database/sql"
	"errors"

	"github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConstraintViolated = errors.New("constraint violated")
	// ErrBusy is returned when sqlite could not get a lock within the busy timeout.
	ErrBusy = errors.New("database is busy")
)

// MapDBErr maps database errors to appropriate errorz errors.
// If err is nil, MapDBErr returns nil.
func MapDBErr(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var sErr sqlite3.Error
	if !errors.As(err, &sErr) {
		return err
	}

	switch sErr.Code {
	case sqlite3.ErrConstraint:
		return errors.Join(ErrConstraintViolated, err)
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return errors.Join(ErrBusy, err)
	default:
		return err
	}
}
