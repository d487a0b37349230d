// Package db is the SQLite implementation of the user store. It serves both
// the auth and the verification services.
package db

import (
	"context"
	"database/sql"

	"github.com/inkpost/inkpost/internal/auth"
	"github.com/inkpost/inkpost/internal/db"
)

// Store is responsible for interacting with a database.
type Store struct {
	readDB  *sql.DB
	writeDB *sql.DB
}

// New creates a new Store. Read only queries use readDB, everything else uses writeDB.
func New(readDB, writeDB *sql.DB) *Store {
	return &Store{
		readDB:  readDB,
		writeDB: writeDB,
	}
}

// BeginTx starts a new transaction.
func (s *Store) BeginTx(ctx context.Context) (auth.Tx, error) {
	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{
		tx: tx,
	}, nil
}

// FindUsers queries for users based on the provided filter.
// It returns an empty slice if no users are found.
func (s *Store) FindUsers(ctx context.Context, filter auth.UserFilter) ([]auth.User, error) {
	return selectUsers(&db.Query{}, queryCtx(ctx, s.readDB), filter)
}

func queryCtx(ctx context.Context, conn *sql.DB) queryFunc {
	return func(query string, params ...any) (*sql.Rows, error) {
		return conn.QueryContext(ctx, query, params...)
	}
}

func execCtx(ctx context.Context, conn *sql.DB) execFunc {
	return func(query string, params ...any) (sql.Result, error) {
		return conn.ExecContext(ctx, query, params...)
	}
}
