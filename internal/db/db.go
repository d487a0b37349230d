package db

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const (
	// We need to configure a few options to make sure SQLite works well with our app:
	// - WAL Mode so that reads and writes don't block eachother.
	// - A busy timeout, specifying the duration a connection will wait for a lock.
	// - Foreign keys are enforced.
	// The writeOptions also use immediate transactions to prevent locking issues.
	writeOptions = "?_foreign_keys=on&_journal_mode=wal&_busy_timeout=5000&_txlock=immediate"
	readOptions  = "?mode=ro&_foreign_keys=on&_journal_mode=wal&_busy_timeout=5000"
)

// OpenSQLite opens a pool of SQLite3 connections. Different settings
// are appropriate for reading and writing, so this function needs to know
// what the sql.DB will be used for.
//
// See this comment for more information:
// https://github.com/mattn/go-sqlite3/issues/1179#issuecomment-1638083995
func OpenSQLite(dbFile string, write bool) (*sql.DB, error) {
	optsPostfix := readOptions
	if write {
		optsPostfix = writeOptions
	}

	db, err := sql.Open("sqlite3", dbFile+optsPostfix)
	if err != nil {
		return nil, err
	}

	if write {
		// use only a single connection for writing.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)

		// don't close this connection, in-memory databases live as long as it does.
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	}

	return db, nil
}

// OpenReadWrite opens the two pools an app needs: a single connection
// for writing and a pool for reading.
func OpenReadWrite(dbFile string) (writeDB, readDB *sql.DB, err error) {
	writeDB, err = OpenSQLite(dbFile, true)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open write database: %w", err)
	}

	readDB, err = OpenSQLite(dbFile, false)
	if err != nil {
		return nil, nil, errors.Join(fmt.Errorf("failed to open read database: %w", err), writeDB.Close())
	}

	return writeDB, readDB, nil
}
