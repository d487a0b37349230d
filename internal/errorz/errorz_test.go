package errorz_test

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/inkpost/inkpost/internal/errorz"
	"github.com/mattn/go-sqlite3"
)

func Test_MapDBErr(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	// every connection to :memory: is a new database.
	db.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = db.Close()
	})

	_, err = db.Exec(`CREATE TABLE things (name TEXT NOT NULL UNIQUE)`)
	if err != nil {
		t.Fatalf("failed to create table: %v", err)
	}

	_, err = db.Exec(`INSERT INTO things (name) VALUES ('a')`)
	if err != nil {
		t.Fatalf("failed to insert row: %v", err)
	}

	t.Run("ok, nil stays nil", func(t *testing.T) {
		if err := errorz.MapDBErr(nil); err != nil {
			t.Fatalf("expected <nil>, got %v", err)
		}
	})

	t.Run("ok, no rows is not found", func(t *testing.T) {
		var name string
		err := db.QueryRow(`SELECT name FROM things WHERE name = 'b'`).Scan(&name)

		err = errorz.MapDBErr(err)
		if !errors.Is(err, errorz.ErrNotFound) {
			t.Fatalf("expected %v, got %v (via errors.Is)", errorz.ErrNotFound, err)
		}
	})

	t.Run("ok, unique constraint keeps the driver error", func(t *testing.T) {
		_, err := db.Exec(`INSERT INTO things (name) VALUES ('a')`)

		err = errorz.MapDBErr(err)
		if !errors.Is(err, errorz.ErrConstraintViolated) {
			t.Fatalf("expected %v, got %v (via errors.Is)", errorz.ErrConstraintViolated, err)
		}

		var sErr sqlite3.Error
		if !errors.As(err, &sErr) || sErr.ExtendedCode != sqlite3.ErrConstraintUnique {
			t.Fatalf("expected unique constraint error to be wrapped, got %v", err)
		}
	})

	t.Run("ok, other errors pass through", func(t *testing.T) {
		orig := errors.New("boom")
		if err := errorz.MapDBErr(orig); err != orig {
			t.Fatalf("got %v, want %v", err, orig)
		}
	})
}

func Test_InvalidInput(t *testing.T) {
	t.Run("ok, empty is nil", func(t *testing.T) {
		var errs errorz.InvalidInput
		if err := errs.OrNil(); err != nil {
			t.Fatalf("expected <nil>, got %v", err)
		}
	})

	t.Run("ok, keyed messages", func(t *testing.T) {
		errA := errors.New("a is wrong")

		var errs errorz.InvalidInput
		errs.Add("A", errA)
		errs.Add("B", errors.New("b is wrong"))
		errs.Add("B", errors.New("b is still wrong"))
		errs = append(errs, errors.New("not keyed"))

		err := errs.OrNil()
		if !errors.Is(err, errA) {
			t.Fatalf("expected %v, got %v (via errors.Is)", errA, err)
		}

		got := errs.ByKey()
		want := map[string]string{
			"A": "a is wrong",
			"B": "b is still wrong",
		}

		if len(got) != len(want) {
			t.Fatalf("got %v, want %v", got, want)
		}

		for k, v := range want {
			if got[k] != v {
				t.Errorf("key %s: got %q, want %q", k, got[k], v)
			}
		}
	})
}
