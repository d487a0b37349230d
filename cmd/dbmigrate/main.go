package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/inkpost/inkpost/internal"
	"github.com/inkpost/inkpost/internal/db"
	"github.com/inkpost/inkpost/internal/migrate"
	"github.com/inkpost/inkpost/migrations"
)

const helpText = `Usage: dbmigrate [-status] sqlite_file`

func main() {
	status := flag.Bool("status", false, "list pending migrations without running them")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, helpText)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	sqlDB, err := db.OpenSQLite(flag.Arg(0), true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*60)
	defer cancel()

	if *status {
		pending, err := migrate.Pending(ctx, sqlDB, migrations.FS)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to check migrations: %v\n", err)
			os.Exit(1)
		}

		for _, name := range pending {
			fmt.Printf("pending: %s\n", name)
		}

		return
	}

	meta := migrate.Metadata{
		AppVersion: internal.BuildRevision,
		Timestamp:  internal.BuildRevisionTime,
	}

	// binaries built outside of version control have no revision time.
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}

	ran, err := migrate.RunFS(ctx, sqlDB, migrations.FS, meta)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		os.Exit(1)
	}

	for _, m := range ran {
		fmt.Printf("%d: %s\n", m.Sequence, m.Filename)
	}
}
