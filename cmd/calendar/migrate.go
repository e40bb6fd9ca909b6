package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/example/calendar-service/internal/config"
	"github.com/example/calendar-service/internal/persistence/sqlite"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "manage the SQLite schema",
		Subcommands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply every pending migration",
				Action: func(c *cli.Context) error {
					return withSQLite(c, func(ctx context.Context, store *sqlite.Store) error {
						if err := store.Migrate(ctx); err != nil {
							return err
						}
						return printStatus(ctx, c.App.Writer, store)
					})
				},
			},
			{
				Name:      "steps",
				Usage:     "apply n migrations, or roll back when n is negative",
				ArgsUsage: "<n>",
				Action: func(c *cli.Context) error {
					n, err := strconv.Atoi(c.Args().First())
					if err != nil || n == 0 {
						return errors.New("steps requires a non-zero integer")
					}
					return withSQLite(c, func(ctx context.Context, store *sqlite.Store) error {
						if err := store.MigrateSteps(ctx, n); err != nil {
							return err
						}
						return printStatus(ctx, c.App.Writer, store)
					})
				},
			},
			{
				Name:  "status",
				Usage: "print the applied schema version",
				Action: func(c *cli.Context) error {
					return withSQLite(c, func(ctx context.Context, store *sqlite.Store) error {
						return printStatus(ctx, c.App.Writer, store)
					})
				},
			},
		},
	}
}

func withSQLite(c *cli.Context, fn func(ctx context.Context, store *sqlite.Store) error) error {
	cfg, logger, err := loadRuntime(c.App.ErrWriter)
	if err != nil {
		return err
	}
	if cfg.Storage != config.StorageSQLite {
		return fmt.Errorf("migrations apply to sqlite storage only, configured storage is %q", cfg.Storage)
	}

	store, err := sqlite.Open(c.Context, sqlite.DefaultConfig(cfg.SQLitePath))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()
	return fn(c.Context, store)
}

func printStatus(ctx context.Context, w io.Writer, store *sqlite.Store) error {
	status, err := store.MigrationStatus(ctx)
	if err != nil {
		return err
	}
	dirty := ""
	if status.Dirty {
		dirty = " (dirty)"
	}
	fmt.Fprintf(w, "schema version %d%s\n", status.Version, dirty)
	return nil
}
