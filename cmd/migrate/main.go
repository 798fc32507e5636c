package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"

	"github.com/pressly/goose/v3"
	"github.com/waqasmani/attendance-scheduler/internal/config"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/database"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/migrations"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/observability"
	"go.uber.org/zap"
)

type command struct {
	usage string
	run   func(ctx context.Context, db *sql.DB, args []string) error
}

var commands = map[string]command{
	"up":        {"Apply all embedded migrations", func(ctx context.Context, db *sql.DB, _ []string) error { return goose.UpContext(ctx, db, migrations.Dir) }},
	"up-by-one": {"Apply one migration", func(ctx context.Context, db *sql.DB, _ []string) error { return goose.UpByOneContext(ctx, db, migrations.Dir) }},
	"down":      {"Roll back the last migration", func(ctx context.Context, db *sql.DB, _ []string) error { return goose.DownContext(ctx, db, migrations.Dir) }},
	"redo":      {"Reapply the last migration", func(ctx context.Context, db *sql.DB, _ []string) error { return goose.RedoContext(ctx, db, migrations.Dir) }},
	"reset":     {"Roll back all migrations", func(ctx context.Context, db *sql.DB, _ []string) error { return goose.ResetContext(ctx, db, migrations.Dir) }},
	"status":    {"Show migration status", func(ctx context.Context, db *sql.DB, _ []string) error { return goose.StatusContext(ctx, db, migrations.Dir) }},
	"version":   {"Show applied version", func(ctx context.Context, db *sql.DB, _ []string) error { return goose.VersionContext(ctx, db, migrations.Dir) }},
	"down-to": {"<version>  Roll back to a specific version", func(ctx context.Context, db *sql.DB, args []string) error {
		if len(args) < 1 {
			return fmt.Errorf("down-to requires a version number")
		}
		v, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		return goose.DownToContext(ctx, db, migrations.Dir, v)
	}},
}

func main() {
	flags := flag.NewFlagSet("migrate", flag.ExitOnError)
	dir := flags.String("dir", "./internal/infrastructure/migrations/sql", "directory new migration files are created in")
	flags.Usage = func() {
		out := flags.Output()
		fmt.Fprintf(out, "Usage: %s [flags] command [arguments]\n\nCommands:\n", os.Args[0])
		fmt.Fprintf(out, "  %-10s %s\n", "create", "<name> [sql|go]  Create a new migration file in -dir")
		for _, name := range slices.Sorted(maps.Keys(commands)) {
			fmt.Fprintf(out, "  %-10s %s\n", name, commands[name].usage)
		}
		fmt.Fprintln(out)
		flags.PrintDefaults()
	}
	_ = flags.Parse(os.Args[1:])

	args := flags.Args()
	if len(args) == 0 {
		flags.Usage()
		os.Exit(2)
	}
	if err := run(args[0], args[1:], *dir); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func run(name string, args []string, dir string) error {
	if name == "create" {
		return create(args, dir)
	}
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Encoding)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	db, err := database.NewMariaDB(ctx, &cfg.Database, observability.NewMetrics(), logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrations.Configure(); err != nil {
		return err
	}
	if err := cmd.run(ctx, db.DB, args); err != nil {
		logger.Error(ctx, "Migration failed", zap.String("command", name), zap.Error(err))
		return err
	}
	logger.Info(ctx, "Migration command finished", zap.String("command", name))
	return nil
}

func create(args []string, dir string) error {
	if len(args) < 1 {
		return fmt.Errorf("create requires a migration name")
	}
	kind := "sql"
	if len(args) > 1 {
		kind = args[1]
	}
	if kind != "sql" && kind != "go" {
		return fmt.Errorf("invalid migration type %q, must be sql or go", kind)
	}

	// New files go to the source tree, not the embedded copy.
	goose.SetBaseFS(nil)
	return goose.Create(nil, dir, args[0], kind)
}
