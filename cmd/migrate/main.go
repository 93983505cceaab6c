package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/angelmondragon/maskball-tickets/pkg/config"
	"github.com/angelmondragon/maskball-tickets/pkg/db"
	"github.com/angelmondragon/maskball-tickets/pkg/logger"
	"github.com/angelmondragon/maskball-tickets/pkg/migrate"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("migrate", flag.ContinueOnError)
	flags.SetOutput(stderr)
	cmd := flags.StringP("cmd", "c", "up", "up|down|status|version|create|validate")
	dir := flags.String("dir", migrate.DefaultDir, "authoring directory for create and validate")
	name := flags.String("name", "", "migration name (create)")
	version := flags.String("version", "", "target version YYYYMMDDHHMMSS (version)")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	// create and validate work on files only
	switch *cmd {
	case "create":
		if *name == "" {
			fmt.Fprintln(stderr, "missing --name for create")
			return 2
		}
		path, err := migrate.CreateSQLMigration(*dir, *name, time.Now())
		if err != nil {
			fmt.Fprintf(stderr, "create migration: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, "created migration:", path)
		return 0
	case "validate":
		if err := migrate.ValidateDir(*dir); err != nil {
			fmt.Fprintf(stderr, "migration validation failed: %v\n", err)
			return 1
		}
		if err := migrate.ValidateFS(migrate.Source()); err != nil {
			fmt.Fprintf(stderr, "embedded migration validation failed: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, "migration validation passed")
		return 0
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
		Output:      stderr,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": *cmd})

	if cfg.FeatureFlags.UseSQLite {
		fmt.Fprintln(stderr, "goose migrations target Postgres; sqlite schemas come from MASKBALL_AUTO_MIGRATE")
		return 1
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "database unavailable", err)
		return 1
	}
	defer dbClient.Close()
	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		logg.Error(ctx, "sql database unavailable", err)
		return 1
	}

	if err := migrate.Apply(ctx, sqlDB, *cmd, *version, stdout); err != nil {
		logg.Error(ctx, "migration failed", err)
		return 1
	}
	logg.Info(ctx, "migration command finished")
	return 0
}
