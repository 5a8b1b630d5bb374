// Package main provides the schema migration CLI for the review generation
// service.
//
// Usage:
//
//	migrate [-path DIR] up              apply all pending migrations
//	migrate [-path DIR] down            roll back all migrations
//	migrate [-path DIR] steps N         apply N migrations (negative rolls back)
//	migrate [-path DIR] version         print the current schema version
//	migrate [-path DIR] force V         set the schema version without running migrations
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/review-generation-service/internal/config"
	"github.com/helixir/review-generation-service/internal/database"
	"github.com/helixir/review-generation-service/internal/observability"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	pathFlag := flag.String("path", "", "override the migrations directory")
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		flag.Usage()
		return fmt.Errorf("missing command: expected up, down, steps, version, or force")
	}

	// steps and force take a numeric argument.
	var arg int
	switch command {
	case "up", "down", "version":
	case "steps", "force":
		raw := flag.Arg(1)
		if raw == "" {
			return fmt.Errorf("%s requires a numeric argument", command)
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%s: invalid argument %q: %w", command, raw, err)
		}
		if command == "steps" && n == 0 {
			return fmt.Errorf("steps argument must be non-zero")
		}
		if command == "force" && n < 0 {
			return fmt.Errorf("force version must be non-negative")
		}
		arg = n
	default:
		return fmt.Errorf("unknown command %q: expected up, down, steps, version, or force", command)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Console output reads better for an interactive tool than JSON.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	}).With().Str("component", "migrate").Logger()

	migrationDir := cfg.Database.MigrationPath
	if *pathFlag != "" {
		migrationDir = *pathFlag
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db, migrationDir, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()

	switch command {
	case "up":
		err = migrator.Up()
	case "down":
		err = migrator.Down()
	case "steps":
		err = migrator.Steps(arg)
	case "force":
		err = migrator.Force(arg)
	case "version":
		// reportVersion below covers it.
	}
	if err != nil {
		return fmt.Errorf("%s: %w", command, err)
	}

	reportVersion(migrator, logger)
	return nil
}

// reportVersion logs the schema version the database is currently at.
func reportVersion(migrator *database.Migrator, logger zerolog.Logger) {
	v, dirty, err := migrator.Version()
	if err != nil {
		logger.Warn().Err(err).Msg("schema version unavailable")
		return
	}
	logger.Info().Uint("version", v).Bool("dirty", dirty).Msg("schema version")
}
