package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/helmsman-ai/helmsman/agent"
	"github.com/helmsman-ai/helmsman/config"
	"github.com/helmsman-ai/helmsman/internal/database"
	"github.com/helmsman-ai/helmsman/session"
	"github.com/helmsman-ai/helmsman/tool/builtin"
	"github.com/helmsman-ai/helmsman/trace"
)

// migrateAll brings the schema up to date across every package that owns
// tables.
func migrateAll(db *gorm.DB) error {
	if err := agent.Migrate(db); err != nil {
		return fmt.Errorf("agent tables: %w", err)
	}
	if err := session.MigrateSessions(db); err != nil {
		return fmt.Errorf("session table: %w", err)
	}
	if err := trace.Migrate(db); err != nil {
		return fmt.Errorf("trace table: %w", err)
	}
	if err := builtin.MigrateEvents(db); err != nil {
		return fmt.Errorf("event table: %w", err)
	}
	return nil
}

// runMigrate applies migrations and seeds the default agent team, then
// exits.
func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	loader := config.NewLoader().WithoutValidation()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	db, err := database.Open(cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}

	if err := migrateAll(db); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}
	if err := agent.Seed(db, logger); err != nil {
		logger.Fatal("seeding failed", zap.Error(err))
	}

	logger.Info("migrations applied", zap.String("driver", cfg.Database.Driver))
}
