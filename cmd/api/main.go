package main

import (
	"context"
	"log"

	"github.com/waqasmani/attendance-scheduler/internal/app"
	"github.com/waqasmani/attendance-scheduler/internal/config"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/database"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/migrations"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/observability"
)

func main() {
	// Load configuration first and validate before any resource initialization
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration loading failed: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Encoding)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			log.Printf("Failed to sync logger: %v", err)
		}
	}()

	ctx := context.Background()
	metrics := observability.NewMetrics()

	var db *database.DB
	if cfg.Store.Driver == "mysql" {
		db, err = database.NewMariaDB(ctx, &cfg.Database, metrics, logger)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		if cfg.Store.AutoMigrate {
			if err := migrations.Up(ctx, db.DB); err != nil {
				log.Fatalf("Failed to apply migrations: %v", err)
			}
			logger.Info(ctx, "Database migrations applied")
		}
	}

	container, err := app.NewContainer(ctx, cfg, db, logger, metrics)
	if err != nil {
		log.Fatalf("Failed to build application: %v", err)
	}
	server := app.NewServer(container)

	if err := server.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
