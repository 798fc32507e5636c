package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/waqasmani/attendance-scheduler/internal/config"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/database"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/observability"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/store"
	"github.com/waqasmani/attendance-scheduler/internal/modules/tenants"
	"go.uber.org/zap"
)

var (
	flags = flag.NewFlagSet("holidays", flag.ExitOnError)
	file  = flags.String("file", "holidays.yaml", "YAML holiday calendar to import")
)

func main() {
	flags.Usage = func() {
		fmt.Fprintf(flags.Output(), "Usage: %s import [-file holidays.yaml]\n\n", os.Args[0])
		flags.PrintDefaults()
	}

	if len(os.Args) < 2 || os.Args[1] != "import" {
		flags.Usage()
		os.Exit(1)
	}
	flags.Parse(os.Args[2:])

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Encoding)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	f, err := os.Open(*file)
	if err != nil {
		log.Fatalf("Failed to open holiday calendar: %v", err)
	}
	defer f.Close()

	cal, err := tenants.ParseHolidayCalendar(f)
	if err != nil {
		log.Fatalf("Invalid holiday calendar: %v", err)
	}

	ctx := context.Background()
	db, err := database.NewMariaDB(ctx, &cfg.Database, observability.NewMetrics(), logger)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	n, err := tenants.ImportHolidays(ctx, store.New(db, db), cal)
	if err != nil {
		logger.Error(ctx, "Holiday import failed", zap.Int("written", n), zap.Error(err))
		os.Exit(1)
	}
	logger.Info(ctx, "Holidays imported",
		zap.String("file", *file),
		zap.Int("tenants", len(cal.Tenants)),
		zap.Int("holidays", n),
	)
}
