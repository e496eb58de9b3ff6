package main

// Manage database migrations:
//   go run ./cmd/migrate [up|down|status]

import (
	"context"
	"errors"
	"fmt"
	"os"

	"rateshop-backend/internal/shared/config"
	"rateshop-backend/internal/shared/storage/db"
	"rateshop-backend/internal/shared/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fail(err)
	}
	telemetry.Init(cfg.LogLevel)
	if cfg.DatabaseURL == "" {
		fail(errors.New("DATABASE_URL is required"))
	}

	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	ctx := context.Background()
	opts := db.OptionsFromEnv(db.DefaultMigrateOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		fail(fmt.Errorf("connect database: %w", err))
	}
	defer sqlDB.Close()

	switch command {
	case "up":
		err = db.RunMigrations(ctx, sqlDB)
	case "down":
		err = db.RollbackMigration(ctx, sqlDB)
	case "status":
		err = db.MigrationStatus(ctx, sqlDB)
	default:
		err = fmt.Errorf("unknown command %q (want up, down or status)", command)
	}
	if err != nil {
		sqlDB.Close()
		fail(err)
	}
	telemetry.Info("migrate.done", map[string]any{"command": command})
}

func fail(err error) {
	telemetry.Error("migrate.failed", map[string]any{"error": err})
	os.Exit(1)
}
