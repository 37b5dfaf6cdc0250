package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/selivandex/trader-core/internal/adapters/config"
	"github.com/selivandex/trader-core/internal/adapters/database"
	"github.com/selivandex/trader-core/pkg/logger"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: migrate [up|down|version]")
	}
	flag.Parse()

	command := "up"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	if err := run(context.Background(), command); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	db, err := database.New(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	path := cfg.Database.MigrationsPath

	switch command {
	case "up":
		return database.RunMigrations(db.Conn(), path)
	case "down":
		return database.RollbackMigration(db.Conn(), path)
	case "version":
		version, dirty, err := database.GetMigrationVersion(db.Conn(), path)
		if err != nil {
			return err
		}
		fmt.Printf("version %d (dirty: %t)\n", version, dirty)
		return nil
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}
