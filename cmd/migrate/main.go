// Command migrate applies pending schema migrations to the configured SQL
// store without starting the server.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"wamirror/internal/config"
	"wamirror/internal/migrations"
	"wamirror/internal/models"
	"wamirror/internal/security"
)

func main() {
	configPath := flag.String("config", "", "Path to an optional JSON or YAML configuration file")
	dbPath := flag.String("db", "", "SQLite database file (overrides store.path)")
	list := flag.Bool("list", false, "List bundled migrations and exit")
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil {
		log.Fatalf("Failed to load env file: %v", err)
	}
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dbPath != "" {
		cfg.Store.Driver = "sqlite"
		cfg.Store.Path = *dbPath
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := run(ctx, cfg.Store, *list); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
}

func run(ctx context.Context, cfg models.StoreConfig, list bool) error {
	dialect, driverName, dsn, err := target(cfg)
	if err != nil {
		return err
	}

	if list {
		all, err := migrations.Load(dialect)
		if err != nil {
			return err
		}
		for _, m := range all {
			fmt.Printf("%03d %s\n", m.Version, m.Name)
		}
		return nil
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	applied, err := migrations.Apply(ctx, db, dialect)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Println("Schema is up to date")
		return nil
	}
	for _, version := range applied {
		fmt.Printf("Applied migration %d\n", version)
	}
	return nil
}

// target resolves the migration dialect and connection for a store config.
func target(cfg models.StoreConfig) (dialect, driverName, dsn string, err error) {
	switch cfg.Driver {
	case "sqlite":
		if err := security.ValidateFilePath(cfg.Path); err != nil {
			return "", "", "", fmt.Errorf("invalid database path: %w", err)
		}
		if _, err := os.Stat(cfg.Path); os.IsNotExist(err) {
			fmt.Printf("Database file %s does not exist, it will be created\n", cfg.Path)
		}
		return "sqlite", "sqlite3", "file:" + cfg.Path + "?_busy_timeout=5000", nil
	case "postgres":
		return "postgres", "postgres", cfg.DSN, nil
	default:
		return "", "", "", fmt.Errorf("store driver %q has no SQL schema to migrate", cfg.Driver)
	}
}
