package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/jafarshop/sellerhub/internal/config"
	"github.com/jafarshop/sellerhub/internal/repository/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	// First, connect to the postgres database to create the target database if needed
	admin := cfg.Database
	admin.DBName = "postgres"
	if err := ensureDatabase(admin, cfg.Database.DBName); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	db, err := postgres.NewConnection(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := postgres.RunMigrations(ctx, db, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✅ Migrations applied successfully.")
}

func ensureDatabase(admin config.DatabaseConfig, name string) error {
	db, err := sql.Open("postgres", postgres.DSN(admin))
	if err != nil {
		return fmt.Errorf("failed to connect to postgres database: %w", err)
	}
	defer db.Close()

	var exists bool
	if err := db.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", name,
	).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check database existence: %w", err)
	}
	if exists {
		return nil
	}

	fmt.Printf("Database '%s' does not exist. Creating...\n", name)
	// CREATE DATABASE takes no bind parameters
	if _, err := db.Exec(fmt.Sprintf("CREATE DATABASE %q", name)); err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	fmt.Printf("Database '%s' created successfully.\n", name)
	return nil
}
