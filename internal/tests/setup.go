// Package tests holds the integration suites that run against a real
// Postgres. They skip unless DATABASE_URL is set.
package tests

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/capiorg/backend-auth/internal/db"
)

// OpenTestDB connects to DATABASE_URL and applies the embedded migrations.
// It returns (nil, nil) when DATABASE_URL is unset.
func OpenTestDB(ctx context.Context, logger *zap.Logger) (*sql.DB, error) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		return nil, nil
	}
	database, err := db.Open(ctx, url, db.DefaultPool, logger)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(database); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return database, nil
}

// TruncateAuthTables truncates auth-related tables for a clean test state.
// Lookup tables are left seeded.
func TruncateAuthTables(ctx context.Context, database *sql.DB) error {
	_, err := database.ExecContext(ctx, "TRUNCATE TABLE users_sessions, sessions_devices, users, documents CASCADE")
	if err != nil {
		return fmt.Errorf("truncate auth tables: %w", err)
	}
	return nil
}
