package config

import (
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// SetupDatabase initializes the database connection
func SetupDatabase(cfg *Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	// Create tables if they don't exist
	if err := CreateTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return db, nil
}

// tables are created in dependency order. Owned set tables cascade with
// their owner only; references to the other side are plain columns.
var tables = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id CHAR(24) PRIMARY KEY,
		profile_url TEXT NOT NULL,
		username VARCHAR(255) NOT NULL,
		email VARCHAR(255) UNIQUE NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		average_spending DOUBLE PRECISION NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_group_refs (
		user_id CHAR(24) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		group_id CHAR(24) NOT NULL,
		position BIGSERIAL,
		PRIMARY KEY (user_id, group_id)
	)`,
	`CREATE TABLE IF NOT EXISTS betting_groups (
		id CHAR(24) PRIMARY KEY,
		name VARCHAR(255) UNIQUE NOT NULL,
		description TEXT,
		current_bet_id CHAR(24),
		created_at TIMESTAMPTZ NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS group_member_refs (
		group_id CHAR(24) NOT NULL REFERENCES betting_groups(id) ON DELETE CASCADE,
		user_id CHAR(24) NOT NULL,
		position BIGSERIAL,
		PRIMARY KEY (group_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS group_past_bets (
		group_id CHAR(24) NOT NULL REFERENCES betting_groups(id) ON DELETE CASCADE,
		bet_id CHAR(24) NOT NULL,
		position BIGSERIAL,
		PRIMARY KEY (group_id, bet_id)
	)`,
	`CREATE TABLE IF NOT EXISTS bets (
		id CHAR(24) PRIMARY KEY,
		group_id CHAR(24) NOT NULL,
		title TEXT NOT NULL,
		status VARCHAR(16) NOT NULL,
		start_date TIMESTAMPTZ NOT NULL,
		end_date TIMESTAMPTZ NOT NULL,
		meta JSONB NOT NULL DEFAULT '{}'::jsonb
	)`,
	`CREATE TABLE IF NOT EXISTS bet_progress (
		bet_id CHAR(24) NOT NULL REFERENCES bets(id) ON DELETE CASCADE,
		user_id CHAR(24) NOT NULL,
		progress DOUBLE PRECISION NOT NULL,
		last_updated TIMESTAMPTZ NOT NULL,
		position BIGSERIAL,
		PRIMARY KEY (bet_id, user_id)
	)`,
}

var indexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_user_group_refs_group_id ON user_group_refs(group_id)",
	"CREATE INDEX IF NOT EXISTS idx_group_member_refs_user_id ON group_member_refs(user_id)",
	"CREATE INDEX IF NOT EXISTS idx_betting_groups_current_bet_id ON betting_groups(current_bet_id)",
	"CREATE INDEX IF NOT EXISTS idx_group_past_bets_bet_id ON group_past_bets(bet_id)",
	"CREATE INDEX IF NOT EXISTS idx_bets_group_status_start ON bets(group_id, status, start_date)",
	"CREATE INDEX IF NOT EXISTS idx_bet_progress_user_id ON bet_progress(user_id)",
}

// CreateTables creates the necessary tables in the database
func CreateTables(db *sqlx.DB) error {
	for _, stmt := range tables {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	// Create indexes for better performance
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			slog.Warn("Failed to create index", "statement", idx, "error", err)
			// Don't return error here, indexes are not critical
		}
	}

	return nil
}
