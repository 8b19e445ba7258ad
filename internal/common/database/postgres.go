// internal/common/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"exbuddy/internal/common/config"

	_ "github.com/lib/pq"
)

// PostgresClient wraps the SQL connection pool shared by the session,
// account and exercise stores.
type PostgresClient struct {
	DB *sql.DB
}

// NewPostgres opens a pool; the first round trip happens on Ping.
func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresClient{DB: db}, nil
}

func (c *PostgresClient) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

func (c *PostgresClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// schema is applied idempotently at startup.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		name       TEXT,
		email      TEXT UNIQUE,
		image      TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		session_token TEXT PRIMARY KEY,
		user_id       TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		expires       TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS sessions_user_id_idx ON sessions(user_id)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		user_id             TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		provider            TEXT NOT NULL,
		provider_account_id TEXT NOT NULL,
		access_token        TEXT,
		refresh_token       TEXT,
		expires_at          BIGINT,
		token_type          TEXT,
		scope               TEXT,
		PRIMARY KEY (user_id, provider)
	)`,
	`CREATE TABLE IF NOT EXISTS exercises (
		id    TEXT PRIMARY KEY,
		name  TEXT NOT NULL,
		media TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS exercise_sets (
		id          TEXT PRIMARY KEY,
		exercise_id TEXT NOT NULL REFERENCES exercises(id) ON DELETE CASCADE,
		user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		reps        INT NOT NULL,
		weight      NUMERIC,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate creates the tables the stores read.
func (c *PostgresClient) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := c.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
