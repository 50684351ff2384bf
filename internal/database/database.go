// Package database provides PostgreSQL connection management using pgx.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/ganaxdar/autorifa/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool creates and validates a pgxpool connection pool.
// It retries up to 5 times to accommodate containers starting up.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	// Sensible pool defaults for a small service.
	poolCfg.MaxConns = 20
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := waitReady(ctx, pool, 5, 2*time.Second); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	return pool, nil
}

// pinger is the subset of pgxpool.Pool that waitReady needs.
type pinger interface {
	Ping(ctx context.Context) error
}

// waitReady pings until the database answers or the attempts run out,
// returning the last ping error in the latter case.
func waitReady(ctx context.Context, p pinger, attempts int, delay time.Duration) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = p.Ping(ctx); err == nil {
			return nil
		}
		if attempt < attempts {
			time.Sleep(delay)
		}
	}
	return fmt.Errorf("ping after %d attempts: %w", attempts, err)
}

// schema holds the DDL executed at startup. The partial unique index on
// tickets is the database-level backstop for the purchase transaction:
// at most one non-failed ticket may exist per (raffle, number).
var schema = []string{
	`CREATE TABLE IF NOT EXISTS raffles (
		id SERIAL PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		ticket_price DECIMAL(10, 2) NOT NULL,
		currency VARCHAR(8) NOT NULL DEFAULT 'USD',
		total_tickets INT NOT NULL,
		sold_tickets INT NOT NULL DEFAULT 0,
		status VARCHAR(16) NOT NULL DEFAULT 'active',
		start_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		end_date TIMESTAMPTZ NOT NULL,
		draw_date TIMESTAMPTZ,
		winner_name VARCHAR(255),
		winner_number INT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS tickets (
		id SERIAL PRIMARY KEY,
		raffle_id INT NOT NULL REFERENCES raffles(id),
		ticket_number INT NOT NULL,
		buyer_name VARCHAR(255) NOT NULL DEFAULT '',
		buyer_email VARCHAR(255) NOT NULL,
		buyer_phone VARCHAR(64) NOT NULL DEFAULT '',
		payment_method VARCHAR(32) NOT NULL,
		payment_status VARCHAR(16) NOT NULL DEFAULT 'pending',
		payment_reference VARCHAR(255) NOT NULL,
		payment_proof TEXT NOT NULL DEFAULT '',
		payment_comment TEXT NOT NULL DEFAULT '',
		amount_paid DECIMAL(10, 2) NOT NULL,
		purchased_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		confirmed_at TIMESTAMPTZ
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS tickets_live_number
		ON tickets (raffle_id, ticket_number)
		WHERE payment_status <> 'failed';`,
	`CREATE INDEX IF NOT EXISTS tickets_raffle_status
		ON tickets (raffle_id, payment_status);`,
	`CREATE TABLE IF NOT EXISTS winners (
		id SERIAL PRIMARY KEY,
		raffle_id INT NOT NULL UNIQUE REFERENCES raffles(id),
		ticket_number INT NOT NULL,
		name VARCHAR(255) NOT NULL,
		email VARCHAR(255) NOT NULL DEFAULT '',
		phone VARCHAR(64) NOT NULL DEFAULT '',
		awarded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS admin_users (
		id UUID PRIMARY KEY,
		email VARCHAR(255) UNIQUE NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		role VARCHAR(16) NOT NULL DEFAULT 'admin',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
}

// EnsureSchema creates the tables and indexes the service needs.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, ddl := range schema {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
