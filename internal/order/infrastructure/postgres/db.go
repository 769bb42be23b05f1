package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool opens a pgx pool and checks it can reach the database.
func NewPool(ctx context.Context, url string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse pg url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS inventory (
	item_name  TEXT PRIMARY KEY,
	category   TEXT NOT NULL DEFAULT '',
	quantity   INTEGER NOT NULL CHECK (quantity >= 0),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS donations (
	id         BIGSERIAL PRIMARY KEY,
	donor_id   TEXT NOT NULL,
	item_name  TEXT NOT NULL,
	category   TEXT NOT NULL DEFAULT '',
	quantity   INTEGER NOT NULL CHECK (quantity > 0),
	donated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS food_requests (
	id               BIGSERIAL PRIMARY KEY,
	customer_id      TEXT NOT NULL,
	delivery_address TEXT NOT NULL,
	party_size       INTEGER NOT NULL CHECK (party_size > 0),
	status           TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS food_requests_customer_idx ON food_requests (customer_id, status, created_at DESC);

CREATE TABLE IF NOT EXISTS food_request_items (
	request_id BIGINT NOT NULL REFERENCES food_requests (id) ON DELETE CASCADE,
	item_name  TEXT NOT NULL,
	quantity   INTEGER NOT NULL CHECK (quantity > 0),
	PRIMARY KEY (request_id, item_name)
);

CREATE TABLE IF NOT EXISTS outbox (
	id             BIGSERIAL PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id   TEXT NOT NULL,
	type           TEXT NOT NULL,
	payload        JSONB NOT NULL,
	headers        JSONB NOT NULL DEFAULT '{}',
	traceparent    TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'pending',
	relay_id       TEXT,
	lease_until    TIMESTAMPTZ,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	last_error     TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS outbox_status_idx ON outbox (status, id);
`

// Migrate creates the tables when they do not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
