package postgres

import (
	"context"
	"github.com/jackc/pgx/v5/pgxpool"
	"time"
)

func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 8
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// EnsureSchema creates the remote tables if they do not exist. Kept in-repo
// so a fresh shop install needs no separate migration step.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS products(
  id            TEXT PRIMARY KEY,
  name          TEXT NOT NULL,
  category      TEXT NOT NULL DEFAULT '',
  price         NUMERIC NOT NULL DEFAULT 0,
  stock_bounded BOOLEAN NOT NULL DEFAULT FALSE,
  stock_qty     INTEGER NOT NULL DEFAULT 0,
  available     BOOLEAN NOT NULL DEFAULT TRUE,
  combo_items   JSONB,
  points_price  BIGINT,
  created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS orders(
  id              TEXT PRIMARY KEY,
  order_number    TEXT NOT NULL,
  created_at      TIMESTAMPTZ NOT NULL,
  items           JSONB NOT NULL,
  subtotal        NUMERIC NOT NULL DEFAULT 0,
  discount        NUMERIC NOT NULL DEFAULT 0,
  total           NUMERIC NOT NULL DEFAULT 0,
  payment_method  TEXT NOT NULL,
  status          TEXT NOT NULL,
  kitchen_status  TEXT NOT NULL,
  customer_id     TEXT NOT NULL DEFAULT '',
  points_earned   BIGINT NOT NULL DEFAULT 0,
  points_redeemed BIGINT NOT NULL DEFAULT 0,
  seller_name     TEXT NOT NULL DEFAULT '',
  updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at);
CREATE INDEX IF NOT EXISTS idx_orders_status     ON orders(status);

CREATE TABLE IF NOT EXISTS customers(
  id         TEXT PRIMARY KEY,
  phone      TEXT UNIQUE NOT NULL,
  name       TEXT NOT NULL,
  points     BIGINT NOT NULL DEFAULT 0 CHECK (points >= 0),
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`)
	return err
}
