package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

var schema = []string{
	`
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL,
  password_hash TEXT NOT NULL DEFAULT '',
  name TEXT NOT NULL DEFAULT '',
  role TEXT NOT NULL,
  last_active_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_users_username ON users(lower(username))`,
	`CREATE INDEX IF NOT EXISTS idx_users_role ON users(role)`,
	`
CREATE TABLE IF NOT EXISTS captains (
  id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
  phone TEXT NOT NULL DEFAULT '',
  vehicle_type TEXT NOT NULL,
  status TEXT NOT NULL,
  is_available BOOLEAN NOT NULL DEFAULT false,
  lat DOUBLE PRECISION NULL,
  lng DOUBLE PRECISION NULL,
  heading DOUBLE PRECISION NULL,
  speed DOUBLE PRECISION NULL,
  accuracy DOUBLE PRECISION NULL,
  location_at TIMESTAMPTZ NULL,
  rating DOUBLE PRECISION NOT NULL DEFAULT 0,
  total_deliveries INT NOT NULL DEFAULT 0,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  order_number TEXT NOT NULL,
  status TEXT NOT NULL,
  customer_id TEXT NOT NULL,
  captain_id TEXT NULL,
  address_street TEXT NOT NULL DEFAULT '',
  address_city TEXT NOT NULL DEFAULT '',
  address_notes TEXT NOT NULL DEFAULT '',
  address_lat DOUBLE PRECISION NULL,
  address_lng DOUBLE PRECISION NULL,
  items JSONB NOT NULL DEFAULT '[]',
  total_amount NUMERIC(12, 2) NOT NULL DEFAULT 0,
  priority TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
	`
CREATE TABLE IF NOT EXISTS order_timeline (
  id BIGSERIAL PRIMARY KEY,
  order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
  status TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  notes TEXT NOT NULL DEFAULT '',
  lat DOUBLE PRECISION NULL,
  lng DOUBLE PRECISION NULL,
  at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_order_timeline_order_id ON order_timeline(order_id, id)`,
	// order_id as primary key is what keeps an order bound to one captain.
	`
CREATE TABLE IF NOT EXISTS assignments (
  order_id TEXT PRIMARY KEY REFERENCES orders(id) ON DELETE CASCADE,
  captain_id TEXT NOT NULL REFERENCES captains(id),
  assigned_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_assignments_captain_id ON assignments(captain_id)`,
	`
CREATE TABLE IF NOT EXISTS notifications (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  title TEXT NOT NULL,
  message TEXT NOT NULL,
  category TEXT NOT NULL,
  priority TEXT NOT NULL,
  icon TEXT NOT NULL DEFAULT '',
  source_id TEXT NOT NULL DEFAULT '',
  source_type TEXT NOT NULL DEFAULT '',
  scheduled_for TIMESTAMPTZ NULL,
  is_read BOOLEAN NOT NULL DEFAULT false,
  read_at TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_unread ON notifications(user_id, created_at) WHERE NOT is_read`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_notifications_source ON notifications(user_id, source_type, source_id) WHERE source_id <> ''`,
}

// InitSchema applies the dispatch DDL. Every statement is idempotent.
func InitSchema(ctx context.Context, db *pgxpool.Pool) error {
	for _, q := range schema {
		if _, err := db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
