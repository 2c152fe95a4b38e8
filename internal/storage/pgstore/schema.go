package pgstore

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS colis (
  id TEXT PRIMARY KEY,
  reference TEXT NOT NULL UNIQUE,
  tcn TEXT NOT NULL UNIQUE,
  code_barre TEXT NOT NULL UNIQUE,
  description TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL,
  location TEXT NULL,
  estimated_delivery TIMESTAMPTZ NULL,
  meta_data JSONB NOT NULL DEFAULT '{}'::jsonb,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_colis_status ON colis(status)`,
		`CREATE INDEX IF NOT EXISTS idx_colis_created_at ON colis(created_at DESC)`,
		`
CREATE TABLE IF NOT EXISTS trackings (
  id BIGSERIAL PRIMARY KEY,
  tracking_number TEXT NOT NULL UNIQUE,
  carrier TEXT NOT NULL,
  status TEXT NOT NULL,
  service_type TEXT NOT NULL DEFAULT 'UNKNOWN',
  colis_id TEXT NULL REFERENCES colis(id) ON DELETE SET NULL,
  meta_data JSONB NOT NULL DEFAULT '{}'::jsonb,
  snapshot JSONB NULL,
  last_checked_at TIMESTAMPTZ NULL,
  next_check_at TIMESTAMPTZ NOT NULL,
  check_fail_count INT NOT NULL DEFAULT 0,
  last_error TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_trackings_next_check_at ON trackings(next_check_at)`,
		`CREATE INDEX IF NOT EXISTS idx_trackings_status ON trackings(status)`,
		`
CREATE TABLE IF NOT EXISTS tracking_events (
  id BIGSERIAL PRIMARY KEY,
  tracking_id BIGINT NOT NULL REFERENCES trackings(id) ON DELETE CASCADE,
  status TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  event_time TIMESTAMPTZ NOT NULL,
  raw_timestamp TEXT NOT NULL DEFAULT '',
  city TEXT NOT NULL DEFAULT '',
  state TEXT NOT NULL DEFAULT '',
  country TEXT NOT NULL DEFAULT '',
  postal_code TEXT NOT NULL DEFAULT '',
  event_code TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_tracking_events_tracking_id_event_time ON tracking_events(tracking_id, event_time DESC)`,
		`DROP INDEX IF EXISTS uq_tracking_events_dedup`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_tracking_events_scan ON tracking_events(tracking_id, status, event_time, raw_timestamp, description, city)`,
		`
CREATE TABLE IF NOT EXISTS tracking_history (
  id TEXT PRIMARY KEY,
  user_id BIGINT NOT NULL,
  tracking_number TEXT NOT NULL,
  status TEXT NULL,
  meta_data JSONB NOT NULL DEFAULT '{}'::jsonb,
  note TEXT NULL,
  pinned BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_tracking_history_user_created ON tracking_history(user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_tracking_history_created ON tracking_history(created_at)`,
		`
CREATE TABLE IF NOT EXISTS notifications (
  id TEXT PRIMARY KEY,
  type TEXT NOT NULL,
  priority TEXT NOT NULL,
  title TEXT NOT NULL,
  message TEXT NOT NULL,
  tracking_number TEXT NULL,
  is_read BOOLEAN NOT NULL DEFAULT FALSE,
  read_at TIMESTAMPTZ NULL,
  meta_data JSONB NOT NULL DEFAULT '{}'::jsonb,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_created ON notifications(created_at DESC)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
