package storage

import (
	"context"
	"fmt"
)

const (
	redirectsSchema = `CREATE TABLE IF NOT EXISTS redirects (
		short_code  TEXT PRIMARY KEY,
		destination TEXT NOT NULL,
		owner       TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW());

		CREATE INDEX IF NOT EXISTS idx_redirects_owner ON redirects(owner);`

	scanLogsSchema = `CREATE TABLE IF NOT EXISTS scan_logs (
		id         BIGSERIAL PRIMARY KEY,
		short_code TEXT NOT NULL,
		scanned_at TIMESTAMPTZ NOT NULL,
		ip         TEXT NOT NULL DEFAULT '',
		city       TEXT NOT NULL DEFAULT '',
		country    TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		lat        DOUBLE PRECISION NOT NULL DEFAULT 0,
		lon        DOUBLE PRECISION NOT NULL DEFAULT 0,
		UNIQUE (short_code, scanned_at, ip));

		CREATE INDEX IF NOT EXISTS idx_scan_logs_short_code ON scan_logs(short_code);
		CREATE INDEX IF NOT EXISTS idx_scan_logs_scanned_at ON scan_logs(scanned_at);`
)

// Migrate creates the redirects and scan_logs tables if they do not exist.
// It is safe to run on every start.
func (s *PostgresStorage) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, redirectsSchema); err != nil {
		return fmt.Errorf("create redirects table: %w", err)
	}
	if _, err := s.pool.Exec(ctx, scanLogsSchema); err != nil {
		return fmt.Errorf("create scan_logs table: %w", err)
	}
	return nil
}
