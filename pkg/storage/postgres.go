package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStorage keeps redirects and scan events in the same database, so a
// redirect delete and its scan cleanup share one transaction.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

func NewPostgresStorage(pool *pgxpool.Pool) *PostgresStorage {
	return &PostgresStorage{pool: pool}
}

func (s *PostgresStorage) Get(ctx context.Context, code string) (*Redirect, error) {
	query := `SELECT short_code, destination, owner, created_at FROM redirects WHERE short_code = $1`
	var r Redirect
	err := s.pool.QueryRow(ctx, query, code).Scan(&r.ShortCode, &r.Destination, &r.Owner, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get redirect: %w", err)
	}
	return &r, nil
}

func (s *PostgresStorage) List(ctx context.Context) ([]Redirect, error) {
	query := `SELECT short_code, destination, owner, created_at FROM redirects ORDER BY created_at, short_code`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list redirects: %w", err)
	}
	defer rows.Close()

	redirects := make([]Redirect, 0)
	for rows.Next() {
		var r Redirect
		if err := rows.Scan(&r.ShortCode, &r.Destination, &r.Owner, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan redirect row: %w", err)
		}
		redirects = append(redirects, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate redirects: %w", err)
	}
	return redirects, nil
}

func (s *PostgresStorage) Create(ctx context.Context, redirect *Redirect) error {
	query := `INSERT INTO redirects (short_code, destination, owner) VALUES ($1, $2, $3)
		ON CONFLICT (short_code) DO NOTHING
		RETURNING created_at`
	err := s.pool.QueryRow(ctx, query, redirect.ShortCode, redirect.Destination, redirect.Owner).Scan(&redirect.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrConflict
		}
		return fmt.Errorf("create redirect: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Update(ctx context.Context, code, destination string) error {
	query := `UPDATE redirects SET destination = $2 WHERE short_code = $1`
	tag, err := s.pool.Exec(ctx, query, code, destination)
	if err != nil {
		return fmt.Errorf("update redirect: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) Delete(ctx context.Context, code string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // no-op after commit

	tag, err := tx.Exec(ctx, `DELETE FROM redirects WHERE short_code = $1`, code)
	if err != nil {
		return fmt.Errorf("delete redirect: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec(ctx, `DELETE FROM scan_logs WHERE short_code = $1`, code); err != nil {
		return fmt.Errorf("delete scan logs: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Append(ctx context.Context, event *ScanEvent) error {
	query := `INSERT INTO scan_logs (short_code, scanned_at, ip, city, country, user_agent, lat, lon)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (short_code, scanned_at, ip) DO NOTHING
		RETURNING id`
	err := s.pool.QueryRow(ctx, query, event.ShortCode, event.ScannedAt, event.IP, event.City,
		event.Country, event.UserAgent, event.Lat, event.Lon).Scan(&event.ID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("append scan event: %w", err)
	}
	return nil
}

func (s *PostgresStorage) InsertIfAbsent(ctx context.Context, event *ScanEvent) (bool, error) {
	query := `INSERT INTO scan_logs (short_code, scanned_at, ip, city, country, user_agent, lat, lon)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (short_code, scanned_at, ip) DO NOTHING`
	tag, err := s.pool.Exec(ctx, query, event.ShortCode, event.ScannedAt, event.IP, event.City,
		event.Country, event.UserAgent, event.Lat, event.Lon)
	if err != nil {
		return false, fmt.Errorf("insert scan event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStorage) CountByCode(ctx context.Context, code string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM scan_logs WHERE short_code = $1`, code).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count scan events: %w", err)
	}
	return count, nil
}

func (s *PostgresStorage) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT short_code, COUNT(*) FROM scan_logs GROUP BY short_code`)
	if err != nil {
		return nil, fmt.Errorf("count scan events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var code string
		var n int
		if err := rows.Scan(&code, &n); err != nil {
			return nil, fmt.Errorf("scan count row: %w", err)
		}
		counts[code] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}

func (s *PostgresStorage) ListAll(ctx context.Context) ([]ScanEvent, error) {
	query := `SELECT id, short_code, scanned_at, ip, city, country, user_agent, lat, lon
		FROM scan_logs ORDER BY scanned_at DESC, id DESC`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list scan events: %w", err)
	}
	defer rows.Close()

	events := make([]ScanEvent, 0)
	for rows.Next() {
		var e ScanEvent
		if err := rows.Scan(&e.ID, &e.ShortCode, &e.ScannedAt, &e.IP, &e.City, &e.Country, &e.UserAgent, &e.Lat, &e.Lon); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scan events: %w", err)
	}
	return events, nil
}

func (s *PostgresStorage) DeleteByCode(ctx context.Context, code string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM scan_logs WHERE short_code = $1`, code)
	if err != nil {
		return 0, fmt.Errorf("delete scan events: %w", err)
	}
	return tag.RowsAffected(), nil
}
