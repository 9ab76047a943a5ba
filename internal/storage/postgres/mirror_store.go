// Package postgres provides the Postgres-backed mirror store.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagevault/pagevault/internal/capture"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// MirrorStoreConfig controls the Postgres connection pool used for the
// capture mirror.
type MirrorStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Ping(context.Context) error
	Close()
}

// MirrorStore mirrors committed captures into Postgres. Writes are
// best-effort; the caller decides what a failure means.
type MirrorStore struct {
	pool  execCloser
	table string
}

// NewMirrorStore creates a Postgres-backed MirrorStore using the provided config.
func NewMirrorStore(ctx context.Context, cfg MirrorStoreConfig) (*MirrorStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("remote.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "scraped_pages"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &MirrorStore{
		pool:  pool,
		table: table,
	}, nil
}

// NewMirrorStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewMirrorStoreWithPool(pool execCloser, table string) (*MirrorStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "scraped_pages"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &MirrorStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *MirrorStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies the remote connection is usable.
func (s *MirrorStore) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("mirror store is not configured")
	}
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// InsertCapture mirrors a committed capture row into Postgres.
func (s *MirrorStore) InsertCapture(ctx context.Context, rec capture.Record) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("mirror store is not configured")
	}
	if rec.CaptureID == "" {
		return fmt.Errorf("capture id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	capture_uuid,
	url,
	scrape_timestamp,
	scrape_type,
	html_content,
	identical_match,
	version
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
)`, s.table)

	args := []any{
		rec.CaptureID,
		rec.URL,
		rec.CapturedAt,
		string(rec.Category),
		rec.HTML,
		rec.IdenticalToPrevious,
		rec.SchemaVersion,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert capture: %w", err)
	}
	return nil
}
