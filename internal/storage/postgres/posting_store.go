// Package postgres persists newly seen postings into a Postgres table.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/jobscraper/internal/jobs"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "postings"

// Config controls the Postgres connection pool used for posting rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// PostingStore writes posting rows into Postgres, ignoring urls already present.
type PostingStore struct {
	pool  execCloser
	table string
}

// NewPostingStore connects a pool using cfg.
func NewPostingStore(ctx context.Context, cfg Config) (*PostingStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostingStore{pool: pool, table: table}, nil
}

// NewPostingStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewPostingStoreWithPool(pool execCloser, table string) (*PostingStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &PostingStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *PostingStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the postings table when it does not exist.
func (s *PostingStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	url       TEXT PRIMARY KEY,
	posted_at TIMESTAMPTZ NOT NULL,
	company   TEXT NOT NULL DEFAULT '',
	position  TEXT NOT NULL DEFAULT '',
	location  TEXT NOT NULL DEFAULT '',
	first_seen_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// InsertPostings inserts records and returns how many rows were new.
func (s *PostingStore) InsertPostings(ctx context.Context, records []jobs.Record) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, fmt.Errorf("posting store is not configured")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (url, posted_at, company, position, location)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (url) DO NOTHING`, s.table)

	var inserted int64
	for _, r := range records {
		tag, err := s.pool.Exec(ctx, query, r.URL, r.PostedAt.UTC(), r.Company, r.Position, r.Location)
		if err != nil {
			return inserted, fmt.Errorf("insert posting %q: %w", r.URL, err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}
