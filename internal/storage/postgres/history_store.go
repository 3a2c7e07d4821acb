// Package postgres provides a Postgres-backed search history store.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/imgscout/internal/imagesearch"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool and table names.
type Config struct {
	DSN             string
	SearchesTable   string
	SavesTable      string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// HistoryStore writes searches and saved images into Postgres.
type HistoryStore struct {
	pool     pool
	searches string
	saves    string
}

// NewHistoryStore connects to Postgres and ensures the tables exist.
func NewHistoryStore(ctx context.Context, cfg Config) (*HistoryStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("history.dsn is required")
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewHistoryStoreWithPool(p, cfg.SearchesTable, cfg.SavesTable)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewHistoryStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewHistoryStoreWithPool(p pool, searchesTable, savesTable string) (*HistoryStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if searchesTable == "" {
		searchesTable = "searches"
	}
	if savesTable == "" {
		savesTable = "saved_images"
	}
	for _, table := range []string{searchesTable, savesTable} {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return &HistoryStore{pool: p, searches: searchesTable, saves: savesTable}, nil
}

// EnsureSchema creates the history tables when missing.
func (s *HistoryStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	target_url TEXT NOT NULL,
	urls JSONB NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
)`, s.searches),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	search_id TEXT NOT NULL,
	position INT NOT NULL,
	source_url TEXT NOT NULL,
	uri TEXT NOT NULL,
	saved_at TIMESTAMPTZ NOT NULL
)`, s.saves),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create history table: %w", err)
		}
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *HistoryStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// RecordSearch inserts a search row.
func (s *HistoryStore) RecordSearch(ctx context.Context, rec imagesearch.SearchRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("search id is required")
	}
	urls, err := json.Marshal(nonNil(rec.URLs))
	if err != nil {
		return fmt.Errorf("marshal urls: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, query, target_url, urls, error, created_at)
VALUES ($1,$2,$3,$4,$5,$6)`, s.searches)
	if _, err := s.pool.Exec(ctx, query, rec.ID, rec.Query, rec.TargetURL, urls, rec.Error, rec.CreatedAt); err != nil {
		return fmt.Errorf("insert search: %w", err)
	}
	return nil
}

// RecordSave inserts a saved-image row.
func (s *HistoryStore) RecordSave(ctx context.Context, rec imagesearch.SaveRecord) error {
	query := fmt.Sprintf(`
INSERT INTO %s (search_id, position, source_url, uri, saved_at)
VALUES ($1,$2,$3,$4,$5)`, s.saves)
	if _, err := s.pool.Exec(ctx, query, rec.SearchID, rec.Position, rec.SourceURL, rec.URI, rec.SavedAt); err != nil {
		return fmt.Errorf("insert save: %w", err)
	}
	return nil
}

// Recent returns up to limit searches, newest first.
func (s *HistoryStore) Recent(ctx context.Context, limit int) ([]imagesearch.SearchRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`
SELECT id, query, target_url, urls, error, created_at
FROM %s
ORDER BY created_at DESC
LIMIT $1`, s.searches)
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query searches: %w", err)
	}
	defer rows.Close()

	var out []imagesearch.SearchRecord
	for rows.Next() {
		var (
			rec  imagesearch.SearchRecord
			urls []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Query, &rec.TargetURL, &urls, &rec.Error, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan search: %w", err)
		}
		if err := json.Unmarshal(urls, &rec.URLs); err != nil {
			return nil, fmt.Errorf("decode urls: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate searches: %w", err)
	}
	return out, nil
}

func nonNil(urls []string) []string {
	if urls == nil {
		return []string{}
	}
	return urls
}
