// Package sqlite provides a SQLite-backed search history store for single-user installs.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/JakeFAU/imgscout/internal/imagesearch"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config selects the database file and table names.
type Config struct {
	// DSN is a file path or a "file:" URI.
	DSN           string
	SearchesTable string
	SavesTable    string
}

// HistoryStore writes searches and saved images into SQLite.
type HistoryStore struct {
	db       *sql.DB
	searches string
	saves    string
}

// NewHistoryStore opens the database and creates the tables when missing.
func NewHistoryStore(ctx context.Context, cfg Config) (*HistoryStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("history.dsn is required")
	}
	searches, saves, err := tableNames(cfg.SearchesTable, cfg.SavesTable)
	if err != nil {
		return nil, err
	}

	dsn := cfg.DSN
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writers; one connection avoids "database is locked".
	db.SetMaxOpenConns(1)

	store := newWithDB(db, searches, saves)
	if err := store.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func newWithDB(db *sql.DB, searches, saves string) *HistoryStore {
	return &HistoryStore{db: db, searches: searches, saves: saves}
}

func tableNames(searches, saves string) (string, string, error) {
	if searches == "" {
		searches = "searches"
	}
	if saves == "" {
		saves = "saved_images"
	}
	for _, table := range []string{searches, saves} {
		if !validTableName.MatchString(table) {
			return "", "", fmt.Errorf("invalid table name %q", table)
		}
	}
	return searches, saves, nil
}

func (s *HistoryStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	target_url TEXT NOT NULL,
	urls TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
)`, s.searches),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	search_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	source_url TEXT NOT NULL,
	uri TEXT NOT NULL,
	saved_at INTEGER NOT NULL
)`, s.saves),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create history table: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *HistoryStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

// RecordSearch inserts a search row.
func (s *HistoryStore) RecordSearch(ctx context.Context, rec imagesearch.SearchRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("search id is required")
	}
	urls := rec.URLs
	if urls == nil {
		urls = []string{}
	}
	encoded, err := json.Marshal(urls)
	if err != nil {
		return fmt.Errorf("marshal urls: %w", err)
	}
	query := fmt.Sprintf("INSERT INTO %s (id, query, target_url, urls, error, created_at) VALUES (?,?,?,?,?,?)", s.searches)
	if _, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.Query, rec.TargetURL, string(encoded), rec.Error, rec.CreatedAt.UnixNano(),
	); err != nil {
		return fmt.Errorf("insert search: %w", err)
	}
	return nil
}

// RecordSave inserts a saved-image row.
func (s *HistoryStore) RecordSave(ctx context.Context, rec imagesearch.SaveRecord) error {
	query := fmt.Sprintf("INSERT INTO %s (search_id, position, source_url, uri, saved_at) VALUES (?,?,?,?,?)", s.saves)
	if _, err := s.db.ExecContext(ctx, query,
		rec.SearchID, rec.Position, rec.SourceURL, rec.URI, rec.SavedAt.UnixNano(),
	); err != nil {
		return fmt.Errorf("insert save: %w", err)
	}
	return nil
}

// Recent returns up to limit searches, newest first.
func (s *HistoryStore) Recent(ctx context.Context, limit int) ([]imagesearch.SearchRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf("SELECT id, query, target_url, urls, error, created_at FROM %s ORDER BY created_at DESC LIMIT ?", s.searches)
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query searches: %w", err)
	}
	defer rows.Close()

	var out []imagesearch.SearchRecord
	for rows.Next() {
		var (
			rec     imagesearch.SearchRecord
			urls    string
			created int64
		)
		if err := rows.Scan(&rec.ID, &rec.Query, &rec.TargetURL, &urls, &rec.Error, &created); err != nil {
			return nil, fmt.Errorf("scan search: %w", err)
		}
		if err := json.Unmarshal([]byte(urls), &rec.URLs); err != nil {
			return nil, fmt.Errorf("decode urls: %w", err)
		}
		rec.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate searches: %w", err)
	}
	return out, nil
}

// SaveCount returns how many images were saved for searchID.
func (s *HistoryStore) SaveCount(ctx context.Context, searchID string) (int, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE search_id = ?", s.saves)
	var n int
	if err := s.db.QueryRowContext(ctx, query, searchID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count saves: %w", err)
	}
	return n, nil
}
