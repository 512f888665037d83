// Package store is the relational persistence layer for collected videos,
// guests, and transcript segments. SQLite is the default backend; a
// postgres:// DATABASE_URL switches to PostgreSQL via the pgx stdlib driver.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("store: not found")

// Store wraps a SQL database handle and knows which dialect it speaks.
type Store struct {
	db       *sql.DB
	postgres bool
}

// Open connects to the database named by url. A postgres:// or
// postgresql:// URL selects the pgx driver; anything else is treated as a
// SQLite file path. The schema is created if missing.
func Open(ctx context.Context, url string) (*Store, error) {
	var (
		db  *sql.DB
		err error
		pg  bool
	)
	switch {
	case strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://"):
		db, err = sql.Open("pgx", url)
		pg = true
	default:
		db, err = sql.Open("sqlite", url+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	}
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if !pg {
		db.SetMaxOpenConns(1) // SQLite: single writer
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	s := &Store{db: db, postgres: pg}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	slog.Info("store ready", slog.Bool("postgres", pg))
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// initSchema creates all tables if they do not exist yet.
func (s *Store) initSchema(ctx context.Context) error {
	stmts := schemaSQLite
	if s.postgres {
		stmts = schemaPostgres
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema: %w", err)
		}
	}
	return nil
}

var schemaSQLite = []string{
	`CREATE TABLE IF NOT EXISTS guests (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		name        TEXT NOT NULL UNIQUE,
		description TEXT,
		created_at  TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS videos (
		id                   INTEGER PRIMARY KEY AUTOINCREMENT,
		video_id             TEXT NOT NULL UNIQUE,
		title                TEXT NOT NULL,
		published_at         TEXT NOT NULL,
		description          TEXT,
		channel_title        TEXT,
		view_count           INTEGER NOT NULL DEFAULT 0,
		like_count           INTEGER NOT NULL DEFAULT 0,
		comment_count        INTEGER NOT NULL DEFAULT 0,
		duration             TEXT,
		matching_keyword     TEXT,
		episode_number       INTEGER,
		political_score      REAL,
		political_categories TEXT,
		guest_id             INTEGER REFERENCES guests(id),
		is_processed         INTEGER NOT NULL DEFAULT 0,
		created_at           TEXT NOT NULL,
		updated_at           TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transcript_segments (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		video_id   TEXT NOT NULL REFERENCES videos(video_id) ON DELETE CASCADE,
		text       TEXT NOT NULL,
		start_time REAL NOT NULL,
		duration   REAL NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transcript_segments_video
		ON transcript_segments(video_id, start_time)`,
	`CREATE TABLE IF NOT EXISTS political_segments (
		id                   INTEGER PRIMARY KEY AUTOINCREMENT,
		video_id             TEXT NOT NULL REFERENCES videos(video_id) ON DELETE CASCADE,
		segment_text         TEXT NOT NULL,
		start_time           REAL NOT NULL,
		end_time             REAL NOT NULL,
		keywords             TEXT,
		political_categories TEXT,
		sentiment_score      REAL,
		created_at           TEXT NOT NULL
	)`,
}

var schemaPostgres = []string{
	`CREATE TABLE IF NOT EXISTS guests (
		id          BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		name        TEXT NOT NULL UNIQUE,
		description TEXT,
		created_at  TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS videos (
		id                   BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		video_id             TEXT NOT NULL UNIQUE,
		title                TEXT NOT NULL,
		published_at         TEXT NOT NULL,
		description          TEXT,
		channel_title        TEXT,
		view_count           BIGINT NOT NULL DEFAULT 0,
		like_count           BIGINT NOT NULL DEFAULT 0,
		comment_count        BIGINT NOT NULL DEFAULT 0,
		duration             TEXT,
		matching_keyword     TEXT,
		episode_number       INTEGER,
		political_score      REAL,
		political_categories TEXT,
		guest_id             BIGINT REFERENCES guests(id),
		is_processed         INTEGER NOT NULL DEFAULT 0,
		created_at           TEXT NOT NULL,
		updated_at           TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transcript_segments (
		id         BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		video_id   TEXT NOT NULL REFERENCES videos(video_id) ON DELETE CASCADE,
		text       TEXT NOT NULL,
		start_time REAL NOT NULL,
		duration   REAL NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transcript_segments_video
		ON transcript_segments(video_id, start_time)`,
	`CREATE TABLE IF NOT EXISTS political_segments (
		id                   BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		video_id             TEXT NOT NULL REFERENCES videos(video_id) ON DELETE CASCADE,
		segment_text         TEXT NOT NULL,
		start_time           REAL NOT NULL,
		end_time             REAL NOT NULL,
		keywords             TEXT,
		political_categories TEXT,
		sentiment_score      REAL,
		created_at           TEXT NOT NULL
	)`,
}

// rebind rewrites '?' placeholders to '$n' for PostgreSQL. Queries are
// written once in SQLite form and rebound on demand.
func (s *Store) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}
