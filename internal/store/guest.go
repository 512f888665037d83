package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Guest is a podcast guest, created lazily on first appearance and never
// deleted by the pipeline.
type Guest struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
}

// GetGuest fetches a guest by name. Returns ErrNotFound if absent.
func (s *Store) GetGuest(ctx context.Context, name string) (*Guest, error) {
	return s.scanGuest(s.queryRow(ctx,
		`SELECT id, name, description, created_at FROM guests WHERE name = ?`, name))
}

// GuestByID fetches a guest by primary key. Returns ErrNotFound if absent.
func (s *Store) GuestByID(ctx context.Context, id int64) (*Guest, error) {
	return s.scanGuest(s.queryRow(ctx,
		`SELECT id, name, description, created_at FROM guests WHERE id = ?`, id))
}

// GetOrCreateGuest returns the guest with the given name, creating it first
// if needed.
func (s *Store) GetOrCreateGuest(ctx context.Context, name string) (*Guest, error) {
	g, err := s.GetGuest(ctx, name)
	if err == nil {
		return g, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC().Format(timeFormat)
	// Races with a concurrent insert resolve through the unique constraint:
	// on conflict, fall back to the read.
	_, err = s.exec(ctx,
		`INSERT INTO guests (name, created_at) VALUES (?, ?)`, name, now)
	if err != nil {
		if g, getErr := s.GetGuest(ctx, name); getErr == nil {
			return g, nil
		}
		return nil, fmt.Errorf("store: create guest %s: %w", name, err)
	}
	return s.GetGuest(ctx, name)
}

func (s *Store) scanGuest(row *sql.Row) (*Guest, error) {
	var (
		g           Guest
		description sql.NullString
		createdAt   string
	)
	err := row.Scan(&g.ID, &g.Name, &description, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan guest: %w", err)
	}
	g.Description = description.String
	if g.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return nil, fmt.Errorf("store: parse guest created_at: %w", err)
	}
	return &g, nil
}
