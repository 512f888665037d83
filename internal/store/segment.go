package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Segment is one transcript line owned by a video.
type Segment struct {
	ID       int64
	VideoID  string
	Text     string
	Start    float64
	Duration float64
}

// AddSegments bulk-inserts transcript segments for a video in a single
// transaction, in the order given (callers pass them ordered by start time).
func (s *Store) AddSegments(ctx context.Context, videoID string, segments []Segment) error {
	if len(segments) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin add segments: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, s.rebind(
		`INSERT INTO transcript_segments (video_id, text, start_time, duration, created_at)
		 VALUES (?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("store: prepare segment insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(timeFormat)
	for _, seg := range segments {
		if _, err := stmt.ExecContext(ctx, videoID, seg.Text, seg.Start, seg.Duration, now); err != nil {
			return fmt.Errorf("store: insert segment for %s: %w", videoID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit segments for %s: %w", videoID, err)
	}
	return nil
}

// Segments returns all transcript segments for a video ordered by start time.
func (s *Store) Segments(ctx context.Context, videoID string) ([]Segment, error) {
	rows, err := s.query(ctx,
		`SELECT id, video_id, text, start_time, duration
		 FROM transcript_segments WHERE video_id = ? ORDER BY start_time`, videoID)
	if err != nil {
		return nil, fmt.Errorf("store: segments for %s: %w", videoID, err)
	}
	defer rows.Close()

	var segments []Segment
	for rows.Next() {
		var seg Segment
		if err := rows.Scan(&seg.ID, &seg.VideoID, &seg.Text, &seg.Start, &seg.Duration); err != nil {
			return nil, fmt.Errorf("store: scan segment: %w", err)
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

// CountSegments returns the number of transcript segments for a video.
func (s *Store) CountSegments(ctx context.Context, videoID string) (int64, error) {
	var n int64
	if err := s.queryRow(ctx,
		`SELECT COUNT(*) FROM transcript_segments WHERE video_id = ?`, videoID).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count segments for %s: %w", videoID, err)
	}
	return n, nil
}

// PoliticalSegment is a derived politically relevant excerpt of a transcript.
// Nothing in the collection pipeline produces these yet; the table and CRUD
// exist as the extension point for a future segment-level extractor.
type PoliticalSegment struct {
	ID             int64
	VideoID        string
	SegmentText    string
	Start          float64
	End            float64
	Keywords       []string
	Categories     []string
	SentimentScore *float64
}

// AddPoliticalSegment inserts one derived political segment.
func (s *Store) AddPoliticalSegment(ctx context.Context, seg *PoliticalSegment) error {
	keywords, err := marshalStrings(seg.Keywords)
	if err != nil {
		return fmt.Errorf("store: encode keywords: %w", err)
	}
	cats, err := marshalStrings(seg.Categories)
	if err != nil {
		return fmt.Errorf("store: encode categories: %w", err)
	}
	_, err = s.exec(ctx,
		`INSERT INTO political_segments
		 (video_id, segment_text, start_time, end_time, keywords, political_categories, sentiment_score, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		seg.VideoID, seg.SegmentText, seg.Start, seg.End, keywords, cats,
		seg.SentimentScore, time.Now().UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("store: insert political segment for %s: %w", seg.VideoID, err)
	}
	return nil
}

// PoliticalSegments returns political segments, optionally filtered by video
// id (pass "" for all), ordered by start time.
func (s *Store) PoliticalSegments(ctx context.Context, videoID string) ([]PoliticalSegment, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if videoID != "" {
		rows, err = s.query(ctx,
			`SELECT id, video_id, segment_text, start_time, end_time, keywords, political_categories, sentiment_score
			 FROM political_segments WHERE video_id = ? ORDER BY start_time`, videoID)
	} else {
		rows, err = s.query(ctx,
			`SELECT id, video_id, segment_text, start_time, end_time, keywords, political_categories, sentiment_score
			 FROM political_segments ORDER BY start_time`)
	}
	if err != nil {
		return nil, fmt.Errorf("store: political segments: %w", err)
	}
	defer rows.Close()

	var segments []PoliticalSegment
	for rows.Next() {
		var (
			seg            PoliticalSegment
			keywords, cats sql.NullString
			sentiment      sql.NullFloat64
		)
		if err := rows.Scan(&seg.ID, &seg.VideoID, &seg.SegmentText, &seg.Start,
			&seg.End, &keywords, &cats, &sentiment); err != nil {
			return nil, fmt.Errorf("store: scan political segment: %w", err)
		}
		if seg.Keywords, err = unmarshalStrings(keywords.String); err != nil {
			return nil, fmt.Errorf("store: decode keywords: %w", err)
		}
		if seg.Categories, err = unmarshalStrings(cats.String); err != nil {
			return nil, fmt.Errorf("store: decode categories: %w", err)
		}
		if sentiment.Valid {
			f := sentiment.Float64
			seg.SentimentScore = &f
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}
