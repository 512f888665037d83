package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// timeFormat is how timestamps are stored: RFC3339 in UTC.
const timeFormat = time.RFC3339

// Video is a stored video row.
type Video struct {
	VideoID             string
	Title               string
	PublishedAt         time.Time
	Description         string
	ChannelTitle        string
	ViewCount           int64
	LikeCount           int64
	CommentCount        int64
	Duration            string
	MatchingKeyword     string
	EpisodeNumber       *int
	PoliticalScore      *float64
	PoliticalCategories []string
	GuestID             *int64
	IsProcessed         bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// VideoParams enumerates every constructor field explicitly. Unknown fields
// cannot sneak in and required fields are checked up front, not at flush time.
type VideoParams struct {
	VideoID             string
	Title               string
	PublishedAt         time.Time
	Description         string
	ChannelTitle        string
	ViewCount           int64
	LikeCount           int64
	CommentCount        int64
	Duration            string
	MatchingKeyword     string
	EpisodeNumber       *int
	PoliticalScore      *float64
	PoliticalCategories []string
	GuestID             *int64
}

// NewVideo validates params and builds a Video. PublishedAt must be
// timezone-qualified; it is normalized to UTC here.
func NewVideo(p VideoParams) (*Video, error) {
	switch {
	case p.VideoID == "":
		return nil, errors.New("store: video id is required")
	case p.Title == "":
		return nil, errors.New("store: title is required")
	case p.ChannelTitle == "":
		return nil, errors.New("store: channel title is required")
	case p.PublishedAt.IsZero():
		return nil, errors.New("store: published_at is required")
	}
	if p.PoliticalScore != nil && (*p.PoliticalScore < 0 || *p.PoliticalScore > 1) {
		return nil, fmt.Errorf("store: political score %v out of range [0,1]", *p.PoliticalScore)
	}
	if p.EpisodeNumber != nil && *p.EpisodeNumber < 1 {
		return nil, fmt.Errorf("store: episode number %d is not positive", *p.EpisodeNumber)
	}
	return &Video{
		VideoID:             p.VideoID,
		Title:               p.Title,
		PublishedAt:         p.PublishedAt.UTC(),
		Description:         p.Description,
		ChannelTitle:        p.ChannelTitle,
		ViewCount:           p.ViewCount,
		LikeCount:           p.LikeCount,
		CommentCount:        p.CommentCount,
		Duration:            p.Duration,
		MatchingKeyword:     p.MatchingKeyword,
		EpisodeNumber:       p.EpisodeNumber,
		PoliticalScore:      p.PoliticalScore,
		PoliticalCategories: p.PoliticalCategories,
		GuestID:             p.GuestID,
	}, nil
}

const videoColumns = `video_id, title, published_at, description, channel_title,
	view_count, like_count, comment_count, duration, matching_keyword,
	episode_number, political_score, political_categories, guest_id,
	is_processed, created_at, updated_at`

// AddVideo inserts a video row, stamping created_at and updated_at.
func (s *Store) AddVideo(ctx context.Context, v *Video) error {
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now

	cats, err := marshalStrings(v.PoliticalCategories)
	if err != nil {
		return fmt.Errorf("store: encode categories: %w", err)
	}
	_, err = s.exec(ctx,
		`INSERT INTO videos (`+videoColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.VideoID, v.Title, v.PublishedAt.Format(timeFormat), v.Description,
		v.ChannelTitle, v.ViewCount, v.LikeCount, v.CommentCount, v.Duration,
		v.MatchingKeyword, v.EpisodeNumber, v.PoliticalScore, cats, v.GuestID,
		boolToInt(false), now.Format(timeFormat), now.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("store: insert video %s: %w", v.VideoID, err)
	}
	return nil
}

// GetVideo fetches a video by its platform id. Returns ErrNotFound if absent.
func (s *Store) GetVideo(ctx context.Context, videoID string) (*Video, error) {
	row := s.queryRow(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE video_id = ?`, videoID)
	v, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get video %s: %w", videoID, err)
	}
	return v, nil
}

// DeleteVideo removes a video and, via FK cascade, all its segments.
// Returns false when no such video exists.
func (s *Store) DeleteVideo(ctx context.Context, videoID string) (bool, error) {
	res, err := s.exec(ctx, `DELETE FROM videos WHERE video_id = ?`, videoID)
	if err != nil {
		return false, fmt.Errorf("store: delete video %s: %w", videoID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// VideosByTitle returns all videos ordered by title, the scan order the
// duplicate detector relies on.
func (s *Store) VideosByTitle(ctx context.Context) ([]*Video, error) {
	rows, err := s.query(ctx, `SELECT `+videoColumns+` FROM videos ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("store: videos by title: %w", err)
	}
	defer rows.Close()
	return scanVideos(rows)
}

// VideosByGuest returns all videos linked to the named guest.
func (s *Store) VideosByGuest(ctx context.Context, guestName string) ([]*Video, error) {
	rows, err := s.query(ctx,
		`SELECT `+videoColumns+` FROM videos
		 WHERE guest_id = (SELECT id FROM guests WHERE name = ?)
		 ORDER BY published_at`, guestName)
	if err != nil {
		return nil, fmt.Errorf("store: videos by guest %s: %w", guestName, err)
	}
	defer rows.Close()
	return scanVideos(rows)
}

// CountVideos returns the total number of stored videos.
func (s *Store) CountVideos(ctx context.Context) (int64, error) {
	var n int64
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM videos`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count videos: %w", err)
	}
	return n, nil
}

// CountProcessed returns the number of fully processed videos.
func (s *Store) CountProcessed(ctx context.Context) (int64, error) {
	var n int64
	if err := s.queryRow(ctx,
		`SELECT COUNT(*) FROM videos WHERE is_processed = 1`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count processed: %w", err)
	}
	return n, nil
}

// MarkProcessed sets is_processed inside a transaction and verifies the flag
// before committing. The UPDATE takes the row lock, the in-transaction
// re-read confirms the write was applied. Returns whether verification held.
func (s *Store) MarkProcessed(ctx context.Context, videoID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("store: begin mark processed: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := time.Now().UTC().Format(timeFormat)
	res, err := tx.ExecContext(ctx,
		s.rebind(`UPDATE videos SET is_processed = 1, updated_at = ? WHERE video_id = ?`),
		now, videoID)
	if err != nil {
		return false, fmt.Errorf("store: mark processed %s: %w", videoID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, ErrNotFound
	}

	var flag int
	err = tx.QueryRowContext(ctx,
		s.rebind(`SELECT is_processed FROM videos WHERE video_id = ?`), videoID).Scan(&flag)
	if err != nil {
		return false, fmt.Errorf("store: verify processed %s: %w", videoID, err)
	}
	if flag != 1 {
		return false, nil
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("store: commit mark processed %s: %w", videoID, err)
	}
	return true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(r rowScanner) (*Video, error) {
	var (
		v                       Video
		publishedAt, createdAt  string
		updatedAt               string
		description, channel    sql.NullString
		duration, keyword, cats sql.NullString
		episode                 sql.NullInt64
		score                   sql.NullFloat64
		guestID                 sql.NullInt64
		processed               int
	)
	err := r.Scan(&v.VideoID, &v.Title, &publishedAt, &description, &channel,
		&v.ViewCount, &v.LikeCount, &v.CommentCount, &duration, &keyword,
		&episode, &score, &cats, &guestID, &processed, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	v.Description = description.String
	v.ChannelTitle = channel.String
	v.Duration = duration.String
	v.MatchingKeyword = keyword.String
	if episode.Valid {
		n := int(episode.Int64)
		v.EpisodeNumber = &n
	}
	if score.Valid {
		f := score.Float64
		v.PoliticalScore = &f
	}
	if guestID.Valid {
		id := guestID.Int64
		v.GuestID = &id
	}
	v.IsProcessed = processed == 1
	if v.PoliticalCategories, err = unmarshalStrings(cats.String); err != nil {
		return nil, fmt.Errorf("decode categories: %w", err)
	}
	if v.PublishedAt, err = time.Parse(timeFormat, publishedAt); err != nil {
		return nil, fmt.Errorf("parse published_at: %w", err)
	}
	if v.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if v.UpdatedAt, err = time.Parse(timeFormat, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &v, nil
}

func scanVideos(rows *sql.Rows) ([]*Video, error) {
	var videos []*Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

func marshalStrings(values []string) (sql.NullString, error) {
	if len(values) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(values)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalStrings(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, err
	}
	return values, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
