// Package monitor tracks collection health: running counters, error
// breakdowns, daily activity, and processing-time samples, persisted as a
// single JSON blob rewritten atomically after every mutation.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/anatolykoptev/go_transcripts/internal/store"
)

// DailyStat is one calendar day of collection activity.
type DailyStat struct {
	VideosProcessed   int `json:"videos_processed"`
	SegmentsCollected int `json:"segments_collected"`
	Errors            int `json:"errors"`
}

// Stats is the persisted counters blob. Mutated only through Monitor methods.
type Stats struct {
	StartTime              time.Time             `json:"start_time"`
	LastUpdate             time.Time             `json:"last_update"`
	TotalVideos            int                   `json:"total_videos"`
	ProcessedVideos        int                   `json:"processed_videos"`
	FailedVideos           int                   `json:"failed_videos"`
	TotalSegments          int                   `json:"total_segments"`
	TotalPoliticalSegments int                   `json:"total_political_segments"`
	VideosByYear           map[string]int        `json:"videos_by_year"`
	VideosByGuest          map[string]int        `json:"videos_by_guest"`
	PoliticalCategories    map[string]int        `json:"political_categories"`
	ProcessingTimes        []float64             `json:"processing_times"`
	ErrorCounts            map[string]int        `json:"error_counts"`
	DailyStats             map[string]*DailyStat `json:"daily_stats"`
}

func newStats(now time.Time) *Stats {
	return &Stats{
		StartTime:           now,
		LastUpdate:          now,
		VideosByYear:        map[string]int{},
		VideosByGuest:       map[string]int{},
		PoliticalCategories: map[string]int{},
		ErrorCounts:         map[string]int{},
		DailyStats:          map[string]*DailyStat{},
	}
}

// Monitor owns the stats blob. Single writer; not safe for concurrent use.
type Monitor struct {
	store *store.Store
	path  string
	stats *Stats
	now   func() time.Time
}

// New loads stats from path, or starts fresh when the file is absent or
// corrupt. Corruption is logged, never fatal.
func New(s *store.Store, path string) *Monitor {
	m := &Monitor{store: s, path: path, now: time.Now}
	m.stats = m.load()
	return m
}

func (m *Monitor) load() *Stats {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Error("monitor: read stats file", slog.String("path", m.path), slog.Any("error", err))
		}
		return newStats(m.now().UTC())
	}
	var stats Stats
	if err := json.Unmarshal(data, &stats); err != nil {
		slog.Error("monitor: corrupt stats file, starting fresh",
			slog.String("path", m.path), slog.Any("error", err))
		return newStats(m.now().UTC())
	}
	// Maps may be nil in hand-edited or older files.
	if stats.VideosByYear == nil {
		stats.VideosByYear = map[string]int{}
	}
	if stats.VideosByGuest == nil {
		stats.VideosByGuest = map[string]int{}
	}
	if stats.PoliticalCategories == nil {
		stats.PoliticalCategories = map[string]int{}
	}
	if stats.ErrorCounts == nil {
		stats.ErrorCounts = map[string]int{}
	}
	if stats.DailyStats == nil {
		stats.DailyStats = map[string]*DailyStat{}
	}
	return &stats
}

// save rewrites the blob atomically: temp file, fsync, rename.
func (m *Monitor) save() {
	data, err := json.MarshalIndent(m.stats, "", "  ")
	if err != nil {
		slog.Error("monitor: marshal stats", slog.Any("error", err))
		return
	}
	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		slog.Error("monitor: create stats file", slog.Any("error", err))
		return
	}
	if _, err := f.Write(data); err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp, m.path)
	}
	if err != nil {
		os.Remove(tmp)
		slog.Error("monitor: save stats file", slog.String("path", m.path), slog.Any("error", err))
	}
}

func (m *Monitor) today() string {
	return m.now().UTC().Format(time.DateOnly)
}

func (m *Monitor) dailyBucket(day string) *DailyStat {
	d, ok := m.stats.DailyStats[day]
	if !ok {
		d = &DailyStat{}
		m.stats.DailyStats[day] = d
	}
	return d
}

// RecordVideoProcessed updates counters after one video's pipeline run.
// No-op when the video cannot be resolved from the store.
func (m *Monitor) RecordVideoProcessed(ctx context.Context, videoID string, success bool, segmentCount int, processingTime float64) {
	video, err := m.store.GetVideo(ctx, videoID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Error("monitor: resolve video", slog.String("id", videoID), slog.Any("error", err))
		}
		return
	}

	m.stats.TotalVideos++
	if success {
		m.stats.ProcessedVideos++
		m.stats.TotalSegments += segmentCount
	} else {
		m.stats.FailedVideos++
	}

	year := video.PublishedAt.UTC().Format("2006")
	m.stats.VideosByYear[year]++

	if video.GuestID != nil {
		if guest, err := m.store.GuestByID(ctx, *video.GuestID); err == nil {
			m.stats.VideosByGuest[guest.Name]++
		}
	}
	for _, cat := range video.PoliticalCategories {
		m.stats.PoliticalCategories[cat]++
	}
	if processingTime > 0 {
		m.stats.ProcessingTimes = append(m.stats.ProcessingTimes, processingTime)
	}

	day := m.dailyBucket(m.today())
	day.VideosProcessed++
	day.SegmentsCollected += segmentCount

	m.stats.LastUpdate = m.now().UTC()
	m.save()
}

// RecordError counts an error by type and stamps today's error bucket.
// A non-empty videoID also counts a failed video.
func (m *Monitor) RecordError(errorType, videoID string) {
	m.stats.ErrorCounts[errorType]++
	if videoID != "" {
		m.stats.FailedVideos++
	}
	m.dailyBucket(m.today()).Errors++
	m.stats.LastUpdate = m.now().UTC()
	m.save()
}
