// Package quality validates collected videos and transcripts: completeness
// checks, metadata validation, and duplicate detection across the store.
// Findings are advisory — the collector logs them but never blocks on them.
package quality

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anatolykoptev/go_transcripts/internal/store"
)

// Checker runs data-quality checks against the store.
type Checker struct {
	store *store.Store
}

// NewChecker builds a Checker over the given store.
func NewChecker(s *store.Store) *Checker {
	return &Checker{store: s}
}

// Issues maps issue keys to details. Empty means clean.
type Issues map[string]any

// TimeGap is a pause between two adjacent transcript segments.
type TimeGap struct {
	PrevEnd   float64 `json:"prev_end"`
	NextStart float64 `json:"next_start"`
}

const (
	minSegmentCount  = 10
	maxSegmentGapSec = 5.0
	minSegmentChars  = 5
)

// CheckTranscriptCompleteness verifies a stored transcript: enough segments,
// no large time gaps, no near-empty lines, no exact duplicates.
// complete is true iff issues is empty.
func (c *Checker) CheckTranscriptCompleteness(ctx context.Context, videoID string) (bool, Issues, error) {
	issues := Issues{}

	if _, err := c.store.GetVideo(ctx, videoID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, Issues{"error": "video not found"}, nil
		}
		return false, nil, err
	}
	segments, err := c.store.Segments(ctx, videoID)
	if err != nil {
		return false, nil, err
	}
	if len(segments) == 0 {
		return false, Issues{"error": "no transcript segments found"}, nil
	}

	if len(segments) < minSegmentCount {
		issues["segment_count"] = fmt.Sprintf("low segment count: %d", len(segments))
	}

	var gaps []TimeGap
	for i := 0; i < len(segments)-1; i++ {
		end := segments[i].Start + segments[i].Duration
		next := segments[i+1].Start
		if next-end > maxSegmentGapSec {
			gaps = append(gaps, TimeGap{PrevEnd: end, NextStart: next})
		}
	}
	if len(gaps) > 0 {
		issues["time_gaps"] = gaps
	}

	var short []int64
	for _, seg := range segments {
		if len(strings.TrimSpace(seg.Text)) < minSegmentChars {
			short = append(short, seg.ID)
		}
	}
	if len(short) > 0 {
		issues["short_segments"] = short
	}

	counts := make(map[string]int, len(segments))
	for _, seg := range segments {
		counts[strings.TrimSpace(seg.Text)]++
	}
	var duplicates []string
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if counts[text] > 1 {
			duplicates = append(duplicates, text)
			counts[text] = 0 // report each duplicated text once
		}
	}
	if len(duplicates) > 0 {
		issues["duplicates"] = duplicates
	}

	return len(issues) == 0, issues, nil
}

// earliestValidDate bounds plausible publication dates for this channel.
var earliestValidDate = time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)

// ValidateVideoMetadata checks a stored video's fields for completeness and
// plausibility. valid is true iff issues is empty.
func (c *Checker) ValidateVideoMetadata(ctx context.Context, videoID string) (bool, Issues, error) {
	video, err := c.store.GetVideo(ctx, videoID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, Issues{"error": "video not found"}, nil
		}
		return false, nil, err
	}

	issues := Issues{}
	required := []struct {
		name  string
		empty bool
	}{
		{"title", video.Title == ""},
		{"published_at", video.PublishedAt.IsZero()},
		{"video_id", video.VideoID == ""},
		{"channel_title", video.ChannelTitle == ""},
	}
	for _, f := range required {
		if f.empty {
			issues["missing_"+f.name] = fmt.Sprintf("required field %s is missing", f.name)
		}
	}

	if !video.PublishedAt.IsZero() {
		if video.PublishedAt.After(time.Now().UTC()) {
			issues["future_date"] = "publication date is in the future"
		}
		if video.PublishedAt.Before(earliestValidDate) {
			issues["date_range"] = "publication date is before 2017"
		}
	}
	if video.EpisodeNumber != nil && *video.EpisodeNumber < 1 {
		issues["episode_number"] = "invalid episode number"
	}
	if video.PoliticalScore != nil && (*video.PoliticalScore < 0 || *video.PoliticalScore > 1) {
		issues["political_score"] = "political score out of range"
	}

	return len(issues) == 0, issues, nil
}

// DuplicateGroup is a maximal run of adjacent (by sorted title) videos
// judged similar.
type DuplicateGroup struct {
	Videos []*store.Video
	Reason string
}

// CheckDuplicateVideos scans all videos in title order and groups adjacent
// entries whose titles match case-insensitively or whose episode numbers
// differ by at most one. A single linear pass: only duplicates that land
// adjacent after the title sort are caught.
func (c *Checker) CheckDuplicateVideos(ctx context.Context) ([]DuplicateGroup, error) {
	videos, err := c.store.VideosByTitle(ctx)
	if err != nil {
		return nil, err
	}

	var groups []DuplicateGroup
	var current []*store.Video
	flush := func() {
		if len(current) > 1 {
			groups = append(groups, DuplicateGroup{Videos: current, Reason: "similar_titles"})
		}
		current = nil
	}

	for i := 0; i < len(videos)-1; i++ {
		if similarVideos(videos[i], videos[i+1]) {
			if len(current) == 0 {
				current = append(current, videos[i])
			}
			current = append(current, videos[i+1])
		} else {
			flush()
		}
	}
	flush()
	return groups, nil
}

// similarVideos reports whether two adjacent videos look like duplicates.
// Episode numbers only compare when both are present.
func similarVideos(a, b *store.Video) bool {
	if strings.EqualFold(a.Title, b.Title) {
		return true
	}
	if a.EpisodeNumber != nil && b.EpisodeNumber != nil {
		diff := *a.EpisodeNumber - *b.EpisodeNumber
		if diff < 0 {
			diff = -diff
		}
		return diff <= 1
	}
	return false
}

// Report is a quality report for one video or for the whole store.
type Report struct {
	Timestamp      time.Time       `json:"timestamp"`
	VideoSpecific  *VideoReport    `json:"video_specific,omitempty"`
	OverallMetrics *OverallMetrics `json:"overall_metrics,omitempty"`
}

// VideoReport bundles the two single-video checks.
type VideoReport struct {
	VideoID            string `json:"video_id"`
	TranscriptComplete bool   `json:"transcript_complete"`
	TranscriptIssues   Issues `json:"transcript_issues"`
	MetadataValid      bool   `json:"metadata_valid"`
	MetadataIssues     Issues `json:"metadata_issues"`
}

// OverallMetrics summarizes store-wide collection quality.
type OverallMetrics struct {
	TotalVideos     int64  `json:"total_videos"`
	ProcessedVideos int64  `json:"processed_videos"`
	ProcessingRate  string `json:"processing_rate"`
	DuplicateVideos int    `json:"duplicate_videos"`
}

// GenerateQualityReport builds a per-video report when videoID is non-empty,
// otherwise a store-wide one.
func (c *Checker) GenerateQualityReport(ctx context.Context, videoID string) (*Report, error) {
	report := &Report{Timestamp: time.Now().UTC()}

	if videoID != "" {
		complete, transcriptIssues, err := c.CheckTranscriptCompleteness(ctx, videoID)
		if err != nil {
			return nil, err
		}
		valid, metadataIssues, err := c.ValidateVideoMetadata(ctx, videoID)
		if err != nil {
			return nil, err
		}
		report.VideoSpecific = &VideoReport{
			VideoID:            videoID,
			TranscriptComplete: complete,
			TranscriptIssues:   transcriptIssues,
			MetadataValid:      valid,
			MetadataIssues:     metadataIssues,
		}
		return report, nil
	}

	total, err := c.store.CountVideos(ctx)
	if err != nil {
		return nil, err
	}
	processed, err := c.store.CountProcessed(ctx)
	if err != nil {
		return nil, err
	}
	duplicates, err := c.CheckDuplicateVideos(ctx)
	if err != nil {
		return nil, err
	}

	rate := "N/A"
	if total > 0 {
		rate = fmt.Sprintf("%.2f%%", float64(processed)/float64(total)*100)
	}
	report.OverallMetrics = &OverallMetrics{
		TotalVideos:     total,
		ProcessedVideos: processed,
		ProcessingRate:  rate,
		DuplicateVideos: len(duplicates),
	}
	return report, nil
}
