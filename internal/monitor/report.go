package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/anatolykoptev/go_transcripts/internal/store"
)

// NameCount pairs a counter key with its count, for ranked listings.
type NameCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// TimingStats summarizes recorded processing-time samples in seconds.
type TimingStats struct {
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// Summary is a snapshot of overall collection progress.
type Summary struct {
	CollectionStarted       time.Time      `json:"collection_started"`
	LastUpdate              time.Time      `json:"last_update"`
	TotalVideos             int            `json:"total_videos"`
	ProcessedVideos         int            `json:"processed_videos"`
	FailedVideos            int            `json:"failed_videos"`
	SuccessRate             string         `json:"success_rate"`
	TotalSegments           int            `json:"total_segments"`
	AverageSegmentsPerVideo float64        `json:"average_segments_per_video"`
	TopGuests               []NameCount    `json:"top_guests"`
	TopCategories           []NameCount    `json:"top_political_categories"`
	ErrorSummary            map[string]int `json:"error_summary"`
	ProcessingTime          TimingStats    `json:"processing_time_stats"`
}

// GetCollectionSummary derives a progress summary from the current stats.
func (m *Monitor) GetCollectionSummary() Summary {
	s := m.stats

	successRate := "N/A"
	if s.TotalVideos > 0 {
		successRate = fmt.Sprintf("%.2f%%", float64(s.ProcessedVideos)/float64(s.TotalVideos)*100)
	}
	var avgSegments float64
	if s.ProcessedVideos > 0 {
		avgSegments = float64(s.TotalSegments) / float64(s.ProcessedVideos)
	}

	errorSummary := make(map[string]int, len(s.ErrorCounts))
	for k, v := range s.ErrorCounts {
		errorSummary[k] = v
	}

	return Summary{
		CollectionStarted:       s.StartTime,
		LastUpdate:              s.LastUpdate,
		TotalVideos:             s.TotalVideos,
		ProcessedVideos:         s.ProcessedVideos,
		FailedVideos:            s.FailedVideos,
		SuccessRate:             successRate,
		TotalSegments:           s.TotalSegments,
		AverageSegmentsPerVideo: avgSegments,
		TopGuests:               topCounts(s.VideosByGuest, 10),
		TopCategories:           topCounts(s.PoliticalCategories, 5),
		ErrorSummary:            errorSummary,
		ProcessingTime:          timingStats(s.ProcessingTimes),
	}
}

// topCounts ranks a counter map descending by count, breaking ties by name
// so output is deterministic.
func topCounts(counts map[string]int, limit int) []NameCount {
	ranked := make([]NameCount, 0, len(counts))
	for name, count := range counts {
		ranked = append(ranked, NameCount{Name: name, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Name < ranked[j].Name
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func timingStats(samples []float64) TimingStats {
	if len(samples) == 0 {
		return TimingStats{}
	}
	min, max, sum := samples[0], samples[0], 0.0
	for _, t := range samples {
		if t < min {
			min = t
		}
		if t > max {
			max = t
		}
		sum += t
	}
	return TimingStats{Average: sum / float64(len(samples)), Min: min, Max: max}
}

// DailyRecord is one day's activity in a daily report.
type DailyRecord struct {
	Date string `json:"date"`
	DailyStat
}

// DailyReport covers a contiguous span of calendar days.
type DailyReport struct {
	Start string        `json:"start"`
	End   string        `json:"end"`
	Days  []DailyRecord `json:"daily_data"`
}

// GetDailyReport emits one record per day from today-days to today inclusive,
// zero-filling days with no activity.
func (m *Monitor) GetDailyReport(days int) DailyReport {
	end := m.now().UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -days)

	report := DailyReport{
		Start: start.Format(time.DateOnly),
		End:   end.Format(time.DateOnly),
	}
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := d.Format(time.DateOnly)
		record := DailyRecord{Date: key}
		if stat, ok := m.stats.DailyStats[key]; ok {
			record.DailyStat = *stat
		}
		report.Days = append(report.Days, record)
	}
	return report
}

// GuestStats summarizes one guest's recorded appearances.
type GuestStats struct {
	AppearanceCount       int        `json:"appearance_count"`
	FirstAppearance       *time.Time `json:"first_appearance"`
	LastAppearance        *time.Time `json:"last_appearance"`
	AveragePoliticalScore float64    `json:"average_political_score"`
}

// GetGuestStatistics resolves every guest with a recorded appearance count
// and computes their average political score and appearance date range.
// Guests with no resolvable videos report nil dates and a zero average.
func (m *Monitor) GetGuestStatistics(ctx context.Context) (map[string]GuestStats, error) {
	result := make(map[string]GuestStats, len(m.stats.VideosByGuest))
	for name, count := range m.stats.VideosByGuest {
		if _, err := m.store.GetGuest(ctx, name); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		videos, err := m.store.VideosByGuest(ctx, name)
		if err != nil {
			return nil, err
		}
		if len(videos) == 0 {
			result[name] = GuestStats{AppearanceCount: count}
			continue
		}

		var scoreSum float64
		var scored int
		var first, last time.Time
		for _, v := range videos {
			if v.PoliticalScore != nil {
				scoreSum += *v.PoliticalScore
				scored++
			}
			if first.IsZero() || v.PublishedAt.Before(first) {
				first = v.PublishedAt
			}
			if v.PublishedAt.After(last) {
				last = v.PublishedAt
			}
		}
		stats := GuestStats{AppearanceCount: count}
		if scored > 0 {
			stats.AveragePoliticalScore = scoreSum / float64(scored)
		}
		if !first.IsZero() {
			stats.FirstAppearance = &first
			stats.LastAppearance = &last
		}
		result[name] = stats
	}
	return result, nil
}
