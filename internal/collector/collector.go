// Package collector drives the per-video collection workflow: discover
// candidates by keyword search, score and filter them, fetch transcripts with
// backoff, persist, quality-check, and mark processed with verification.
// Processing is sequential; per-video failures never abort the batch.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/anatolykoptev/go_transcripts/internal/extract"
	"github.com/anatolykoptev/go_transcripts/internal/monitor"
	"github.com/anatolykoptev/go_transcripts/internal/quality"
	"github.com/anatolykoptev/go_transcripts/internal/store"
	"github.com/anatolykoptev/go_transcripts/internal/youtube"
)

// Platform is the video-platform capability the collector depends on.
// *youtube.Client implements it; tests use a scripted fake.
type Platform interface {
	Search(ctx context.Context, keyword string, maxResults int) ([]youtube.SearchResult, error)
	GetDetails(ctx context.Context, videoID string) (*youtube.Details, error)
	GetTranscript(ctx context.Context, videoID string) ([]youtube.Segment, error)
}

// Config tunes a collection run.
type Config struct {
	ScoreThreshold    float64       // videos below this are rejected (default 0.3)
	MaxVideos         int           // cap on candidates per run (0 = unlimited)
	TestMode          bool          // reduced keywords, tighter limits, longer error backoff
	ResultsPerKeyword int           // search page size (default 50, test 5)
	SearchInterval    time.Duration // pacing between keyword searches
	ErrorBackoff      time.Duration // extra wait after a search error
	VideoInterval     time.Duration // pacing between videos
	MarkRetryDelay    time.Duration // fixed delay between mark-processed attempts
}

func (c Config) withDefaults() Config {
	if c.ScoreThreshold == 0 {
		c.ScoreThreshold = 0.3
	}
	if c.ResultsPerKeyword == 0 {
		c.ResultsPerKeyword = 50
		if c.TestMode {
			c.ResultsPerKeyword = 5
		}
	}
	if c.SearchInterval == 0 {
		c.SearchInterval = time.Second
	}
	if c.ErrorBackoff == 0 {
		c.ErrorBackoff = 5 * time.Second
		if c.TestMode {
			c.ErrorBackoff = 10 * time.Second
		}
	}
	if c.VideoInterval == 0 {
		c.VideoInterval = time.Second
	}
	if c.MarkRetryDelay == 0 {
		c.MarkRetryDelay = 500 * time.Millisecond
	}
	return c
}

// Fetcher runs the collection pipeline against one channel.
type Fetcher struct {
	platform Platform
	store    *store.Store
	quality  *quality.Checker
	monitor  *monitor.Monitor
	cfg      Config
	limiter  *rate.Limiter

	// extraction strategies, swappable in tests
	episodeOf func(string) (int, bool)
	guestOf   func(string) (string, bool)
	scoreOf   func(title, description string) (float64, []string)

	sleep func(context.Context, time.Duration) error
}

// New builds a Fetcher with the default heuristics.
func New(p Platform, s *store.Store, q *quality.Checker, m *monitor.Monitor, cfg Config) *Fetcher {
	cfg = cfg.withDefaults()
	return &Fetcher{
		platform:  p,
		store:     s,
		quality:   q,
		monitor:   m,
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Every(cfg.SearchInterval), 1),
		episodeOf: extract.EpisodeNumber,
		guestOf:   extract.GuestName,
		scoreOf:   extract.Score,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// candidate is a discovered video awaiting processing.
type candidate struct {
	result  youtube.SearchResult
	keyword string
	details *youtube.Details // nil when the detail fetch failed
}

// RunSummary aggregates one collection run.
type RunSummary struct {
	Discovered int
	Processed  int
	Failed     int
	Rejected   int
	Skipped    int
	Collection monitor.Summary
	Duplicates []quality.DuplicateGroup
}

// outcome is the terminal state of one video's pipeline.
type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeRejected          // score below threshold, never persisted
	outcomeSkipped           // already processed, idempotent no-op
	outcomeFailed            // error path, recorded and isolated
)

// Run executes a full collection pass: discovery, per-video processing, and
// the closing summary.
func (f *Fetcher) Run(ctx context.Context) (*RunSummary, error) {
	candidates, err := f.discover(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("discovery complete", slog.Int("candidates", len(candidates)))

	summary := &RunSummary{Discovered: len(candidates)}
	for i, cand := range candidates {
		slog.Info("processing video",
			slog.Int("n", i+1), slog.Int("of", len(candidates)),
			slog.String("id", cand.result.VideoID), slog.String("title", cand.result.Title))

		switch f.processVideo(ctx, cand) {
		case outcomeProcessed:
			summary.Processed++
		case outcomeRejected:
			summary.Rejected++
		case outcomeSkipped:
			summary.Skipped++
		case outcomeFailed:
			summary.Failed++
		}
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		if i < len(candidates)-1 {
			if err := f.sleep(ctx, f.cfg.VideoInterval); err != nil {
				return summary, err
			}
		}
	}

	summary.Collection = f.monitor.GetCollectionSummary()
	duplicates, err := f.quality.CheckDuplicateVideos(ctx)
	if err != nil {
		slog.Error("duplicate check failed", slog.Any("error", err))
	} else {
		summary.Duplicates = duplicates
		for _, group := range duplicates {
			titles := make([]string, len(group.Videos))
			for i, v := range group.Videos {
				titles[i] = v.Title
			}
			slog.Warn("possible duplicate videos", slog.Any("titles", titles))
		}
	}
	return summary, nil
}

// discover searches every keyword, deduplicating by video id within the run,
// and fetches extended details per unique id.
func (f *Fetcher) discover(ctx context.Context) ([]candidate, error) {
	seen := make(map[string]bool)
	var candidates []candidate

	for _, keyword := range searchKeywords(f.cfg.TestMode) {
		if err := f.limiter.Wait(ctx); err != nil {
			return candidates, err
		}
		results, err := f.platform.Search(ctx, keyword, f.cfg.ResultsPerKeyword)
		if err != nil {
			slog.Error("search failed", slog.String("keyword", keyword), slog.Any("error", err))
			f.monitor.RecordError("search_error", "")
			if err := f.sleep(ctx, f.cfg.ErrorBackoff); err != nil {
				return candidates, err
			}
			continue
		}

		for _, r := range results {
			if seen[r.VideoID] {
				continue
			}
			seen[r.VideoID] = true

			details, err := f.platform.GetDetails(ctx, r.VideoID)
			if err != nil {
				// Degrade to snippet-only data rather than dropping the video.
				slog.Warn("details fetch failed", slog.String("id", r.VideoID), slog.Any("error", err))
				f.monitor.RecordError("details_error", "")
				details = nil
			}
			candidates = append(candidates, candidate{result: r, keyword: keyword, details: details})
			if f.cfg.MaxVideos > 0 && len(candidates) >= f.cfg.MaxVideos {
				return candidates, nil
			}
		}
	}
	return candidates, nil
}

// processVideo walks one video through the state machine:
// scored → filtered → transcript → persisted → quality-checked → processed.
func (f *Fetcher) processVideo(ctx context.Context, cand candidate) outcome {
	videoID := cand.result.VideoID
	started := time.Now()

	score, categories := f.scoreOf(cand.result.Title, cand.result.Description)
	if score < f.cfg.ScoreThreshold {
		slog.Debug("rejected below threshold",
			slog.String("id", videoID), slog.Float64("score", score))
		return outcomeRejected
	}

	// Idempotency under retry: a processed video is a no-op success; an
	// unprocessed leftover is rebuilt from scratch so no stale segments
	// survive.
	existing, err := f.store.GetVideo(ctx, videoID)
	switch {
	case err == nil && existing.IsProcessed:
		slog.Info("already processed, skipping", slog.String("id", videoID))
		return outcomeSkipped
	case err == nil:
		if _, err := f.store.DeleteVideo(ctx, videoID); err != nil {
			f.failVideo(videoID, "storage_error", fmt.Errorf("delete stale video: %w", err))
			return outcomeFailed
		}
		slog.Info("deleted stale unprocessed video", slog.String("id", videoID))
	case !errors.Is(err, store.ErrNotFound):
		f.failVideo(videoID, "storage_error", err)
		return outcomeFailed
	}

	segments, err := f.fetchTranscriptWithBackoff(ctx, videoID)
	if err != nil {
		f.failVideo(videoID, transcriptErrorType(err), err)
		return outcomeFailed
	}

	video, err := f.buildVideo(ctx, cand, score, categories)
	if err != nil {
		f.failVideo(videoID, "storage_error", err)
		return outcomeFailed
	}
	if err := f.store.AddVideo(ctx, video); err != nil {
		f.failVideo(videoID, "storage_error", err)
		return outcomeFailed
	}

	storeSegments := make([]store.Segment, len(segments))
	for i, seg := range segments {
		storeSegments[i] = store.Segment{Text: seg.Text, Start: seg.Start, Duration: seg.Duration}
	}
	if err := f.store.AddSegments(ctx, videoID, storeSegments); err != nil {
		f.failPersisted(ctx, videoID, "storage_error", err)
		return outcomeFailed
	}

	f.runQualityGate(ctx, videoID)

	if !f.markProcessedVerified(ctx, videoID) {
		f.failPersisted(ctx, videoID, "verification_failure", errors.New("processed flag not verified"))
		return outcomeFailed
	}

	elapsed := time.Since(started).Seconds()
	f.monitor.RecordVideoProcessed(ctx, videoID, true, len(storeSegments), elapsed)
	slog.Info("video processed",
		slog.String("id", videoID),
		slog.Int("segments", len(storeSegments)),
		slog.Float64("score", score))
	return outcomeProcessed
}

// buildVideo assembles the validated video row, resolving the guest record
// first so the foreign key is valid at insert time.
func (f *Fetcher) buildVideo(ctx context.Context, cand candidate, score float64, categories []string) (*store.Video, error) {
	params := store.VideoParams{
		VideoID:             cand.result.VideoID,
		Title:               cand.result.Title,
		PublishedAt:         cand.result.PublishedAt,
		Description:         cand.result.Description,
		ChannelTitle:        cand.result.ChannelTitle,
		MatchingKeyword:     cand.keyword,
		PoliticalScore:      &score,
		PoliticalCategories: categories,
	}
	if cand.details != nil {
		params.ViewCount = cand.details.ViewCount
		params.LikeCount = cand.details.LikeCount
		params.CommentCount = cand.details.CommentCount
		params.Duration = cand.details.Duration
	}
	if episode, ok := f.episodeOf(cand.result.Title); ok {
		params.EpisodeNumber = &episode
	}
	if name, ok := f.guestOf(cand.result.Title); ok {
		guest, err := f.store.GetOrCreateGuest(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("resolve guest %q: %w", name, err)
		}
		params.GuestID = &guest.ID
	}
	return store.NewVideo(params)
}

// fetchTranscriptWithBackoff makes up to three attempts, sleeping 2^attempt
// seconds between them. Only rate-limit errors are retried; anything else is
// terminal for the video.
func (f *Fetcher) fetchTranscriptWithBackoff(ctx context.Context, videoID string) ([]youtube.Segment, error) {
	const maxAttempts = 3
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		segments, err := f.platform.GetTranscript(ctx, videoID)
		if err == nil {
			return segments, nil
		}
		lastErr = err
		if !errors.Is(err, youtube.ErrRateLimited) {
			return nil, err
		}
		if attempt < maxAttempts-1 {
			wait := time.Duration(1<<attempt) * time.Second
			slog.Warn("transcript rate limited, backing off",
				slog.String("id", videoID), slog.Duration("wait", wait))
			if err := f.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}

// runQualityGate runs both checks post-persist. Issues are advisory: logged
// as warnings, never blocking.
func (f *Fetcher) runQualityGate(ctx context.Context, videoID string) {
	complete, transcriptIssues, err := f.quality.CheckTranscriptCompleteness(ctx, videoID)
	if err != nil {
		slog.Error("completeness check failed", slog.String("id", videoID), slog.Any("error", err))
	} else if !complete {
		slog.Warn("transcript quality issues",
			slog.String("id", videoID), slog.Any("issues", transcriptIssues))
	}

	valid, metadataIssues, err := f.quality.ValidateVideoMetadata(ctx, videoID)
	if err != nil {
		slog.Error("metadata check failed", slog.String("id", videoID), slog.Any("error", err))
	} else if !valid {
		slog.Warn("metadata quality issues",
			slog.String("id", videoID), slog.Any("issues", metadataIssues))
	}
}

// markProcessedVerified attempts the locked mark-processed transaction up to
// three times, then confirms durability with an independent re-read.
func (f *Fetcher) markProcessedVerified(ctx context.Context, videoID string) bool {
	const maxAttempts = 3
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		verified, err := f.store.MarkProcessed(ctx, videoID)
		if err != nil {
			slog.Error("mark processed failed",
				slog.String("id", videoID), slog.Int("attempt", attempt), slog.Any("error", err))
		} else if verified {
			// Independent post-commit read confirms the flag is durable.
			video, err := f.store.GetVideo(ctx, videoID)
			if err == nil && video.IsProcessed {
				return true
			}
			slog.Error("processed flag not durable",
				slog.String("id", videoID), slog.Int("attempt", attempt))
		}
		if attempt < maxAttempts {
			if err := f.sleep(ctx, f.cfg.MarkRetryDelay); err != nil {
				return false
			}
		}
	}
	return false
}

// failVideo logs and records one isolated per-video failure for a video with
// no stored row. The error record carries the video id, which is what counts
// the failed video.
func (f *Fetcher) failVideo(videoID, errorType string, err error) {
	slog.Error("video failed",
		slog.String("id", videoID), slog.String("type", errorType), slog.Any("error", err))
	f.monitor.RecordError(errorType, videoID)
}

// failPersisted records a failure for a video that already has a stored row.
// The processed record takes the failed-video count, so the error counter is
// recorded without a video id and the failure is counted exactly once.
func (f *Fetcher) failPersisted(ctx context.Context, videoID, errorType string, err error) {
	slog.Error("video failed",
		slog.String("id", videoID), slog.String("type", errorType), slog.Any("error", err))
	f.monitor.RecordError(errorType, "")
	f.monitor.RecordVideoProcessed(ctx, videoID, false, 0, 0)
}

// transcriptErrorType maps the platform error taxonomy to monitor counters.
func transcriptErrorType(err error) string {
	switch {
	case errors.Is(err, youtube.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, youtube.ErrSubtitlesDisabled):
		return "subtitles_disabled"
	case errors.Is(err, youtube.ErrAgeRestricted):
		return "age_restricted"
	default:
		return "transcript_error"
	}
}
