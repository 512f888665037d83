package collector

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go_transcripts/internal/monitor"
	"github.com/anatolykoptev/go_transcripts/internal/quality"
	"github.com/anatolykoptev/go_transcripts/internal/store"
	"github.com/anatolykoptev/go_transcripts/internal/youtube"
)

// fakePlatform scripts platform responses per test.
type fakePlatform struct {
	search        func(ctx context.Context, keyword string, maxResults int) ([]youtube.SearchResult, error)
	getDetails    func(ctx context.Context, videoID string) (*youtube.Details, error)
	getTranscript func(ctx context.Context, videoID string) ([]youtube.Segment, error)
}

func (p *fakePlatform) Search(ctx context.Context, keyword string, maxResults int) ([]youtube.SearchResult, error) {
	return p.search(ctx, keyword, maxResults)
}

func (p *fakePlatform) GetDetails(ctx context.Context, videoID string) (*youtube.Details, error) {
	if p.getDetails == nil {
		return &youtube.Details{ViewCount: 1000, Duration: "PT2H"}, nil
	}
	return p.getDetails(ctx, videoID)
}

func (p *fakePlatform) GetTranscript(ctx context.Context, videoID string) ([]youtube.Segment, error) {
	return p.getTranscript(ctx, videoID)
}

func testConfig() Config {
	return Config{
		TestMode:       true,
		SearchInterval: time.Millisecond,
		ErrorBackoff:   time.Millisecond,
		VideoInterval:  time.Millisecond,
		MarkRetryDelay: time.Millisecond,
	}
}

// newFetcher wires a Fetcher over a temp sqlite store with sleeps disabled.
func newFetcher(t *testing.T, p Platform, cfg Config) (*Fetcher, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(context.Background(), filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	m := monitor.New(s, filepath.Join(dir, "stats.json"))
	f := New(p, s, quality.NewChecker(s), m, cfg)
	f.sleep = func(context.Context, time.Duration) error { return nil }
	return f, s
}

func goodTranscript(n int) []youtube.Segment {
	segments := make([]youtube.Segment, n)
	for i := range segments {
		segments[i] = youtube.Segment{
			Text:     fmt.Sprintf("spoken line number %d", i),
			Start:    float64(i) * 3,
			Duration: 3,
		}
	}
	return segments
}

// singleResult serves one video under the first keyword and nothing after.
func singleResult(r youtube.SearchResult) func(context.Context, string, int) ([]youtube.SearchResult, error) {
	served := false
	return func(ctx context.Context, keyword string, maxResults int) ([]youtube.SearchResult, error) {
		if served {
			return nil, nil
		}
		served = true
		return []youtube.SearchResult{r}, nil
	}
}

func politicalResult(id string) youtube.SearchResult {
	return youtube.SearchResult{
		VideoID:      id,
		Title:        "Joe Rogan Experience #1234 - A Politician",
		Description:  "a conversation about the election, congress and immigration policy",
		ChannelTitle: "PowerfulJRE",
		PublishedAt:  time.Date(2021, 6, 15, 12, 0, 0, 0, time.UTC),
	}
}

func TestRunProcessesVideo(t *testing.T) {
	ctx := context.Background()
	p := &fakePlatform{
		search: singleResult(politicalResult("vid1")),
		getTranscript: func(ctx context.Context, videoID string) ([]youtube.Segment, error) {
			return goodTranscript(15), nil
		},
	}
	f, s := newFetcher(t, p, testConfig())

	summary, err := f.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Discovered)
	assert.Equal(t, 1, summary.Processed)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, "100.00%", summary.Collection.SuccessRate)

	video, err := s.GetVideo(ctx, "vid1")
	require.NoError(t, err)
	assert.True(t, video.IsProcessed)
	assert.Equal(t, "politics", video.MatchingKeyword)
	require.NotNil(t, video.EpisodeNumber)
	assert.Equal(t, 1234, *video.EpisodeNumber)
	assert.EqualValues(t, 1000, video.ViewCount)

	n, err := s.CountSegments(ctx, "vid1")
	require.NoError(t, err)
	assert.EqualValues(t, 15, n)
}

func TestRunRejectsBelowThreshold(t *testing.T) {
	ctx := context.Background()
	p := &fakePlatform{
		search: singleResult(youtube.SearchResult{
			VideoID:      "vid1",
			Title:        "Joe Rogan on sports cars",
			Description:  "engines and lap times",
			ChannelTitle: "PowerfulJRE",
			PublishedAt:  time.Date(2021, 6, 15, 12, 0, 0, 0, time.UTC),
		}),
		getTranscript: func(ctx context.Context, videoID string) ([]youtube.Segment, error) {
			t.Fatal("transcript fetched for rejected video")
			return nil, nil
		},
	}
	f, s := newFetcher(t, p, testConfig())

	summary, err := f.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Rejected)
	assert.Zero(t, summary.Processed)

	_, err = s.GetVideo(ctx, "vid1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunSkipsProcessedVideo(t *testing.T) {
	ctx := context.Background()
	p := &fakePlatform{
		search: singleResult(politicalResult("vid1")),
		getTranscript: func(ctx context.Context, videoID string) ([]youtube.Segment, error) {
			return goodTranscript(15), nil
		},
	}
	f, s := newFetcher(t, p, testConfig())

	score := 0.8
	v, err := store.NewVideo(store.VideoParams{
		VideoID:        "vid1",
		Title:          "Joe Rogan Experience #1234 - A Politician",
		PublishedAt:    time.Date(2021, 6, 15, 12, 0, 0, 0, time.UTC),
		ChannelTitle:   "PowerfulJRE",
		PoliticalScore: &score,
	})
	require.NoError(t, err)
	require.NoError(t, s.AddVideo(ctx, v))
	_, err = s.MarkProcessed(ctx, "vid1")
	require.NoError(t, err)

	summary, err := f.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.Processed)
}

func TestRunRebuildsStaleUnprocessedVideo(t *testing.T) {
	ctx := context.Background()
	p := &fakePlatform{
		search: singleResult(politicalResult("vid1")),
		getTranscript: func(ctx context.Context, videoID string) ([]youtube.Segment, error) {
			return goodTranscript(12), nil
		},
	}
	f, s := newFetcher(t, p, testConfig())

	// Leftover from an interrupted run: persisted but never marked processed.
	score := 0.8
	v, err := store.NewVideo(store.VideoParams{
		VideoID:        "vid1",
		Title:          "stale title",
		PublishedAt:    time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		ChannelTitle:   "PowerfulJRE",
		PoliticalScore: &score,
	})
	require.NoError(t, err)
	require.NoError(t, s.AddVideo(ctx, v))
	require.NoError(t, s.AddSegments(ctx, "vid1", []store.Segment{
		{Text: "stale segment one", Start: 0, Duration: 2},
		{Text: "stale segment two", Start: 2, Duration: 2},
	}))

	summary, err := f.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)

	video, err := s.GetVideo(ctx, "vid1")
	require.NoError(t, err)
	assert.Equal(t, "Joe Rogan Experience #1234 - A Politician", video.Title)
	assert.True(t, video.IsProcessed)

	n, err := s.CountSegments(ctx, "vid1")
	require.NoError(t, err)
	assert.EqualValues(t, 12, n)
}

func TestRunTranscriptUnavailable(t *testing.T) {
	ctx := context.Background()
	p := &fakePlatform{
		search: singleResult(politicalResult("vid1")),
		getTranscript: func(ctx context.Context, videoID string) ([]youtube.Segment, error) {
			return nil, youtube.ErrSubtitlesDisabled
		},
	}
	f, s := newFetcher(t, p, testConfig())

	summary, err := f.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	// Transcript failure happens before persistence: no row left behind.
	_, err = s.GetVideo(ctx, "vid1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 1, summary.Collection.ErrorSummary["subtitles_disabled"])
	assert.Equal(t, 1, summary.Collection.FailedVideos)
}

func TestFailureAfterPersistCountedOnce(t *testing.T) {
	ctx := context.Background()
	p := &fakePlatform{}
	f, s := newFetcher(t, p, testConfig())

	score := 0.8
	v, err := store.NewVideo(store.VideoParams{
		VideoID:        "vid1",
		Title:          "Joe Rogan Experience #1234 - A Politician",
		PublishedAt:    time.Date(2021, 6, 15, 12, 0, 0, 0, time.UTC),
		ChannelTitle:   "PowerfulJRE",
		PoliticalScore: &score,
	})
	require.NoError(t, err)
	require.NoError(t, s.AddVideo(ctx, v))

	f.failPersisted(ctx, "vid1", "storage_error", errors.New("disk full"))

	summary := f.monitor.GetCollectionSummary()
	assert.Equal(t, 1, summary.FailedVideos)
	assert.Equal(t, 1, summary.TotalVideos)
	assert.Zero(t, summary.ProcessedVideos)
	assert.Equal(t, 1, summary.ErrorSummary["storage_error"])
}

func TestTranscriptBackoffRetriesRateLimit(t *testing.T) {
	ctx := context.Background()
	calls := 0
	p := &fakePlatform{
		search: singleResult(politicalResult("vid1")),
		getTranscript: func(ctx context.Context, videoID string) ([]youtube.Segment, error) {
			calls++
			if calls <= 2 {
				return nil, youtube.ErrRateLimited
			}
			return goodTranscript(15), nil
		},
	}
	f, _ := newFetcher(t, p, testConfig())

	var waits []time.Duration
	f.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	segments, err := f.fetchTranscriptWithBackoff(ctx, "vid1")
	require.NoError(t, err)
	assert.Len(t, segments, 15)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, waits)
}

func TestTranscriptBackoffExhausted(t *testing.T) {
	ctx := context.Background()
	calls := 0
	p := &fakePlatform{
		getTranscript: func(ctx context.Context, videoID string) ([]youtube.Segment, error) {
			calls++
			return nil, youtube.ErrRateLimited
		},
	}
	f, _ := newFetcher(t, p, testConfig())

	_, err := f.fetchTranscriptWithBackoff(ctx, "vid1")
	assert.ErrorIs(t, err, youtube.ErrRateLimited)
	assert.Equal(t, 3, calls)
}

func TestTranscriptBackoffNonRetryable(t *testing.T) {
	ctx := context.Background()
	calls := 0
	p := &fakePlatform{
		getTranscript: func(ctx context.Context, videoID string) ([]youtube.Segment, error) {
			calls++
			return nil, youtube.ErrSubtitlesDisabled
		},
	}
	f, _ := newFetcher(t, p, testConfig())

	_, err := f.fetchTranscriptWithBackoff(ctx, "vid1")
	assert.ErrorIs(t, err, youtube.ErrSubtitlesDisabled)
	assert.Equal(t, 1, calls)
}

func TestDiscoverSearchErrorContinues(t *testing.T) {
	ctx := context.Background()
	var keywords []string
	p := &fakePlatform{
		search: func(ctx context.Context, keyword string, maxResults int) ([]youtube.SearchResult, error) {
			keywords = append(keywords, keyword)
			if keyword == "politics" {
				return nil, errors.New("api unavailable")
			}
			if keyword == "election" {
				return []youtube.SearchResult{politicalResult("vid1")}, nil
			}
			return nil, nil
		},
	}
	f, _ := newFetcher(t, p, testConfig())

	candidates, err := f.discover(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"politics", "election", "trump"}, keywords)
	require.Len(t, candidates, 1)
	assert.Equal(t, "vid1", candidates[0].result.VideoID)
	assert.Equal(t, "election", candidates[0].keyword)
}

func TestDiscoverDeduplicatesAcrossKeywords(t *testing.T) {
	ctx := context.Background()
	p := &fakePlatform{
		search: func(ctx context.Context, keyword string, maxResults int) ([]youtube.SearchResult, error) {
			return []youtube.SearchResult{politicalResult("vid1")}, nil
		},
	}
	f, _ := newFetcher(t, p, testConfig())

	candidates, err := f.discover(ctx)
	require.NoError(t, err)
	assert.Len(t, candidates, 1)
	assert.Equal(t, "politics", candidates[0].keyword)
}

func TestDiscoverDetailsFailureDegrades(t *testing.T) {
	ctx := context.Background()
	p := &fakePlatform{
		search: singleResult(politicalResult("vid1")),
		getDetails: func(ctx context.Context, videoID string) (*youtube.Details, error) {
			return nil, errors.New("details unavailable")
		},
	}
	f, _ := newFetcher(t, p, testConfig())

	candidates, err := f.discover(ctx)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Nil(t, candidates[0].details)
}

func TestDiscoverMaxVideosCap(t *testing.T) {
	ctx := context.Background()
	p := &fakePlatform{
		search: func(ctx context.Context, keyword string, maxResults int) ([]youtube.SearchResult, error) {
			results := make([]youtube.SearchResult, 5)
			for i := range results {
				r := politicalResult(fmt.Sprintf("%s-%d", keyword, i))
				results[i] = r
			}
			return results, nil
		},
	}
	cfg := testConfig()
	cfg.MaxVideos = 3
	f, _ := newFetcher(t, p, cfg)

	candidates, err := f.discover(ctx)
	require.NoError(t, err)
	assert.Len(t, candidates, 3)
}

func TestSearchKeywords(t *testing.T) {
	test := searchKeywords(true)
	assert.Equal(t, []string{"politics", "election", "trump"}, test)

	full := searchKeywords(false)
	assert.Greater(t, len(full), len(test))
	assert.Contains(t, full, "politics")
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.InDelta(t, 0.3, cfg.ScoreThreshold, 1e-9)
	assert.Equal(t, 50, cfg.ResultsPerKeyword)
	assert.Equal(t, 5*time.Second, cfg.ErrorBackoff)

	testCfg := Config{TestMode: true}.withDefaults()
	assert.Equal(t, 5, testCfg.ResultsPerKeyword)
	assert.Equal(t, 10*time.Second, testCfg.ErrorBackoff)
}
