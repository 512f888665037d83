// Package youtube is the video-platform capability: Data API v3 search and
// detail lookups plus Innertube transcript fetching.
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	dataAPIBase  = "https://www.googleapis.com/youtube/v3"
	userAgentBot = "GoTranscripts/1.0"

	// Collection window bounds applied to every search.
	publishedAfter  = "2017-01-01T00:00:00Z"
	publishedBefore = "2025-01-01T00:00:00Z"
)

// Error taxonomy for transcript and API failures. The collector matches these
// with errors.Is to decide retry behavior.
var (
	ErrRateLimited       = errors.New("youtube: rate limited")
	ErrSubtitlesDisabled = errors.New("youtube: subtitles disabled")
	ErrAgeRestricted     = errors.New("youtube: age restricted")
)

// SearchResult is one hit from a keyword search.
type SearchResult struct {
	VideoID      string
	Title        string
	Description  string
	ChannelTitle string
	PublishedAt  time.Time
}

// Details carries the statistics and content details for a single video.
type Details struct {
	ViewCount    int64
	LikeCount    int64
	CommentCount int64
	Duration     string // opaque ISO-8601 duration from the API
}

// Segment is one transcript line with its timing.
type Segment struct {
	Text     string
	Start    float64
	Duration float64
}

// Client talks to YouTube. Safe for sequential use by one collector.
type Client struct {
	apiKey      string
	channelID   string
	http        *http.Client
	apiBase     string // overridable in tests
	playerURL   string
	timedTextUA string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithAPIBase overrides the Data API base URL (tests).
func WithAPIBase(base string) Option {
	return func(c *Client) { c.apiBase = base }
}

// WithPlayerURL overrides the Innertube player endpoint (tests).
func WithPlayerURL(u string) Option {
	return func(c *Client) { c.playerURL = u }
}

// NewClient builds a YouTube client scoped to a single channel.
func NewClient(apiKey, channelID string, opts ...Option) *Client {
	c := &Client{
		apiKey:    apiKey,
		channelID: channelID,
		http: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     60 * time.Second,
			},
		},
		apiBase:     dataAPIBase,
		playerURL:   innertubePlayerURL,
		timedTextUA: userAgentBot,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchResp struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			Description  string `json:"description"`
			ChannelTitle string `json:"channelTitle"`
			PublishedAt  string `json:"publishedAt"`
		} `json:"snippet"`
	} `json:"items"`
}

// Search queries the channel for videos matching keyword, most relevant
// first, bounded to the collection window.
func (c *Client) Search(ctx context.Context, keyword string, maxResults int) ([]SearchResult, error) {
	incrSearch()
	if maxResults <= 0 || maxResults > 50 {
		maxResults = 50
	}

	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("channelId", c.channelID)
	params.Set("q", keyword)
	params.Set("type", "video")
	params.Set("maxResults", strconv.Itoa(maxResults))
	params.Set("publishedAfter", publishedAfter)
	params.Set("publishedBefore", publishedBefore)
	params.Set("order", "relevance")
	params.Set("key", c.apiKey)

	body, err := c.getAPI(ctx, c.apiBase+"/search?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("youtube search %q: %w", keyword, err)
	}

	var resp searchResp
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("youtube search %q: decode: %w", keyword, err)
	}

	results := make([]SearchResult, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.ID.VideoID == "" {
			continue
		}
		publishedAt, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt)
		if err != nil {
			continue
		}
		results = append(results, SearchResult{
			VideoID:      item.ID.VideoID,
			Title:        item.Snippet.Title,
			Description:  item.Snippet.Description,
			ChannelTitle: item.Snippet.ChannelTitle,
			PublishedAt:  publishedAt,
		})
	}
	return results, nil
}

type videosResp struct {
	Items []struct {
		Statistics struct {
			ViewCount    string `json:"viewCount"`
			LikeCount    string `json:"likeCount"`
			CommentCount string `json:"commentCount"`
		} `json:"statistics"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
	} `json:"items"`
}

// GetDetails fetches statistics and content details for one video.
func (c *Client) GetDetails(ctx context.Context, videoID string) (*Details, error) {
	incrDetails()

	params := url.Values{}
	params.Set("part", "statistics,contentDetails")
	params.Set("id", videoID)
	params.Set("key", c.apiKey)

	body, err := c.getAPI(ctx, c.apiBase+"/videos?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("youtube details %s: %w", videoID, err)
	}

	var resp videosResp
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("youtube details %s: decode: %w", videoID, err)
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("youtube details %s: no items", videoID)
	}

	item := resp.Items[0]
	return &Details{
		ViewCount:    parseCount(item.Statistics.ViewCount),
		LikeCount:    parseCount(item.Statistics.LikeCount),
		CommentCount: parseCount(item.Statistics.CommentCount),
		Duration:     item.ContentDetails.Duration,
	}, nil
}

// getAPI issues a Data API GET and maps quota/backpressure statuses onto
// ErrRateLimited.
func (c *Client) getAPI(ctx context.Context, apiURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgentBot)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode == http.StatusTooManyRequests ||
			(resp.StatusCode == http.StatusForbidden && strings.Contains(strings.ToLower(string(body)), "quota")) {
			return nil, fmt.Errorf("%w: HTTP %d: %s", ErrRateLimited, resp.StatusCode, body)
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, body)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
}

func parseCount(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
