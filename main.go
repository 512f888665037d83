// go_transcripts — political-content transcript collector for a single
// YouTube channel.
//
// Searches the channel by keyword, scores each hit for political relevance,
// fetches transcripts, persists everything to SQLite (or PostgreSQL via
// DATABASE_URL), and tracks collection health in a stats file.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go_transcripts/internal/collector"
	"github.com/anatolykoptev/go_transcripts/internal/monitor"
	"github.com/anatolykoptev/go_transcripts/internal/quality"
	"github.com/anatolykoptev/go_transcripts/internal/store"
	"github.com/anatolykoptev/go_transcripts/internal/youtube"
)

// JRE Clips channel.
const defaultChannelID = "UCnxGkOGNMqQEUMvroOWps6Q"

var (
	apiKey      = env.Str("YOUTUBE_API_KEY", "")
	channelID   = env.Str("CHANNEL_ID", defaultChannelID)
	dbURL       = env.Str("DATABASE_URL", "transcripts.db")
	statsFile   = env.Str("STATS_FILE", "collection_stats.json")
	maxVideos   = env.Int("MAX_VIDEOS", 100)
	threshold   = env.Float("SCORE_THRESHOLD", 0.3)
	testMode, _ = strconv.ParseBool(env.Str("TEST_MODE", "false"))
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if apiKey == "" {
		slog.Error("YOUTUBE_API_KEY is required")
		os.Exit(1)
	}

	db, err := store.Open(ctx, dbURL)
	if err != nil {
		slog.Error("store init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	mon := monitor.New(db, statsFile)
	checker := quality.NewChecker(db)
	client := youtube.NewClient(apiKey, channelID)

	fetcher := collector.New(client, db, checker, mon, collector.Config{
		ScoreThreshold: threshold,
		MaxVideos:      maxVideos,
		TestMode:       testMode,
	})

	slog.Info("starting collection",
		slog.String("channel", channelID),
		slog.Int("max_videos", maxVideos),
		slog.Bool("test_mode", testMode))

	summary, err := fetcher.Run(ctx)
	if err != nil {
		slog.Error("collection run aborted", slog.Any("error", err))
	}
	if summary == nil {
		os.Exit(1)
	}

	slog.Info("collection finished",
		slog.Int("discovered", summary.Discovered),
		slog.Int("processed", summary.Processed),
		slog.Int("failed", summary.Failed),
		slog.Int("rejected", summary.Rejected),
		slog.Int("skipped", summary.Skipped),
		slog.String("success_rate", summary.Collection.SuccessRate),
		slog.Int("duplicate_groups", len(summary.Duplicates)))

	daily := mon.GetDailyReport(7)
	for _, day := range daily.Days {
		if day.VideosProcessed == 0 && day.Errors == 0 {
			continue
		}
		slog.Info("daily activity",
			slog.String("date", day.Date),
			slog.Int("videos", day.VideosProcessed),
			slog.Int("segments", day.SegmentsCollected),
			slog.Int("errors", day.Errors))
	}
	slog.Info("api usage", slog.Any("requests", youtube.Metrics()))
}
