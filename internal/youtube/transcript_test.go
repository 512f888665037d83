package youtube

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimedText(t *testing.T) {
	body := []byte(`<?xml version="1.0" encoding="utf-8"?>
<transcript>
  <text start="0.12" dur="3.5">hello everybody</text>
  <text start="3.62" dur="2.1">we&#39;re talking politics today</text>
  <text start="5.72" dur="1.0">   </text>
  <text start="6.72" dur="2.0">&amp; more</text>
</transcript>`)

	segments, err := parseTimedText(body)
	require.NoError(t, err)
	require.Len(t, segments, 3)

	assert.Equal(t, "hello everybody", segments[0].Text)
	assert.InDelta(t, 0.12, segments[0].Start, 1e-9)
	assert.InDelta(t, 3.5, segments[0].Duration, 1e-9)
	assert.Equal(t, "we're talking politics today", segments[1].Text)
	assert.Equal(t, "& more", segments[2].Text)
}

func TestParseTimedTextInvalid(t *testing.T) {
	_, err := parseTimedText([]byte("not xml at all <"))
	assert.Error(t, err)
}

func TestPickTrack(t *testing.T) {
	manual := captionTrack{BaseURL: "manual-en", LanguageCode: "en"}
	asr := captionTrack{BaseURL: "asr-en", LanguageCode: "en", Kind: "asr"}
	spanish := captionTrack{BaseURL: "manual-es", LanguageCode: "es"}

	tests := []struct {
		name   string
		tracks []captionTrack
		want   string
	}{
		{"manual english wins", []captionTrack{asr, spanish, manual}, "manual-en"},
		{"asr english over foreign", []captionTrack{spanish, asr}, "asr-en"},
		{"first track fallback", []captionTrack{spanish}, "manual-es"},
		{"en-US counts as english", []captionTrack{spanish, {BaseURL: "us", LanguageCode: "en-US"}}, "us"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pickTrack(tt.tracks).BaseURL)
		})
	}
}

func TestGetTranscript(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/timedtext", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<transcript>
			<text start="0" dur="2">first line</text>
			<text start="2" dur="2">second line</text>
		</transcript>`))
	})
	mux.HandleFunc("/player", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		w.Write([]byte(`{
			"captions": {
				"playerCaptionsTracklistRenderer": {
					"captionTracks": [
						{"baseUrl": "` + srv.URL + `/timedtext", "languageCode": "en"}
					]
				}
			}
		}`))
	})

	c := NewClient("test-key", "chan1", WithPlayerURL(srv.URL+"/player"))
	segments, err := c.GetTranscript(context.Background(), "vid1")
	require.NoError(t, err)
	require.Len(t, segments, 2)
	assert.Equal(t, "first line", segments[0].Text)
	assert.Equal(t, "second line", segments[1].Text)
}

func TestGetTranscriptErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{
			"throttled", http.StatusTooManyRequests, "", ErrRateLimited,
		},
		{
			"no captions block", http.StatusOK,
			`{"playabilityStatus": {"status": "OK"}}`,
			ErrSubtitlesDisabled,
		},
		{
			"empty caption tracks", http.StatusOK,
			`{"captions": {"playerCaptionsTracklistRenderer": {"captionTracks": []}}}`,
			ErrSubtitlesDisabled,
		},
		{
			"age gated by reason", http.StatusOK,
			`{"playabilityStatus": {"status": "LOGIN_REQUIRED", "reason": "Sign in to confirm your age"}}`,
			ErrAgeRestricted,
		},
		{
			"age gated by status", http.StatusOK,
			`{"playabilityStatus": {"status": "AGE_CHECK_REQUIRED"}}`,
			ErrAgeRestricted,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient("test-key", "chan1", WithPlayerURL(srv.URL))
			_, err := c.GetTranscript(context.Background(), "vid1")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
