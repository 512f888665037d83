package youtube

import "sync/atomic"

// Request counters, one per API surface.
var metrics struct {
	SearchRequests     atomic.Int64
	DetailsRequests    atomic.Int64
	TranscriptRequests atomic.Int64
}

func incrSearch()     { metrics.SearchRequests.Add(1) }
func incrDetails()    { metrics.DetailsRequests.Add(1) }
func incrTranscript() { metrics.TranscriptRequests.Add(1) }

// Metrics returns a snapshot of all request counters.
func Metrics() map[string]int64 {
	return map[string]int64{
		"search_requests":     metrics.SearchRequests.Load(),
		"details_requests":    metrics.DetailsRequests.Load(),
		"transcript_requests": metrics.TranscriptRequests.Load(),
	}
}
