package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicedesk_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voicedesk_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)

	// Playback metrics
	SynthesisRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicedesk_synthesis_requests_total",
			Help: "Speech synthesis calls made by playback controllers",
		},
		[]string{"origin", "outcome"}, // origin: auto|manual, outcome: ok|error
	)

	PlaybackStarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicedesk_playback_starts_total",
			Help: "Playback sessions that reached the playing state",
		},
		[]string{"origin"},
	)

	PlaybackSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicedesk_playback_skipped_total",
			Help: "Automatic playback triggers that were ignored",
		},
		[]string{"reason"}, // displayed|played|blank|superseded
	)

	// Transcription metrics
	Transcriptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicedesk_transcriptions_total",
			Help: "Transcription attempts by result",
		},
		[]string{"result"}, // ok or a failure kind
	)

	// Assistant backend metrics
	AssistantRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicedesk_assistant_requests_total",
			Help: "Assistant backend requests",
		},
		[]string{"outcome"}, // ok|fallback
	)

	// Connection metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "voicedesk_websocket_connections",
			Help: "Connected dashboard clients",
		},
	)
)
