package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Client metrics collectors
var (
	// Streaming channels

	StreamChannelsOpenedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bright_stream_channels_opened_total",
			Help: "Total number of streaming channels opened",
		},
		[]string{"route"},
	)

	StreamChannelsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bright_stream_channels_active",
			Help: "Number of open streaming channels",
		},
		[]string{"route"},
	)

	StreamFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bright_stream_frames_total",
			Help: "Total number of inbound frames by classification",
		},
		[]string{"route", "kind"},
	)

	StreamFramesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bright_stream_frames_sent_total",
			Help: "Total number of outbound frames written",
		},
		[]string{"route"},
	)

	StreamTerminationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bright_stream_terminations_total",
			Help: "Total number of channel terminations by reason",
		},
		[]string{"route", "reason"},
	)

	// REST calls

	RESTRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bright_rest_requests_total",
			Help: "Total number of REST requests sent to the node",
		},
		[]string{"operation", "status"},
	)

	RESTRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bright_rest_request_duration_seconds",
			Help:    "REST request latency in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)
)
