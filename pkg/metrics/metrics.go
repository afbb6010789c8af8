package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Queue related metrics
	CallsCommitted      *prometheus.CounterVec
	StateWrites         *prometheus.CounterVec
	AnnouncementsSent   *prometheus.CounterVec
	ChannelWriteFailure *prometheus.CounterVec
	ChannelLatency      *prometheus.HistogramVec
	CircuitBreakerState *prometheus.GaugeVec

	// Realtime gateway metrics
	RealtimeClients       prometheus.Gauge
	RealtimeFramesDropped *prometheus.CounterVec
	RealtimeFramesSent    *prometheus.CounterVec

	// Viewer metrics
	AnnouncementsDropped prometheus.Counter
	AnnouncementsPlayed  prometheus.Counter

	// Worker metrics
	CallsArchived        prometheus.Counter
	ArchiveFailures      prometheus.Counter
	ArchiveLatency       prometheus.Histogram
	StreamEntriesTrimmed prometheus.Counter

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
	DatabaseLatency    *prometheus.HistogramVec
}

// NewMetrics creates all application metrics and registers them with reg.
// A nil reg registers with the default registry.
func NewMetrics(namespace, subsystem string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		CallsCommitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "calls_committed_total",
			Help:      "Total number of call events appended to the call log",
		}, []string{"type"}),
		StateWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queue_state_writes_total",
			Help:      "Total number of queue state writes",
		}, []string{"operation"}),
		AnnouncementsSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "announcements_sent_total",
			Help:      "Total number of broadcast announcements",
		}, []string{"type"}),
		ChannelWriteFailure: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "channel_write_failures_total",
			Help:      "Total number of failed writes to the queue channel",
		}, []string{"operation"}),
		ChannelLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "channel_operation_duration_seconds",
			Help:      "Duration of queue channel operations",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5},
		}, []string{"operation"}),
		CircuitBreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"name"}),

		RealtimeClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "realtime_clients",
			Help:      "Current number of connected realtime viewers",
		}),
		RealtimeFramesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "realtime_frames_dropped_total",
			Help:      "Frames dropped because a viewer could not keep up",
		}, []string{"type"}),
		RealtimeFramesSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "realtime_frames_sent_total",
			Help:      "Frames queued to realtime viewers",
		}, []string{"type"}),

		AnnouncementsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "viewer_announcements_dropped_total",
			Help:      "Announcements dropped from a full viewer backlog",
		}),
		AnnouncementsPlayed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "viewer_announcements_played_total",
			Help:      "Announcements played to completion by a viewer",
		}),

		CallsArchived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "calls_archived_total",
			Help:      "Call events copied into call history",
		}),
		ArchiveFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "archive_failures_total",
			Help:      "Failed archive runs",
		}),
		ArchiveLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "archive_duration_seconds",
			Help:      "Time spent archiving one batch of call events",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		StreamEntriesTrimmed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stream_entries_trimmed_total",
			Help:      "Channel stream entries removed by retention",
		}),

		DatabaseOperations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
		DatabaseLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "database_operation_duration_seconds",
			Help:      "Duration of database operations",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),
	}
}

// NewTestMetrics returns metrics bound to a private registry so tests can build
// as many instances as they like.
func NewTestMetrics() *Metrics {
	return NewMetrics("test", "", prometheus.NewRegistry())
}
