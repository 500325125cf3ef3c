// Package metrics defines the worker's Prometheus collectors and registers
// them with the default registry at init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "siphon_messages_consumed_total",
			Help: "Total number of queue messages consumed, labeled by outcome.",
		},
		[]string{"outcome"},
	)
	JobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "siphon_job_duration_seconds",
			Help:    "Duration of extraction jobs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)
	JobsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "siphon_jobs_in_flight",
			Help: "Number of jobs currently being processed (0 or 1 per worker).",
		},
	)
	UnitsExtracted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "siphon_units_extracted_total",
			Help: "Total number of extractable units returned by extractors.",
		},
	)
	ChunksWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "siphon_chunks_written_total",
			Help: "Total number of chunks persisted.",
		},
	)
	BrokerReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "siphon_broker_reconnects_total",
			Help: "Total number of times the broker connection was re-established.",
		},
	)
	PublishedJobs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "siphon_published_jobs_total",
			Help: "Total number of job messages published.",
		},
	)
)

func init() {
	prometheus.MustRegister(MessagesConsumed)
	prometheus.MustRegister(JobDuration)
	prometheus.MustRegister(JobsInFlight)
	prometheus.MustRegister(UnitsExtracted)
	prometheus.MustRegister(ChunksWritten)
	prometheus.MustRegister(BrokerReconnects)
	prometheus.MustRegister(PublishedJobs)
}
