package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APIRequests counts outbound API calls by method, route template and outcome.
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_api_requests_total",
		Help: "Outbound API requests by method, route and outcome.",
	}, []string{"method", "route", "outcome"})

	// APILatency observes outbound API call durations.
	APILatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "campus_api_request_duration_seconds",
		Help:    "Outbound API request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// RSVPs counts RSVP attempts by outcome (confirmed, rolled_back, rejected_local).
	RSVPs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_rsvp_total",
		Help: "RSVP attempts by outcome.",
	}, []string{"outcome"})

	// Scans counts attendance scans by outcome.
	Scans = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_scans_total",
		Help: "Attendance scans by outcome.",
	}, []string{"outcome"})

	// ScanQueueDepth is the number of scans published but not yet consumed.
	ScanQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "campus_scan_queue_depth",
		Help: "Scans waiting in the ingress queue.",
	})
)
