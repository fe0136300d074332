package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_booking", Name: "rides_created_total", Help: "Total rides published"})
	RidesActive       = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_booking", Name: "rides_active", Help: "Rides currently accepting requests"})
	RequestsTotal     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_booking", Name: "passenger_requests_total", Help: "Total passenger requests created"})
	DecisionsTotal    = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_booking", Name: "request_decisions_total", Help: "Request decisions by outcome"},
		[]string{"decision"},
	)
	MatchesTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_booking", Name: "match_queries_total", Help: "Total best-ride queries served"})
	MatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "ride_booking", Name: "match_latency_seconds", Help: "Best-ride query latency"})

	SeatConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_booking", Name: "seat_conflicts_total", Help: "Approvals refused because the last seat was already taken"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_booking", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_booking",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
