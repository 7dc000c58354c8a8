package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doorman_decisions_total",
			Help: "Total number of admission decisions by outcome",
		},
		[]string{"scenario", "decision"},
	)

	RuleHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doorman_rule_hits_total",
			Help: "Number of decisions produced by each rule",
		},
		[]string{"scenario", "rule"},
	)

	VenueOccupancy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "doorman_venue_occupancy",
			Help: "Number of applicants admitted in the current session",
		},
		[]string{"scenario"},
	)

	AttributeAdmitted = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "doorman_attribute_admitted",
			Help: "Admitted applicants carrying each tracked attribute",
		},
		[]string{"scenario", "attribute"},
	)

	AttributeProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "doorman_attribute_progress_ratio",
			Help: "Admitted count divided by the attribute minimum",
		},
		[]string{"scenario", "attribute"},
	)

	GatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "doorman_gateway_request_duration_seconds",
			Help:    "Latency of requests to the admission service",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "status"},
	)

	GatewayRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doorman_gateway_retries_total",
			Help: "Total number of retried requests to the admission service",
		},
		[]string{"endpoint"},
	)

	SessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doorman_sessions_total",
			Help: "Total number of sessions by outcome",
		},
		[]string{"scenario", "outcome"},
	)
)
