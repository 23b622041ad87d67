// Package metrics provides Prometheus metrics for the analytics and
// rule-engine subsystems.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipetrack_events_ingested_total",
			Help: "Total number of stage-transition events ingested",
		},
		[]string{"kind"},
	)
	EventsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipetrack_events_rejected_total",
			Help: "Total number of ingested events rejected as malformed",
		},
	)
	AggregationQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipetrack_aggregation_queries_total",
			Help: "Total number of stage-duration aggregation queries",
		},
		[]string{"range"},
	)
	AggregationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipetrack_aggregation_duration_seconds",
			Help:    "Time spent reconstructing and aggregating intervals per query",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)
	StoreQueryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipetrack_store_query_failures_total",
			Help: "Event-store query failures degraded to empty aggregates",
		},
	)
	RuleEngineTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipetrack_rule_engine_ticks_total",
			Help: "Total number of rule-engine evaluation passes",
		},
	)
	TasksAutoCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipetrack_tasks_auto_created_total",
			Help: "Total number of tasks created by the rule engine",
		},
		[]string{"origin"},
	)
	UrgentRoles = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pipetrack_urgent_roles",
			Help: "Roles currently breaching an SLA threshold, per workspace",
		},
		[]string{"workspace"},
	)
	RateLimitedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipetrack_rate_limited_requests_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"route"},
	)
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipetrack_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipetrack_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

func RecordEventIngested(kind string) {
	EventsIngested.WithLabelValues(kind).Inc()
}

func RecordAggregationQuery(rangeKey string, duration time.Duration) {
	AggregationQueries.WithLabelValues(rangeKey).Inc()
	AggregationDuration.Observe(duration.Seconds())
}

func RecordTaskAutoCreated(origin string) {
	TasksAutoCreated.WithLabelValues(origin).Inc()
}

func UpdateUrgentRoles(workspace string, count int) {
	UrgentRoles.WithLabelValues(workspace).Set(float64(count))
}

func RecordRateLimited(route string) {
	RateLimitedRequests.WithLabelValues(route).Inc()
}

func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
