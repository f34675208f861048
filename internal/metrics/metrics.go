// Package metrics holds the Prometheus collectors of the triage server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// API server

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "triage_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Tickets

	TicketsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "triage_tickets_created_total",
			Help: "Total number of tickets created",
		},
	)

	// Analysis

	AnalysisRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_analysis_runs_total",
			Help: "Total number of analysis runs by outcome",
		},
		[]string{"status"},
	)

	AnalysisRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "triage_analysis_run_duration_seconds",
			Help:    "Analysis run duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	// ClassificationsTotal counts ticket classifications by source
	// (llm or keyword) and category.
	ClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_classifications_total",
			Help: "Total number of ticket classifications",
		},
		[]string{"source", "category"},
	)

	SummariesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_summaries_total",
			Help: "Total number of run summaries by source",
		},
		[]string{"source"},
	)

	// Notifications

	SlackPostsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_slack_posts_total",
			Help: "Total number of Slack summary posts by outcome",
		},
		[]string{"status"},
	)

	ScheduledRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_scheduled_runs_total",
			Help: "Total number of scheduled analysis runs by outcome",
		},
		[]string{"status"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
