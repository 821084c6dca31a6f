package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	// Alerting metrics
	alertsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cml_alerts_created_total",
			Help: "Alerts inserted by the alert generator",
		},
		[]string{"alert_type", "severity"},
	)

	alertsDeduplicated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cml_alerts_deduplicated_total",
			Help: "Candidate alerts skipped because a recent unresolved alert exists",
		},
		[]string{"alert_type"},
	)

	generationSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cml_alert_generation_skipped_total",
			Help: "Test results that were not eligible for alert generation",
		},
		[]string{"reason"},
	)

	generationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cml_alert_generation_failures_total",
			Help: "Alert generation runs that failed and were swallowed",
		},
		[]string{"trigger"},
	)

	backfillRuns = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cml_alert_backfill_duration_seconds",
			Help:    "Duration of alert backfill runs",
			Buckets: []float64{.1, .5, 1, 5, 15, 60, 300},
		},
	)

	medicationCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cml_medication_cache_lookups_total",
			Help: "Medication cache lookups by outcome",
		},
		[]string{"outcome"},
	)
)

// Handler exposes the default registry.
func Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}

// Middleware records request counts and latency by route template, so path
// parameters do not blow up label cardinality.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method

			httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			httpRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// --- Alerting helpers ---

func RecordAlertCreated(alertType, severity string) {
	alertsCreated.WithLabelValues(alertType, severity).Inc()
}

func RecordAlertDeduplicated(alertType string) {
	alertsDeduplicated.WithLabelValues(alertType).Inc()
}

func RecordGenerationSkipped(reason string) {
	generationSkipped.WithLabelValues(reason).Inc()
}

// RecordGenerationFailure counts a swallowed failure; trigger is "submission"
// or "backfill".
func RecordGenerationFailure(trigger string) {
	generationFailures.WithLabelValues(trigger).Inc()
}

func RecordBackfill(duration time.Duration) {
	backfillRuns.Observe(duration.Seconds())
}

func RecordMedicationCacheLookup(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	medicationCacheLookups.WithLabelValues(outcome).Inc()
}
