// Package metrics exposes Prometheus collectors for the harvest pipeline.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	strategyAttemptsTotal   *prometheus.CounterVec
	strategyQuality         *prometheus.HistogramVec
	strategyDurationSeconds *prometheus.HistogramVec
	rateLimitDelaysSeconds  *prometheus.HistogramVec
	cacheLookupsTotal       *prometheus.CounterVec
	entitiesProcessedTotal  *prometheus.CounterVec
	reviewQueueSize         prometheus.Gauge
	activeEntityTasks       prometheus.Gauge
	changesDetectedTotal    *prometheus.CounterVec
	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDuration     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		strategyAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campharvest_strategy_attempts_total",
				Help: "Strategy executions, labeled by strategy and outcome.",
			},
			[]string{"strategy", "outcome"},
		)

		strategyQuality = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "campharvest_strategy_quality",
				Help:    "Quality score of successful strategy results.",
				Buckets: []float64{0, 20, 40, 60, 70, 80, 90, 100},
			},
			[]string{"strategy"},
		)

		strategyDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "campharvest_strategy_duration_seconds",
				Help:    "Wall time spent per strategy including retries.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"strategy"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "campharvest_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campharvest_cache_lookups_total",
				Help: "Content cache lookups, labeled by result.",
			},
			[]string{"result"},
		)

		entitiesProcessedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campharvest_entities_processed_total",
				Help: "Entities processed, labeled by quality band.",
			},
			[]string{"band"},
		)

		reviewQueueSize = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "campharvest_review_queue_size",
				Help: "Entries currently in the human review queue.",
			},
		)

		activeEntityTasks = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "campharvest_active_entity_tasks",
				Help: "Entity tasks currently running.",
			},
		)

		changesDetectedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campharvest_changes_detected_total",
				Help: "Field changes detected, labeled by field and significance.",
			},
			[]string{"field", "significance"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campharvest_http_requests_total",
				Help: "Status API requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "campharvest_http_request_duration_seconds",
				Help:    "Status API latencies, labeled by method and route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeHost extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeHost(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Push sends the default registry to a Prometheus pushgateway.
func Push(ctx context.Context, gatewayURL, job string) error {
	if gatewayURL == "" {
		return nil
	}
	if err := push.New(gatewayURL, job).Gatherer(prometheus.DefaultGatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}

// ObserveStrategy records one strategy execution.
func ObserveStrategy(strategy string, success bool, quality int, duration time.Duration) {
	if strategyAttemptsTotal == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
		strategyQuality.WithLabelValues(strategy).Observe(float64(quality))
	}
	strategyAttemptsTotal.WithLabelValues(strategy, outcome).Inc()
	strategyDurationSeconds.WithLabelValues(strategy).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	if rateLimitDelaysSeconds == nil {
		return
	}
	rateLimitDelaysSeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveCacheLookup counts a cache hit or miss.
func ObserveCacheLookup(hit bool) {
	if cacheLookupsTotal == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveEntity counts a finished entity by quality band.
func ObserveEntity(quality int) {
	if entitiesProcessedTotal == nil {
		return
	}
	entitiesProcessedTotal.WithLabelValues(QualityBand(quality)).Inc()
}

// ObserveChange counts a detected field change.
func ObserveChange(field, significance string) {
	if changesDetectedTotal == nil {
		return
	}
	changesDetectedTotal.WithLabelValues(field, significance).Inc()
}

// SetReviewQueueSize updates the review queue gauge.
func SetReviewQueueSize(n int) {
	if reviewQueueSize == nil {
		return
	}
	reviewQueueSize.Set(float64(n))
}

// IncActiveTasks increments the active entity task gauge.
func IncActiveTasks() {
	if activeEntityTasks == nil {
		return
	}
	activeEntityTasks.Inc()
}

// DecActiveTasks decrements the active entity task gauge.
func DecActiveTasks() {
	if activeEntityTasks == nil {
		return
	}
	activeEntityTasks.Dec()
}

// QualityBand maps a score onto the report bands.
func QualityBand(quality int) string {
	switch {
	case quality >= 60:
		return "successful"
	case quality > 0:
		return "needs_review"
	default:
		return "failed"
	}
}

// ObserveHTTPRequest records one status API request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
