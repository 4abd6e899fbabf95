// Package metrics exposes Prometheus collectors for the scraper.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	loginsTotal                *prometheus.CounterVec
	captchaAttemptsTotal       *prometheus.CounterVec
	queriesTotal               *prometheus.CounterVec
	queryResultRows            *prometheus.HistogramVec
	bisectionSplitsTotal       *prometheus.CounterVec
	limitHitsTotal             *prometheus.CounterVec
	downloadsTotal             *prometheus.CounterVec
	downloadBytesTotal         *prometheus.CounterVec
	activeDownloads            prometheus.Gauge
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		loginsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "satscraper_logins_total",
				Help: "Total number of login attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		captchaAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "satscraper_captcha_attempts_total",
				Help: "Total number of captcha resolutions, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		queriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "satscraper_queries_total",
				Help: "Total number of resolved portal queries, labeled by download type and outcome.",
			},
			[]string{"download_type", "outcome"},
		)

		queryResultRows = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "satscraper_query_result_rows",
				Help:    "Histogram of rows returned per portal query.",
				Buckets: []float64{0, 1, 10, 50, 100, 250, 499, 500},
			},
			[]string{"download_type"},
		)

		bisectionSplitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "satscraper_bisection_splits_total",
				Help: "Total number of windows shrunk because they reached the row cap.",
			},
			[]string{"download_type"},
		)

		limitHitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "satscraper_limit_hits_total",
				Help: "Total number of single-second windows that still reached the row cap.",
			},
			[]string{"download_type"},
		)

		downloadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "satscraper_downloads_total",
				Help: "Total number of resource downloads, labeled by resource type and outcome.",
			},
			[]string{"resource", "outcome"},
		)

		downloadBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "satscraper_download_bytes_total",
				Help: "Total number of bytes of validated resources, labeled by resource type.",
			},
			[]string{"resource"},
		)

		activeDownloads = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "satscraper_active_downloads",
				Help: "Number of resource downloads currently in flight.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "satscraper_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the per-host request limiter.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
			},
			[]string{"host"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveLogin counts a login attempt.
func ObserveLogin(outcome string) {
	Init()
	loginsTotal.WithLabelValues(outcome).Inc()
}

// ObserveCaptcha counts a captcha resolution.
func ObserveCaptcha(outcome string) {
	Init()
	captchaAttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveQuery records a resolved query and its row count. rows is ignored on failure.
func ObserveQuery(downloadType, outcome string, rows int) {
	Init()
	queriesTotal.WithLabelValues(downloadType, outcome).Inc()
	if outcome == OutcomeSuccess {
		queryResultRows.WithLabelValues(downloadType).Observe(float64(rows))
	}
}

// ObserveBisectionSplit counts a window shrink.
func ObserveBisectionSplit(downloadType string) {
	Init()
	bisectionSplitsTotal.WithLabelValues(downloadType).Inc()
}

// ObserveLimitHit counts an unresolvable row cap hit.
func ObserveLimitHit(downloadType string) {
	Init()
	limitHitsTotal.WithLabelValues(downloadType).Inc()
}

// ObserveDownload counts a finished resource download.
func ObserveDownload(resource, outcome string, bytesFetched int) {
	Init()
	downloadsTotal.WithLabelValues(resource, outcome).Inc()
	if bytesFetched > 0 {
		downloadBytesTotal.WithLabelValues(resource).Add(float64(bytesFetched))
	}
}

// IncActiveDownloads increments the in-flight downloads gauge.
func IncActiveDownloads() {
	Init()
	activeDownloads.Inc()
}

// DecActiveDownloads decrements the in-flight downloads gauge.
func DecActiveDownloads() {
	Init()
	activeDownloads.Dec()
}

// ObserveRateLimitDelay records how long a request waited for a limiter token.
func ObserveRateLimitDelay(host string, delay time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(delay.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Common outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)
