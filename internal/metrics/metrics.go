// Package metrics exposes Prometheus collectors for imgscout.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	searchesTotal              *prometheus.CounterVec
	strategyHitsTotal          *prometheus.CounterVec
	imageFetchesTotal          *prometheus.CounterVec
	imageFetchDurationSeconds  *prometheus.HistogramVec
	imagesSavedTotal           prometheus.Counter
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		searchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imgscout_searches_total",
				Help: "Total number of searches, labeled by outcome (found, empty, error).",
			},
			[]string{"outcome"},
		)

		strategyHitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imgscout_strategy_hits_total",
				Help: "Number of searches resolved by each selector strategy.",
			},
			[]string{"strategy"},
		)

		imageFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imgscout_image_fetches_total",
				Help: "Total image fetches, labeled by result.",
			},
			[]string{"result"},
		)

		imageFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "imgscout_image_fetch_duration_seconds",
				Help:    "Histogram of image fetch latencies, labeled by site.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"site"},
		)

		imagesSavedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "imgscout_images_saved_total",
				Help: "Total number of images saved.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "imgscout_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
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

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
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
	Init()
	return promhttp.Handler()
}

// ObserveSearch counts a finished search; outcome is found, empty, or error.
func ObserveSearch(outcome string) {
	Init()
	searchesTotal.WithLabelValues(outcome).Inc()
}

// ObserveStrategyHit counts the strategy that produced a ResultSet.
func ObserveStrategyHit(strategy string) {
	Init()
	strategyHitsTotal.WithLabelValues(strategy).Inc()
}

// ObserveFetch records one image fetch; result is ok or a failure kind.
func ObserveFetch(imageURL, result string, duration time.Duration) {
	Init()
	imageFetchesTotal.WithLabelValues(result).Inc()
	imageFetchDurationSeconds.WithLabelValues(SanitizeSite(imageURL)).Observe(duration.Seconds())
}

// ObserveSave increments the saved image counter.
func ObserveSave() {
	Init()
	imagesSavedTotal.Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
