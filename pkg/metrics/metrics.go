// Package metrics defines the Prometheus collectors for sentence generation,
// the model cache, posting and HTTP traffic, and exposes a scrape handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the bot.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SentencesTotal       *prometheus.CounterVec
	GenerationLatency    *prometheus.HistogramVec
	LookupMissesTotal    prometheus.Counter
	ModelCacheTotal      *prometheus.CounterVec
	ModelBuildDuration   prometheus.Histogram
	ModelMaxOrder        prometheus.Gauge
	PostsTotal           *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. Tests pass a fresh
// prometheus.NewRegistry; services pass prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SentencesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ngram_sentences_total",
				Help: "Generated sentences by kind (ngram, pos), link mode, and outcome (ok, stalled, error).",
			},
			[]string{"kind", "mode", "outcome"},
		),
		GenerationLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ngram_generation_seconds",
				Help:    "Sentence generation latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"kind"},
		),
		LookupMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ngram_lookup_misses_total",
				Help: "Prefix lookups that found no continuation and were retried.",
			},
		),
		ModelCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ngram_model_cache_total",
				Help: "Model lookups by result (resident, hit, miss, corrupt, stale).",
			},
			[]string{"result"},
		),
		ModelBuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ngram_model_build_seconds",
				Help:    "Time spent building a model from the corpus.",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
		),
		ModelMaxOrder: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ngram_model_max_order",
				Help: "Highest gram order in the loaded model.",
			},
		),
		PostsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ngram_posts_total",
				Help: "Posts handed to a sink by sink type and status.",
			},
			[]string{"sink", "status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SentencesTotal,
		m.GenerationLatency,
		m.LookupMissesTotal,
		m.ModelCacheTotal,
		m.ModelBuildDuration,
		m.ModelMaxOrder,
		m.PostsTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the scrape handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
