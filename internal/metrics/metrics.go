package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cashflow"

// Recorder holds the service's Prometheus collectors.
type Recorder struct {
	forecastsTotal   *prometheus.CounterVec
	forecastDuration *prometheus.HistogramVec
	confidence       prometheus.Histogram
	trainingTotal    *prometheus.CounterVec
	cacheRequests    *prometheus.CounterVec
	modelCacheSize   prometheus.Gauge
	httpRequests     *prometheus.CounterVec
	httpLatency      *prometheus.HistogramVec
}

// NewRecorder registers the collectors on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		forecastsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "forecasts_total",
				Help:      "Forecast generations by final status.",
			},
			[]string{"status"},
		),
		forecastDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "forecast_stage_duration_seconds",
				Help:      "Duration of forecast generation stages.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),
		confidence: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "forecast_confidence_score",
				Help:      "Confidence score of generated forecasts.",
				Buckets:   prometheus.LinearBuckets(0.1, 0.1, 9),
			},
		),
		trainingTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ensemble_trainings_total",
				Help:      "Ensemble training runs by outcome.",
			},
			[]string{"outcome"},
		),
		cacheRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_requests_total",
				Help:      "Cache lookups by cache and result.",
			},
			[]string{"cache", "result"},
		),
		modelCacheSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "model_cache_entries",
				Help:      "Trained forecasters held in memory.",
			},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route and status.",
			},
			[]string{"method", "route", "status"},
		),
		httpLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// RecordForecast counts a finished generation.
func (r *Recorder) RecordForecast(status string, confidence float64) {
	r.forecastsTotal.WithLabelValues(status).Inc()
	if status == "active" {
		r.confidence.Observe(confidence)
	}
}

// ObserveStage records how long one generation stage took.
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	r.forecastDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (r *Recorder) RecordTraining(success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	r.trainingTotal.WithLabelValues(outcome).Inc()
}

func (r *Recorder) RecordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheRequests.WithLabelValues(cache, result).Inc()
}

func (r *Recorder) SetModelCacheSize(n int) {
	r.modelCacheSize.Set(float64(n))
}

func (r *Recorder) RecordHTTPRequest(method, route, status string, d time.Duration) {
	r.httpRequests.WithLabelValues(method, route, status).Inc()
	r.httpLatency.WithLabelValues(method, route).Observe(d.Seconds())
}
