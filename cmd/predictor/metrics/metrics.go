// Package metrics provides Prometheus metrics instrumentation for the predictor.
//
// Metrics exposed:
//   - weatherdash_source_fetch_seconds: Histogram of upstream year fetch duration
//   - weatherdash_source_fetch_failures_total: Counter of failed year fetches
//   - weatherdash_day_sample_size: Histogram of observations per training sample
//   - weatherdash_model_train_seconds: Histogram of model set training duration
//   - weatherdash_models_per_set: Histogram of variables modeled per set
//   - weatherdash_model_cache_total: Counter of model cache lookups by result
//   - weatherdash_predict_seconds: Histogram of prediction duration
//   - weatherdash_errors_total: Counter of errors by component and reason
//
// Metrics implements both history.Observer and predictor.Observer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/HatiCode/weatherdash/pkg/predictor"
)

// Metrics holds all Prometheus metrics for the predictor.
type Metrics struct {
	SourceFetchSeconds  *prometheus.HistogramVec
	SourceFetchFailures *prometheus.CounterVec
	DaySampleSize       prometheus.Histogram
	ModelTrainSeconds   prometheus.Histogram
	ModelsPerSet        prometheus.Histogram
	ModelCacheTotal     *prometheus.CounterVec
	PredictSeconds      prometheus.Histogram
	ErrorsTotal         *prometheus.CounterVec
}

// New creates all metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SourceFetchSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "weatherdash_source_fetch_seconds",
			Help:    "Time spent fetching one year from the historical source",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"source"}),

		SourceFetchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "weatherdash_source_fetch_failures_total",
			Help: "Total number of failed year fetches",
		}, []string{"source"}),

		DaySampleSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "weatherdash_day_sample_size",
			Help:    "Number of yearly observations in a training sample",
			Buckets: prometheus.LinearBuckets(0, 5, 10),
		}),

		ModelTrainSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "weatherdash_model_train_seconds",
			Help:    "Time spent fitting a model set",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),

		ModelsPerSet: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "weatherdash_models_per_set",
			Help:    "Number of variables modeled in a trained set",
			Buckets: prometheus.LinearBuckets(0, 1, 11),
		}),

		ModelCacheTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "weatherdash_model_cache_total",
			Help: "Model cache lookups by result",
		}, []string{"result"}),

		PredictSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "weatherdash_predict_seconds",
			Help:    "Time spent answering a prediction, including training on a miss",
			Buckets: []float64{.001, .01, .1, .5, 1, 5, 15, 30, 60, 120},
		}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "weatherdash_errors_total",
			Help: "Total number of errors by component and reason",
		}, []string{"component", "reason"}),
	}
}

// ObserveFetch records one upstream year fetch.
func (m *Metrics) ObserveFetch(source string, d time.Duration, err error) {
	m.SourceFetchSeconds.WithLabelValues(source).Observe(d.Seconds())
	if err != nil {
		m.SourceFetchFailures.WithLabelValues(source).Inc()
	}
}

// ObserveSkip records a year left out of a training sample.
func (m *Metrics) ObserveSkip(reason string) {
	m.RecordError("extractor", reason)
}

// ObserveSampleSize records the size of an extracted sample.
func (m *Metrics) ObserveSampleSize(n int) {
	m.DaySampleSize.Observe(float64(n))
}

// ObserveCache records a model cache lookup.
func (m *Metrics) ObserveCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.ModelCacheTotal.WithLabelValues(result).Inc()
}

// ObserveTrain records the fit of one model set.
func (m *Metrics) ObserveTrain(d time.Duration, modeled int) {
	m.ModelTrainSeconds.Observe(d.Seconds())
	m.ModelsPerSet.Observe(float64(modeled))
}

// ObservePredict records one prediction and its failure kind, if any.
func (m *Metrics) ObservePredict(d time.Duration, err error) {
	m.PredictSeconds.Observe(d.Seconds())
	if err != nil {
		reason := string(predictor.KindOf(err))
		if reason == "" {
			reason = "internal"
		}
		m.RecordError("predictor", reason)
	}
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}
