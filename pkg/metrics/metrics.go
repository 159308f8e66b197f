// Package metrics provides Prometheus-based metrics recording for the
// generation pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds all pipeline metrics. One instance is shared process-wide;
// collectors register themselves on the default registry at construction.
type Recorder struct {
	generationsTotal   *prometheus.CounterVec
	commitsTotal       *prometheus.CounterVec
	rejectionsTotal    *prometheus.CounterVec
	promptTokens       prometheus.Histogram
	estimatedCost      prometheus.Counter
	generationDuration *prometheus.HistogramVec
}

// NewRecorder creates the pipeline metrics recorder and registers the build
// info collector alongside it.
func NewRecorder() *Recorder {
	prometheus.DefaultRegisterer.MustRegister(version.NewCollector("siteforge"))

	return &Recorder{
		generationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siteforge_generations_total",
				Help: "Total number of generation requests by provider model and outcome",
			},
			[]string{"model", "status"},
		),
		commitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siteforge_commits_total",
				Help: "Total number of artifact versions committed by authority source",
			},
			[]string{"authority"},
		),
		rejectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siteforge_rejections_total",
				Help: "Total number of per-file validation rejections by reason",
			},
			[]string{"reason"},
		),
		promptTokens: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "siteforge_prompt_tokens",
				Help:    "Token counts of assembled prompts",
				Buckets: prometheus.ExponentialBuckets(64, 2, 12),
			},
		),
		estimatedCost: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "siteforge_estimated_cost_usd_total",
				Help: "Accumulated estimated cost in USD of forwarded prompts",
			},
		),
		generationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "siteforge_generation_duration_seconds",
				Help:    "End to end duration of generation requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model"},
		),
	}
}

// ObserveGeneration records one finished generation request.
func (r *Recorder) ObserveGeneration(model, status string, promptTokens int, cost float64, duration time.Duration) {
	r.generationsTotal.WithLabelValues(model, status).Inc()
	r.promptTokens.Observe(float64(promptTokens))
	r.estimatedCost.Add(cost)
	r.generationDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// IncCommit counts one committed artifact version.
func (r *Recorder) IncCommit(authority string) {
	r.commitsTotal.WithLabelValues(authority).Inc()
}

// IncRejection counts one per-file validation rejection.
func (r *Recorder) IncRejection(reason string) {
	r.rejectionsTotal.WithLabelValues(reason).Inc()
}
