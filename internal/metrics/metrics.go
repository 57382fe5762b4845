// Package metrics exposes Prometheus collectors for the pipeline stages.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors on a dedicated registry
type Metrics struct {
	Registry        *prometheus.Registry
	CacheLookups    *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
	StageErrors     *prometheus.CounterVec
	EndpointsProbed prometheus.Counter
	QARuns          *prometheus.CounterVec
	QualityScore    prometheus.Gauge
	RepairOutcomes  *prometheus.CounterVec
}

// New constructs and registers all metrics
func New() *Metrics {
	registry := prometheus.NewRegistry()

	cacheLookups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitescout_cache_lookups_total",
			Help: "Artifact cache lookups by artifact kind and result.",
		},
		[]string{"kind", "result"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sitescout_stage_duration_seconds",
			Help:    "Wall time of each pipeline stage.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 45, 60},
		},
		[]string{"stage"},
	)
	stageErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitescout_stage_errors_total",
			Help: "Stage failures by error kind.",
		},
		[]string{"stage", "kind"},
	)
	probed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sitescout_endpoints_probed_total",
			Help: "Candidate API endpoints probed by investigations.",
		},
	)
	qaRuns := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitescout_qa_runs_total",
			Help: "QA runs by overall status.",
		},
		[]string{"status"},
	)
	quality := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sitescout_qa_quality_score",
			Help: "Data quality score of the most recent QA run.",
		},
	)
	repairs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitescout_repair_transforms_total",
			Help: "Repair transforms by kind and outcome.",
		},
		[]string{"kind", "status"},
	)

	registry.MustRegister(cacheLookups, stageDuration, stageErrors, probed, qaRuns, quality, repairs)

	return &Metrics{
		Registry:        registry,
		CacheLookups:    cacheLookups,
		StageDuration:   stageDuration,
		StageErrors:     stageErrors,
		EndpointsProbed: probed,
		QARuns:          qaRuns,
		QualityScore:    quality,
		RepairOutcomes:  repairs,
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// CacheLookup counts a cache hit or miss for an artifact kind
func (m *Metrics) CacheLookup(kind string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(kind, result).Inc()
}

// ObserveStage records how long a stage took
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// IncError counts a stage failure
func (m *Metrics) IncError(stage, kind string) {
	if m == nil {
		return
	}
	m.StageErrors.WithLabelValues(stage, kind).Inc()
}

// AddProbed counts probed endpoint candidates
func (m *Metrics) AddProbed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.EndpointsProbed.Add(float64(n))
}

// QARun records a QA outcome
func (m *Metrics) QARun(status string, qualityScore float64) {
	if m == nil {
		return
	}
	m.QARuns.WithLabelValues(status).Inc()
	m.QualityScore.Set(qualityScore)
}

// RepairTransform records one repair transform outcome
func (m *Metrics) RepairTransform(kind, status string) {
	if m == nil {
		return
	}
	m.RepairOutcomes.WithLabelValues(kind, status).Inc()
}
