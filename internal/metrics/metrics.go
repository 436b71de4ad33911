package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline and API collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	RunsTotal         *prometheus.CounterVec
	StageDuration     *prometheus.HistogramVec
	DetectionsTotal   *prometheus.CounterVec
	DegradationsTotal *prometheus.CounterVec
	FramesSampled     prometheus.Counter
	ActiveRuns        prometheus.Gauge
	UploadsTotal      prometheus.Counter
	RateLimitedTotal  prometheus.Counter

	registry *prometheus.Registry
}

// New creates and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "snapvault_runs_total",
			Help: "Total number of pipeline runs, by status",
		}, []string{"status"}),

		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "snapvault_stage_duration_seconds",
			Help:    "Duration of each pipeline stage",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"stage"}),

		DetectionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "snapvault_detections_total",
			Help: "Sensitive words detected, by category",
		}, []string{"category"}),

		DegradationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "snapvault_degradations_total",
			Help: "Non-fatal pipeline degradations, by kind",
		}, []string{"kind"}),

		FramesSampled: f.NewCounter(prometheus.CounterOpts{
			Name: "snapvault_frames_sampled_total",
			Help: "Total number of frames sampled across all runs",
		}),

		ActiveRuns: f.NewGauge(prometheus.GaugeOpts{
			Name: "snapvault_active_runs",
			Help: "Number of pipeline runs in progress",
		}),

		UploadsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "snapvault_uploads_total",
			Help: "Total number of accepted uploads",
		}),

		RateLimitedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "snapvault_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		}),

		registry: reg,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RunStarted bumps the active run gauge.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.ActiveRuns.Inc()
}

// RunFinished records a run outcome, "success" or "failed".
func (m *Metrics) RunFinished(status string) {
	if m == nil {
		return
	}
	m.ActiveRuns.Dec()
	m.RunsTotal.WithLabelValues(status).Inc()
}

// AddDetections counts detections of one category.
func (m *Metrics) AddDetections(category string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DetectionsTotal.WithLabelValues(category).Add(float64(n))
}

// Degraded counts a non-fatal degradation.
func (m *Metrics) Degraded(kind string) {
	if m == nil {
		return
	}
	m.DegradationsTotal.WithLabelValues(kind).Inc()
}

// AddFrames counts sampled frames.
func (m *Metrics) AddFrames(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.FramesSampled.Add(float64(n))
}
