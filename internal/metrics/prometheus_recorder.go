package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "fwbuilder"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	stageDuration  *prom.HistogramVec
	buildDuration  prom.Histogram
	stageResults   *prom.CounterVec
	buildOutcome   *prom.CounterVec
	fetchRetries   *prom.CounterVec
	archivedFiles  prom.Histogram
	buildsInFlight prom.Gauge
}

// NewPrometheusRecorder constructs Prometheus metrics and registers them on reg.
func NewPrometheusRecorder(reg prom.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual build stages",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"stage"}),
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"}),
		fetchRetries: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "trust_chain_fetch_retries_total",
			Help:      "Retried certificate downloads by host",
		}, []string{"host"}),
		archivedFiles: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "archived_files",
			Help:      "Number of binaries packaged per build",
			Buckets:   []float64{0, 1, 2, 3, 4, 6, 8},
		}),
		buildsInFlight: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "builds_in_flight",
			Help:      "Builds currently running",
		}),
	}
	reg.MustRegister(pr.stageDuration, pr.buildDuration, pr.stageResults, pr.buildOutcome,
		pr.fetchRetries, pr.archivedFiles, pr.buildsInFlight)
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome BuildOutcomeLabel) {
	if p == nil {
		return
	}
	p.buildOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncFetchRetry(host string) {
	if p == nil {
		return
	}
	p.fetchRetries.WithLabelValues(host).Inc()
}

func (p *PrometheusRecorder) ObserveArchivedFiles(n int) {
	if p == nil {
		return
	}
	p.archivedFiles.Observe(float64(n))
}

func (p *PrometheusRecorder) SetBuildsInFlight(n int) {
	if p == nil {
		return
	}
	p.buildsInFlight.Set(float64(n))
}
