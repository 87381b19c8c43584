package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "metadeploy"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once          sync.Once
	reg           *prom.Registry
	stageDuration *prom.HistogramVec
	stageResults  *prom.CounterVec
	pollAttempts  *prom.CounterVec
	droppedItems  *prom.CounterVec
	outcomes      *prom.CounterVec
	coverage      prom.Gauge
	archiveBytes  *prom.GaugeVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{reg: reg}
	pr.once.Do(func() {
		pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual pipeline stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"})
		pr.stageResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"})
		pr.pollAttempts = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "poll_attempts_total",
			Help:      "Deployment status checks, split by whether full detail was requested",
		}, []string{"details"})
		pr.droppedItems = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_items_total",
			Help:      "Paths left out of a manifest",
		}, []string{"reason"})
		pr.outcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "deploy_outcomes_total",
			Help:      "Deployment runs by terminal outcome",
		}, []string{"outcome"})
		pr.coverage = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "code_coverage_percent",
			Help:      "Aggregate Apex code coverage reported by the last deployment",
		})
		pr.archiveBytes = prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "archive_bytes",
			Help:      "Size of the last assembled archive",
		}, []string{"kind"})
		reg.MustRegister(pr.stageDuration, pr.stageResults, pr.pollAttempts, pr.droppedItems, pr.outcomes, pr.coverage, pr.archiveBytes)
	})
	return pr
}

// Registry returns the registry the metrics are registered with.
func (p *PrometheusRecorder) Registry() *prom.Registry { return p.reg }

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil || p.stageResults == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncPollAttempt(withDetails bool) {
	if p == nil || p.pollAttempts == nil {
		return
	}
	label := "false"
	if withDetails {
		label = "true"
	}
	p.pollAttempts.WithLabelValues(label).Inc()
}

func (p *PrometheusRecorder) IncDroppedItem(reason string) {
	if p == nil || p.droppedItems == nil {
		return
	}
	p.droppedItems.WithLabelValues(reason).Inc()
}

func (p *PrometheusRecorder) IncDeployOutcome(outcome OutcomeLabel) {
	if p == nil || p.outcomes == nil {
		return
	}
	p.outcomes.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) SetCoverage(percent float64) {
	if p == nil || p.coverage == nil {
		return
	}
	p.coverage.Set(percent)
}

func (p *PrometheusRecorder) SetArchiveBytes(kind string, n int) {
	if p == nil || p.archiveBytes == nil {
		return
	}
	p.archiveBytes.WithLabelValues(kind).Set(float64(n))
}
