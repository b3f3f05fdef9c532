package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/realvibe/site-copilot/internal/core/domain"
)

// PipelineMetrics instruments the worker's resolution pipeline. It
// satisfies the usecase observer interface so the core stays free of
// prometheus types.
type PipelineMetrics struct {
	registry *prometheus.Registry
	service  string

	fieldsTotal     *prometheus.CounterVec
	fieldDuration   *prometheus.HistogramVec
	memoryHitsTotal prometheus.Counter
	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	autofillPct     prometheus.Histogram
	queueLag        prometheus.Histogram
	runsInFlight    prometheus.Gauge
}

func NewPipelineMetrics(service string) *PipelineMetrics {
	registry := prometheus.NewRegistry()

	fieldsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scp",
			Subsystem: "pipeline",
			Name:      "fields_total",
			Help:      "Total resolved fields by review status and failure reason.",
		},
		[]string{"service", "status", "reason"},
	)
	fieldDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scp",
			Subsystem: "pipeline",
			Name:      "field_duration_seconds",
			Help:      "Per-field resolution duration in seconds by review status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	memoryHitsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scp",
			Subsystem: "pipeline",
			Name:      "memory_hits_total",
			Help:      "Total fields answered from site answer memory.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scp",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total finished runs by terminal status.",
		},
		[]string{"service", "status"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scp",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Run execution duration in seconds by terminal status.",
			Buckets:   []float64{1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service", "status"},
	)
	autofillPct := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "scp",
			Subsystem: "pipeline",
			Name:      "autofill_percentage",
			Help:      "Share of fields auto-accepted per completed run.",
			Buckets:   []float64{0, 10, 25, 40, 50, 60, 70, 80, 90, 100},
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "scp",
			Subsystem: "pipeline",
			Name:      "queue_lag_seconds",
			Help:      "Delay between run creation and worker pickup.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	runsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "scp",
			Subsystem: "pipeline",
			Name:      "runs_in_flight",
			Help:      "Number of runs currently being executed.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(
		fieldsTotal,
		fieldDuration,
		memoryHitsTotal,
		runsTotal,
		runDuration,
		autofillPct,
		queueLag,
		runsInFlight,
	)

	return &PipelineMetrics{
		registry:        registry,
		service:         service,
		fieldsTotal:     fieldsTotal,
		fieldDuration:   fieldDuration,
		memoryHitsTotal: memoryHitsTotal,
		runsTotal:       runsTotal,
		runDuration:     runDuration,
		autofillPct:     autofillPct,
		queueLag:        queueLag,
		runsInFlight:    runsInFlight,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) FieldResolved(status domain.ReviewStatus, reason domain.FailureReason, memoryHit bool, duration time.Duration) {
	reasonLabel := string(reason)
	if reasonLabel == "" {
		reasonLabel = "none"
	}
	m.fieldsTotal.WithLabelValues(m.service, string(status), reasonLabel).Inc()
	m.fieldDuration.WithLabelValues(m.service, string(status)).Observe(duration.Seconds())
	if memoryHit {
		m.memoryHitsTotal.Inc()
	}
}

func (m *PipelineMetrics) RunFinished(status domain.RunStatus, autofillPct float64, duration time.Duration) {
	m.runsTotal.WithLabelValues(m.service, string(status)).Inc()
	m.runDuration.WithLabelValues(m.service, string(status)).Observe(duration.Seconds())
	if status == domain.RunCompleted {
		m.autofillPct.Observe(autofillPct)
	}
}

func (m *PipelineMetrics) StartRun() {
	m.runsInFlight.Inc()
}

func (m *PipelineMetrics) EndRun() {
	m.runsInFlight.Dec()
}

func (m *PipelineMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.Observe(lag.Seconds())
}
