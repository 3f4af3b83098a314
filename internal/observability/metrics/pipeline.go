package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type PipelineMetrics struct {
	registry *prometheus.Registry

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	stageDuration   *prometheus.HistogramVec
	rowsWritten     *prometheus.CounterVec
	unresolvedRefs  *prometheus.CounterVec
	callbackTotal   *prometheus.CounterVec
	queueLag        *prometheus.HistogramVec
}

func NewPipelineMetrics(service string) *PipelineMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mvi",
			Subsystem: "pipeline",
			Name:      "process_total",
			Help:      "Total processed models by outcome.",
		},
		[]string{"service", "outcome"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mvi",
			Subsystem: "pipeline",
			Name:      "process_duration_seconds",
			Help:      "Full pipeline duration in seconds by outcome.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service", "outcome"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mvi",
			Subsystem: "pipeline",
			Name:      "process_in_flight",
			Help:      "Number of in-flight pipeline attempts.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mvi",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Write-stage duration in seconds by stage.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "stage"},
	)
	rowsWritten := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mvi",
			Subsystem: "pipeline",
			Name:      "rows_written_total",
			Help:      "Total rows written by collection stage.",
		},
		[]string{"service", "stage"},
	)
	unresolvedRefs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mvi",
			Subsystem: "pipeline",
			Name:      "unresolved_references_total",
			Help:      "Total references written as NULL or skipped because the GUID was unknown.",
		},
		[]string{"service", "stage"},
	)
	callbackTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mvi",
			Subsystem: "pipeline",
			Name:      "callback_total",
			Help:      "Total completion callback deliveries by outcome.",
		},
		[]string{"service", "outcome"},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mvi",
			Subsystem: "pipeline",
			Name:      "queue_lag_seconds",
			Help:      "Delay between job enqueue and pipeline start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	registry.MustRegister(
		processTotal,
		processDuration,
		processInFlight,
		stageDuration,
		rowsWritten,
		unresolvedRefs,
		callbackTotal,
		queueLag,
	)

	return &PipelineMetrics{
		registry:        registry,
		processTotal:    processTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
		stageDuration:   stageDuration,
		rowsWritten:     rowsWritten,
		unresolvedRefs:  unresolvedRefs,
		callbackTotal:   callbackTotal,
		queueLag:        queueLag,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *PipelineMetrics) StartAttempt() {
	if m == nil {
		return
	}
	m.processInFlight.Inc()
}

func (m *PipelineMetrics) FinishAttempt(service string, duration time.Duration, success bool) {
	if m == nil {
		return
	}
	m.processInFlight.Dec()

	outcome := "success"
	if !success {
		outcome = "error"
	}
	m.processTotal.WithLabelValues(service, outcome).Inc()
	m.processDuration.WithLabelValues(service, outcome).Observe(duration.Seconds())
}

func (m *PipelineMetrics) ObserveStage(service, stage string, duration time.Duration, written, unresolved int) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(service, stage).Observe(duration.Seconds())
	if written > 0 {
		m.rowsWritten.WithLabelValues(service, stage).Add(float64(written))
	}
	if unresolved > 0 {
		m.unresolvedRefs.WithLabelValues(service, stage).Add(float64(unresolved))
	}
}

func (m *PipelineMetrics) ObserveCallback(service string, err error) {
	if m == nil {
		return
	}
	outcome := "delivered"
	if err != nil {
		outcome = "failed"
	}
	m.callbackTotal.WithLabelValues(service, outcome).Inc()
}

func (m *PipelineMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if m == nil || lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}
