package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its registry so several instances can coexist in tests.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	schedulerPasses  prometheus.Counter
	schedulerJobs    *prometheus.CounterVec
	pendingJobs      prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		dispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reelpost_dispatch_total",
				Help: "Platform uploads by platform and result.",
			},
			[]string{"platform", "result"},
		),
		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reelpost_dispatch_duration_seconds",
				Help:    "Platform upload latency.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"platform"},
		),
		schedulerPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reelpost_scheduler_passes_total",
			Help: "Completed scheduler passes.",
		}),
		schedulerJobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reelpost_scheduler_jobs_total",
				Help: "Due jobs attempted by the scheduler, by result.",
			},
			[]string{"result"},
		),
		pendingJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reelpost_pending_jobs",
			Help: "Jobs left in the store after the last pass.",
		}),
	}

	m.registry.MustRegister(
		m.dispatchTotal,
		m.dispatchDuration,
		m.schedulerPasses,
		m.schedulerJobs,
		m.pendingJobs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) ObserveDispatch(platform string, ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.dispatchTotal.WithLabelValues(platform, result).Inc()
	m.dispatchDuration.WithLabelValues(platform).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveScheduledJob(result string) {
	if m == nil {
		return
	}
	m.schedulerJobs.WithLabelValues(result).Inc()
}

func (m *Metrics) ObservePass(pending int) {
	if m == nil {
		return
	}
	m.schedulerPasses.Inc()
	m.pendingJobs.Set(float64(pending))
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
