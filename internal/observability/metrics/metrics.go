// Package metrics exposes scheduler counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tickbus"

// Metrics implements the scheduler's observer hooks on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	ticks         *prometheus.CounterVec
	tickDuration  *prometheus.HistogramVec
	rearmFailures *prometheus.CounterVec
	active        prometheus.Gauge
	busWrites     *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Tick handler invocations by task and result.",
		}, []string{"task", "result"}),
		tickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Tick handler run time.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"task"}),
		rearmFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rearm_failures_total",
			Help:      "Tasks whose recurrence ended because the next tick could not be armed.",
		}, []string{"task"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_tasks",
			Help:      "Tasks currently present in the registry.",
		}),
		busWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_packets_total",
			Help:      "Bus packets handed to the writer by result.",
		}, []string{"result"}),
	}
	m.reg.MustRegister(
		m.ticks, m.tickDuration, m.rearmFailures, m.active, m.busWrites,
		collectors.NewGoCollector(),
	)
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) TickObserved(task string, d time.Duration, err error) {
	m.ticks.WithLabelValues(task, result(err)).Inc()
	m.tickDuration.WithLabelValues(task).Observe(d.Seconds())
}

func (m *Metrics) RearmFailed(task string) { m.rearmFailures.WithLabelValues(task).Inc() }

func (m *Metrics) ActiveTasks(n int) { m.active.Set(float64(n)) }

func (m *Metrics) BusPacket(err error) { m.busWrites.WithLabelValues(result(err)).Inc() }

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
