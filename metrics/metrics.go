// Package metrics exposes bridge activity as Prometheus collectors on a
// private registry.
//
// Handle tables feed churn counters through observers:
//
//	pool.Subscribe(metrics.Observer[*worker.Worker](m, "workers"))
//
// and live sizes through gauge functions:
//
//	m.Size("timers", timers.Len)
//
// Every method is safe on a nil *Metrics, so components can take one
// optionally.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wippyai/wasm-hostbridge/handle"
)

// Metrics holds the bridge's collectors.
type Metrics struct {
	registry *prometheus.Registry
	ns       string

	created  *prometheus.CounterVec
	dropped  *prometheus.CounterVec
	calls    *prometheus.CounterVec
	failures *prometheus.CounterVec
	events   *prometheus.CounterVec

	callbackDuration prometheus.Histogram
	uptime           prometheus.GaugeFunc
}

// New creates collectors under namespace and registers them, along with
// Go runtime collectors, on a fresh registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "hostbridge"
	}
	start := time.Now()

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ns:       namespace,

		created: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handles_created_total",
				Help:      "Handles issued, by table",
			},
			[]string{"table"},
		),
		dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handles_dropped_total",
				Help:      "Handles released, by table",
			},
			[]string{"table"},
		),
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "host_calls_total",
				Help:      "Guest calls into host functions",
			},
			[]string{"module", "function"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "host_failures_total",
				Help:      "Host function calls answered with a failure sentinel",
			},
			[]string{"module", "function", "kind"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_dispatched_total",
				Help:      "Host events dispatched, by event name",
			},
			[]string{"event"},
		),
		callbackDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "guest_callback_duration_seconds",
				Help:      "Time spent inside guest callbacks",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .5},
			},
		),
	}
	m.uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the bridge started",
		},
		func() float64 { return time.Since(start).Seconds() },
	)

	m.registry.MustRegister(
		m.created, m.dropped, m.calls, m.failures, m.events,
		m.callbackDuration, m.uptime,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Size publishes fn as the live size of table.
func (m *Metrics) Size(table string, fn func() int) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   m.ns,
			Name:        "table_size",
			Help:        "Live entries per handle table",
			ConstLabels: prometheus.Labels{"table": table},
		},
		func() float64 { return float64(fn()) },
	))
}

// Call counts a host function invocation.
func (m *Metrics) Call(module, function string) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(module, function).Inc()
}

// Failure counts a host function call that returned a failure sentinel.
func (m *Metrics) Failure(module, function, kind string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(module, function, kind).Inc()
}

// Event counts a dispatched host event.
func (m *Metrics) Event(name string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(name).Inc()
}

// Callback records time spent in one guest callback.
func (m *Metrics) Callback(d time.Duration) {
	if m == nil {
		return
	}
	m.callbackDuration.Observe(d.Seconds())
}

// Observer counts created and dropped handles of one table.
func Observer[T any](m *Metrics, table string) handle.Observer[T] {
	return handle.ObserverFunc[T](func(e handle.Event[T]) {
		if m == nil {
			return
		}
		switch e.Type {
		case handle.EventCreated:
			m.created.WithLabelValues(table).Inc()
		case handle.EventDropped:
			m.dropped.WithLabelValues(table).Inc()
		}
	})
}
