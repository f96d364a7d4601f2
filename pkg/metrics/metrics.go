// Package metrics wraps github.com/prometheus/client_golang behind small,
// per-component recorder types, registered against a single process-wide
// Registry and namespaced "beenode" (spec.md's ambient observability
// stack: depth changes, dial attempts, bin populations, balance
// histograms, ban counts).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "beenode"

// Registry owns the prometheus.Registry every component's metrics are
// registered against, and the promauto.Factory that does the
// registering.
type Registry struct {
	reg     *prometheus.Registry
	factory promauto.Factory
}

// NewRegistry constructs an empty Registry. One per process.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	return &Registry{reg: reg, factory: promauto.With(reg)}
}

// Handler returns the http.Handler that serves this registry's metrics
// in the Prometheus text exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) counter(subsystem, name, help string) prometheus.Counter {
	return r.factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	})
}

func (r *Registry) counterVec(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return r.factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	}, labels)
}

func (r *Registry) gauge(subsystem, name, help string) prometheus.Gauge {
	return r.factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	})
}

func (r *Registry) gaugeVec(subsystem, name, help string, labels ...string) *prometheus.GaugeVec {
	return r.factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	}, labels)
}

func (r *Registry) histogram(subsystem, name, help string, buckets []float64) prometheus.Histogram {
	return r.factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets,
	})
}
