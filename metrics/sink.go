// Package metrics owns the registry every gauge of the station lives in.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sink is handed to every component that publishes metrics.
// Nothing is registered with the prometheus default registry.
type Sink struct {
	registry *prometheus.Registry
}

func NewSink() *Sink {
	registry := prometheus.NewRegistry()

	// Add Go module build info.
	registry.MustRegister(prometheus.NewBuildInfoCollector())

	return &Sink{registry: registry}
}

func (s *Sink) Gauge(name string, help string) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: name,
		Help: help,
	})
	s.registry.MustRegister(g)
	return g
}

func (s *Sink) GaugeVec(name string, help string, labels ...string) *prometheus.GaugeVec {
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: name,
		Help: help,
	}, labels)
	s.registry.MustRegister(g)
	return g
}

func (s *Sink) CounterVec(name string, help string, labels ...string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name,
		Help: help,
	}, labels)
	s.registry.MustRegister(c)
	return c
}

func (s *Sink) Gatherer() prometheus.Gatherer {
	return s.registry
}

func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(
		s.registry,
		promhttp.HandlerOpts{
			// Opt into OpenMetrics to support exemplars.
			EnableOpenMetrics: true,
		},
	)
}
