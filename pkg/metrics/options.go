package metrics

import (
	"slices"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Manager before its collectors are registered.
type Option func(*Manager)

// WithNamespace sets the first part of every metric name. Blank keeps catador.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace = strings.TrimSpace(namespace); namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithSubsystem sets the middle part of every metric name. Blank keeps game.
func WithSubsystem(subsystem string) Option {
	return func(m *Manager) {
		if subsystem = strings.TrimSpace(subsystem); subsystem != "" {
			m.subsystem = subsystem
		}
	}
}

// WithHistogramBuckets sets the upper bounds, in seconds, of the HTTP and
// scoring latency histograms. Non-positive and repeated bounds are dropped;
// the rest are sorted. An empty result keeps prometheus.DefBuckets.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		bounds := make([]float64, 0, len(buckets))
		for _, b := range buckets {
			if b > 0 {
				bounds = append(bounds, b)
			}
		}
		slices.Sort(bounds)
		bounds = slices.Compact(bounds)
		if len(bounds) > 0 {
			m.histogramBuckets = bounds
		}
	}
}

// WithPrometheusRegistry registers the collectors on registry instead of the
// package registry.
func WithPrometheusRegistry(registry prometheus.Registerer) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}
