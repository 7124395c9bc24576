package core

import "github.com/prometheus/client_golang/prometheus"

// MetricsRegistry builds a registry from integration collectors plus any
// extra collectors owned by the daemon.
func MetricsRegistry(integrations []Integration, extra ...prometheus.Collector) *prometheus.Registry {
	registry := prometheus.NewRegistry()

	for _, integration := range integrations {
		for _, collector := range integration.Collectors() {
			registry.MustRegister(collector)
		}
	}
	for _, collector := range extra {
		registry.MustRegister(collector)
	}

	return registry
}
