package store

import "github.com/prometheus/client_golang/prometheus"

var (
	persistSuccess = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "unisenza_store_persist_success_total",
			Help: "Successful config entry writes",
		},
	)
	persistFailure = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "unisenza_store_persist_failure_total",
			Help: "Failed config entry writes",
		},
	)
	remotePersistOK = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "unisenza_store_remote_persist_ok",
			Help: "Remote blob persistence health (1=ok, 0=error)",
		},
	)
	storedEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "unisenza_store_entries",
			Help: "Config entries in the last persisted document",
		},
	)
)

// MetricsCollectors returns collectors for the entry store.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		persistSuccess,
		persistFailure,
		remotePersistOK,
		storedEntries,
	}
}
