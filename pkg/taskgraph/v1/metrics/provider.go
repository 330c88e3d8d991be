package metrics

import "github.com/prometheus/client_golang/prometheus"

// RegistryProvider gives access to the registry holding the engine metrics,
// so callers can expose or export them.
type RegistryProvider interface {
	// Registry returns the Prometheus registry containing engine metrics.
	Registry() *prometheus.Registry
}
