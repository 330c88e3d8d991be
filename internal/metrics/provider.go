package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	tgmetrics "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// PrometheusRegistryProvider owns a private Prometheus registry.
type PrometheusRegistryProvider struct {
	registry *prometheus.Registry
}

var _ tgmetrics.RegistryProvider = (*PrometheusRegistryProvider)(nil)

func NewPrometheusRegistryProvider() *PrometheusRegistryProvider {
	return &PrometheusRegistryProvider{registry: prometheus.NewRegistry()}
}

// NewProcessRegistryProvider also registers the Go runtime and process
// collectors, for metrics exported by the CLI.
func NewProcessRegistryProvider() *PrometheusRegistryProvider {
	p := NewPrometheusRegistryProvider()
	p.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

func (p *PrometheusRegistryProvider) Registry() *prometheus.Registry {
	return p.registry
}

// WriteTextfile writes every metric gathered from provider to path in the
// Prometheus text format, for node_exporter's textfile collector. The parent
// directory is created when missing.
func WriteTextfile(provider tgmetrics.RegistryProvider, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, provider.Registry()); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}
