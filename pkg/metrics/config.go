package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Config selects where and how outbound components publish their metrics.
// The zero value of every field other than Enabled selects the default.
type Config struct {
	// Enabled controls whether metrics collection is active.
	Enabled bool

	// Registry is the Prometheus registerer to register collectors on.
	// Nil selects prometheus.DefaultRegisterer.
	Registry prometheus.Registerer

	// Namespace overrides the metric name prefix. Empty selects "outbound".
	Namespace string

	// Labels are const labels stamped on every collector.
	Labels prometheus.Labels
}

// DefaultConfig returns a configuration that publishes to DefaultRegistry.
func DefaultConfig() Config {
	return Config{Enabled: true}
}

// Instrumentable is implemented by components whose metrics collection can
// be toggled at runtime.
type Instrumentable interface {
	// EnableMetrics starts metrics collection with the given configuration.
	EnableMetrics(config Config) error

	// DisableMetrics stops metrics collection.
	DisableMetrics()

	// MetricsEnabled reports whether metrics are currently collected.
	MetricsEnabled() bool
}
