package sink

import (
	"io"

	"github.com/vnykmshr/outbound/pkg/metrics"
	"github.com/vnykmshr/outbound/pkg/packetbuf"
)

// MetricsHook wraps a write hook with Prometheus metrics collection. It
// observes the byte counts and error outcomes flowing through the hook
// without changing its behavior.
type MetricsHook struct {
	hook     packetbuf.Hook
	sinkType string
	name     string
	registry *metrics.Registry
	enabled  bool
}

// NewMetricsHook wraps hook with metrics identified by sinkType and name.
// If metrics are disabled in the config, the hook is returned unwrapped.
func NewMetricsHook(hook packetbuf.Hook, sinkType, name string, metricsConfig metrics.Config) packetbuf.Hook {
	if !metricsConfig.Enabled {
		return hook
	}

	return &MetricsHook{
		hook:     hook,
		sinkType: sinkType,
		name:     name,
		registry: metrics.NewRegistryWithConfig(metricsConfig),
		enabled:  true,
	}
}

// Send forwards to the wrapped hook and records the outcome.
func (mh *MetricsHook) Send(owner interface{}, dst io.Writer, p []byte) (int, error) {
	n, err := mh.hook.Send(owner, dst, p)

	if mh.enabled {
		switch {
		case err != nil:
			mh.registry.SinkFatalErrors.WithLabelValues(mh.sinkType, mh.name).Inc()
		case n == 0 && len(p) > 0:
			mh.registry.SinkWouldBlocks.WithLabelValues(mh.sinkType, mh.name).Inc()
		}
		if n > 0 {
			mh.registry.SinkBytesWritten.WithLabelValues(mh.sinkType, mh.name).Add(float64(n))
		}
	}

	return n, err
}

// EnableMetrics enables metrics collection.
func (mh *MetricsHook) EnableMetrics(config metrics.Config) error {
	mh.enabled = config.Enabled
	mh.registry = metrics.NewRegistryWithConfig(config)
	return nil
}

// DisableMetrics disables metrics collection.
func (mh *MetricsHook) DisableMetrics() {
	mh.enabled = false
}

// MetricsEnabled returns true if metrics are currently enabled.
func (mh *MetricsHook) MetricsEnabled() bool {
	return mh.enabled
}
