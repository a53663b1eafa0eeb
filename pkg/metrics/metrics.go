// Package metrics provides Prometheus instrumentation for outbound components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// defaultNamespace prefixes every metric unless Config.Namespace overrides it.
const defaultNamespace = "outbound"

// Registry holds all metric instances for outbound components.
type Registry struct {
	// Buffer Metrics
	BufferPacketsQueued *prometheus.CounterVec
	BufferBytesQueued   *prometheus.CounterVec
	BufferBytesSent     *prometheus.CounterVec
	BufferFlushes       *prometheus.CounterVec
	BufferShortWrites   *prometheus.CounterVec
	BufferFilesStreamed *prometheus.CounterVec
	BufferCloseRequests *prometheus.CounterVec
	BufferErrors        *prometheus.CounterVec
	BufferDepth         *prometheus.GaugeVec
	BufferPendingBytes  *prometheus.GaugeVec

	// Sink Metrics
	SinkBytesWritten   *prometheus.CounterVec
	SinkWouldBlocks    *prometheus.CounterVec
	SinkFatalErrors    *prometheus.CounterVec
	SinkThrottledBytes *prometheus.CounterVec

	// Drain Metrics
	DrainCycles  *prometheus.CounterVec
	DrainRetries *prometheus.CounterVec
	DrainActive  *prometheus.GaugeVec
}

// DefaultRegistry is the default metrics registry used by outbound components.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a metrics registry on the given Prometheus registerer
// under the default namespace. Registering the same collector names twice
// on one registerer panics, so build at most one Registry per registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return newRegistry(reg, defaultNamespace, nil)
}

// NewRegistryWithConfig creates a metrics registry honoring the registerer,
// namespace, and const labels carried by config. A config that overrides
// none of them shares DefaultRegistry instead of registering new collectors.
func NewRegistryWithConfig(config Config) *Registry {
	namespace := config.Namespace
	if namespace == "" {
		namespace = defaultNamespace
	}
	if config.Registry == nil && namespace == defaultNamespace && len(config.Labels) == 0 {
		return DefaultRegistry
	}

	reg := config.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return newRegistry(reg, namespace, config.Labels)
}

func newRegistry(reg prometheus.Registerer, namespace string, labels prometheus.Labels) *Registry {
	factory := promauto.With(reg)

	counter := func(subsystem, name, help string, labelNames ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, labelNames)
	}
	gauge := func(subsystem, name, help string, labelNames ...string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, labelNames)
	}

	return &Registry{
		BufferPacketsQueued: counter("buffer", "packets_queued_total", "Total number of packets queued", "packet_kind", "buffer_name"),
		BufferBytesQueued:   counter("buffer", "bytes_queued_total", "Total number of payload bytes queued", "buffer_name"),
		BufferBytesSent:     counter("buffer", "bytes_sent_total", "Total number of bytes consumed by the sink", "buffer_name"),
		BufferFlushes:       counter("buffer", "flushes_total", "Total number of flush calls", "buffer_name"),
		BufferShortWrites:   counter("buffer", "short_writes_total", "Total number of flushes stopped by a partial or would-block write", "buffer_name"),
		BufferFilesStreamed: counter("buffer", "files_streamed_total", "Total number of files fully streamed", "buffer_name"),
		BufferCloseRequests: counter("buffer", "close_requests_total", "Total number of close-when-done requests signalled", "buffer_name"),
		BufferErrors:        counter("buffer", "errors_total", "Total number of buffer operation errors", "operation", "buffer_name"),
		BufferDepth:         gauge("buffer", "depth", "Number of packets currently queued", "buffer_name"),
		BufferPendingBytes:  gauge("buffer", "pending_bytes", "Number of bytes queued but not yet sent", "buffer_name"),

		SinkBytesWritten:   counter("sink", "bytes_written_total", "Total bytes written by sinks", "sink_type", "sink_name"),
		SinkWouldBlocks:    counter("sink", "would_block_total", "Total number of would-block results reported by sinks", "sink_type", "sink_name"),
		SinkFatalErrors:    counter("sink", "fatal_errors_total", "Total number of fatal sink errors", "sink_type", "sink_name"),
		SinkThrottledBytes: counter("sink", "throttled_bytes_total", "Total bytes deferred by throttled sinks", "sink_name"),

		DrainCycles:  counter("drain", "cycles_total", "Total number of drain cycles executed", "loop_name"),
		DrainRetries: counter("drain", "retries_total", "Total number of drain retries after would-block", "loop_name"),
		DrainActive:  gauge("drain", "active", "Number of drain loops currently running", "pool_name"),
	}
}
