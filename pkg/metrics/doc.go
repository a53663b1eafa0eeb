// Package metrics provides Prometheus instrumentation for outbound components.
//
// This package enables monitoring and observability for outbound's packet
// buffers, write sinks, and drain loops through Prometheus metrics.
//
// # Overview
//
// The metrics package provides automatic instrumentation for:
//   - Packet buffers (queued packets and bytes, flushes, short writes, depth)
//   - File streaming (files fully streamed, pending bytes)
//   - Write sinks (bytes written, would-block results, fatal errors)
//   - Drain loops (cycles, retries, active loops)
//
// # Quick Start
//
// Enable metrics by using the metrics-enabled constructors:
//
//	// Packet buffer with metrics, collected in DefaultRegistry
//	buf := packetbuf.NewWithMetrics(conn, "conn_42")
//
// Then expose metrics via HTTP:
//
//	http.Handle("/metrics", promhttp.Handler())
//	log.Fatal(http.ListenAndServe(":8080", nil))
//
// # Custom Registry
//
// Use a custom Prometheus registry for isolation:
//
//	registry := prometheus.NewRegistry()
//	config := metrics.Config{
//		Enabled:  true,
//		Registry: registry,
//	}
//
//	buf, err := packetbuf.NewWithConfigAndMetrics(
//		packetbuf.DefaultConfig(),
//		"conn_42",
//		config,
//	)
//
// # Available Metrics
//
// Buffer metrics:
//
//   - outbound_buffer_packets_queued_total: Total number of packets queued
//   - outbound_buffer_bytes_queued_total: Total number of payload bytes queued
//   - outbound_buffer_bytes_sent_total: Total number of bytes consumed by the sink
//   - outbound_buffer_flushes_total: Total number of flush calls
//   - outbound_buffer_short_writes_total: Flushes stopped by a partial or would-block write
//   - outbound_buffer_files_streamed_total: Total number of files fully streamed
//   - outbound_buffer_close_requests_total: Close-when-done requests signalled
//   - outbound_buffer_errors_total: Total number of buffer operation errors
//   - outbound_buffer_depth: Number of packets currently queued
//   - outbound_buffer_pending_bytes: Number of bytes queued but not yet sent
//
// Sink metrics:
//
//   - outbound_sink_bytes_written_total: Total bytes written by sinks
//   - outbound_sink_would_block_total: Would-block results reported by sinks
//   - outbound_sink_fatal_errors_total: Fatal sink errors
//   - outbound_sink_throttled_bytes_total: Bytes deferred by throttled sinks
//
// Drain metrics:
//
//   - outbound_drain_cycles_total: Drain cycles executed
//   - outbound_drain_retries_total: Retries after would-block
//   - outbound_drain_active: Drain loops currently running
//
// # Labels
//
// Metrics include relevant labels for filtering and aggregation:
//
//   - buffer_name: User-provided name for the buffer instance
//   - packet_kind: "copy", "owned", "file", or "close"
//   - sink_type: "conn", "fd", "throttle", or "frame"
//   - sink_name: User-provided name for the sink instance
//   - loop_name: User-provided name for the drain loop
//   - pool_name: User-provided name for the drain pool
//   - operation: Buffer operation that produced an error
//
// # Configuration
//
// The zero value of every Config field other than Enabled selects the
// default: collectors register on prometheus.DefaultRegisterer under the
// "outbound" namespace. Namespace and Labels rename the series and stamp
// const labels on every collector:
//
//	config := metrics.Config{
//		Enabled:   true,
//		Registry:  registry,                             // nil selects the default registerer
//		Namespace: "myapp",                              // empty selects "outbound"
//		Labels:    prometheus.Labels{"version": "1.0"},  // const labels on every series
//	}
//
// Collector names registered on a registerer stay registered, so build at
// most one Registry per registerer and namespace.
//
// # Runtime Control
//
// Components implementing the Instrumentable interface support runtime control:
//
//	buf := packetbuf.NewWithMetrics(conn, "conn")
//	mbuf := buf.(*packetbuf.MetricsBuffer)
//	mbuf.DisableMetrics()            // Stop collecting metrics
//	_ = mbuf.EnableMetrics(config)   // Re-enable with new config
//	enabled := mbuf.MetricsEnabled() // Check current state
//
// # Performance
//
// Metrics collection is designed for minimal overhead:
//   - Metrics are updated only when operations occur
//   - No background goroutines or timers
//   - Conditional metrics updates based on enabled state
package metrics
