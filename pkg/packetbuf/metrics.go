package packetbuf

import (
	"io"
	"sync"

	"github.com/vnykmshr/outbound/pkg/metrics"
)

// MetricsBuffer wraps a Buffer with Prometheus metrics collection.
type MetricsBuffer struct {
	buffer   Buffer
	name     string
	registry *metrics.Registry
	enabled  bool

	// Counters maintained inside the wrapped buffer are exported as
	// deltas against the last observed snapshot.
	deltaMu    sync.Mutex
	lastShort  int64
	lastFiles  int64
	lastCloses int64
}

// NewWithMetrics creates a packet buffer for owner with metrics collected
// in the shared default registry. name becomes the buffer_name label.
func NewWithMetrics(owner interface{}, name string) Buffer {
	config := DefaultConfig()
	config.Owner = owner
	b, _ := NewWithConfigAndMetrics(config, name, metrics.Config{Enabled: true})
	return b
}

// NewWithConfigAndMetrics creates a packet buffer with custom config and metrics.
func NewWithConfigAndMetrics(config Config, name string, metricsConfig metrics.Config) (Buffer, error) {
	base, err := NewWithConfig(config)
	if err != nil {
		return nil, err
	}

	if !metricsConfig.Enabled {
		return base, nil
	}

	return &MetricsBuffer{
		buffer:   base,
		name:     name,
		registry: metrics.NewRegistryWithConfig(metricsConfig),
		enabled:  true,
	}, nil
}

// Write copies p into the buffer as a single packet.
func (mb *MetricsBuffer) Write(p []byte) (int, error) {
	n, err := mb.buffer.Write(p)
	mb.recordEnqueue("copy", n, err)
	return n, err
}

// WriteOwned appends p to the buffer, taking ownership.
func (mb *MetricsBuffer) WriteOwned(p []byte) (int, error) {
	n, err := mb.buffer.WriteOwned(p)
	if len(p) > 0 {
		mb.recordEnqueue("owned", n, err)
	} else {
		mb.observe()
	}
	return n, err
}

// WriteNext copies p in as the next packet to deliver.
func (mb *MetricsBuffer) WriteNext(p []byte) (int, error) {
	n, err := mb.buffer.WriteNext(p)
	mb.recordEnqueue("copy", n, err)
	return n, err
}

// WriteOwnedNext inserts p as the next packet to deliver, taking ownership.
func (mb *MetricsBuffer) WriteOwnedNext(p []byte) (int, error) {
	n, err := mb.buffer.WriteOwnedNext(p)
	if len(p) > 0 {
		mb.recordEnqueue("owned", n, err)
	} else {
		mb.observe()
	}
	return n, err
}

// SendFile appends a file packet streamed chunk by chunk.
func (mb *MetricsBuffer) SendFile(f io.ReadCloser) error {
	err := mb.buffer.SendFile(f)

	if mb.enabled {
		if err == nil {
			mb.registry.BufferPacketsQueued.WithLabelValues("file", mb.name).Inc()
		} else {
			mb.registry.BufferErrors.WithLabelValues("sendfile", mb.name).Inc()
		}
		mb.observe()
	}
	return err
}

// Flush delivers queued packets to dst.
func (mb *MetricsBuffer) Flush(dst io.Writer) (int, error) {
	n, err := mb.buffer.Flush(dst)

	if mb.enabled {
		mb.registry.BufferFlushes.WithLabelValues(mb.name).Inc()
		if n > 0 {
			mb.registry.BufferBytesSent.WithLabelValues(mb.name).Add(float64(n))
		}
		if err != nil {
			mb.registry.BufferErrors.WithLabelValues("flush", mb.name).Inc()
		}
		mb.observe()
	}
	return n, err
}

// SetHook installs a write hook.
func (mb *MetricsBuffer) SetHook(h Hook) {
	mb.buffer.SetHook(h)
}

// CloseWhenDone marks the current end of the queue as the close point.
func (mb *MetricsBuffer) CloseWhenDone() error {
	err := mb.buffer.CloseWhenDone()
	mb.observe()
	return err
}

// CloseRequested reports whether the close point has been reached.
func (mb *MetricsBuffer) CloseRequested() bool {
	return mb.buffer.CloseRequested()
}

// IsEmpty reports whether no packets are queued.
func (mb *MetricsBuffer) IsEmpty() bool {
	return mb.buffer.IsEmpty()
}

// Len returns the number of queued packets.
func (mb *MetricsBuffer) Len() int {
	depth := mb.buffer.Len()

	if mb.enabled {
		mb.registry.BufferDepth.WithLabelValues(mb.name).Set(float64(depth))
	}
	return depth
}

// Pending returns the number of queued-but-undelivered payload bytes.
func (mb *MetricsBuffer) Pending() int64 {
	pending := mb.buffer.Pending()

	if mb.enabled {
		mb.registry.BufferPendingBytes.WithLabelValues(mb.name).Set(float64(pending))
	}
	return pending
}

// Clear drops all queued packets.
func (mb *MetricsBuffer) Clear() {
	mb.buffer.Clear()
	mb.observe()
}

// Close clears the buffer and marks it closed.
func (mb *MetricsBuffer) Close() error {
	err := mb.buffer.Close()
	mb.observe()
	return err
}

// Stats returns a snapshot of buffer statistics.
func (mb *MetricsBuffer) Stats() Stats {
	return mb.buffer.Stats()
}

// recordEnqueue updates queue-side counters after a write call.
func (mb *MetricsBuffer) recordEnqueue(kind string, n int, err error) {
	if !mb.enabled {
		return
	}

	if err != nil {
		mb.registry.BufferErrors.WithLabelValues("write", mb.name).Inc()
	} else if n > 0 {
		mb.registry.BufferPacketsQueued.WithLabelValues(kind, mb.name).Inc()
		mb.registry.BufferBytesQueued.WithLabelValues(mb.name).Add(float64(n))
	}
	mb.observe()
}

// observe exports the wrapped buffer's internal counters as deltas and
// refreshes the depth and pending gauges.
func (mb *MetricsBuffer) observe() {
	if !mb.enabled {
		return
	}

	stats := mb.buffer.Stats()

	mb.deltaMu.Lock()
	dShort := stats.ShortWrites - mb.lastShort
	dFiles := stats.FilesStreamed - mb.lastFiles
	dCloses := stats.CloseRequests - mb.lastCloses
	mb.lastShort = stats.ShortWrites
	mb.lastFiles = stats.FilesStreamed
	mb.lastCloses = stats.CloseRequests
	mb.deltaMu.Unlock()

	if dShort > 0 {
		mb.registry.BufferShortWrites.WithLabelValues(mb.name).Add(float64(dShort))
	}
	if dFiles > 0 {
		mb.registry.BufferFilesStreamed.WithLabelValues(mb.name).Add(float64(dFiles))
	}
	if dCloses > 0 {
		mb.registry.BufferCloseRequests.WithLabelValues(mb.name).Add(float64(dCloses))
	}
	mb.registry.BufferDepth.WithLabelValues(mb.name).Set(float64(stats.Depth))
	mb.registry.BufferPendingBytes.WithLabelValues(mb.name).Set(float64(stats.PendingBytes))
}

// EnableMetrics enables metrics collection.
func (mb *MetricsBuffer) EnableMetrics(config metrics.Config) error {
	mb.enabled = config.Enabled
	mb.registry = metrics.NewRegistryWithConfig(config)
	return nil
}

// DisableMetrics disables metrics collection.
func (mb *MetricsBuffer) DisableMetrics() {
	mb.enabled = false
}

// MetricsEnabled returns true if metrics are currently enabled.
func (mb *MetricsBuffer) MetricsEnabled() bool {
	return mb.enabled
}
