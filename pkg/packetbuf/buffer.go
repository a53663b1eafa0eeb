package packetbuf

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/vnykmshr/outbound/pkg/common/validation"
)

// Errors returned by buffer operations.
var (
	// ErrBufferClosed is returned when operating on a closed buffer.
	ErrBufferClosed = errors.New("buffer is closed")

	// ErrInvalidFile is returned by SendFile when the file handle is nil.
	ErrInvalidFile = errors.New("invalid file handle")

	// ErrHookMisbehaved is returned by Flush when the write hook reports
	// consuming more bytes than it was offered, or a negative count. No
	// queue state is advanced when this happens.
	ErrHookMisbehaved = errors.New("write hook reported out-of-range byte count")
)

// DefaultChunkSize is the default maximum number of bytes loaded from a
// file packet per flush step. Large responses stream through a slab of
// this size instead of being read into memory whole.
const DefaultChunkSize = 64 * 1024

// Buffer is a packet-based output buffer for a single connection. Data is
// queued as discrete packets whose boundaries are preserved all the way to
// the sink, so a pluggable write hook can frame or encrypt each packet
// exactly as it was enqueued.
//
// A Buffer never writes on its own; it accumulates packets until Flush is
// called with a destination, which makes it a natural fit for evented
// servers that flush on writability and for dedicated drain goroutines
// alike. All methods are safe for concurrent use.
type Buffer interface {
	// Write copies p and appends it to the queue as a single packet. The
	// caller keeps ownership of p and may reuse it immediately. It returns
	// the number of bytes queued. Writing an empty or nil slice queues
	// nothing and returns 0.
	Write(p []byte) (int, error)

	// WriteOwned appends p as a single packet without copying. Ownership
	// of p moves to the buffer; the caller must not touch it afterwards.
	// Passing a nil or empty slice does not queue data, it requests close
	// exactly like CloseWhenDone.
	WriteOwned(p []byte) (int, error)

	// WriteNext copies p and inserts it as the next packet to deliver.
	// If transmission of the current head packet has already begun, the
	// insert lands immediately after it so the head's bytes are never
	// interleaved; otherwise it lands at the front of the queue.
	WriteNext(p []byte) (int, error)

	// WriteOwnedNext is WriteNext with WriteOwned's ownership transfer.
	// A nil or empty slice requests close exactly like CloseWhenDone.
	WriteOwnedNext(p []byte) (int, error)

	// SendFile appends a packet that streams f in chunks of at most the
	// configured chunk size, holding a single chunk in memory at a time.
	// The buffer takes ownership of f and closes it when the stream
	// completes or the buffer is cleared or closed. It returns
	// ErrInvalidFile if f is nil.
	SendFile(f io.ReadCloser) error

	// Flush delivers queued packets to dst in order, via the write hook
	// when one is installed. It keeps sending as long as the sink accepts
	// full ranges, and returns after a short or zero-progress write, after
	// the queue drains, or when the close point is reached. It returns the
	// number of bytes the sink consumed during this call.
	//
	// A non-nil error means the sink failed fatally; no queue state was
	// advanced for the failing range, and the buffer remains usable for
	// inspection or Clear. Once the close point has been signalled, Flush
	// delivers nothing and returns 0.
	Flush(dst io.Writer) (int, error)

	// SetHook installs h as the write hook for subsequent flushes. A nil
	// hook restores the default behavior of writing to the flush
	// destination directly.
	SetHook(h Hook)

	// CloseWhenDone marks the current end of the queue as the close
	// point. Once every packet ahead of it has been delivered, the buffer
	// latches the close-requested state, fires the OnCloseRequested
	// callback, and stops delivering data. If the queue is already empty
	// the close point is reached immediately. It returns ErrBufferClosed
	// on a closed buffer.
	CloseWhenDone() error

	// CloseRequested reports whether the close point has been reached and
	// the connection should be torn down.
	CloseRequested() bool

	// IsEmpty reports whether no packets are queued.
	IsEmpty() bool

	// Len returns the number of queued packets, including any pending
	// close marker.
	Len() int

	// Pending returns the number of queued-but-undelivered payload bytes.
	// A file packet that has not reported EOF counts one extra byte,
	// since its remaining size is unknown until it is read. Counting
	// stops at a pending close marker.
	Pending() int64

	// Clear drops every queued packet, returning pooled memory and
	// closing any open file, removes the write hook, and resets the
	// close-when-done state. The buffer is ready for reuse afterwards.
	Clear()

	// Close clears the buffer and marks it closed. Subsequent operations
	// return ErrBufferClosed. Close is idempotent.
	Close() error

	// Stats returns a snapshot of buffer statistics.
	Stats() Stats
}

// Config holds configuration options for a Buffer.
type Config struct {
	// Owner is an opaque connection context handed to the write hook on
	// every Send. May be nil.
	Owner interface{}

	// ChunkSize caps how many bytes of a file packet are loaded into
	// memory per flush step. Defaults to DefaultChunkSize.
	ChunkSize int

	// Hook is the initial write hook. When nil, Flush writes directly to
	// its destination.
	Hook Hook

	// OnEnqueue is called after a packet or close marker is queued.
	// Drain loops use it as a wake-up signal.
	OnEnqueue func()

	// OnCloseRequested is called once when the close point is reached and
	// the connection should be torn down.
	OnCloseRequested func()

	// OnFlush is called after each Flush with the bytes consumed by the
	// sink and the call duration.
	OnFlush func(bytes int, duration time.Duration)

	// OnError is called when Flush returns an error.
	OnError func(error)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize: DefaultChunkSize,
	}
}

// Stats provides statistics about buffer operations.
type Stats struct {
	PacketsQueued int64     // total packets accepted
	BytesQueued   int64     // total payload bytes accepted
	BytesSent     int64     // total bytes consumed by the sink
	FlushCount    int64     // number of Flush calls that ran
	ShortWrites   int64     // flushes stopped early by a partial or zero write
	FilesStreamed int64     // file packets streamed to completion
	CloseRequests int64     // close points reached
	LastFlushTime time.Time // completion time of the most recent flush
	Depth         int       // packets queued right now
	PendingBytes  int64     // undelivered payload bytes right now
}

// packetBuffer implements Buffer.
type packetBuffer struct {
	mu    sync.Mutex
	queue []*packet
	hook  Hook
	owner interface{}

	closeRequested bool
	closed         bool

	config Config

	stats   Stats
	statsMu sync.RWMutex
}

// New creates a Buffer with default configuration bound to owner. The
// owner is passed through to the write hook and may be nil.
func New(owner interface{}) Buffer {
	config := DefaultConfig()
	config.Owner = owner
	b, _ := NewWithConfig(config)
	return b
}

// NewWithConfig creates a Buffer with custom configuration. A zero
// ChunkSize is replaced with DefaultChunkSize; a negative one is an error.
func NewWithConfig(config Config) (Buffer, error) {
	if config.ChunkSize == 0 {
		config.ChunkSize = DefaultChunkSize
	}
	if err := validation.ValidatePositive("packetbuf", "chunkSize", config.ChunkSize); err != nil {
		return nil, err
	}

	return &packetBuffer{
		hook:   config.Hook,
		owner:  config.Owner,
		config: config,
	}, nil
}

// Write implements Buffer.Write.
func (b *packetBuffer) Write(p []byte) (int, error) {
	return b.enqueueCopy(p, false)
}

// WriteNext implements Buffer.WriteNext.
func (b *packetBuffer) WriteNext(p []byte) (int, error) {
	return b.enqueueCopy(p, true)
}

// WriteOwned implements Buffer.WriteOwned.
func (b *packetBuffer) WriteOwned(p []byte) (int, error) {
	return b.enqueueOwned(p, false)
}

// WriteOwnedNext implements Buffer.WriteOwnedNext.
func (b *packetBuffer) WriteOwnedNext(p []byte) (int, error) {
	return b.enqueueOwned(p, true)
}

func (b *packetBuffer) enqueueCopy(p []byte, urgent bool) (int, error) {
	if len(p) == 0 {
		if b.isClosed() {
			return 0, ErrBufferClosed
		}
		return 0, nil
	}

	data, pooled := allocSlab(len(p))
	copy(data, p)
	pkt := &packet{kind: packetCopy, data: data, pooled: pooled}
	if err := b.insert(pkt, urgent); err != nil {
		pkt.release()
		return 0, err
	}
	return len(p), nil
}

func (b *packetBuffer) enqueueOwned(p []byte, urgent bool) (int, error) {
	if len(p) == 0 {
		// An empty ownership transfer is the close request.
		return 0, b.CloseWhenDone()
	}

	pkt := &packet{kind: packetOwned, data: p}
	if err := b.insert(pkt, urgent); err != nil {
		return 0, err
	}
	return len(p), nil
}

// SendFile implements Buffer.SendFile.
func (b *packetBuffer) SendFile(f io.ReadCloser) error {
	if f == nil {
		return ErrInvalidFile
	}
	pkt := &packet{kind: packetFile, file: f}
	if err := b.insert(pkt, false); err != nil {
		_ = f.Close()
		return err
	}
	return nil
}

// insert adds pkt to the queue. Urgent packets land at the front, or right
// behind the head when its transmission has already begun.
func (b *packetBuffer) insert(pkt *packet, urgent bool) error {
	size := int64(len(pkt.data))

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBufferClosed
	}
	switch {
	case !urgent || len(b.queue) == 0:
		b.queue = append(b.queue, pkt)
	case b.queue[0].inFlight():
		b.queue = append(b.queue, nil)
		copy(b.queue[2:], b.queue[1:])
		b.queue[1] = pkt
	default:
		b.queue = append(b.queue, nil)
		copy(b.queue[1:], b.queue[0:])
		b.queue[0] = pkt
	}
	onEnqueue := b.config.OnEnqueue
	b.mu.Unlock()

	b.updateStats(func(s *Stats) {
		s.PacketsQueued++
		s.BytesQueued += size
	})
	if onEnqueue != nil {
		onEnqueue()
	}
	return nil
}

// SetHook implements Buffer.SetHook.
func (b *packetBuffer) SetHook(h Hook) {
	b.mu.Lock()
	b.hook = h
	b.mu.Unlock()
}

// CloseWhenDone implements Buffer.CloseWhenDone.
func (b *packetBuffer) CloseWhenDone() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBufferClosed
	}
	if b.closeRequested {
		b.mu.Unlock()
		return nil
	}

	if len(b.queue) == 0 {
		// Nothing to drain; the close point is reached right away.
		b.closeRequested = true
		cb := b.config.OnCloseRequested
		b.mu.Unlock()

		b.updateStats(func(s *Stats) { s.CloseRequests++ })
		if cb != nil {
			cb()
		}
		return nil
	}

	if b.queue[len(b.queue)-1].kind == packetClose {
		b.mu.Unlock()
		return nil
	}

	b.queue = append(b.queue, &packet{kind: packetClose})
	onEnqueue := b.config.OnEnqueue
	b.mu.Unlock()

	if onEnqueue != nil {
		onEnqueue()
	}
	return nil
}

// CloseRequested implements Buffer.CloseRequested.
func (b *packetBuffer) CloseRequested() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeRequested
}

// IsEmpty implements Buffer.IsEmpty.
func (b *packetBuffer) IsEmpty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue) == 0
}

// Len implements Buffer.Len.
func (b *packetBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Pending implements Buffer.Pending.
func (b *packetBuffer) Pending() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	var n int64
	for _, pkt := range b.queue {
		if pkt.kind == packetClose {
			break
		}
		n += int64(len(pkt.data) - pkt.off)
		if pkt.kind == packetFile && !pkt.eof {
			n++
		}
	}
	return n
}

// Clear implements Buffer.Clear.
func (b *packetBuffer) Clear() {
	b.mu.Lock()
	b.clearLocked()
	b.mu.Unlock()
}

// clearLocked drops all queued packets and resets hook and close state.
// Called with the lock held.
func (b *packetBuffer) clearLocked() {
	for _, pkt := range b.queue {
		pkt.release()
	}
	b.queue = nil
	b.hook = nil
	b.closeRequested = false
}

// Close implements Buffer.Close.
func (b *packetBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.clearLocked()
	b.closed = true
	return nil
}

// Stats implements Buffer.Stats.
func (b *packetBuffer) Stats() Stats {
	b.statsMu.RLock()
	stats := b.stats
	b.statsMu.RUnlock()

	stats.Depth = b.Len()
	stats.PendingBytes = b.Pending()
	return stats
}

func (b *packetBuffer) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// updateStats modifies statistics under the stats lock.
func (b *packetBuffer) updateStats(fn func(*Stats)) {
	b.statsMu.Lock()
	fn(&b.stats)
	b.statsMu.Unlock()
}
