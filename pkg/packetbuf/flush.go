package packetbuf

import (
	"io"
	"time"

	"github.com/vnykmshr/outbound/pkg/common/errors"
)

// Flush implements Buffer.Flush.
func (b *packetBuffer) Flush(dst io.Writer) (int, error) {
	if b.isClosed() {
		return 0, ErrBufferClosed
	}

	start := time.Now()
	total, err := b.drainTo(dst)
	duration := time.Since(start)

	b.updateStats(func(s *Stats) {
		s.FlushCount++
		s.BytesSent += int64(total)
		s.LastFlushTime = time.Now()
	})

	if b.config.OnFlush != nil {
		b.config.OnFlush(total, duration)
	}
	if err != nil && b.config.OnError != nil {
		b.config.OnError(err)
	}
	return total, err
}

// drainTo sends queued packets to dst until the queue is exhausted, the
// sink stops accepting bytes, the close point is reached, or an error
// occurs. The lock is held per packet step, never across the whole call,
// so enqueues interleave with a long drain instead of stalling behind it.
func (b *packetBuffer) drainTo(dst io.Writer) (int, error) {
	total := 0
	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return total, ErrBufferClosed
		}
		if b.closeRequested || len(b.queue) == 0 {
			b.mu.Unlock()
			return total, nil
		}

		head := b.queue[0]

		if head.kind == packetClose {
			// Everything ahead of the close point has been delivered.
			head.release()
			b.popLocked()
			b.closeRequested = true
			cb := b.config.OnCloseRequested
			b.mu.Unlock()

			b.updateStats(func(s *Stats) { s.CloseRequests++ })
			if cb != nil {
				cb()
			}
			return total, nil
		}

		if head.kind == packetFile && head.off >= len(head.data) {
			cont, err := b.loadChunkLocked(head)
			b.mu.Unlock()
			if err != nil {
				return total, err
			}
			if !cont {
				return total, nil
			}
			continue
		}

		payload := head.unsent()
		n, err := b.sendLocked(dst, payload)
		if err != nil {
			b.mu.Unlock()
			return total, err
		}
		if n < 0 || n > len(payload) {
			b.mu.Unlock()
			return total, ErrHookMisbehaved
		}
		if n == 0 {
			// The sink accepted nothing; try again on a later flush.
			b.mu.Unlock()
			b.updateStats(func(s *Stats) { s.ShortWrites++ })
			return total, nil
		}

		head.off += n
		total += n
		short := n < len(payload)
		if !short {
			b.advanceLocked(head)
		}
		b.mu.Unlock()

		if short {
			b.updateStats(func(s *Stats) { s.ShortWrites++ })
			return total, nil
		}
	}
}

// sendLocked pushes payload toward dst through the installed hook, or
// writes directly when none is set. Direct writes classify would-block
// conditions as zero-progress rather than failure, keeping any partial
// count. Called with the lock held.
func (b *packetBuffer) sendLocked(dst io.Writer, payload []byte) (int, error) {
	if b.hook != nil {
		return b.hook.Send(b.owner, dst, payload)
	}

	n, err := dst.Write(payload)
	if err != nil && IsWouldBlock(err) {
		err = nil
	}
	if n < 0 {
		n = 0
	}
	return n, err
}

// loadChunkLocked reads the next chunk of head's file into a pooled slab.
// It reports whether the drain loop should continue; a false return with a
// nil error means the file yielded nothing right now. Called with the lock
// held.
func (b *packetBuffer) loadChunkLocked(head *packet) (bool, error) {
	chunk, pooled := allocSlab(b.config.ChunkSize)
	n, err := head.file.Read(chunk)

	if n > 0 {
		head.data = chunk[:n]
		head.pooled = pooled
		head.off = 0
		head.started = true
		if err == io.EOF {
			head.eof = true
		}
		return true, nil
	}

	if pooled {
		recycleSlab(chunk)
	}

	switch {
	case err == io.EOF:
		// The file is exhausted without a trailing chunk.
		head.eof = true
		b.finishFileLocked(head)
		return true, nil
	case err != nil:
		// The file cannot make progress; drop the packet and surface the
		// failure with the sink untouched.
		head.release()
		b.popLocked()
		return false, errors.NewOperationError("packetbuf", "Flush", err).WithContext("file read")
	default:
		// Read returned no bytes and no error; leave the packet queued.
		return false, nil
	}
}

// advanceLocked retires a fully consumed head payload. File packets shed
// their spent chunk and stay queued until EOF. Called with the lock held.
func (b *packetBuffer) advanceLocked(head *packet) {
	if head.kind == packetFile && !head.eof {
		if head.pooled {
			recycleSlab(head.data)
		}
		head.data = nil
		head.pooled = false
		head.off = 0
		return
	}

	if head.kind == packetFile {
		b.finishFileLocked(head)
		return
	}

	head.release()
	b.popLocked()
}

// finishFileLocked closes out a file packet whose stream completed.
// Called with the lock held.
func (b *packetBuffer) finishFileLocked(head *packet) {
	head.release()
	b.popLocked()
	b.updateStats(func(s *Stats) { s.FilesStreamed++ })
}

// popLocked removes the head packet. Called with the lock held.
func (b *packetBuffer) popLocked() {
	b.queue[0] = nil
	b.queue = b.queue[1:]
	if len(b.queue) == 0 {
		b.queue = nil
	}
}
