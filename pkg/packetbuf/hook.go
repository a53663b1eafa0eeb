package packetbuf

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"
)

// Hook intercepts the buffer's write path. When a hook is installed, Flush
// hands every outgoing byte range to Send instead of writing to the
// destination directly, so callers can encrypt, frame, throttle, or route
// the data before it reaches the wire.
//
// Send receives the owner the buffer was created with, the destination
// passed to Flush, and the bytes to deliver. It reports how many leading
// bytes of p were consumed:
//
//   - n == len(p) with a nil error means the range was fully accepted and
//     Flush continues with the next packet.
//   - 0 < n < len(p) with a nil error is a short write; Flush records the
//     progress and returns so the caller can retry once the sink drains.
//   - n == 0 with a nil error means the sink accepted nothing right now;
//     Flush returns with all state untouched.
//   - A non-nil error is fatal: Flush discards n, leaves the queue
//     untouched, and returns the error to the caller.
//
// Send is invoked while the buffer's lock is held, so packet boundaries
// stay intact under concurrent writers. It must not block indefinitely or
// call back into the buffer.
type Hook interface {
	Send(owner interface{}, dst io.Writer, p []byte) (int, error)
}

// HookFunc adapts a plain function to the Hook interface.
type HookFunc func(owner interface{}, dst io.Writer, p []byte) (int, error)

// Send calls f.
func (f HookFunc) Send(owner interface{}, dst io.Writer, p []byte) (int, error) {
	return f(owner, dst, p)
}

// IsWouldBlock reports whether err indicates a write that could not make
// progress right now and is worth retrying later: a missed write deadline,
// a timeout from a net.Conn, or EAGAIN-family errnos from a non-blocking
// descriptor. The default write path uses it to turn such errors into a
// clean stop; custom hooks can use it the same way.
func IsWouldBlock(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.EWOULDBLOCK) ||
		errors.Is(err, syscall.EINTR)
}
