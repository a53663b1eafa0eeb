package sink

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Frame is a write hook that wraps each packet in a 4-byte big-endian
// length prefix before writing it out. Because a partially written frame
// cannot be resumed without corrupting the stream, Frame delivers each
// packet all-or-nothing: any failure or short write is reported as a
// fatal error with zero progress so the packet is retried from the start.
//
// Frame should sit in front of a destination that accepts whole frames,
// such as a buffered or blocking writer. Pairing it with a non-blocking
// socket risks tearing frames apart, so would-block conditions from the
// destination are treated as fatal here rather than as a clean stop.
type Frame struct{}

// NewFrame creates a framing write hook.
func NewFrame() *Frame {
	return &Frame{}
}

// Send writes the length prefix followed by the packet payload. On success
// it reports the full payload length; the prefix bytes are not counted.
func (f *Frame) Send(_ interface{}, dst io.Writer, p []byte) (int, error) {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(p)))

	if err := writeFull(dst, header[:]); err != nil {
		return 0, fmt.Errorf("frame header: %w", err)
	}
	if err := writeFull(dst, p); err != nil {
		return 0, fmt.Errorf("frame payload: %w", err)
	}
	return len(p), nil
}

// writeFull writes all of p, treating non-positive progress as failure.
func writeFull(dst io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := dst.Write(p)
		if err != nil {
			return err
		}
		if n <= 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}
