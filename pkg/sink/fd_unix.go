//go:build unix

package sink

import (
	"io"

	"golang.org/x/sys/unix"

	"github.com/vnykmshr/outbound/pkg/packetbuf"
)

// FD is a write hook for a raw file descriptor, the classic evented-server
// write path where the event loop owns a non-blocking socket. It bypasses
// the flush destination and calls write(2) on the descriptor directly.
//
// The descriptor should be in non-blocking mode; a blocking descriptor
// stalls the buffer's lock for the duration of the write.
type FD struct {
	fd int
}

// NewFD returns a hook writing to fd. The caller keeps ownership of the
// descriptor and closes it after the buffer is done with it.
func NewFD(fd int) *FD {
	return &FD{fd: fd}
}

// Send implements the packetbuf write hook contract.
func (f *FD) Send(_ interface{}, _ io.Writer, p []byte) (int, error) {
	n, err := unix.Write(f.fd, p)
	if n < 0 {
		n = 0
	}
	if err != nil && packetbuf.IsWouldBlock(err) {
		return n, nil
	}
	return n, err
}
