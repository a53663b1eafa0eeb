package sink

import (
	"io"
	"net"
	"time"

	"github.com/vnykmshr/outbound/pkg/packetbuf"
)

// DefaultWriteTimeout bounds how long a single hook write may block on a
// saturated connection before it is reported as would-block.
const DefaultWriteTimeout = 10 * time.Millisecond

// Conn is a write hook for stream connections. When the flush destination
// is a net.Conn it arms a short write deadline before each write, so a
// peer that stops reading surfaces as a would-block result instead of
// holding the buffer's lock indefinitely. Timeouts and EAGAIN-family
// errors become zero-progress results with any partial count preserved;
// everything else is fatal.
//
// One Conn instance serves any destination, including *tls.Conn.
type Conn struct {
	timeout time.Duration
}

// NewConn returns a Conn hook with the given write timeout. A zero or
// negative timeout disables the deadline entirely, which is only safe for
// destinations that cannot block, and DefaultWriteTimeout is what callers
// normally want.
func NewConn(timeout time.Duration) *Conn {
	return &Conn{timeout: timeout}
}

// Send implements the packetbuf write hook contract.
func (c *Conn) Send(_ interface{}, dst io.Writer, p []byte) (int, error) {
	if conn, ok := dst.(net.Conn); ok && c.timeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(c.timeout))
		defer func() { _ = conn.SetWriteDeadline(time.Time{}) }()
	}

	n, err := dst.Write(p)
	if n < 0 {
		n = 0
	}
	if err != nil && packetbuf.IsWouldBlock(err) {
		return n, nil
	}
	return n, err
}
