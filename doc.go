/*
Package outbound provides packet-based output buffering for evented
network servers, with pluggable sinks and drain drivers.

Buffering (pkg/packetbuf):
  - Buffer: per-connection packet queue preserving write boundaries
  - File streaming: large responses sent chunk-at-a-time from disk
  - Close-when-done: ordered connection teardown signaling

Sinks (pkg/sink):
  - Conn: deadline-armed writes to net.Conn destinations
  - FD: raw non-blocking file descriptor writes
  - Throttle: token bucket byte rate limiting
  - Frame: length-prefixed packet framing

Draining (pkg/drain):
  - Loop: one goroutine draining one buffer
  - Pool: a fixed worker crew draining many buffers

Example usage:

	import (
		"github.com/vnykmshr/outbound/pkg/packetbuf"
		"github.com/vnykmshr/outbound/pkg/sink"
	)

	buf := packetbuf.New(conn)
	buf.SetHook(sink.NewConn(10 * time.Millisecond))

	buf.Write([]byte("hello"))
	buf.CloseWhenDone()

	if n, err := buf.Flush(conn); err != nil {
		log.Printf("connection lost after %d bytes: %v", n, err)
	}
*/
package outbound
