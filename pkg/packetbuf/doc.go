/*
Package packetbuf provides a packet-based output buffer for connection
handling in evented servers.

A Buffer queues outgoing data as discrete packets and delivers them in
order when flushed toward a destination. Packet boundaries survive all the
way to the sink, so a pluggable write hook can encrypt, frame, or throttle
each packet exactly as it was enqueued. Nothing is written until Flush is
called, which makes the buffer a natural fit for readiness-driven event
loops and dedicated drain goroutines alike.

# Quick Start

	buf := packetbuf.New(nil)
	defer buf.Close()

	buf.Write([]byte("HTTP/1.1 200 OK\r\n\r\n"))
	buf.Write(body)

	// When the connection becomes writable:
	n, err := buf.Flush(conn)

# Queueing Data

	// Copy semantics: the caller keeps the slice
	buf.Write(data)

	// Move semantics: the buffer takes ownership, no copy
	buf.WriteOwned(rendered)

	// Urgent data goes out next, without splitting a packet
	// already in transmission
	buf.WriteNext(controlFrame)

# Streaming Files

Files stream through the buffer in bounded chunks, one chunk in memory at
a time, so large responses never inflate the process:

	f, err := os.Open("large-response.bin")
	if err != nil {
		return err
	}
	if err := buf.SendFile(f); err != nil {
		return err
	}
	// The buffer owns f now and closes it when the stream completes.

# Write Hooks

A hook intercepts every outgoing byte range, receiving the owner the
buffer was created with and the flush destination:

	buf.SetHook(packetbuf.HookFunc(func(owner interface{}, dst io.Writer, p []byte) (int, error) {
		sealed := seal(p) // e.g. TLS record, length-prefixed frame
		if _, err := dst.Write(sealed); err != nil {
			return 0, err
		}
		return len(p), nil
	}))

The hook reports how many of the offered bytes it consumed. Fewer than
offered is a short write and stops the flush; zero with a nil error means
try again later; an error is fatal and leaves the queue untouched.

# Connection Teardown

CloseWhenDone marks the current end of the queue. Once everything ahead of
the mark is delivered, the buffer latches the close-requested state and
fires the OnCloseRequested callback instead of closing anything itself:

	config := packetbuf.DefaultConfig()
	config.OnCloseRequested = func() {
		conn.Close()
	}
	buf, err := packetbuf.NewWithConfig(config)

	buf.Write(lastResponse)
	buf.CloseWhenDone()

# Configuration

	config := packetbuf.Config{
		Owner:     conn,            // handed to the write hook
		ChunkSize: 64 * 1024,       // file streaming chunk size
		OnEnqueue: notifyDrainLoop, // wake-up signal for drain loops
		OnFlush: func(bytes int, duration time.Duration) {
			log.Printf("flushed %d bytes in %v", bytes, duration)
		},
		OnError: func(err error) {
			log.Printf("flush error: %v", err)
		},
	}

	buf, err := packetbuf.NewWithConfig(config)

# Statistics

	stats := buf.Stats()
	fmt.Printf("queued: %d packets, sent: %d bytes, pending: %d bytes\n",
		stats.PacketsQueued, stats.BytesSent, stats.PendingBytes)

# Metrics

Prometheus metrics are available through the decorator constructors:

	buf, err := packetbuf.NewWithConfigAndMetrics(config, "client_42", metricsConfig)

# Thread Safety

Buffer is safe for concurrent use from multiple goroutines. The write hook
runs while the buffer's lock is held so packet boundaries stay intact; it
must not block indefinitely or call back into the buffer.

# Performance Notes

- Copied writes draw from pooled slabs in power-of-two-ish size classes
- WriteOwned avoids the copy entirely for caller-rendered payloads
- File streaming holds at most one chunk in memory per buffer
- Flush keeps sending while the sink accepts full ranges and stops on the
  first short write

See example tests for more usage patterns.
*/
package packetbuf
