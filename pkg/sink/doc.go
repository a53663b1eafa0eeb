/*
Package sink provides ready-made write hooks for packet buffers.

A packet buffer delivers its queue through an optional write hook, and
this package collects the hooks most evented servers need: deadline-armed
connection writes, raw file descriptor writes, token bucket rate limiting,
length-prefixed framing, and a discard sink for tests. All hooks follow
the packetbuf contract: they never block, report partial progress
honestly, and translate would-block conditions into a clean zero-progress
stop.

# Connection Sinks

Conn arms a write deadline before each write so a stalled peer cannot
block the flush:

	buf := packetbuf.New(conn)
	buf.SetHook(sink.NewConn(10 * time.Millisecond))

	buf.Write([]byte("hello"))
	buf.Flush(conn)

# Raw Descriptors

FD writes straight to a file descriptor, bypassing the net package. The
descriptor should be in non-blocking mode:

	fd := sink.NewFD(rawFD)
	buf.SetHook(fd)

# Rate Limiting

Throttle caps outgoing bytes per second with a token bucket. When the
bucket runs dry the flush stops cleanly and resumes on the next cycle:

	throttle, err := sink.NewThrottle(1024*1024, 64*1024)
	if err != nil {
		log.Fatal(err)
	}
	buf.SetHook(throttle)

# Framing

Frame prefixes each packet with its length so a reader can recover the
packet boundaries:

	buf.SetHook(sink.NewFrame())

# Composition

Hooks that accept a Next hook can be chained. A throttle in front of a
connection sink limits the rate while keeping deadline handling:

	throttle, err := sink.NewThrottleWithConfig(sink.ThrottleConfig{
		Rate:  512 * 1024,
		Burst: 32 * 1024,
		Next:  sink.NewConn(10 * time.Millisecond),
	})

# Metrics

NewMetricsHook wraps any hook with Prometheus counters for bytes written,
would-block stops, and fatal errors:

	hook := sink.NewMetricsHook(sink.NewConn(0), "conn", "client-42", metrics.Config{
		Enabled: true,
	})

See example tests for more usage patterns.
*/
package sink
