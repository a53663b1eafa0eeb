/*
Package drain drives packet buffers from goroutines, playing the role an
event loop's writability callbacks play in a classic reactor.

A packet buffer is passive: it only moves data when Flush is called. This
package supplies the two standard ways to call it. Loop dedicates one
goroutine to one buffer, the simplest shape for servers that already run a
goroutine per connection. Pool services many buffers with a fixed crew of
workers, the shape of a thread-pooled reactor.

Both wake on enqueue, flush until the destination pushes back, retry
blocked writes on a timer, and tear the target down when a fatal error
occurs or the buffer's close request has been delivered.

# Drain Loops

A Loop constructs its buffer so the enqueue wake-up is wired before any
data can arrive:

	loop, err := drain.NewLoopWithConfig(conn, drain.LoopConfig{
		Buffer: packetbuf.Config{Owner: conn},
		OnCloseConn: func() {
			conn.Close()
		},
	})
	if err != nil {
		log.Fatal(err)
	}
	defer loop.Stop()

	buf := loop.Buffer()
	buf.Write([]byte("hello"))
	buf.CloseWhenDone()

	<-loop.Done()

# Drain Pools

A Pool registers buffers with Add and shares its workers across all of
them:

	pool := drain.NewPool(4)
	defer func() { <-pool.Shutdown() }()

	buf, err := pool.Add(packetbuf.Config{Owner: conn}, conn)
	if err != nil {
		log.Fatal(err)
	}
	buf.Write([]byte("hello"))

# Teardown

Neither Loop nor Pool ever closes a buffer or a connection; they report
through callbacks and leave the lifecycle to the owner. OnCloseConn fires
exactly once when everything queued before CloseWhenDone has been
delivered. OnFatal fires once with the write error that stopped delivery;
the buffer keeps its undelivered packets so the owner can inspect or
retry them.

# Retry Behavior

A would-block result from the destination is not an error. The drain
simply waits RetryInterval and tries again, or sooner if more data is
queued in the meantime. Fatal errors stop the drain immediately.

# Metrics

NewLoopWithMetrics and NewPoolWithMetrics report drain cycles, retries,
and the active target count through the Prometheus registry in
pkg/metrics.

See example tests for more usage patterns.
*/
package drain
