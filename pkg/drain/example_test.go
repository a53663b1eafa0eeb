package drain_test

import (
	"bytes"
	"fmt"

	"github.com/vnykmshr/outbound/pkg/drain"
	"github.com/vnykmshr/outbound/pkg/packetbuf"
)

// Example_loop demonstrates a dedicated drain goroutine for one buffer.
func Example_loop() {
	done := make(chan struct{})
	var dst bytes.Buffer

	loop, err := drain.NewLoopWithConfig(&dst, drain.LoopConfig{
		OnCloseConn: func() { close(done) },
	})
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	buf := loop.Buffer()
	_, _ = buf.Write([]byte("event stream"))
	_ = buf.CloseWhenDone()

	<-done
	<-loop.Done()
	fmt.Printf("delivered: %s\n", dst.String())
	// Output: delivered: event stream
}

// Example_pool demonstrates a worker pool draining many buffers.
func Example_pool() {
	closed := make(chan struct{})

	pool := drain.NewPoolWithConfig(drain.PoolConfig{
		Workers: 2,
		OnCloseConn: func(owner interface{}) {
			fmt.Printf("%v fully drained\n", owner)
			close(closed)
		},
	})
	defer func() { <-pool.Shutdown() }()

	var dst bytes.Buffer
	buf, err := pool.Add(packetbuf.Config{Owner: "client-1"}, &dst)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	_, _ = buf.Write([]byte("response"))
	_ = buf.CloseWhenDone()

	<-closed
	fmt.Printf("wrote: %s\n", dst.String())
	// Output:
	// client-1 fully drained
	// wrote: response
}
