// Package integration contains integration tests that verify cross-package functionality.
// These tests ensure that different components work together correctly in realistic scenarios.
package integration

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/vnykmshr/outbound/internal/testutil"
	"github.com/vnykmshr/outbound/pkg/drain"
	"github.com/vnykmshr/outbound/pkg/packetbuf"
	"github.com/vnykmshr/outbound/pkg/sink"
)

// parseFrames splits a length-prefixed stream back into its payloads.
func parseFrames(t *testing.T, stream []byte) [][]byte {
	t.Helper()
	var frames [][]byte
	for len(stream) > 0 {
		if len(stream) < 4 {
			t.Fatalf("truncated frame header: %d trailing bytes", len(stream))
		}
		size := int(binary.BigEndian.Uint32(stream[:4]))
		stream = stream[4:]
		if len(stream) < size {
			t.Fatalf("truncated frame payload: want %d bytes, have %d", size, len(stream))
		}
		frames = append(frames, stream[:size])
		stream = stream[size:]
	}
	return frames
}

// TestFramedPipelineOverTCP queues packets into a buffer drained through a
// framing hook onto a real TCP connection and verifies that the peer can
// recover every packet boundary from the stream.
func TestFramedPipelineOverTCP(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer func() { _ = listener.Close() }()

	const numPackets = 32

	serverDone := make(chan error, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			serverDone <- err
			return
		}

		loop, err := drain.NewLoopWithConfig(conn, drain.LoopConfig{
			Buffer:      packetbuf.Config{Owner: conn, Hook: sink.NewFrame()},
			OnCloseConn: func() { _ = conn.Close() },
		})
		if err != nil {
			_ = conn.Close()
			serverDone <- err
			return
		}

		buf := loop.Buffer()
		for i := 0; i < numPackets; i++ {
			if _, err := buf.Write([]byte(fmt.Sprintf("message-%02d", i))); err != nil {
				serverDone <- err
				return
			}
		}
		_ = buf.CloseWhenDone()

		<-loop.Done()
		_ = buf.Close()
		serverDone <- nil
	}()

	client, err := net.Dial("tcp", listener.Addr().String())
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer func() { _ = client.Close() }()

	stream, err := io.ReadAll(client)
	if err != nil {
		t.Fatalf("Failed to read stream: %v", err)
	}

	frames := parseFrames(t, stream)
	testutil.AssertEqual(t, len(frames), numPackets)
	for i, frame := range frames {
		testutil.AssertEqual(t, string(frame), fmt.Sprintf("message-%02d", i))
	}

	if err := <-serverDone; err != nil {
		t.Fatalf("Server failed: %v", err)
	}
}

// TestPoolServesManyConnections runs a small accept loop that hands every
// connection to a shared drain pool, greets the peer, and tears the
// connection down once the greeting is delivered.
func TestPoolServesManyConnections(t *testing.T) {
	pool := drain.NewPoolWithConfig(drain.PoolConfig{
		Workers: 3,
		OnCloseConn: func(owner interface{}) {
			_ = owner.(net.Conn).Close()
		},
	})
	defer func() { <-pool.Shutdown() }()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer func() { _ = listener.Close() }()

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			buf, err := pool.Add(packetbuf.Config{
				Owner: conn,
				Hook:  sink.NewConn(sink.DefaultWriteTimeout),
			}, conn)
			if err != nil {
				_ = conn.Close()
				continue
			}
			_, _ = buf.Write([]byte(fmt.Sprintf("welcome %s\n", conn.RemoteAddr())))
			_ = buf.CloseWhenDone()
		}
	}()

	const numClients = 8
	for i := 0; i < numClients; i++ {
		client, err := net.Dial("tcp", listener.Addr().String())
		if err != nil {
			t.Fatalf("Client %d failed to dial: %v", i, err)
		}

		greeting, err := io.ReadAll(client)
		localAddr := client.LocalAddr().String()
		_ = client.Close()
		if err != nil {
			t.Fatalf("Client %d failed to read: %v", i, err)
		}

		testutil.AssertEqual(t, string(greeting), fmt.Sprintf("welcome %s\n", localAddr))
	}

	testutil.AssertEventually(t, func() bool {
		return pool.Targets() == 0
	})

	stats := pool.Stats()
	testutil.AssertEqual(t, stats.CloseSignals, int64(numClients))
	testutil.AssertEqual(t, stats.Fatals, int64(0))
}

// TestConcurrentProducersSingleDrain has several goroutines feeding one
// buffer while a drain loop empties it, then checks that every packet
// arrived exactly once.
func TestConcurrentProducersSingleDrain(t *testing.T) {
	dst := testutil.NewMockWriter()
	loop := drain.NewLoop(dst)
	defer loop.Stop()

	const (
		numProducers      = 8
		writesPerProducer = 50
	)
	buf := loop.Buffer()

	done := make(chan struct{})
	for p := 0; p < numProducers; p++ {
		go func(id int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < writesPerProducer; i++ {
				if _, err := buf.Write([]byte(fmt.Sprintf("p%d-%03d;", id, i))); err != nil {
					t.Errorf("Producer %d write %d failed: %v", id, i, err)
					return
				}
			}
		}(p)
	}
	for p := 0; p < numProducers; p++ {
		<-done
	}

	const packetLen = 8
	wantBytes := numProducers * writesPerProducer * packetLen
	testutil.AssertEventually(t, func() bool {
		return buf.Stats().BytesSent == int64(wantBytes)
	})

	testutil.AssertEqual(t, dst.Len(), wantBytes)
	delivered := dst.String()
	for p := 0; p < numProducers; p++ {
		tag := fmt.Sprintf("p%d-", p)
		testutil.AssertEqual(t, strings.Count(delivered, tag), writesPerProducer)
	}
	testutil.AssertEqual(t, buf.Stats().PacketsQueued, int64(numProducers*writesPerProducer))
}

// TestCloseWhenDoneOverConnection verifies the full teardown handshake: the
// producer requests close, the drain loop finishes delivery, the close
// callback shuts the socket, and the peer observes EOF after the final byte.
func TestCloseWhenDoneOverConnection(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer func() { _ = clientConn.Close() }()

	loop, err := drain.NewLoopWithConfig(serverConn, drain.LoopConfig{
		Buffer:      packetbuf.Config{Hook: sink.NewConn(sink.DefaultWriteTimeout)},
		OnCloseConn: func() { _ = serverConn.Close() },
	})
	if err != nil {
		t.Fatalf("Failed to create loop: %v", err)
	}

	buf := loop.Buffer()
	if _, err := buf.Write([]byte("final answer")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := buf.CloseWhenDone(); err != nil {
		t.Fatalf("CloseWhenDone failed: %v", err)
	}

	received, err := io.ReadAll(clientConn)
	if err != nil {
		t.Fatalf("Failed to read: %v", err)
	}
	testutil.AssertEqual(t, string(received), "final answer")

	select {
	case <-loop.Done():
	case <-time.After(testutil.TestTimeout):
		t.Fatal("Loop did not finish after close request")
	}
	testutil.AssertNoError(t, buf.Close())
}
