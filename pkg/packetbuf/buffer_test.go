package packetbuf

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/vnykmshr/outbound/internal/testutil"
	"github.com/vnykmshr/outbound/pkg/common/errors"
)

func TestNew(t *testing.T) {
	buf := New(nil)
	defer func() { _ = buf.Close() }()

	testutil.AssertEqual(t, buf.IsEmpty(), true)
	testutil.AssertEqual(t, buf.Len(), 0)
	testutil.AssertEqual(t, buf.Pending(), int64(0))
	testutil.AssertEqual(t, buf.CloseRequested(), false)
}

func TestNewWithConfig(t *testing.T) {
	config := DefaultConfig()
	config.ChunkSize = 4096

	buf, err := NewWithConfig(config)
	testutil.AssertNoError(t, err)
	defer func() { _ = buf.Close() }()

	testutil.AssertEqual(t, buf.IsEmpty(), true)
}

func TestNewWithConfigInvalidChunkSize(t *testing.T) {
	config := DefaultConfig()
	config.ChunkSize = -1

	_, err := NewWithConfig(config)
	testutil.AssertError(t, err)
	testutil.AssertEqual(t, errors.IsValidationError(err), true)
}

func TestWriteCopiesData(t *testing.T) {
	buf := New(nil)
	defer func() { _ = buf.Close() }()

	data := []byte("original")
	n, err := buf.Write(data)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, n, 8)

	// The caller may reuse the slice immediately.
	copy(data, "clobber!")

	var dst bytes.Buffer
	sent, err := buf.Flush(&dst)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, sent, 8)
	testutil.AssertEqual(t, dst.String(), "original")
}

func TestWriteOwned(t *testing.T) {
	buf := New(nil)
	defer func() { _ = buf.Close() }()

	n, err := buf.WriteOwned([]byte("moved payload"))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, n, 13)
	testutil.AssertEqual(t, buf.Pending(), int64(13))

	var dst bytes.Buffer
	sent, err := buf.Flush(&dst)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, sent, 13)
	testutil.AssertEqual(t, dst.String(), "moved payload")
}

func TestWriteOwnedEmptyRequestsClose(t *testing.T) {
	buf := New(nil)
	defer func() { _ = buf.Close() }()

	n, err := buf.WriteOwned(nil)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, n, 0)

	// The queue was empty, so the close point is reached immediately.
	testutil.AssertEqual(t, buf.CloseRequested(), true)
}

func TestEmptyWrites(t *testing.T) {
	buf := New(nil)
	defer func() { _ = buf.Close() }()

	n, err := buf.Write(nil)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, n, 0)

	n, err = buf.Write([]byte{})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, n, 0)

	testutil.AssertEqual(t, buf.Len(), 0)

	stats := buf.Stats()
	testutil.AssertEqual(t, stats.PacketsQueued, int64(0))
	testutil.AssertEqual(t, stats.BytesQueued, int64(0))
}

func TestWriteNextFrontOfIdleQueue(t *testing.T) {
	buf := New(nil)
	defer func() { _ = buf.Close() }()

	_, _ = buf.Write([]byte("first"))
	_, _ = buf.Write([]byte("second"))
	_, err := buf.WriteNext([]byte("urgent"))
	testutil.AssertNoError(t, err)

	var dst bytes.Buffer
	_, err = buf.Flush(&dst)
	testutil.AssertNoError(t, err)

	// Nothing was in flight, so urgent data goes out first.
	testutil.AssertEqual(t, dst.String(), "urgentfirstsecond")
}

func TestWriteNextPreservesPacketBoundary(t *testing.T) {
	buf := New(nil)
	defer func() { _ = buf.Close() }()

	sink := testutil.NewMockSink()
	sink.SetBudget(3)
	buf.SetHook(sink)

	_, _ = buf.Write([]byte("abcdef"))
	_, _ = buf.Write([]byte("tail"))

	n, err := buf.Flush(io.Discard)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, n, 3)

	// The head packet is mid-transmission; urgent data must land behind
	// it, never inside it.
	_, err = buf.WriteNext([]byte("URGENT"))
	testutil.AssertNoError(t, err)

	sink.AddBudget(1 << 20)
	_, err = buf.Flush(io.Discard)
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, sink.String(), "abcdefURGENTtail")
}

func TestWriteOwnedNextEmptyRequestsClose(t *testing.T) {
	buf := New(nil)
	defer func() { _ = buf.Close() }()

	_, _ = buf.Write([]byte("data"))

	n, err := buf.WriteOwnedNext(nil)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, n, 0)

	// The close marker always lands at the tail, behind queued data.
	testutil.AssertEqual(t, buf.Len(), 2)
	testutil.AssertEqual(t, buf.CloseRequested(), false)
}

func TestSendFileNil(t *testing.T) {
	buf := New(nil)
	defer func() { _ = buf.Close() }()

	err := buf.SendFile(nil)
	testutil.AssertError(t, err)
	testutil.AssertEqual(t, err, ErrInvalidFile)
}

func TestPending(t *testing.T) {
	buf := New(nil)
	defer func() { _ = buf.Close() }()

	_, _ = buf.Write([]byte("abc"))
	_, _ = buf.Write([]byte("defg"))
	testutil.AssertEqual(t, buf.Pending(), int64(7))

	// A file of unknown remaining size counts one extra byte.
	file := testutil.NewChunkReader([]byte("file content"))
	testutil.AssertNoError(t, buf.SendFile(file))
	testutil.AssertEqual(t, buf.Pending(), int64(8))

	// Counting stops at the close marker.
	buf.CloseWhenDone()
	_, _ = buf.Write([]byte("after close"))
	testutil.AssertEqual(t, buf.Pending(), int64(8))
}

func TestCloseWhenDoneEmptyBuffer(t *testing.T) {
	tracker := testutil.NewCallbackTracker()

	config := DefaultConfig()
	config.OnCloseRequested = func() { tracker.Mark() }

	buf, err := NewWithConfig(config)
	testutil.AssertNoError(t, err)
	defer func() { _ = buf.Close() }()

	buf.CloseWhenDone()

	testutil.AssertEqual(t, buf.CloseRequested(), true)
	tracker.AssertCalled(t)
	testutil.AssertEqual(t, tracker.CallCount(), 1)

	// Requesting again changes nothing.
	buf.CloseWhenDone()
	testutil.AssertEqual(t, tracker.CallCount(), 1)

	stats := buf.Stats()
	testutil.AssertEqual(t, stats.CloseRequests, int64(1))
}

func TestCloseWhenDoneIdempotentMarker(t *testing.T) {
	buf := New(nil)
	defer func() { _ = buf.Close() }()

	_, _ = buf.Write([]byte("payload"))
	buf.CloseWhenDone()
	buf.CloseWhenDone()

	// One data packet plus a single close marker.
	testutil.AssertEqual(t, buf.Len(), 2)
	testutil.AssertEqual(t, buf.CloseRequested(), false)
}

func TestClear(t *testing.T) {
	buf := New(nil)
	defer func() { _ = buf.Close() }()

	file := testutil.NewChunkReader([]byte("file data"))
	sink := testutil.NewMockSink()
	buf.SetHook(sink)

	_, _ = buf.Write([]byte("queued"))
	testutil.AssertNoError(t, buf.SendFile(file))
	buf.CloseWhenDone()

	buf.Clear()

	testutil.AssertEqual(t, buf.IsEmpty(), true)
	testutil.AssertEqual(t, buf.Len(), 0)
	testutil.AssertEqual(t, buf.Pending(), int64(0))
	testutil.AssertEqual(t, file.Closed(), true)

	// The hook was removed; flushes now write to the destination directly.
	_, _ = buf.Write([]byte("direct"))
	var dst bytes.Buffer
	_, err := buf.Flush(&dst)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, dst.String(), "direct")
	testutil.AssertEqual(t, sink.Len(), 0)
}

func TestClearResetsCloseState(t *testing.T) {
	buf := New(nil)
	defer func() { _ = buf.Close() }()

	buf.CloseWhenDone()
	testutil.AssertEqual(t, buf.CloseRequested(), true)

	buf.Clear()
	testutil.AssertEqual(t, buf.CloseRequested(), false)

	// The buffer delivers data again after the reset.
	_, _ = buf.Write([]byte("reborn"))
	var dst bytes.Buffer
	n, err := buf.Flush(&dst)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, n, 6)
	testutil.AssertEqual(t, dst.String(), "reborn")
}

func TestClose(t *testing.T) {
	buf := New(nil)

	file := testutil.NewChunkReader([]byte("data"))
	_, _ = buf.Write([]byte("pending"))
	testutil.AssertNoError(t, buf.SendFile(file))

	testutil.AssertNoError(t, buf.Close())
	testutil.AssertEqual(t, file.Closed(), true)

	_, err := buf.Write([]byte("x"))
	testutil.AssertEqual(t, err, ErrBufferClosed)

	_, err = buf.WriteOwned([]byte("x"))
	testutil.AssertEqual(t, err, ErrBufferClosed)

	_, err = buf.WriteNext([]byte("x"))
	testutil.AssertEqual(t, err, ErrBufferClosed)

	err = buf.SendFile(testutil.NewChunkReader([]byte("y")))
	testutil.AssertEqual(t, err, ErrBufferClosed)

	_, err = buf.Flush(io.Discard)
	testutil.AssertEqual(t, err, ErrBufferClosed)

	// Close is idempotent.
	testutil.AssertNoError(t, buf.Close())
}

func TestSendFileAfterCloseClosesFile(t *testing.T) {
	buf := New(nil)
	testutil.AssertNoError(t, buf.Close())

	file := testutil.NewChunkReader([]byte("orphan"))
	err := buf.SendFile(file)
	testutil.AssertEqual(t, err, ErrBufferClosed)
	testutil.AssertEqual(t, file.Closed(), true)
}

func TestOwnerReachesHook(t *testing.T) {
	type connCtx struct{ id int }
	owner := &connCtx{id: 7}

	buf := New(owner)
	defer func() { _ = buf.Close() }()

	sink := testutil.NewMockSink()
	buf.SetHook(sink)

	_, _ = buf.Write([]byte("ping"))
	_, err := buf.Flush(io.Discard)
	testutil.AssertNoError(t, err)

	got, ok := sink.LastOwner().(*connCtx)
	testutil.AssertEqual(t, ok, true)
	testutil.AssertEqual(t, got.id, 7)
}

func TestSetHookSwap(t *testing.T) {
	buf := New(nil)
	defer func() { _ = buf.Close() }()

	sink := testutil.NewMockSink()
	buf.SetHook(sink)

	_, _ = buf.Write([]byte("hooked"))
	_, err := buf.Flush(io.Discard)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, sink.String(), "hooked")

	// A nil hook restores direct writes.
	buf.SetHook(nil)
	_, _ = buf.Write([]byte("direct"))

	var dst bytes.Buffer
	_, err = buf.Flush(&dst)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, dst.String(), "direct")
	testutil.AssertEqual(t, sink.String(), "hooked")
}

func TestStats(t *testing.T) {
	buf := New(nil)
	defer func() { _ = buf.Close() }()

	stats := buf.Stats()
	testutil.AssertEqual(t, stats.PacketsQueued, int64(0))
	testutil.AssertEqual(t, stats.BytesSent, int64(0))

	_, _ = buf.Write([]byte("hello"))
	_, _ = buf.Write([]byte("world!"))

	stats = buf.Stats()
	testutil.AssertEqual(t, stats.PacketsQueued, int64(2))
	testutil.AssertEqual(t, stats.BytesQueued, int64(11))
	testutil.AssertEqual(t, stats.Depth, 2)
	testutil.AssertEqual(t, stats.PendingBytes, int64(11))

	_, err := buf.Flush(io.Discard)
	testutil.AssertNoError(t, err)

	stats = buf.Stats()
	testutil.AssertEqual(t, stats.BytesSent, int64(11))
	testutil.AssertEqual(t, stats.FlushCount, int64(1))
	testutil.AssertEqual(t, stats.ShortWrites, int64(0))
	testutil.AssertEqual(t, stats.Depth, 0)
	testutil.AssertEqual(t, stats.PendingBytes, int64(0))
	testutil.AssertEqual(t, stats.LastFlushTime.IsZero(), false)
}

func TestOnEnqueueSignal(t *testing.T) {
	var wakeups int

	config := DefaultConfig()
	config.OnEnqueue = func() { wakeups++ }

	buf, err := NewWithConfig(config)
	testutil.AssertNoError(t, err)
	defer func() { _ = buf.Close() }()

	_, _ = buf.Write([]byte("a"))
	_, _ = buf.WriteOwned([]byte("b"))
	testutil.AssertNoError(t, buf.SendFile(testutil.NewChunkReader([]byte("c"))))
	buf.CloseWhenDone()

	testutil.AssertEqual(t, wakeups, 4)
}

func TestConcurrentWrites(t *testing.T) {
	buf := New(nil)
	defer func() { _ = buf.Close() }()

	const numGoroutines = 10
	const writesPerGoroutine = 100

	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			for j := 0; j < writesPerGoroutine; j++ {
				data := fmt.Sprintf("goroutine-%d-write-%d\n", id, j)
				if _, err := buf.Write([]byte(data)); err != nil {
					t.Errorf("Write failed: %v", err)
					return
				}
			}
		}(i)
	}

	wg.Wait()

	testutil.AssertEqual(t, buf.Len(), numGoroutines*writesPerGoroutine)

	var dst bytes.Buffer
	_, err := buf.Flush(&dst)
	testutil.AssertNoError(t, err)

	actualWrites := strings.Count(dst.String(), "goroutine-")
	testutil.AssertEqual(t, actualWrites, numGoroutines*writesPerGoroutine)

	stats := buf.Stats()
	testutil.AssertEqual(t, stats.PacketsQueued, int64(numGoroutines*writesPerGoroutine))
	testutil.AssertEqual(t, stats.BytesSent, stats.BytesQueued)
}

func TestConcurrentWriteAndFlush(t *testing.T) {
	buf := New(nil)
	defer func() { _ = buf.Close() }()

	sink := testutil.NewMockSink()
	buf.SetHook(sink)

	const writers = 4
	const writesEach = 200
	const payloadLen = 7 // "%d:%03d;"

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			for j := 0; j < writesEach; j++ {
				data := fmt.Sprintf("%d:%03d;", id, j)
				if _, err := buf.Write([]byte(data)); err != nil {
					t.Errorf("Write failed: %v", err)
					return
				}
			}
		}(i)
	}

	stop := make(chan struct{})
	flusherDone := make(chan struct{})
	go func() {
		defer close(flusherDone)

		for {
			if _, err := buf.Flush(io.Discard); err != nil {
				t.Errorf("Flush failed: %v", err)
				return
			}
			select {
			case <-stop:
				if buf.IsEmpty() {
					return
				}
			default:
			}
		}
	}()

	wg.Wait()
	close(stop)
	<-flusherDone

	testutil.AssertEqual(t, sink.Len(), writers*writesEach*payloadLen)
	testutil.AssertEqual(t, buf.IsEmpty(), true)

	stats := buf.Stats()
	testutil.AssertEqual(t, stats.BytesSent, int64(writers*writesEach*payloadLen))
}

// Benchmark tests
func BenchmarkWriteFlush(b *testing.B) {
	buf := New(nil)
	defer func() { _ = buf.Close() }()

	data := []byte("benchmark payload for a single packet")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = buf.Write(data)
		_, _ = buf.Flush(io.Discard)
	}
}

func BenchmarkWriteOwnedFlush(b *testing.B) {
	buf := New(nil)
	defer func() { _ = buf.Close() }()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		data := make([]byte, 64)
		_, _ = buf.WriteOwned(data)
		_, _ = buf.Flush(io.Discard)
	}
}

func BenchmarkBatchFlush(b *testing.B) {
	buf := New(nil)
	defer func() { _ = buf.Close() }()

	data := []byte("one packet in a larger batch")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for j := 0; j < 32; j++ {
			_, _ = buf.Write(data)
		}
		_, _ = buf.Flush(io.Discard)
	}
}

func BenchmarkConcurrentWriteFlush(b *testing.B) {
	buf := New(nil)
	defer func() { _ = buf.Close() }()

	data := []byte("concurrent benchmark data")

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = buf.Write(data)
			_, _ = buf.Flush(io.Discard)
		}
	})
}
