package testutil

import (
	"bytes"
	"errors"
	"io"
	"os"
	"sync"
	"time"
)

// MockClock implements Clock interface for testing with controllable time.
// This is used across throttle tests to avoid actual time delays.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockClock creates a new MockClock starting at the given time.
// If zero time is provided, uses current time.
func NewMockClock(start time.Time) *MockClock {
	if start.IsZero() {
		start = time.Now()
	}
	return &MockClock{now: start}
}

// Now returns the current mock time.
func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock clock forward by the given duration.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set sets the mock clock to a specific time.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// MockWriter is a test writer that can simulate various write conditions
// including delays, errors, and write counting.
type MockWriter struct {
	buf         *bytes.Buffer
	mu          sync.Mutex
	writeDelay  time.Duration
	errorOnNth  int
	writeCount  int
	shouldError bool
	err         error
}

// NewMockWriter creates a new MockWriter.
func NewMockWriter() *MockWriter {
	return &MockWriter{
		buf: &bytes.Buffer{},
	}
}

// Write implements io.Writer interface with configurable behavior.
func (mw *MockWriter) Write(p []byte) (int, error) {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	mw.writeCount++

	if mw.writeDelay > 0 {
		time.Sleep(mw.writeDelay)
	}

	if mw.shouldError {
		return 0, mw.err
	}

	if mw.errorOnNth > 0 && mw.writeCount == mw.errorOnNth {
		return 0, errors.New("simulated error")
	}

	return mw.buf.Write(p)
}

// String returns the current buffer contents.
func (mw *MockWriter) String() string {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.buf.String()
}

// Len returns the current buffer length.
func (mw *MockWriter) Len() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.buf.Len()
}

// WriteCount returns the number of Write calls.
func (mw *MockWriter) WriteCount() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.writeCount
}

// SetWriteDelay configures a delay for each write operation.
func (mw *MockWriter) SetWriteDelay(delay time.Duration) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.writeDelay = delay
}

// SetErrorOnNth configures the writer to error on the nth write.
func (mw *MockWriter) SetErrorOnNth(n int) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.errorOnNth = n
}

// SetAlwaysError configures the writer to always return the given error.
func (mw *MockWriter) SetAlwaysError(err error) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.shouldError = true
	mw.err = err
}

// Reset clears the buffer and resets counters.
func (mw *MockWriter) Reset() {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.buf.Reset()
	mw.writeCount = 0
	mw.shouldError = false
	mw.errorOnNth = 0
	mw.writeDelay = 0
	mw.err = nil
}

// MockSink is a scripted write hook for exercising flush paths. It records
// every byte it accepts, and can simulate short writes, would-block results,
// and fatal errors at precise points in the stream. The zero knobs accept
// everything.
type MockSink struct {
	mu          sync.Mutex
	buf         bytes.Buffer
	calls       int
	wouldBlocks int
	maxPerCall  int
	limited     bool
	budget      int
	failOnCall  int
	failErr     error
	lastOwner   interface{}
}

// NewMockSink creates a MockSink that accepts all bytes immediately.
func NewMockSink() *MockSink {
	return &MockSink{}
}

// Send consumes a prefix of p according to the configured script and
// records it. It satisfies the packetbuf write hook contract.
func (s *MockSink) Send(owner interface{}, dst io.Writer, p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	s.lastOwner = owner

	if s.failOnCall > 0 && s.calls == s.failOnCall {
		return 0, s.failErr
	}

	n := len(p)
	if s.maxPerCall > 0 && n > s.maxPerCall {
		n = s.maxPerCall
	}
	if s.limited {
		if s.budget <= 0 {
			s.wouldBlocks++
			return 0, nil
		}
		if n > s.budget {
			n = s.budget
		}
		s.budget -= n
	}
	if n == 0 {
		s.wouldBlocks++
		return 0, nil
	}

	s.buf.Write(p[:n])
	return n, nil
}

// SetMaxPerCall caps the bytes accepted by a single Send call.
func (s *MockSink) SetMaxPerCall(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxPerCall = n
}

// SetBudget limits the total bytes accepted; once exhausted Send reports
// would-block until AddBudget grants more.
func (s *MockSink) SetBudget(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limited = true
	s.budget = n
}

// AddBudget grants n more bytes of capacity.
func (s *MockSink) AddBudget(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budget += n
}

// FailOnCall configures the nth Send call (1-based) to return err.
func (s *MockSink) FailOnCall(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOnCall = n
	s.failErr = err
}

// Bytes returns a copy of all bytes accepted so far, in order.
func (s *MockSink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, s.buf.Len())
	copy(out, s.buf.Bytes())
	return out
}

// String returns the accepted stream as a string.
func (s *MockSink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// Len returns the number of bytes accepted so far.
func (s *MockSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}

// Calls returns the number of Send invocations.
func (s *MockSink) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// WouldBlocks returns the number of Send calls that reported would-block.
func (s *MockSink) WouldBlocks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wouldBlocks
}

// LastOwner returns the owner passed to the most recent Send call.
func (s *MockSink) LastOwner() interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastOwner
}

// ChunkReader is an io.ReadCloser over a byte slice with scripted read
// sizes and error injection, for exercising file streaming paths.
type ChunkReader struct {
	mu      sync.Mutex
	data    []byte
	pos     int
	maxRead int
	failAt  int
	failErr error
	closed  bool
	reads   int
}

// NewChunkReader creates a ChunkReader over data.
func NewChunkReader(data []byte) *ChunkReader {
	return &ChunkReader{data: data, failAt: -1}
}

// SetMaxRead caps the bytes returned by a single Read call.
func (r *ChunkReader) SetMaxRead(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maxRead = n
}

// FailAt configures Read to return err once the read position reaches off.
func (r *ChunkReader) FailAt(off int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failAt = off
	r.failErr = err
}

// Read implements io.Reader.
func (r *ChunkReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reads++
	if r.closed {
		return 0, os.ErrClosed
	}
	if r.failAt >= 0 && r.pos >= r.failAt {
		return 0, r.failErr
	}
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}

	n := len(r.data) - r.pos
	if n > len(p) {
		n = len(p)
	}
	if r.maxRead > 0 && n > r.maxRead {
		n = r.maxRead
	}
	copy(p, r.data[r.pos:r.pos+n])
	r.pos += n
	return n, nil
}

// Close implements io.Closer and records that it was called.
func (r *ChunkReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (r *ChunkReader) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Reads returns the number of Read calls.
func (r *ChunkReader) Reads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads
}

// Pattern returns n deterministic pseudo-random bytes, reproducible across
// runs, for content integrity checks.
func Pattern(n int) []byte {
	out := make([]byte, n)
	x := uint32(2463534242)
	for i := range out {
		x ^= x << 13
		x ^= x >> 17
		x ^= x << 5
		out[i] = byte(x)
	}
	return out
}
