package drain

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/vnykmshr/outbound/pkg/metrics"
	"github.com/vnykmshr/outbound/pkg/packetbuf"
)

// ErrLoopStopped is reported by Err when a loop was stopped explicitly or
// by context cancellation rather than by finishing its work.
var ErrLoopStopped = errors.New("drain loop stopped")

// DefaultRetryInterval is how long a drain waits after a would-block stop
// before trying the destination again.
const DefaultRetryInterval = 5 * time.Millisecond

// Loop drains one packet buffer from a dedicated goroutine. It sleeps
// until data is queued, flushes until the buffer is empty or the
// destination pushes back, and retries blocked writes on a timer. The loop
// ends when the buffer's close request is delivered, a fatal write error
// occurs, the buffer is closed, or Stop is called.
type Loop interface {
	// Buffer returns the packet buffer this loop drains. Producers queue
	// data through it; enqueues wake the loop automatically.
	Buffer() packetbuf.Buffer

	// Notify wakes the loop to check for work. Signals are coalesced and
	// Notify never blocks, so it is safe to call from anywhere, including
	// buffer callbacks.
	Notify()

	// Stop halts the loop and waits for its goroutine to exit. The buffer
	// itself is left open; the caller still owns its lifecycle.
	Stop()

	// Done returns a channel that closes when the loop's goroutine exits
	// for any reason.
	Done() <-chan struct{}

	// Err reports why the loop ended: nil after a delivered close
	// request, ErrLoopStopped after Stop or context cancellation, or the
	// flush error that killed it. It returns nil while the loop runs.
	Err() error

	// Stats returns a snapshot of loop activity counters.
	Stats() LoopStats
}

// LoopConfig holds configuration options for creating a Loop.
type LoopConfig struct {
	// Buffer configures the packet buffer the loop constructs and owns
	// the draining of. Its OnEnqueue callback is chained with the loop's
	// own wake-up, so both run on every enqueue.
	Buffer packetbuf.Config

	// Context, when set, stops the loop on cancellation. Defaults to
	// context.Background().
	Context context.Context

	// RetryInterval is the delay before retrying a blocked destination.
	// Default: DefaultRetryInterval.
	RetryInterval time.Duration

	// OnFatal is called once when a flush fails with a fatal error, just
	// before the loop stops. The buffer keeps the undelivered packets.
	OnFatal func(error)

	// OnCloseConn is called once when the buffer's close request has
	// been delivered, meaning everything queued before it went out and
	// the connection can be torn down.
	OnCloseConn func()
}

// DefaultLoopConfig returns a LoopConfig with sensible defaults.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		Buffer:        packetbuf.DefaultConfig(),
		RetryInterval: DefaultRetryInterval,
	}
}

// LoopStats tracks drain loop activity.
type LoopStats struct {
	// WakeUps is the number of times the loop woke for new work.
	WakeUps int64

	// Cycles is the number of Flush calls made.
	Cycles int64

	// Retries is the number of waits after a blocked flush.
	Retries int64
}

// drainLoop implements the Loop interface.
type drainLoop struct {
	buffer packetbuf.Buffer
	dst    io.Writer
	config LoopConfig

	notifyCh chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	err      error

	stats   LoopStats
	statsMu sync.RWMutex

	name     string
	registry *metrics.Registry
	enabled  bool
}

// NewLoop creates a drain loop writing to dst with default configuration
// and starts its goroutine. The destination may be nil if the buffer
// config carries a write hook that ignores it.
func NewLoop(dst io.Writer) Loop {
	l, _ := NewLoopWithConfig(dst, DefaultLoopConfig())
	return l
}

// NewLoopWithConfig creates a drain loop with the specified configuration
// and starts its goroutine.
func NewLoopWithConfig(dst io.Writer, config LoopConfig) (Loop, error) {
	l, err := newDrainLoop(dst, config)
	if err != nil {
		return nil, err
	}

	go l.run()
	return l, nil
}

// NewLoopWithMetrics creates a drain loop that reports cycle and retry
// counts to the drain metrics.
func NewLoopWithMetrics(dst io.Writer, config LoopConfig, name string, metricsConfig metrics.Config) (Loop, error) {
	l, err := newDrainLoop(dst, config)
	if err != nil {
		return nil, err
	}

	if metricsConfig.Enabled {
		l.name = name
		l.registry = metrics.NewRegistryWithConfig(metricsConfig)
		l.enabled = true
	}

	go l.run()
	return l, nil
}

// newDrainLoop builds a loop without starting its goroutine.
func newDrainLoop(dst io.Writer, config LoopConfig) (*drainLoop, error) {
	if config.RetryInterval <= 0 {
		config.RetryInterval = DefaultRetryInterval
	}
	if config.Context == nil {
		config.Context = context.Background()
	}

	ctx, cancel := context.WithCancel(config.Context)

	l := &drainLoop{
		dst:      dst,
		config:   config,
		notifyCh: make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	bufConfig := config.Buffer
	userEnqueue := bufConfig.OnEnqueue
	bufConfig.OnEnqueue = func() {
		if userEnqueue != nil {
			userEnqueue()
		}
		l.Notify()
	}
	// A close request on an already-drained buffer latches without an
	// enqueue, so the loop must wake on that signal as well.
	userCloseReq := bufConfig.OnCloseRequested
	bufConfig.OnCloseRequested = func() {
		if userCloseReq != nil {
			userCloseReq()
		}
		l.Notify()
	}

	buffer, err := packetbuf.NewWithConfig(bufConfig)
	if err != nil {
		cancel()
		return nil, err
	}
	l.buffer = buffer

	return l, nil
}

// Buffer implements Loop.Buffer.
func (l *drainLoop) Buffer() packetbuf.Buffer {
	return l.buffer
}

// Notify implements Loop.Notify.
func (l *drainLoop) Notify() {
	select {
	case l.notifyCh <- struct{}{}:
	default:
	}
}

// Stop implements Loop.Stop.
func (l *drainLoop) Stop() {
	l.cancel()
	<-l.done
}

// Done implements Loop.Done.
func (l *drainLoop) Done() <-chan struct{} {
	return l.done
}

// Err implements Loop.Err.
func (l *drainLoop) Err() error {
	select {
	case <-l.done:
		return l.err
	default:
		return nil
	}
}

// Stats implements Loop.Stats.
func (l *drainLoop) Stats() LoopStats {
	l.statsMu.RLock()
	defer l.statsMu.RUnlock()
	return l.stats
}

// run is the loop goroutine: sleep until notified, then drain.
func (l *drainLoop) run() {
	defer close(l.done)

	for {
		select {
		case <-l.notifyCh:
		case <-l.ctx.Done():
			l.err = ErrLoopStopped
			return
		}

		l.updateStats(func(s *LoopStats) {
			s.WakeUps++
		})

		if stop := l.drain(); stop {
			return
		}
	}
}

// drain flushes until the buffer is empty or something ends the loop.
// It reports whether the loop should stop.
func (l *drainLoop) drain() bool {
	for {
		_, err := l.buffer.Flush(l.dst)

		l.updateStats(func(s *LoopStats) {
			s.Cycles++
		})
		if l.enabled {
			l.registry.DrainCycles.WithLabelValues(l.name).Inc()
		}

		if err != nil {
			l.err = err
			// A buffer closed by its owner is normal teardown, not a
			// sink failure.
			if !errors.Is(err, packetbuf.ErrBufferClosed) && l.config.OnFatal != nil {
				l.config.OnFatal(err)
			}
			return true
		}

		if l.buffer.CloseRequested() {
			if l.config.OnCloseConn != nil {
				l.config.OnCloseConn()
			}
			return true
		}

		if l.buffer.IsEmpty() {
			return false
		}

		// The destination pushed back mid-queue. Wait for the retry
		// interval, or for more data, whichever comes first.
		l.updateStats(func(s *LoopStats) {
			s.Retries++
		})
		if l.enabled {
			l.registry.DrainRetries.WithLabelValues(l.name).Inc()
		}

		select {
		case <-time.After(l.config.RetryInterval):
		case <-l.notifyCh:
		case <-l.ctx.Done():
			l.err = ErrLoopStopped
			return true
		}
	}
}

// EnableMetrics enables metrics collection.
func (l *drainLoop) EnableMetrics(config metrics.Config) error {
	l.registry = metrics.NewRegistryWithConfig(config)
	l.enabled = config.Enabled
	return nil
}

// DisableMetrics disables metrics collection.
func (l *drainLoop) DisableMetrics() {
	l.enabled = false
}

// MetricsEnabled returns true if metrics are currently enabled.
func (l *drainLoop) MetricsEnabled() bool {
	return l.enabled
}

// updateStats safely updates loop statistics.
func (l *drainLoop) updateStats(updater func(*LoopStats)) {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	updater(&l.stats)
}
