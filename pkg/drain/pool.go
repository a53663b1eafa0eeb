package drain

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vnykmshr/outbound/pkg/metrics"
	"github.com/vnykmshr/outbound/pkg/packetbuf"
)

// ErrPoolShutdown is returned by Add after the pool has been shut down.
var ErrPoolShutdown = errors.New("drain pool has been shut down")

// Pool drains many packet buffers with a fixed set of worker goroutines.
// Each registered buffer wakes the pool on enqueue; a worker picks it up,
// flushes once, and either lets it go idle, schedules a retry, or tears it
// down on a fatal error or a delivered close request. This mirrors a
// thread-pooled reactor where one small crew services every connection.
type Pool interface {
	// Add registers a new drain target. The pool constructs the packet
	// buffer from config, chains its OnEnqueue callback with the pool's
	// scheduling, and returns it for producers to write to. The dst may
	// be nil if the buffer config carries a write hook that ignores it.
	Add(config packetbuf.Config, dst io.Writer) (packetbuf.Buffer, error)

	// Shutdown stops the workers. Registered buffers are left open and
	// undelivered packets stay queued; their owners keep the lifecycle.
	// The returned channel closes when all workers have exited, and
	// every call returns the same channel.
	Shutdown() <-chan struct{}

	// Size returns the number of workers in the pool.
	Size() int

	// Targets returns the number of registered buffers the pool is
	// still responsible for.
	Targets() int

	// Stats returns a snapshot of pool activity counters.
	Stats() PoolStats
}

// PoolConfig holds configuration options for creating a Pool.
type PoolConfig struct {
	// Workers is the number of drain goroutines. Default: 4.
	Workers int

	// QueueSize is the capacity of the pending-target queue. When it is
	// full, scheduling falls back to timed retries. Default: 256.
	QueueSize int

	// RetryInterval is the delay before a blocked target is retried.
	// Default: DefaultRetryInterval.
	RetryInterval time.Duration

	// OnFatal is called when a target's flush fails with a fatal error.
	// The owner is the buffer's configured owner. The target is dropped
	// from the pool; its buffer keeps the undelivered packets.
	OnFatal func(owner interface{}, err error)

	// OnCloseConn is called when a target's close request has been
	// delivered and its connection can be torn down. The target is
	// dropped from the pool.
	OnCloseConn func(owner interface{})
}

// DefaultPoolConfig returns a PoolConfig with sensible defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:       4,
		QueueSize:     256,
		RetryInterval: DefaultRetryInterval,
	}
}

// PoolStats tracks drain pool activity.
type PoolStats struct {
	// Flushes is the number of Flush calls made by workers.
	Flushes int64

	// Retries is the number of timed retries scheduled for blocked
	// targets.
	Retries int64

	// Fatals is the number of targets dropped for fatal write errors.
	Fatals int64

	// CloseSignals is the number of delivered close requests.
	CloseSignals int64
}

// target is one registered buffer plus its flush destination.
type target struct {
	buffer packetbuf.Buffer
	dst    io.Writer
	owner  interface{}

	// queued is 1 while the target sits in the work queue.
	queued int32

	// gone is 1 once the pool has dropped the target.
	gone int32
}

// drainPool implements the Pool interface.
type drainPool struct {
	config PoolConfig

	workCh       chan *target
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	doneCh       chan struct{}
	wg           sync.WaitGroup

	mu         sync.RWMutex
	isShutdown bool
	targets    int

	stats   PoolStats
	statsMu sync.RWMutex

	name     string
	registry *metrics.Registry
	enabled  bool
}

// NewPool creates a drain pool with the given worker count and default
// configuration, and starts the workers.
func NewPool(workers int) Pool {
	config := DefaultPoolConfig()
	config.Workers = workers
	return NewPoolWithConfig(config)
}

// NewPoolWithConfig creates a drain pool with the specified configuration
// and starts the workers.
func NewPoolWithConfig(config PoolConfig) Pool {
	p := newDrainPool(config)
	p.start()
	return p
}

// NewPoolWithMetrics creates a drain pool that reports its active target
// count to the drain metrics.
func NewPoolWithMetrics(config PoolConfig, name string, metricsConfig metrics.Config) Pool {
	p := newDrainPool(config)

	if metricsConfig.Enabled {
		p.name = name
		p.registry = metrics.NewRegistryWithConfig(metricsConfig)
		p.enabled = true
	}

	p.start()
	return p
}

// newDrainPool builds a pool without starting its workers.
func newDrainPool(config PoolConfig) *drainPool {
	if config.Workers <= 0 {
		config.Workers = DefaultPoolConfig().Workers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultPoolConfig().QueueSize
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = DefaultRetryInterval
	}

	return &drainPool{
		config:     config,
		workCh:     make(chan *target, config.QueueSize),
		shutdownCh: make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// start launches the worker goroutines.
func (p *drainPool) start() {
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Add implements Pool.Add.
func (p *drainPool) Add(config packetbuf.Config, dst io.Writer) (packetbuf.Buffer, error) {
	p.mu.RLock()
	isShutdown := p.isShutdown
	p.mu.RUnlock()

	if isShutdown {
		return nil, ErrPoolShutdown
	}

	t := &target{
		dst:   dst,
		owner: config.Owner,
	}

	userEnqueue := config.OnEnqueue
	config.OnEnqueue = func() {
		if userEnqueue != nil {
			userEnqueue()
		}
		p.schedule(t)
	}
	// A close request on an already-drained buffer latches without an
	// enqueue, so it must schedule the target as well.
	userCloseReq := config.OnCloseRequested
	config.OnCloseRequested = func() {
		if userCloseReq != nil {
			userCloseReq()
		}
		p.schedule(t)
	}

	buffer, err := packetbuf.NewWithConfig(config)
	if err != nil {
		return nil, err
	}
	t.buffer = buffer

	p.mu.Lock()
	p.targets++
	count := p.targets
	p.mu.Unlock()

	if p.enabled {
		p.registry.DrainActive.WithLabelValues(p.name).Set(float64(count))
	}

	return buffer, nil
}

// Shutdown implements Pool.Shutdown.
func (p *drainPool) Shutdown() <-chan struct{} {
	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.isShutdown = true
		p.mu.Unlock()

		close(p.shutdownCh)

		go func() {
			p.wg.Wait()
			close(p.doneCh)
		}()
	})

	return p.doneCh
}

// Size implements Pool.Size.
func (p *drainPool) Size() int {
	return p.config.Workers
}

// Targets implements Pool.Targets.
func (p *drainPool) Targets() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.targets
}

// Stats implements Pool.Stats.
func (p *drainPool) Stats() PoolStats {
	p.statsMu.RLock()
	defer p.statsMu.RUnlock()
	return p.stats
}

// schedule queues a target for service, coalescing duplicate wake-ups.
// When the queue is full it backs off to a timed retry instead of
// blocking, so producers never stall on a busy pool.
func (p *drainPool) schedule(t *target) {
	if atomic.LoadInt32(&t.gone) == 1 {
		return
	}
	if !atomic.CompareAndSwapInt32(&t.queued, 0, 1) {
		return
	}

	select {
	case p.workCh <- t:
	case <-p.shutdownCh:
		atomic.StoreInt32(&t.queued, 0)
	default:
		atomic.StoreInt32(&t.queued, 0)
		time.AfterFunc(p.config.RetryInterval, func() { p.schedule(t) })
	}
}

// worker is the main loop for one drain goroutine.
func (p *drainPool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.shutdownCh:
			return
		case t := <-p.workCh:
			p.service(t)
		}
	}
}

// service flushes one target and decides what happens to it next.
func (p *drainPool) service(t *target) {
	// Clear the queued flag before flushing so an enqueue that lands
	// mid-flush schedules another pass.
	atomic.StoreInt32(&t.queued, 0)

	_, err := t.buffer.Flush(t.dst)

	p.updateStats(func(s *PoolStats) {
		s.Flushes++
	})

	// Two workers can race on the same target when a callback schedules
	// it mid-flush, so forget decides which one runs the teardown.
	switch {
	case err != nil && errors.Is(err, packetbuf.ErrBufferClosed):
		// Owner tore the buffer down; nothing left to drain.
		p.forget(t)

	case err != nil:
		if p.forget(t) {
			p.updateStats(func(s *PoolStats) {
				s.Fatals++
			})
			if p.config.OnFatal != nil {
				p.config.OnFatal(t.owner, err)
			}
		}

	case t.buffer.CloseRequested():
		if p.forget(t) {
			p.updateStats(func(s *PoolStats) {
				s.CloseSignals++
			})
			if p.config.OnCloseConn != nil {
				p.config.OnCloseConn(t.owner)
			}
		}

	case t.buffer.IsEmpty():
		// Idle until the next enqueue.

	default:
		// Destination pushed back; come back to this target shortly.
		p.updateStats(func(s *PoolStats) {
			s.Retries++
		})
		time.AfterFunc(p.config.RetryInterval, func() { p.schedule(t) })
	}
}

// forget drops a target from the pool's accounting. It reports whether
// this call was the one that dropped it.
func (p *drainPool) forget(t *target) bool {
	if !atomic.CompareAndSwapInt32(&t.gone, 0, 1) {
		return false
	}

	p.mu.Lock()
	p.targets--
	count := p.targets
	p.mu.Unlock()

	if p.enabled {
		p.registry.DrainActive.WithLabelValues(p.name).Set(float64(count))
	}
	return true
}

// EnableMetrics enables metrics collection.
func (p *drainPool) EnableMetrics(config metrics.Config) error {
	p.registry = metrics.NewRegistryWithConfig(config)
	p.enabled = config.Enabled
	return nil
}

// DisableMetrics disables metrics collection.
func (p *drainPool) DisableMetrics() {
	p.enabled = false
}

// MetricsEnabled returns true if metrics are currently enabled.
func (p *drainPool) MetricsEnabled() bool {
	return p.enabled
}

// updateStats safely updates pool statistics.
func (p *drainPool) updateStats(updater func(*PoolStats)) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	updater(&p.stats)
}
