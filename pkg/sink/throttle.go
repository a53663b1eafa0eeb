package sink

import (
	"io"
	"math"
	"sync"
	"time"

	"github.com/vnykmshr/outbound/pkg/common/errors"
	"github.com/vnykmshr/outbound/pkg/metrics"
	"github.com/vnykmshr/outbound/pkg/packetbuf"
)

// Clock provides the current time. It can be mocked for testing.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the system time.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// ThrottleConfig holds configuration options for creating a Throttle.
type ThrottleConfig struct {
	// Rate is the number of bytes allowed per second.
	Rate float64

	// Burst is the maximum number of bytes that may go out at once.
	Burst int

	// Clock provides the current time. If nil, SystemClock is used.
	Clock Clock

	// Next is the downstream hook the granted bytes flow through. If nil,
	// granted bytes are written to the flush destination directly.
	Next packetbuf.Hook
}

// Throttle is a write hook that caps the byte rate with a token bucket.
// Each byte consumes one token; when the bucket runs dry it reports zero
// progress so the flush stops cleanly until tokens refill. It never
// blocks, which keeps it safe to run under the buffer's lock.
type Throttle struct {
	mu         sync.Mutex
	rate       float64
	burst      int
	tokens     float64
	lastUpdate time.Time
	clock      Clock
	next       packetbuf.Hook

	name     string
	registry *metrics.Registry
	enabled  bool
}

// NewThrottle creates a Throttle allowing rate bytes per second with the
// given burst capacity, starting with a full bucket.
func NewThrottle(rate float64, burst int) (*Throttle, error) {
	return NewThrottleWithConfig(ThrottleConfig{
		Rate:  rate,
		Burst: burst,
	})
}

// NewThrottleWithConfig creates a Throttle from config.
func NewThrottleWithConfig(config ThrottleConfig) (*Throttle, error) {
	if config.Rate <= 0 {
		return nil, errors.NewValidationError("sink", "rate", config.Rate, "rate must be positive").
			WithHint("rate is the sustained byte throughput per second")
	}
	if config.Burst <= 0 {
		return nil, errors.NewValidationError("sink", "burst", config.Burst, "burst must be positive").
			WithHint("burst determines how many bytes can go out instantly")
	}
	if config.Clock == nil {
		config.Clock = SystemClock{}
	}

	return &Throttle{
		rate:       config.Rate,
		burst:      config.Burst,
		tokens:     float64(config.Burst),
		lastUpdate: config.Clock.Now(),
		clock:      config.Clock,
		next:       config.Next,
	}, nil
}

// NewThrottleWithMetrics creates a Throttle that also reports throttled
// byte counts to the sink metrics.
func NewThrottleWithMetrics(config ThrottleConfig, name string, metricsConfig metrics.Config) (*Throttle, error) {
	t, err := NewThrottleWithConfig(config)
	if err != nil {
		return nil, err
	}
	if !metricsConfig.Enabled {
		return t, nil
	}

	t.name = name
	t.registry = metrics.NewRegistryWithConfig(metricsConfig)
	t.enabled = true
	return t, nil
}

// Send implements the packetbuf write hook contract. It forwards at most
// as many bytes as the bucket allows; tokens for bytes the downstream path
// did not accept are returned to the bucket.
func (t *Throttle) Send(owner interface{}, dst io.Writer, p []byte) (int, error) {
	granted := t.take(len(p))
	if t.enabled && granted < len(p) {
		t.registry.SinkThrottledBytes.WithLabelValues(t.name).Add(float64(len(p) - granted))
	}
	if granted == 0 {
		return 0, nil
	}

	var n int
	var err error
	if t.next != nil {
		n, err = t.next.Send(owner, dst, p[:granted])
	} else {
		n, err = dst.Write(p[:granted])
		if n < 0 {
			n = 0
		}
		if err != nil && packetbuf.IsWouldBlock(err) {
			err = nil
		}
	}

	if n < granted {
		t.refund(granted - n)
	}
	return n, err
}

// EnableMetrics enables metrics collection.
func (t *Throttle) EnableMetrics(config metrics.Config) error {
	t.registry = metrics.NewRegistryWithConfig(config)
	t.enabled = config.Enabled
	return nil
}

// DisableMetrics disables metrics collection.
func (t *Throttle) DisableMetrics() {
	t.enabled = false
}

// MetricsEnabled returns true if metrics are currently enabled.
func (t *Throttle) MetricsEnabled() bool {
	return t.enabled
}

// Tokens returns the current token balance, fractional refill included.
func (t *Throttle) Tokens() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.advanceLocked()
	return t.tokens
}

// take grants up to want tokens, consuming them from the bucket.
func (t *Throttle) take(want int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.advanceLocked()

	granted := float64(want)
	if granted > t.tokens {
		granted = math.Floor(t.tokens)
	}
	if granted <= 0 {
		return 0
	}
	t.tokens -= granted
	return int(granted)
}

// refund returns tokens for bytes that were granted but not delivered.
func (t *Throttle) refund(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tokens += float64(n)
	if t.tokens > float64(t.burst) {
		t.tokens = float64(t.burst)
	}
}

// advanceLocked refills tokens for the time elapsed since the last update.
// Called with the lock held.
func (t *Throttle) advanceLocked() {
	now := t.clock.Now()
	elapsed := now.Sub(t.lastUpdate).Seconds()
	if elapsed > 0 {
		t.tokens += elapsed * t.rate
		if t.tokens > float64(t.burst) {
			t.tokens = float64(t.burst)
		}
	}
	t.lastUpdate = now
}
