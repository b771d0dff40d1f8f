// Package breaker implements the per-backend circuit breaker: a
// Closed/Open/HalfOpen state machine gating calls to the cache and durable
// backends. Failures are counted within a sliding time window rather than
// consecutively, so a backend that fails intermittently but repeatedly
// within a short span still trips the breaker even if occasional successes
// interrupt the failure streak.
package breaker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mhassan72/semantic-retrieval-core/pkg/observability"
)

// State is one of Closed, Open, HalfOpen.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrOpen is returned by Execute when the breaker is Open and the
	// reset timeout has not yet elapsed.
	ErrOpen = fmt.Errorf("circuit breaker is open")
)

// Config tunes one breaker instance.
type Config struct {
	// FailureThreshold (N) is the number of failures within Window that
	// trips a Closed breaker to Open.
	FailureThreshold int
	// Window (W) is the sliding window over which failures are counted.
	Window time.Duration
	// ResetTimeout (T) is how long an Open breaker waits before allowing
	// a single HalfOpen probe.
	ResetTimeout time.Duration
	// SuccessThreshold (M) is the number of consecutive HalfOpen
	// successes required to transition back to Closed.
	SuccessThreshold int
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.Window == 0 {
		c.Window = 60 * time.Second
	}
	if c.ResetTimeout == 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = 2
	}
	return c
}

// Breaker gates calls to a single backend.
type Breaker struct {
	name   string
	config Config

	state           atomic.Value // State
	lastStateChange atomic.Value // time.Time

	mu                  sync.Mutex
	failureTimestamps   []time.Time
	halfOpenSuccesses   int
	halfOpenProbeActive bool

	logger  observability.Logger
	metrics observability.MetricsClient
}

// New creates a breaker starting in the Closed state.
func New(name string, config Config, logger observability.Logger, metrics observability.MetricsClient) *Breaker {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetrics()
	}
	b := &Breaker{
		name:    name,
		config:  config.withDefaults(),
		logger:  logger,
		metrics: metrics,
	}
	b.state.Store(Closed)
	b.lastStateChange.Store(time.Now())
	b.recordStateGauge(Closed)
	return b
}

// State returns the breaker's current state without mutating it.
func (b *Breaker) State() State {
	return b.load()
}

// Allow reports whether a call may proceed right now, claiming the single
// HalfOpen probe slot if this call is the one that earns it. Concurrent
// callers racing for that slot are rejected until the probe resolves via
// RecordSuccess or RecordFailure.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.load() {
	case Closed:
		return true
	case Open:
		last := b.lastStateChange.Load().(time.Time)
		if time.Since(last) < b.config.ResetTimeout {
			return false
		}
		b.halfOpenProbeActive = true
		b.transitionLocked(HalfOpen)
		return true
	case HalfOpen:
		if b.halfOpenProbeActive {
			return false
		}
		b.halfOpenProbeActive = true
		return true
	default:
		return false
	}
}

// RecordSuccess reports a successful call outcome.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.load() {
	case HalfOpen:
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.config.SuccessThreshold {
			b.failureTimestamps = nil
			b.halfOpenSuccesses = 0
			b.halfOpenProbeActive = false
			b.transitionLocked(Closed)
		} else {
			b.halfOpenProbeActive = false
		}
	case Closed:
		// Successes do not reset the failure window; only age-out does.
	}
}

// RecordFailure reports a failed call outcome.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	switch b.load() {
	case HalfOpen:
		b.halfOpenSuccesses = 0
		b.halfOpenProbeActive = false
		b.failureTimestamps = []time.Time{now}
		b.transitionLocked(Open)
	case Closed:
		b.failureTimestamps = pruneBefore(append(b.failureTimestamps, now), now.Add(-b.config.Window))
		if len(b.failureTimestamps) >= b.config.FailureThreshold {
			b.transitionLocked(Open)
		}
	}
}

// Execute runs fn under breaker protection: rejects immediately with
// ErrOpen if the breaker is Open, otherwise runs fn and records its
// outcome.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.Allow() {
		b.metrics.IncrementCounter("breaker_rejected_total", 1, map[string]string{"name": b.name})
		return ErrOpen
	}

	err := fn(ctx)
	if err != nil {
		b.RecordFailure()
		b.metrics.IncrementCounter("breaker_failures_total", 1, map[string]string{"name": b.name})
		return err
	}
	b.RecordSuccess()
	b.metrics.IncrementCounter("breaker_successes_total", 1, map[string]string{"name": b.name})
	return nil
}

func (b *Breaker) load() State {
	return b.state.Load().(State)
}

// transitionLocked must be called with mu held.
func (b *Breaker) transitionLocked(newState State) {
	old := b.load()
	if old == newState {
		return
	}
	b.state.Store(newState)
	b.lastStateChange.Store(time.Now())
	b.logger.Info("circuit breaker state changed", map[string]interface{}{
		"name": b.name,
		"from": old.String(),
		"to":   newState.String(),
	})
	b.metrics.IncrementCounter("breaker_state_changes_total", 1, map[string]string{
		"name": b.name, "from": old.String(), "to": newState.String(),
	})
	b.recordStateGauge(newState)
}

func (b *Breaker) recordStateGauge(s State) {
	b.metrics.RecordGauge("breaker_current_state", float64(s), map[string]string{"name": b.name})
}

func pruneBefore(timestamps []time.Time, cutoff time.Time) []time.Time {
	kept := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}

// Manager keeps one Breaker per named backend, creating one lazily with a
// default configuration the first time a name is seen.
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	defaults Config
	logger   observability.Logger
	metrics  observability.MetricsClient
}

// NewManager creates a Manager applying defaults to every breaker it
// lazily creates.
func NewManager(defaults Config, logger observability.Logger, metrics observability.MetricsClient) *Manager {
	return &Manager{
		breakers: make(map[string]*Breaker),
		defaults: defaults,
		logger:   logger,
		metrics:  metrics,
	}
}

// Get returns the named breaker, creating it on first use.
func (m *Manager) Get(name string) *Breaker {
	m.mu.RLock()
	b, ok := m.breakers[name]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok = m.breakers[name]; ok {
		return b
	}
	b = New(name, m.defaults, m.logger, m.metrics)
	m.breakers[name] = b
	return b
}
