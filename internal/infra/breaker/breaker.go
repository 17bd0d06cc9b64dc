// Package breaker implements per-dependency circuit breakers.
//
// States:
//   - CLOSED  (normal) → failures exceed threshold → OPEN
//   - OPEN    (blocking) → after cool-down → HALF_OPEN
//   - HALF_OPEN (probing) → trial succeeds → CLOSED, trial fails → OPEN
//
// One breaker guards one external dependency (the transcription provider,
// the store). Breakers live in a process-wide Registry created once at
// startup; multi-instance deployments must treat breaker state as advisory.
package breaker

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/aviz85/elevenlabs-bridge-sub001/internal/domain"
	"github.com/aviz85/elevenlabs-bridge-sub001/internal/infra/metrics"
)

// State represents the circuit breaker state.
type State int

const (
	Closed   State = iota // Normal operation: calls pass through
	Open                  // Tripped: all calls rejected immediately
	HalfOpen              // Recovery probe: a trial call is allowed
)

// String returns a human-readable circuit breaker state.
func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// gaugeValue maps a state onto the metric encoding
// (0=closed, 1=half-open, 2=open).
func (s State) gaugeValue() float64 {
	switch s {
	case HalfOpen:
		return 1
	case Open:
		return 2
	default:
		return 0
	}
}

// Config configures a circuit breaker.
type Config struct {
	FailureThreshold int           // consecutive failures to trip (default 5)
	Cooldown         time.Duration // time in OPEN before probing HALF_OPEN (default 30s)
	HalfOpenMax      int           // trial successes needed to close (default 1)
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		HalfOpenMax:      1,
	}
}

// Breaker implements the circuit breaker pattern.
// Thread-safe for concurrent use.
type Breaker struct {
	mu          sync.Mutex
	name        string
	config      Config
	state       State
	failures    int
	successes   int // trial successes in HALF_OPEN
	inFlight    int // trial calls admitted but not yet recorded in HALF_OPEN
	totalOK     int64
	totalFailed int64
	rejected    int64
	lastFailure time.Time
	trippedAt   time.Time
	totalTrips  int
	now         func() time.Time // injectable clock for testing
}

// New creates a circuit breaker with the given name and config.
func New(name string, cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	metrics.BreakerState.WithLabelValues(name).Set(Closed.gaugeValue())
	return &Breaker{
		name:   name,
		config: cfg,
		state:  Closed,
		now:    time.Now,
	}
}

// Allow checks whether a call should be permitted.
// Returns domain.ErrCircuitOpen (wrapped with the dependency name) while
// the circuit is open, so callers can tell "dependency down" from a
// genuine call failure.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return nil
	case Open:
		if b.now().Sub(b.trippedAt) >= b.config.Cooldown {
			b.transition(HalfOpen)
			b.successes = 0
			b.inFlight = 1 // this caller takes the trial slot
			return nil
		}
		b.rejected++
		log.Printf("[breaker] %s: call rejected (open, %d failures, tripped %s ago)",
			b.name, b.failures, b.now().Sub(b.trippedAt).Round(time.Millisecond))
		return fmt.Errorf("%s: %w", b.name, domain.ErrCircuitOpen)
	case HalfOpen:
		// Single-trial probing: admit at most HalfOpenMax unresolved calls.
		if b.inFlight >= b.config.HalfOpenMax {
			b.rejected++
			log.Printf("[breaker] %s: call rejected (half-open, trial in flight)", b.name)
			return fmt.Errorf("%s: %w", b.name, domain.ErrCircuitOpen)
		}
		b.inFlight++
		return nil
	}
	return nil
}

// RecordSuccess records a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalOK++
	switch b.state {
	case HalfOpen:
		if b.inFlight > 0 {
			b.inFlight--
		}
		b.successes++
		if b.successes >= b.config.HalfOpenMax {
			b.transition(Closed)
			b.failures = 0
			b.successes = 0
			b.inFlight = 0
		}
	case Closed:
		// Consecutive-failure semantics: any success resets the count.
		b.failures = 0
	}
}

// RecordFailure records a failed call. May trip the breaker.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalFailed++
	b.lastFailure = b.now()

	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.trip()
		}
	case HalfOpen:
		// Trial failed: back to open, cool-down restarts.
		b.trip()
	}
}

// Discard releases a half-open trial slot without recording an outcome.
// Used for call results that say nothing about the dependency's health,
// such as the provider rejecting this segment's input.
func (b *Breaker) Discard() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == HalfOpen && b.inFlight > 0 {
		b.inFlight--
	}
}

// trip moves to OPEN. Caller holds the mutex.
func (b *Breaker) trip() {
	b.transition(Open)
	b.trippedAt = b.now()
	b.totalTrips++
	b.inFlight = 0
}

// transition changes state with logging. Caller holds the mutex.
func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	log.Printf("[breaker] %s: %s → %s (failures=%d successes=%d)",
		b.name, b.state, to, b.failures, b.successes)
	b.state = to
	metrics.BreakerState.WithLabelValues(b.name).Set(to.gaugeValue())
}

// State returns the current circuit breaker state.
// Auto-transitions OPEN → HALF_OPEN once the cool-down has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.trippedAt) >= b.config.Cooldown {
		b.transition(HalfOpen)
		b.successes = 0
	}
	return b.state
}

// Healthy reports whether the breaker is not open.
func (b *Breaker) Healthy() bool {
	return b.State() != Open
}

// ForceReset is the operator override: unconditionally back to closed
// with all counters zeroed.
func (b *Breaker) ForceReset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	log.Printf("[breaker] %s: force reset (was %s)", b.name, b.state)
	b.state = Closed
	b.failures = 0
	b.successes = 0
	b.inFlight = 0
	metrics.BreakerState.WithLabelValues(b.name).Set(Closed.gaugeValue())
}

// Stats is a point-in-time view of a circuit breaker for the stats query.
type Stats struct {
	Name          string    `json:"name"`
	State         string    `json:"state"`
	Failures      int       `json:"failures"`
	TotalSuccess  int64     `json:"total_success"`
	TotalFailures int64     `json:"total_failures"`
	Rejected      int64     `json:"rejected"`
	TotalTrips    int       `json:"total_trips"`
	LastFailure   time.Time `json:"last_failure,omitempty"`
	TrippedAt     time.Time `json:"tripped_at,omitempty"`
}

// Stats returns the current counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	// Read state directly (not via b.State()) to avoid mutex re-entrance.
	st := b.state
	if st == Open && b.now().Sub(b.trippedAt) >= b.config.Cooldown {
		b.transition(HalfOpen)
		b.successes = 0
		st = HalfOpen
	}
	return Stats{
		Name:          b.name,
		State:         st.String(),
		Failures:      b.failures,
		TotalSuccess:  b.totalOK,
		TotalFailures: b.totalFailed,
		Rejected:      b.rejected,
		TotalTrips:    b.totalTrips,
		LastFailure:   b.lastFailure,
		TrippedAt:     b.trippedAt,
	}
}

// Call runs fn through the breaker: rejected while open, counted on
// completion. The fn error is returned unchanged.
func (b *Breaker) Call(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}
