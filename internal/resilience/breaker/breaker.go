// Package breaker implements a per-dependency circuit breaker. Each
// downstream service gets its own breaker so a melting transcription
// backend cannot take note formatting down with it.
package breaker

import (
	"sync"
	"time"
)

// State is the breaker's current disposition toward requests.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// Config tunes when a breaker trips and how it recovers.
type Config struct {
	FailureThreshold int           // consecutive failures that trip the breaker
	OpenTimeout      time.Duration // how long to stay OPEN before probing
	SuccessThreshold int           // consecutive probe successes to close again
	VolumeThreshold  int           // minimum calls before the error rate matters
	ErrorPercentage  float64       // failure rate (percent) that trips the breaker
}

// DefaultConfig matches the tuning used in production.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		OpenTimeout:      60 * time.Second,
		SuccessThreshold: 3,
		VolumeThreshold:  10,
		ErrorPercentage:  50,
	}
}

// Stats is a point-in-time snapshot of a breaker's counters.
type Stats struct {
	Service             string    `json:"service"`
	State               State     `json:"state"`
	TotalRequests       int64     `json:"total_requests"`
	TotalFailures       int64     `json:"total_failures"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	ConsecutiveSuccess  int       `json:"consecutive_successes"`
	Rejected            int64     `json:"rejected"`
	LastFailure         time.Time `json:"last_failure,omitempty"`
	LastTransition      time.Time `json:"last_transition,omitempty"`
}

// Breaker guards one downstream service.
type Breaker struct {
	service string
	cfg     Config
	now     func() time.Time

	mu             sync.Mutex
	state          State
	totalRequests  int64
	totalFailures  int64
	consecFails    int
	consecSuccess  int
	rejected       int64
	lastFailure    time.Time
	lastTransition time.Time
}

// New creates a breaker for the named service.
func New(service string, cfg Config) *Breaker {
	return &Breaker{
		service: service,
		cfg:     cfg,
		now:     time.Now,
		state:   StateClosed,
	}
}

// Allow reports whether a request may proceed. An OPEN breaker whose
// timeout has elapsed transitions to HALF_OPEN and lets the probe in.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if b.now().Sub(b.lastFailure) >= b.cfg.OpenTimeout {
			b.transition(StateHalfOpen)
			return true
		}
		b.rejected++
		return false
	}
	return true
}

// RecordSuccess notes a successful call to the service.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalRequests++
	b.consecFails = 0

	if b.state == StateHalfOpen {
		b.consecSuccess++
		if b.consecSuccess >= b.cfg.SuccessThreshold {
			// Totals persist across open/close cycles so operators can
			// read long-term dependency health; only Reset clears them.
			b.transition(StateClosed)
		}
	}
}

// RecordFailure notes a failed call. In HALF_OPEN a single failure
// reopens the breaker; in CLOSED it trips once the failure volume and
// rate thresholds are both met.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalRequests++
	b.totalFailures++
	b.consecFails++
	b.consecSuccess = 0
	b.lastFailure = b.now()

	switch b.state {
	case StateHalfOpen:
		b.transition(StateOpen)
	case StateClosed:
		if b.totalRequests >= int64(b.cfg.VolumeThreshold) && b.shouldTrip() {
			b.transition(StateOpen)
		}
	}
}

func (b *Breaker) shouldTrip() bool {
	if b.consecFails >= b.cfg.FailureThreshold {
		return true
	}
	rate := float64(b.totalFailures) / float64(b.totalRequests) * 100
	return rate >= b.cfg.ErrorPercentage
}

// Reset forces the breaker back to CLOSED and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.transition(StateClosed)
	b.totalRequests = 0
	b.totalFailures = 0
	b.consecFails = 0
	b.consecSuccess = 0
	b.rejected = 0
}

// ForceOpen trips the breaker regardless of counters, for operator use.
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.now()
	b.transition(StateOpen)
}

// State returns the current state, resolving an expired OPEN timeout
// to HALF_OPEN the same way Allow does.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.now().Sub(b.lastFailure) >= b.cfg.OpenTimeout {
		b.transition(StateHalfOpen)
	}
	return b.state
}

// Snapshot returns the breaker's current counters.
func (b *Breaker) Snapshot() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Stats{
		Service:             b.service,
		State:               b.state,
		TotalRequests:       b.totalRequests,
		TotalFailures:       b.totalFailures,
		ConsecutiveFailures: b.consecFails,
		ConsecutiveSuccess:  b.consecSuccess,
		Rejected:            b.rejected,
		LastFailure:         b.lastFailure,
		LastTransition:      b.lastTransition,
	}
}

// transition must be called with the mutex held.
func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	b.state = to
	b.lastTransition = b.now()
	if to == StateHalfOpen {
		b.consecSuccess = 0
	}
}
