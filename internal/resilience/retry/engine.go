// Package retry decides whether and when a failed job runs again. The
// decision combines the error category policy, the dependency's circuit
// breaker, its recent success rate and current system load.
package retry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/medscribe/dispatch/internal/core/domain"
	"github.com/medscribe/dispatch/internal/resilience/backoff"
	"github.com/medscribe/dispatch/internal/resilience/breaker"
)

// LoadProvider reports current system load in [0, 1].
type LoadProvider func() float64

// Decision is the outcome of evaluating one failure.
type Decision struct {
	Retry    bool
	Delay    time.Duration
	Category domain.ErrorCategory
	Reason   string
}

// Engine evaluates failures and tracks outcome history per service and
// error category.
type Engine struct {
	breakers *breaker.Registry
	calc     *backoff.Calculator
	load     LoadProvider
	logger   *slog.Logger

	mu    sync.Mutex
	stats map[statKey]*outcomeStats
}

type statKey struct {
	service  string
	category domain.ErrorCategory
}

// outcomeStats is the rolling record for one (service, category) pair:
// how many retries were scheduled, how they resolved, and a moving
// average of the computed delays. Once the resolved window fills, both
// outcome counters are halved so old history fades.
type outcomeStats struct {
	totalAttempts     int64
	successfulRetries int64
	failedRetries     int64
	emaDelayMillis    float64
}

// Stats is a reporting snapshot for one (service, category) pair.
type Stats struct {
	Service           string               `json:"service"`
	Category          domain.ErrorCategory `json:"category"`
	TotalAttempts     int64                `json:"total_attempts"`
	SuccessfulRetries int64                `json:"successful_retries"`
	FailedRetries     int64                `json:"failed_retries"`
	EMADelayMillis    float64              `json:"ema_delay_ms"`
}

const (
	statsWindow = 100
	emaWeight   = 0.2
)

// NewEngine builds a retry engine. loadFn may be nil, in which case
// load is treated as zero.
func NewEngine(breakers *breaker.Registry, calc *backoff.Calculator, loadFn LoadProvider, logger *slog.Logger) *Engine {
	if loadFn == nil {
		loadFn = func() float64 { return 0 }
	}
	return &Engine{
		breakers: breakers,
		calc:     calc,
		load:     loadFn,
		logger:   logger.With("component", "retry"),
		stats:    make(map[statKey]*outcomeStats),
	}
}

// Decide evaluates a failure of the given category on the given service
// for a job that has already made attempt retries (0-based count of
// completed attempts). jobMax is the job's own retry budget; when
// positive it caps the category policy's maximum.
func (e *Engine) Decide(category domain.ErrorCategory, service string, attempt, jobMax int) Decision {
	policy := backoff.PolicyFor(category)

	if !category.Retryable() || policy.Kind == backoff.KindNone {
		return Decision{Category: category, Reason: "error category is not retryable"}
	}
	maxRetries := policy.MaxRetries
	if jobMax > 0 && jobMax < maxRetries {
		maxRetries = jobMax
	}
	if attempt >= maxRetries {
		return Decision{Category: category, Reason: "retry attempts exhausted"}
	}

	halfOpen := false
	if policy.UseCircuitBreaker && service != "" {
		switch e.breakers.For(service).State() {
		case breaker.StateOpen:
			return Decision{Category: category, Reason: "circuit breaker open"}
		case breaker.StateHalfOpen:
			halfOpen = true
		}
	}

	cond := backoff.Conditions{
		SuccessRate: e.SuccessRate(service, category),
		SystemLoad:  e.load(),
		HalfOpen:    halfOpen,
	}
	delay := e.calc.Delay(policy, attempt, cond)
	e.recordAttempt(service, category, delay)

	e.logger.Debug("retry scheduled",
		"category", category,
		"service", service,
		"attempt", attempt,
		"delay", delay,
		"half_open", halfOpen)

	return Decision{Retry: true, Delay: delay, Category: category, Reason: "scheduled"}
}

// recordAttempt tracks a scheduled retry and folds its delay into the
// moving average.
func (e *Engine) recordAttempt(service string, category domain.ErrorCategory, delay time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.statsFor(service, category)
	s.totalAttempts++
	ms := float64(delay.Milliseconds())
	if s.totalAttempts == 1 {
		s.emaDelayMillis = ms
	} else {
		s.emaDelayMillis = (1-emaWeight)*s.emaDelayMillis + emaWeight*ms
	}
}

// RecordOutcome feeds the result of a retried attempt back into the
// success rate used by adaptive backoff.
func (e *Engine) RecordOutcome(service string, category domain.ErrorCategory, success bool) {
	if service == "" && category == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.statsFor(service, category)
	if success {
		s.successfulRetries++
	} else {
		s.failedRetries++
	}
	if s.successfulRetries+s.failedRetries > statsWindow {
		s.successfulRetries /= 2
		s.failedRetries /= 2
	}
}

// SuccessRate returns the tracked success rate for a (service,
// category) pair. With no history it optimistically reports 1.0 so new
// services are not penalized by adaptive backoff.
func (e *Engine) SuccessRate(service string, category domain.ErrorCategory) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.stats[statKey{service, category}]
	if !ok {
		return 1.0
	}
	total := s.successfulRetries + s.failedRetries
	if total == 0 {
		return 1.0
	}
	return float64(s.successfulRetries) / float64(total)
}

// Snapshot returns the tracked stats for reporting.
func (e *Engine) Snapshot() []Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Stats, 0, len(e.stats))
	for k, s := range e.stats {
		out = append(out, Stats{
			Service:           k.service,
			Category:          k.category,
			TotalAttempts:     s.totalAttempts,
			SuccessfulRetries: s.successfulRetries,
			FailedRetries:     s.failedRetries,
			EMADelayMillis:    s.emaDelayMillis,
		})
	}
	return out
}

// statsFor must be called with the mutex held.
func (e *Engine) statsFor(service string, category domain.ErrorCategory) *outcomeStats {
	key := statKey{service, category}
	s, ok := e.stats[key]
	if !ok {
		s = &outcomeStats{}
		e.stats[key] = s
	}
	return s
}
