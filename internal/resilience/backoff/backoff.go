// Package backoff computes retry delays for failed jobs. Each error
// category maps to a policy that picks a growth curve, caps the delay
// and decides how aggressively jitter and system load shape it.
package backoff

import (
	"math"
	"math/rand"
	"time"

	"github.com/medscribe/dispatch/internal/core/domain"
)

// Kind selects the delay growth curve.
type Kind string

const (
	KindNone                Kind = "none"
	KindLinear              Kind = "linear"
	KindExponential         Kind = "exponential"
	KindFibonacci           Kind = "fibonacci"
	KindAdaptiveExponential Kind = "adaptive_exponential"
)

// Policy describes how a single error category should be retried.
type Policy struct {
	Kind              Kind
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	MaxRetries        int
	JitterFactor      float64
	UseCircuitBreaker bool
	LoadThreshold     float64
}

// PolicyFor returns the retry policy for an error category.
func PolicyFor(category domain.ErrorCategory) Policy {
	switch category {
	case domain.CategoryTransientNetwork:
		return Policy{KindExponential, 2 * time.Second, 5 * time.Minute, 5, 0.1, true, 0.8}
	case domain.CategoryRateLimited:
		return Policy{KindLinear, time.Minute, 30 * time.Minute, 3, 0.2, true, 0.9}
	case domain.CategoryServiceUnavailable:
		return Policy{KindFibonacci, 10 * time.Second, 10 * time.Minute, 4, 0.15, true, 0.7}
	case domain.CategoryAuthentication:
		return Policy{KindLinear, 5 * time.Minute, 30 * time.Minute, 2, 0, false, 0.5}
	case domain.CategoryValidation, domain.CategoryPermanent:
		return Policy{Kind: KindNone}
	case domain.CategoryResourceExhaustion:
		return Policy{KindAdaptiveExponential, 2 * time.Minute, 15 * time.Minute, 3, 0.3, true, 0.6}
	default:
		return Policy{KindExponential, 5 * time.Second, 5 * time.Minute, 3, 0.1, true, 0.8}
	}
}

// Conditions captures the runtime signals that scale the base delay.
type Conditions struct {
	SuccessRate float64 // recent success rate for the failing service, 0..1
	SystemLoad  float64 // 0..1, from active worker saturation
	HalfOpen    bool    // circuit breaker probing, be extra cautious
}

// Calculator produces concrete delays from a policy. The random source
// is injectable so tests can pin jitter.
type Calculator struct {
	rng *rand.Rand
}

// NewCalculator returns a calculator seeded from the current time.
func NewCalculator() *Calculator {
	return &Calculator{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// NewCalculatorWithSource returns a calculator using the given source.
func NewCalculatorWithSource(src rand.Source) *Calculator {
	return &Calculator{rng: rand.New(src)}
}

// Delay computes the wait before retry attempt (0-based) under the
// given policy and runtime conditions. KindNone always yields zero.
func (c *Calculator) Delay(p Policy, attempt int, cond Conditions) time.Duration {
	if p.Kind == KindNone || attempt < 0 {
		return 0
	}

	base := float64(p.BaseDelay)
	var delay float64
	switch p.Kind {
	case KindLinear:
		delay = base * float64(attempt+1)
	case KindExponential:
		delay = base * math.Pow(2, float64(attempt))
	case KindFibonacci:
		delay = base * float64(fib(attempt+1))
	case KindAdaptiveExponential:
		factor := math.Max(1.0, 3.0-2.0*cond.SuccessRate)
		delay = base * math.Pow(factor, float64(attempt))
	default:
		delay = base
	}

	delay *= loadMultiplier(cond.SystemLoad, p.LoadThreshold)

	if cond.HalfOpen {
		delay *= 2
	}

	if p.JitterFactor > 0 {
		// uniform in [-jitter, +jitter] of the computed delay
		jitter := (c.rng.Float64()*2 - 1) * p.JitterFactor * delay
		delay += jitter
	}

	if delay < 0 {
		delay = 0
	}
	if max := float64(p.MaxDelay); p.MaxDelay > 0 && delay > max {
		delay = max
	}
	return time.Duration(delay)
}

// loadMultiplier stretches delays when the system is saturated. Below
// the threshold it is neutral; above it grows linearly up to 4x.
func loadMultiplier(load, threshold float64) float64 {
	if load <= threshold {
		return 1.0
	}
	m := 1.0 + 3.0*(load-threshold)
	if m > 4.0 {
		m = 4.0
	}
	return m
}

func fib(n int) int64 {
	if n <= 1 {
		return 1
	}
	a, b := int64(1), int64(1)
	for i := 2; i <= n; i++ {
		a, b = b, a+b
	}
	return b
}
