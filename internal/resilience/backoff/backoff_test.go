package backoff

import (
	"math/rand"
	"testing"
	"time"

	"github.com/medscribe/dispatch/internal/core/domain"
)

func calc() *Calculator {
	return NewCalculatorWithSource(rand.NewSource(1))
}

func noJitter(p Policy) Policy {
	p.JitterFactor = 0
	return p
}

func TestLinearGrowth(t *testing.T) {
	p := noJitter(PolicyFor(domain.CategoryRateLimited))
	c := calc()

	for attempt, want := range []time.Duration{time.Minute, 2 * time.Minute, 3 * time.Minute} {
		got := c.Delay(p, attempt, Conditions{})
		if got != want {
			t.Errorf("attempt %d: got %v, want %v", attempt, got, want)
		}
	}
}

func TestExponentialGrowth(t *testing.T) {
	p := noJitter(PolicyFor(domain.CategoryTransientNetwork))
	c := calc()

	for attempt, want := range []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second} {
		got := c.Delay(p, attempt, Conditions{})
		if got != want {
			t.Errorf("attempt %d: got %v, want %v", attempt, got, want)
		}
	}
}

func TestFibonacciGrowth(t *testing.T) {
	p := noJitter(PolicyFor(domain.CategoryServiceUnavailable))
	c := calc()

	// fib(1)=1, fib(2)=2, fib(3)=3, fib(4)=5 with fib(0)=fib(1)=1
	for attempt, want := range []time.Duration{10 * time.Second, 20 * time.Second, 30 * time.Second, 50 * time.Second} {
		got := c.Delay(p, attempt, Conditions{})
		if got != want {
			t.Errorf("attempt %d: got %v, want %v", attempt, got, want)
		}
	}
}

func TestAdaptiveExponentialRespondsToSuccessRate(t *testing.T) {
	p := noJitter(PolicyFor(domain.CategoryResourceExhaustion))
	c := calc()

	// perfect success rate degrades to flat base delay
	healthy := c.Delay(p, 2, Conditions{SuccessRate: 1.0})
	if healthy != p.BaseDelay {
		t.Errorf("healthy service: got %v, want %v", healthy, p.BaseDelay)
	}

	// total failure uses factor 3: base * 3^2 = 18m, capped at 15m
	sick := c.Delay(p, 2, Conditions{SuccessRate: 0})
	if sick != p.MaxDelay {
		t.Errorf("failing service: got %v, want cap %v", sick, p.MaxDelay)
	}
}

func TestMaxDelayCap(t *testing.T) {
	p := noJitter(PolicyFor(domain.CategoryTransientNetwork))
	c := calc()

	got := c.Delay(p, 20, Conditions{})
	if got != p.MaxDelay {
		t.Errorf("got %v, want cap %v", got, p.MaxDelay)
	}
}

func TestNonRetryableCategoriesYieldZero(t *testing.T) {
	c := calc()
	for _, cat := range []domain.ErrorCategory{domain.CategoryValidation, domain.CategoryPermanent} {
		p := PolicyFor(cat)
		if p.Kind != KindNone {
			t.Errorf("%s: expected none kind, got %s", cat, p.Kind)
		}
		if got := c.Delay(p, 0, Conditions{}); got != 0 {
			t.Errorf("%s: got %v, want 0", cat, got)
		}
	}
}

func TestLoadMultiplier(t *testing.T) {
	cases := []struct {
		load, threshold, want float64
	}{
		{0.5, 0.8, 1.0},
		{0.8, 0.8, 1.0},
		{0.9, 0.8, 1.3},
		{2.0, 0.8, 4.0}, // capped
	}
	for _, tc := range cases {
		got := loadMultiplier(tc.load, tc.threshold)
		if diff := got - tc.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("load=%.2f threshold=%.2f: got %.3f, want %.3f", tc.load, tc.threshold, got, tc.want)
		}
	}
}

func TestHalfOpenDoublesDelay(t *testing.T) {
	p := noJitter(PolicyFor(domain.CategoryTransientNetwork))
	c := calc()

	normal := c.Delay(p, 0, Conditions{})
	probing := c.Delay(p, 0, Conditions{HalfOpen: true})
	if probing != 2*normal {
		t.Errorf("half-open: got %v, want %v", probing, 2*normal)
	}
}

func TestJitterStaysWithinBounds(t *testing.T) {
	p := PolicyFor(domain.CategoryTransientNetwork) // jitter 0.1
	c := calc()

	base := 2 * time.Second
	lo := time.Duration(float64(base) * 0.9)
	hi := time.Duration(float64(base) * 1.1)
	for i := 0; i < 200; i++ {
		got := c.Delay(p, 0, Conditions{})
		if got < lo || got > hi {
			t.Fatalf("jittered delay %v outside [%v, %v]", got, lo, hi)
		}
	}
}

func TestDelayNeverNegative(t *testing.T) {
	p := Policy{Kind: KindLinear, BaseDelay: time.Millisecond, MaxDelay: time.Second, JitterFactor: 1.0}
	c := calc()
	for i := 0; i < 200; i++ {
		if got := c.Delay(p, 0, Conditions{}); got < 0 {
			t.Fatalf("negative delay %v", got)
		}
	}
}
