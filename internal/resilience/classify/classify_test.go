package classify

import (
	"errors"
	"testing"

	"github.com/medscribe/dispatch/internal/core/domain"
)

func TestClassifyByPattern(t *testing.T) {
	cases := []struct {
		message string
		want    domain.ErrorCategory
	}{
		{"connection refused", domain.CategoryTransientNetwork},
		{"dial tcp: i/o timeout", domain.CategoryTransientNetwork},
		{"Connection reset by peer", domain.CategoryTransientNetwork},
		{"HTTP 429 Too Many Requests", domain.CategoryRateLimited},
		{"rate limit exceeded, retry later", domain.CategoryRateLimited},
		{"quota exceeded for project", domain.CategoryRateLimited},
		{"upstream returned 503 Service Unavailable", domain.CategoryServiceUnavailable},
		{"scheduled maintenance window", domain.CategoryServiceUnavailable},
		{"401 Unauthorized", domain.CategoryAuthentication},
		{"invalid token supplied", domain.CategoryAuthentication},
		{"out of memory", domain.CategoryResourceExhaustion},
		{"disk full on /var/data", domain.CategoryResourceExhaustion},
		{"validation failed: missing field", domain.CategoryValidation},
		{"malformed request body", domain.CategoryValidation},
		{"file not found: audio.wav", domain.CategoryDataError},
		{"corrupted archive", domain.CategoryDataError},
		{"whisper model crashed", domain.CategoryTranscriptionError},
		{"openai completion error", domain.CategoryAgentServiceError},
		{"something exploded", domain.CategoryUnknown},
	}

	c := New()
	for _, tc := range cases {
		got := c.ClassifyMessage("", tc.message)
		if got != tc.want {
			t.Errorf("%q: got %s, want %s", tc.message, got, tc.want)
		}
	}
}

func TestPatternOrderWins(t *testing.T) {
	// network signal beats the transcription fallback keyword
	c := New()
	got := c.ClassifyMessage("transcription", "transcription upload: connection refused")
	if got != domain.CategoryTransientNetwork {
		t.Errorf("got %s, want %s", got, domain.CategoryTransientNetwork)
	}
}

func TestServiceFallback(t *testing.T) {
	c := New()
	if got := c.ClassifyMessage("transcription", "boom"); got != domain.CategoryTranscriptionError {
		t.Errorf("transcription fallback: got %s", got)
	}
	if got := c.ClassifyMessage("agent", "boom"); got != domain.CategoryAgentServiceError {
		t.Errorf("agent fallback: got %s", got)
	}
	if got := c.ClassifyMessage("storage", "boom"); got != domain.CategoryUnknown {
		t.Errorf("unknown service fallback: got %s", got)
	}
}

func TestClassifyError(t *testing.T) {
	c := New()
	if got := c.Classify("agent", errors.New("gpt request failed")); got != domain.CategoryAgentServiceError {
		t.Errorf("got %s", got)
	}
	if got := c.Classify("agent", nil); got != domain.CategoryUnknown {
		t.Errorf("nil error: got %s", got)
	}
}

func TestCountsTrackOccurrences(t *testing.T) {
	c := New()
	c.ClassifyMessage("transcription", "connection refused")
	c.ClassifyMessage("transcription", "connection refused") // cache hit still counts
	c.ClassifyMessage("transcription", "whisper model crashed")
	c.ClassifyMessage("agent", "HTTP 429 Too Many Requests")

	counts := c.Counts()
	if got := counts["transcription"][domain.CategoryTransientNetwork]; got != 2 {
		t.Errorf("transcription/TRANSIENT_NETWORK: got %d, want 2", got)
	}
	if got := counts["transcription"][domain.CategoryTranscriptionError]; got != 1 {
		t.Errorf("transcription/TRANSCRIPTION_ERROR: got %d, want 1", got)
	}
	if got := counts["agent"][domain.CategoryRateLimited]; got != 1 {
		t.Errorf("agent/RATE_LIMITED: got %d, want 1", got)
	}
	if got := len(counts["agent"]); got != 1 {
		t.Errorf("agent categories: got %d, want 1", got)
	}
}

func TestCacheReturnsSameResult(t *testing.T) {
	c := New()
	first := c.ClassifyMessage("svc", "connection refused")
	second := c.ClassifyMessage("svc", "connection refused")
	if first != second {
		t.Errorf("cache mismatch: %s vs %s", first, second)
	}
}
