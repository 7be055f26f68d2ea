package domain

import "testing"

func TestCategoryWireValues(t *testing.T) {
	// these strings travel through Redis records and the admin API,
	// so renaming a constant must not change them
	want := map[ErrorCategory]string{
		CategoryTransientNetwork:   "TRANSIENT_NETWORK",
		CategoryRateLimited:        "RATE_LIMITED",
		CategoryServiceUnavailable: "SERVICE_UNAVAILABLE",
		CategoryAuthentication:     "AUTHENTICATION_ERROR",
		CategoryValidation:         "VALIDATION_ERROR",
		CategoryPermanent:          "PERMANENT_ERROR",
		CategoryResourceExhaustion: "RESOURCE_EXHAUSTION",
		CategoryDataError:          "DATA_ERROR",
		CategoryTranscriptionError: "TRANSCRIPTION_ERROR",
		CategoryAgentServiceError:  "AGENT_SERVICE_ERROR",
		CategoryUnknown:            "UNKNOWN_ERROR",
	}
	for cat, s := range want {
		if string(cat) != s {
			t.Errorf("category %q, want %q", string(cat), s)
		}
	}
}

func TestCategoryRetryable(t *testing.T) {
	if CategoryValidation.Retryable() || CategoryPermanent.Retryable() {
		t.Error("validation and permanent failures must never retry")
	}
	for _, cat := range []ErrorCategory{
		CategoryTransientNetwork, CategoryRateLimited, CategoryServiceUnavailable,
		CategoryAuthentication, CategoryResourceExhaustion, CategoryUnknown,
	} {
		if !cat.Retryable() {
			t.Errorf("%s should be retryable", cat)
		}
	}
}
