package domain

// ErrorCategory buckets failures so retry policy, circuit breaking and
// dead-letter triage can treat them uniformly.
type ErrorCategory string

const (
	CategoryTransientNetwork    ErrorCategory = "TRANSIENT_NETWORK"
	CategoryRateLimited         ErrorCategory = "RATE_LIMITED"
	CategoryServiceUnavailable  ErrorCategory = "SERVICE_UNAVAILABLE"
	CategoryAuthentication      ErrorCategory = "AUTHENTICATION_ERROR"
	CategoryValidation          ErrorCategory = "VALIDATION_ERROR"
	CategoryPermanent           ErrorCategory = "PERMANENT_ERROR"
	CategoryResourceExhaustion  ErrorCategory = "RESOURCE_EXHAUSTION"
	CategoryDataError           ErrorCategory = "DATA_ERROR"
	CategoryTranscriptionError  ErrorCategory = "TRANSCRIPTION_ERROR"
	CategoryAgentServiceError   ErrorCategory = "AGENT_SERVICE_ERROR"
	CategoryUnknown             ErrorCategory = "UNKNOWN_ERROR"
)

// Retryable reports whether jobs failing with this category may be
// retried at all. Validation and permanent failures never retry.
func (c ErrorCategory) Retryable() bool {
	switch c {
	case CategoryValidation, CategoryPermanent:
		return false
	default:
		return true
	}
}
