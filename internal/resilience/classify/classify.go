// Package classify maps raw error text to an error category. Patterns
// are matched in order, so the more specific infrastructure signals win
// over the service-specific ones further down.
package classify

import (
	"regexp"
	"sync"

	"github.com/medscribe/dispatch/internal/core/domain"
)

type rule struct {
	re       *regexp.Regexp
	category domain.ErrorCategory
}

var rules = []rule{
	{regexp.MustCompile(`(?i)(connection|network|timeout|timed out|unreachable|refused|reset by peer|broken pipe|dns)`), domain.CategoryTransientNetwork},
	{regexp.MustCompile(`(?i)(rate.?limit|429|too many requests|quota exceeded|throttl)`), domain.CategoryRateLimited},
	{regexp.MustCompile(`(?i)(502|503|504|bad gateway|service unavailable|gateway timeout|maintenance|overload)`), domain.CategoryServiceUnavailable},
	{regexp.MustCompile(`(?i)(unauthoriz|authenticat|forbidden|401|403|invalid.?token|expired.?token|api.?key)`), domain.CategoryAuthentication},
	{regexp.MustCompile(`(?i)(out of memory|memory|disk full|disk space|no space|resource|capacity)`), domain.CategoryResourceExhaustion},
	{regexp.MustCompile(`(?i)(validation|invalid (input|format|request)|malformed|parse error|unsupported)`), domain.CategoryValidation},
	{regexp.MustCompile(`(?i)(file not found|no such file|corrupted|checksum)`), domain.CategoryDataError},
	{regexp.MustCompile(`(?i)(transcription|transcribe|whisper|audio decod)`), domain.CategoryTranscriptionError},
	{regexp.MustCompile(`(?i)(openai|gpt|agent|llm|completion)`), domain.CategoryAgentServiceError},
}

// service name fallbacks when no pattern matches
var serviceFallback = map[string]domain.ErrorCategory{
	"transcription": domain.CategoryTranscriptionError,
	"agent":         domain.CategoryAgentServiceError,
}

const (
	cacheLimit  = 1024
	countWindow = 1000
)

type countKey struct {
	service  string
	category domain.ErrorCategory
}

// Classifier categorizes errors, memoizing results per service and
// error text so hot failure paths avoid rescanning every pattern. It
// also keeps rolling occurrence counters per service and category for
// reporting and for tuning adaptive retry.
type Classifier struct {
	mu     sync.Mutex
	cache  map[string]domain.ErrorCategory
	counts map[countKey]int64
}

func New() *Classifier {
	return &Classifier{
		cache:  make(map[string]domain.ErrorCategory),
		counts: make(map[countKey]int64),
	}
}

// Classify returns the category for an error observed while calling
// the named service. A nil error classifies as UNKNOWN.
func (c *Classifier) Classify(service string, err error) domain.ErrorCategory {
	if err == nil {
		return domain.CategoryUnknown
	}
	return c.ClassifyMessage(service, err.Error())
}

// ClassifyMessage categorizes a raw error message.
func (c *Classifier) ClassifyMessage(service, message string) domain.ErrorCategory {
	key := service + "|" + message

	c.mu.Lock()
	if cat, ok := c.cache[key]; ok {
		c.countLocked(service, cat)
		c.mu.Unlock()
		return cat
	}
	c.mu.Unlock()

	cat := classify(service, message)

	c.mu.Lock()
	if len(c.cache) >= cacheLimit {
		c.cache = make(map[string]domain.ErrorCategory)
	}
	c.cache[key] = cat
	c.countLocked(service, cat)
	c.mu.Unlock()
	return cat
}

// countLocked bumps the rolling occurrence counter. Counts halve once
// a pair's window fills so old bursts fade from reports.
func (c *Classifier) countLocked(service string, cat domain.ErrorCategory) {
	k := countKey{service, cat}
	c.counts[k]++
	if c.counts[k] > countWindow {
		c.counts[k] /= 2
	}
}

// Counts returns the occurrence counters grouped by service.
func (c *Classifier) Counts() map[string]map[domain.ErrorCategory]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]map[domain.ErrorCategory]int64)
	for k, n := range c.counts {
		if out[k.service] == nil {
			out[k.service] = make(map[domain.ErrorCategory]int64)
		}
		out[k.service][k.category] = n
	}
	return out
}

func classify(service, message string) domain.ErrorCategory {
	for _, r := range rules {
		if r.re.MatchString(message) {
			return r.category
		}
	}
	if cat, ok := serviceFallback[service]; ok {
		return cat
	}
	return domain.CategoryUnknown
}
