// Package collab holds HTTP clients for the downstream services jobs
// depend on. Every call goes through the service's circuit breaker and
// is recorded in its outcome metrics.
package collab

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	"github.com/medscribe/dispatch/internal/core/config"
	"github.com/medscribe/dispatch/internal/metrics"
	"github.com/medscribe/dispatch/internal/resilience/breaker"
)

// Service names used for breakers, classification and metrics.
const (
	ServiceTranscription = "transcription"
	ServiceAgent         = "agent"
)

// ErrCircuitOpen is returned without touching the network when the
// service's breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// client is the shared HTTP plumbing for one downstream service.
type client struct {
	service  string
	baseURL  string
	apiKey   string
	http     *http.Client
	breakers *breaker.Registry
}

func newClient(service, baseURL string, cfg config.CollabConfig, breakers *breaker.Registry) client {
	return client{
		service:  service,
		baseURL:  baseURL,
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: cfg.RequestTimeout},
		breakers: breakers,
	}
}

// postJSON sends a JSON request and decodes the JSON response into
// out, recording breaker state and metrics either way.
func (c *client) postJSON(ctx context.Context, path string, in, out any) error {
	br := c.breakers.For(c.service)
	if !br.Allow() {
		metrics.CollabRequests.WithLabelValues(c.service, "rejected").Inc()
		metrics.BreakerRejections.WithLabelValues(c.service).Inc()
		return fmt.Errorf("%s: %w", c.service, ErrCircuitOpen)
	}

	start := time.Now()
	err := c.doPost(ctx, path, in, out)
	metrics.CollabLatency.WithLabelValues(c.service).Observe(time.Since(start).Seconds())

	if err != nil {
		br.RecordFailure()
		metrics.CollabRequests.WithLabelValues(c.service, "error").Inc()
	} else {
		br.RecordSuccess()
		metrics.CollabRequests.WithLabelValues(c.service, "ok").Inc()
	}
	metrics.BreakerState.WithLabelValues(c.service).Set(metrics.BreakerStateValue(string(br.State())))
	return err
}

func (c *client) doPost(ctx context.Context, path string, in, out any) error {
	body, err := sonic.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", c.service, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned %d: %s", c.service, resp.StatusCode, truncate(string(data), 200))
	}

	if out != nil {
		if err := sonic.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", c.service, err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
