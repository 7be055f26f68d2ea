// Package process holds the per-job-type pipelines workers execute.
// Each pipeline returns a result map stored on the job, and tags
// failures with the downstream service that caused them.
package process

import (
	"context"
	"fmt"

	"github.com/medscribe/dispatch/internal/core/domain"
)

// Func executes one job and returns its result payload.
type Func func(ctx context.Context, job *domain.Job) (map[string]any, error)

// ServiceError tags an error with the downstream service that failed,
// so retry policy and circuit breaking can be attributed correctly.
type ServiceError struct {
	Service string
	Err     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// serviceErr wraps err unless it is nil.
func serviceErr(service string, err error) error {
	if err == nil {
		return nil
	}
	return &ServiceError{Service: service, Err: err}
}

// ServiceStorage attributes persistence failures.
const ServiceStorage = "storage"
