package engine

import (
	"fmt"

	"github.com/reelsmith/studio/internal/apperr"
)

var (
	ErrWorkflowNotFound = apperr.New(apperr.KindNotFound, "WORKFLOW_NOT_FOUND", "workflow not found or inactive")
	ErrNodeNotFound     = apperr.New(apperr.KindNonRetryable, "NODE_NOT_FOUND", "workflow parameter references a missing node")
	ErrResultNotReady   = apperr.New(apperr.KindConflict, "RESULT_NOT_READY", "job has not completed")
)

// BackendError represents a transport or HTTP failure talking to the
// rendering backend. StatusCode is zero for network errors.
type BackendError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *BackendError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("engine %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("engine %s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true for server errors (5xx) and network errors.
// Client errors (4xx) are considered permanent.
func (e *BackendError) IsRetryable() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500
}

// ErrorKind implements apperr.Kinded.
func (e *BackendError) ErrorKind() apperr.Kind {
	if e.IsRetryable() {
		return apperr.KindTransient
	}
	return apperr.KindNonRetryable
}

// JobFailedError reports that the backend ran the job and it failed.
type JobFailedError struct {
	JobID   string
	Message string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Message)
}

// ErrorKind implements apperr.Kinded. A failed render may succeed on resubmission.
func (e *JobFailedError) ErrorKind() apperr.Kind {
	return apperr.KindTransient
}
