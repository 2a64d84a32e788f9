package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/reelsmith/studio/internal/apperr"
)

// SubmitAndAwait submits the workflow, polls until the job is terminal and
// returns its outputs. Failed attempts are retried up to MaxRetries times
// with a delay of RetryDelay * 2^attempt; unknown workflows, unknown nodes
// and other non-retryable failures abort immediately.
func (c *Client) SubmitAndAwait(ctx context.Context, workflowName string, params map[string]any, opts AwaitOptions) (*Result, error) {
	var result *Result
	err := c.retry(ctx, workflowName, opts, func() error {
		var err error
		result, err = c.awaitOnce(ctx, workflowName, params, opts.PollInterval)
		return err
	})
	return result, err
}

// SubmitWithRetry submits the workflow with the same retry policy as
// SubmitAndAwait but returns as soon as the backend accepts the job.
func (c *Client) SubmitWithRetry(ctx context.Context, workflowName string, params map[string]any, opts AwaitOptions) (string, error) {
	var jobID string
	err := c.retry(ctx, workflowName, opts, func() error {
		var err error
		jobID, err = c.Submit(ctx, workflowName, params)
		return err
	})
	return jobID, err
}

func (c *Client) retry(ctx context.Context, workflowName string, opts AwaitOptions, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := opts.RetryDelay << (attempt - 1)
			c.logger.Warn("retrying job", "workflow", workflowName, "attempt", attempt, "delay", delay, "error", lastErr)
			if err := c.sleep(ctx, delay); err != nil {
				return err
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if !apperr.IsRetryable(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("workflow %s failed after %d attempts: %w", workflowName, opts.MaxRetries+1, lastErr)
}

func (c *Client) awaitOnce(ctx context.Context, workflowName string, params map[string]any, interval time.Duration) (*Result, error) {
	jobID, err := c.Submit(ctx, workflowName, params)
	if err != nil {
		return nil, err
	}

	for {
		status, err := c.PollStatus(ctx, jobID)
		if err != nil {
			return nil, err
		}
		switch status.State {
		case JobCompleted:
			return c.FetchResult(ctx, jobID)
		case JobFailed:
			return nil, &JobFailedError{JobID: jobID, Message: status.Error}
		}
		if err := c.sleep(ctx, interval); err != nil {
			return nil, err
		}
	}
}
