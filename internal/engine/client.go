// Package engine is the adapter to the external rendering backend. It hides
// the backend's prompt/history polling protocol behind submit, poll and
// fetch operations.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/reelsmith/studio/internal/logging"
	"github.com/reelsmith/studio/internal/metrics"
	"github.com/reelsmith/studio/internal/telemetry"
)

type JobState string

const (
	JobPending    JobState = "pending"
	JobProcessing JobState = "processing"
	JobCompleted  JobState = "completed"
	JobFailed     JobState = "failed"
)

func (s JobState) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// JobStatus is the result of a single status check.
type JobStatus struct {
	State    JobState `json:"state"`
	Progress int      `json:"progress,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// OutputRef addresses one file produced by a job on the backend.
type OutputRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder,omitempty"`
	Type      string `json:"type,omitempty"`
}

// Path is the backend-relative path of the output.
func (o OutputRef) Path() string {
	return path.Join(o.Subfolder, o.Filename)
}

// Result lists the outputs of a completed job.
type Result struct {
	Images []OutputRef `json:"images"`
	Videos []OutputRef `json:"videos"`
}

// AwaitOptions controls SubmitAndAwait.
type AwaitOptions struct {
	MaxRetries   int
	RetryDelay   time.Duration
	PollInterval time.Duration
}

// Client talks to the rendering backend over HTTP.
type Client struct {
	baseURL    string
	clientID   string
	registry   *Registry
	httpClient *http.Client
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	logger     *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a client. timeout bounds every individual HTTP call.
func NewClient(baseURL string, timeout time.Duration, registry *Registry, m *metrics.Metrics, logger *slog.Logger) *Client {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Client{
		baseURL:  baseURL,
		clientID: uuid.NewString(),
		registry: registry,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: m,
		tracer:  telemetry.Tracer("engine"),
		logger:  logging.WithComponent(logger, "engine"),
		sleep:   sleepContext,
	}
}

// Registry returns the workflow registry the client submits from.
func (c *Client) Registry() *Registry {
	return c.registry
}

type promptRequest struct {
	Prompt   map[string]Node `json:"prompt"`
	ClientID string          `json:"client_id"`
}

type promptResponse struct {
	PromptID   string         `json:"prompt_id"`
	Number     int            `json:"number"`
	NodeErrors map[string]any `json:"node_errors"`
}

// Submit builds the named workflow with params and queues it, returning the
// backend job id.
func (c *Client) Submit(ctx context.Context, workflowName string, params map[string]any) (jobID string, err error) {
	ctx, span := c.tracer.Start(ctx, "engine.Submit", trace.WithAttributes(attribute.String("workflow", workflowName)))
	start := time.Now()
	defer func() {
		c.metrics.ObserveEngine("submit", workflowName, metrics.Outcome(err), time.Since(start))
		telemetry.End(span, err)
	}()

	w, err := c.registry.Get(workflowName)
	if err != nil {
		return "", err
	}
	graph, err := w.Build(params)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(promptRequest{Prompt: graph, ClientID: c.clientID})
	if err != nil {
		return "", fmt.Errorf("marshal prompt: %w", err)
	}

	var resp promptResponse
	if err := c.do(ctx, "submit", http.MethodPost, "/prompt", bytes.NewReader(body), &resp); err != nil {
		return "", err
	}
	if resp.PromptID == "" {
		return "", &BackendError{Op: "submit", StatusCode: http.StatusBadGateway, Body: "response missing prompt_id"}
	}

	span.SetAttributes(attribute.String("job_id", resp.PromptID))
	c.logger.Info("job submitted", "workflow", workflowName, "job_id", resp.PromptID, "queue_number", resp.Number)
	return resp.PromptID, nil
}

type historyEntry struct {
	Outputs map[string]historyOutput `json:"outputs"`
	Status  struct {
		StatusStr string            `json:"status_str"`
		Completed bool              `json:"completed"`
		Messages  []json.RawMessage `json:"messages"`
	} `json:"status"`
}

type historyOutput struct {
	Images []OutputRef `json:"images"`
	Videos []OutputRef `json:"videos"`
	Gifs   []OutputRef `json:"gifs"`
}

type queueResponse struct {
	Running [][]any `json:"queue_running"`
	Pending [][]any `json:"queue_pending"`
}

// PollStatus performs one non-blocking status check. A job the backend does
// not know yet is pending: submission and the first poll may race.
func (c *Client) PollStatus(ctx context.Context, jobID string) (status *JobStatus, err error) {
	ctx, span := c.tracer.Start(ctx, "engine.PollStatus", trace.WithAttributes(attribute.String("job_id", jobID)))
	start := time.Now()
	defer func() {
		c.metrics.ObserveEngine("poll", "", metrics.Outcome(err), time.Since(start))
		telemetry.End(span, err)
	}()

	entry, err := c.history(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		if c.isRunning(ctx, jobID) {
			return &JobStatus{State: JobProcessing}, nil
		}
		return &JobStatus{State: JobPending}, nil
	}

	switch {
	case entry.Status.StatusStr == "error":
		return &JobStatus{State: JobFailed, Error: executionError(entry.Status.Messages)}, nil
	case entry.Status.Completed:
		return &JobStatus{State: JobCompleted, Progress: 100}, nil
	default:
		return &JobStatus{State: JobProcessing}, nil
	}
}

// FetchResult lists the outputs of a completed job. It fails with
// ErrResultNotReady for any other state.
func (c *Client) FetchResult(ctx context.Context, jobID string) (result *Result, err error) {
	ctx, span := c.tracer.Start(ctx, "engine.FetchResult", trace.WithAttributes(attribute.String("job_id", jobID)))
	start := time.Now()
	defer func() {
		c.metrics.ObserveEngine("fetch", "", metrics.Outcome(err), time.Since(start))
		telemetry.End(span, err)
	}()

	entry, err := c.history(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if entry == nil || !entry.Status.Completed || entry.Status.StatusStr == "error" {
		return nil, fmt.Errorf("%w: %s", ErrResultNotReady, jobID)
	}

	// Node ids are unordered; sort so results are deterministic.
	nodeIDs := make([]string, 0, len(entry.Outputs))
	for id := range entry.Outputs {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Strings(nodeIDs)

	result = &Result{Images: []OutputRef{}, Videos: []OutputRef{}}
	for _, id := range nodeIDs {
		out := entry.Outputs[id]
		for _, ref := range out.Images {
			if isVideoFile(ref.Filename) {
				result.Videos = append(result.Videos, ref)
			} else {
				result.Images = append(result.Images, ref)
			}
		}
		result.Videos = append(result.Videos, out.Videos...)
		result.Videos = append(result.Videos, out.Gifs...)
	}
	return result, nil
}

// Download copies a job output to dest, creating parent directories.
func (c *Client) Download(ctx context.Context, ref OutputRef, dest string) (err error) {
	ctx, span := c.tracer.Start(ctx, "engine.Download", trace.WithAttributes(attribute.String("filename", ref.Filename)))
	start := time.Now()
	defer func() {
		c.metrics.ObserveEngine("download", "", metrics.Outcome(err), time.Since(start))
		telemetry.End(span, err)
	}()

	q := url.Values{}
	q.Set("filename", ref.Filename)
	q.Set("subfolder", ref.Subfolder)
	q.Set("type", ref.Type)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/view?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &BackendError{Op: "download", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &BackendError{Op: "download", StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return &BackendError{Op: "download", Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}

func (c *Client) history(ctx context.Context, jobID string) (*historyEntry, error) {
	var entries map[string]historyEntry
	if err := c.do(ctx, "history", http.MethodGet, "/history/"+url.PathEscape(jobID), nil, &entries); err != nil {
		return nil, err
	}
	entry, ok := entries[jobID]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// isRunning reports whether the job is currently executing. Queue lookup
// failures read as "not running" so the caller reports pending.
func (c *Client) isRunning(ctx context.Context, jobID string) bool {
	var q queueResponse
	if err := c.do(ctx, "queue", http.MethodGet, "/queue", nil, &q); err != nil {
		c.logger.Debug("queue lookup failed", "job_id", jobID, "error", err)
		return false
	}
	for _, item := range q.Running {
		if len(item) > 1 {
			if id, ok := item[1].(string); ok && id == jobID {
				return true
			}
		}
	}
	return false
}

func (c *Client) do(ctx context.Context, op, method, p string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+p, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &BackendError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return &BackendError{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &BackendError{Op: op, StatusCode: resp.StatusCode, Body: truncate(string(respBody), 4096)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &BackendError{Op: op, StatusCode: resp.StatusCode, Body: "invalid JSON: " + truncate(string(respBody), 256)}
	}
	return nil
}

// executionError extracts the exception message from backend status
// messages of the form ["execution_error", {"exception_message": "..."}].
func executionError(messages []json.RawMessage) string {
	for _, raw := range messages {
		var pair []json.RawMessage
		if err := json.Unmarshal(raw, &pair); err != nil || len(pair) != 2 {
			continue
		}
		var kind string
		if err := json.Unmarshal(pair[0], &kind); err != nil || kind != "execution_error" {
			continue
		}
		var detail struct {
			ExceptionMessage string `json:"exception_message"`
			NodeType         string `json:"node_type"`
		}
		if err := json.Unmarshal(pair[1], &detail); err == nil && detail.ExceptionMessage != "" {
			if detail.NodeType != "" {
				return detail.NodeType + ": " + detail.ExceptionMessage
			}
			return detail.ExceptionMessage
		}
	}
	return "execution failed"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func isVideoFile(name string) bool {
	switch filepath.Ext(name) {
	case ".mp4", ".webm", ".mov", ".gif", ".mkv":
		return true
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
