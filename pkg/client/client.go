// Package client talks to the agentxd HTTP API: paged/tail log reads,
// the task registry, and the per-task SSE event stream.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustland/agentx/pkg/core"
)

// Client is an explicitly constructed API client. Callers build one in
// main and inject it; there is no package-level instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New constructs a client for the given daemon base URL.
func New(baseURL string) (*Client, error) {
	normalized, err := normalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: normalized,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

// WithHTTPClient overrides the default http.Client. Primarily useful for
// testing.
func (c *Client) WithHTTPClient(httpClient *http.Client) {
	if httpClient != nil {
		c.httpClient = httpClient
	}
}

// FetchOptions controls a log read. Tail overrides Offset.
type FetchOptions struct {
	Limit  int
	Offset int
	Tail   bool
}

// LogPage is one window of raw log lines.
type LogPage struct {
	Logs     []string `json:"logs"`
	FileSize int64    `json:"file_size"`
	HasMore  bool     `json:"has_more"`
}

// FetchLogs reads a window of a task's log. A task that has not produced
// logs yet yields an empty page, not an error; only transport and server
// failures surface as errors. The read has no side effects and is safe to
// poll.
func (c *Client) FetchLogs(ctx context.Context, taskID string, opts FetchOptions) (LogPage, error) {
	if taskID == "" {
		return LogPage{}, errors.New("task ID is required")
	}
	if opts.Limit <= 0 {
		opts.Limit = 100
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(opts.Limit))
	if opts.Tail {
		q.Set("tail", "true")
	} else {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/tasks/"+url.PathEscape(taskID)+"/logs?"+q.Encode(), nil)
	if err != nil {
		return LogPage{}, fmt.Errorf("create logs request: %w", err)
	}

	var page LogPage
	if err := c.do(req, &page); err != nil {
		return LogPage{}, err
	}
	if page.Logs == nil {
		page.Logs = []string{}
	}
	return page, nil
}

// ListTasks returns all registered tasks.
func (c *Client) ListTasks(ctx context.Context) ([]core.Task, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/tasks", nil)
	if err != nil {
		return nil, fmt.Errorf("create list request: %w", err)
	}
	var tasks []core.Task
	if err := c.do(req, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// GetTask fetches a single task.
func (c *Client) GetTask(ctx context.Context, taskID string) (core.Task, error) {
	if taskID == "" {
		return core.Task{}, errors.New("task ID is required")
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/tasks/"+url.PathEscape(taskID), nil)
	if err != nil {
		return core.Task{}, fmt.Errorf("create get request: %w", err)
	}
	var task core.Task
	if err := c.do(req, &task); err != nil {
		return core.Task{}, err
	}
	return task, nil
}

// CreateTaskRequest is the payload for submitting a task.
type CreateTaskRequest struct {
	Goal    string            `json:"goal"`
	Agent   string            `json:"agent"`
	Command string            `json:"command,omitempty"`
	Dir     string            `json:"dir,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Restart string            `json:"restart,omitempty"`
}

// CreateTask submits a new task and returns the stored record.
func (c *Client) CreateTask(ctx context.Context, reqBody CreateTaskRequest) (core.Task, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return core.Task{}, fmt.Errorf("encode task: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/tasks", strings.NewReader(string(body)))
	if err != nil {
		return core.Task{}, fmt.Errorf("create submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var task core.Task
	if err := c.do(req, &task); err != nil {
		return core.Task{}, err
	}
	return task, nil
}

// Ping checks daemon liveness.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return fmt.Errorf("create ping request: %w", err)
	}
	return c.do(req, nil)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if urlErr, ok := err.(*url.Error); ok {
			return fmt.Errorf("execute request: %w", urlErr.Err)
		}
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		if len(b) == 0 {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func normalizeBaseURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errors.New("base URL is required")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("base URL %q has no host", raw)
	}
	return strings.TrimRight(u.String(), "/"), nil
}
