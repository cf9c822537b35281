// Package research provides the client for the async research vendor, which
// runs long topic-research and scout tasks and reports back via webhook.
package research

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Sentinel errors.
var (
	// ErrRejected means the vendor rejected the submission outright (4xx).
	ErrRejected = errors.New("research: submission rejected")
	// ErrTaskNotFound means the vendor does not know the task id.
	ErrTaskNotFound = errors.New("research: task not found")
)

// TaskState is the vendor-reported task status.
type TaskState struct {
	TaskID string          `json:"task_id"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Done reports whether the vendor considers the task finished, either way.
func (s TaskState) Done() bool {
	switch s.Status {
	case "succeeded", "completed", "failed", "cancelled":
		return true
	}
	return false
}

// Succeeded reports whether the task finished with a usable result.
func (s TaskState) Succeeded() bool {
	return s.Status == "succeeded" || s.Status == "completed"
}

// RetryConfig tunes the submission retry policy.
type RetryConfig struct {
	MaxRetries int
	// Multiplier is the initial backoff interval in seconds.
	Multiplier float64
	MaxWait    time.Duration
}

// Client calls the research vendor API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retry      RetryConfig
}

// New creates a research client.
func New(baseURL, apiKey string, timeout time.Duration, retry RetryConfig) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if retry.MaxRetries < 0 {
		retry.MaxRetries = 0
	}
	if retry.Multiplier <= 0 {
		retry.Multiplier = 1.0
	}
	if retry.MaxWait <= 0 {
		retry.MaxWait = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		retry:      retry,
	}
}

type submitRequest struct {
	Topic      string `json:"topic"`
	Mode       string `json:"mode"`
	WebhookURL string `json:"webhook_url,omitempty"`
}

type submitResponse struct {
	TaskID string `json:"task_id"`
}

// SubmitResearch starts a deep-research task for a topic. The vendor will
// POST the result to webhookURL when done. Returns the vendor task id.
func (c *Client) SubmitResearch(ctx context.Context, topic, webhookURL string) (string, error) {
	return c.submit(ctx, submitRequest{Topic: topic, Mode: "research", WebhookURL: webhookURL})
}

// SubmitScout starts a lightweight scout task that looks for events,
// communities and meetups around a topic.
func (c *Client) SubmitScout(ctx context.Context, topic, webhookURL string) (string, error) {
	return c.submit(ctx, submitRequest{Topic: topic, Mode: "scout", WebhookURL: webhookURL})
}

func (c *Client) submit(ctx context.Context, sr submitRequest) (string, error) {
	reqBody, err := json.Marshal(sr)
	if err != nil {
		return "", fmt.Errorf("marshal submit request: %w", err)
	}

	operation := func() (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/tasks", bytes.NewReader(reqBody))
		if err != nil {
			return "", backoff.Permanent(fmt.Errorf("create submit request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("submit %s task: %w", sr.Mode, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("read submit response: %w", err)
		}

		switch {
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return "", backoff.Permanent(fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, truncate(body, 200)))
		case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted:
			return "", fmt.Errorf("submit %s task: unexpected status %d", sr.Mode, resp.StatusCode)
		}

		var sub submitResponse
		if err := json.Unmarshal(body, &sub); err != nil {
			return "", backoff.Permanent(fmt.Errorf("decode submit response: %w", err))
		}
		if sub.TaskID == "" {
			return "", backoff.Permanent(fmt.Errorf("submit %s task: empty task id", sr.Mode))
		}
		return sub.TaskID, nil
	}

	return backoff.RetryWithData(operation, c.policy(ctx))
}

// TaskStatus polls the vendor for the current state of a task.
func (c *Client) TaskStatus(ctx context.Context, taskID string) (*TaskState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/tasks/"+taskID, nil)
	if err != nil {
		return nil, fmt.Errorf("create status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("task status %s: %w", taskID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read status response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrTaskNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("task status %s: unexpected status %d", taskID, resp.StatusCode)
	}

	var state TaskState
	if err := json.Unmarshal(body, &state); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	if state.TaskID == "" {
		state.TaskID = taskID
	}
	return &state, nil
}

func (c *Client) policy(ctx context.Context) backoff.BackOffContext {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = time.Duration(c.retry.Multiplier * float64(time.Second))
	eb.MaxInterval = c.retry.MaxWait
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.retry.MaxRetries)), ctx)
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
