// Package client provides a REST client for the kindred server, used by the
// CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/kindredhq/kindred/internal/models"
)

// Client talks to the kindred HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client. If baseURL is empty, uses KINDRED_SERVER_URL env var
// or defaults to localhost:8486. Timeout can be configured via
// KINDRED_CLIENT_TIMEOUT.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("KINDRED_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8486"
	}

	timeout := time.Minute
	if t := os.Getenv("KINDRED_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type apiEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("server error (%s): %s", envelope.Error.Code, envelope.Error.Message)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if result != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, result); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}

// JobAccepted is the response to an accepted ingestion.
type JobAccepted struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// IngestProfile starts a profile ingestion job.
func (c *Client) IngestProfile(ctx context.Context, handle string, maxPosts int, includeReels, force bool) (*JobAccepted, error) {
	path := "/api/ingest/profile"
	if force {
		path += "?force=true"
	}
	var accepted JobAccepted
	err := c.do(ctx, http.MethodPost, path, map[string]any{
		"handle":        handle,
		"max_posts":     maxPosts,
		"include_reels": includeReels,
	}, &accepted)
	if err != nil {
		return nil, err
	}
	return &accepted, nil
}

// GetJob fetches a job snapshot.
func (c *Client) GetJob(ctx context.Context, jobID string) (*models.IngestJob, error) {
	var job models.IngestJob
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(jobID), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Matches fetches affinity-ranked matches for a person.
func (c *Client) Matches(ctx context.Context, personID string, limit int) ([]models.Match, error) {
	path := "/api/discover/matches?person_id=" + url.QueryEscape(personID)
	if limit > 0 {
		path += "&limit=" + strconv.Itoa(limit)
	}
	var matches []models.Match
	if err := c.do(ctx, http.MethodGet, path, nil, &matches); err != nil {
		return nil, err
	}
	return matches, nil
}

// Interests fetches a person's interests, strongest first.
func (c *Client) Interests(ctx context.Context, personID string) ([]models.Interest, error) {
	var interests []models.Interest
	path := "/api/discover/interests?person_id=" + url.QueryEscape(personID)
	if err := c.do(ctx, http.MethodGet, path, nil, &interests); err != nil {
		return nil, err
	}
	return interests, nil
}

// Icebreaker asks the server for a conversation starter.
func (c *Client) Icebreaker(ctx context.Context, personID, targetID string) (string, error) {
	var out map[string]string
	err := c.do(ctx, http.MethodPost, "/api/chat/icebreaker", map[string]string{
		"person_id": personID,
		"target_id": targetID,
	}, &out)
	if err != nil {
		return "", err
	}
	return out["icebreaker"], nil
}
