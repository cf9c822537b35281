// Package stt provides the speech-to-text vendor client used by voice ingestion.
package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrUnauthorized means the configured vendor API key was rejected.
var ErrUnauthorized = errors.New("stt: unauthorized")

// Utterance is one diarized segment with its detected dominant emotion.
type Utterance struct {
	Text    string `json:"text"`
	Emotion string `json:"emotion"`
}

// Transcript is the full transcription result.
type Transcript struct {
	Text       string      `json:"text"`
	Utterances []Utterance `json:"utterances"`
}

// Emotions returns the distinct non-neutral emotions across utterances, in
// order of first appearance.
func (t *Transcript) Emotions() []string {
	seen := make(map[string]bool)
	var out []string
	for _, u := range t.Utterances {
		if u.Emotion == "" || strings.EqualFold(u.Emotion, "neutral") || seen[u.Emotion] {
			continue
		}
		seen[u.Emotion] = true
		out = append(out, u.Emotion)
	}
	return out
}

// Client calls the transcription vendor API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries uint64
}

// New creates an stt client. Transcription of long clips is slow, so the
// timeout should be generous.
func New(baseURL, apiKey string, timeout time.Duration, maxRetries int) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: uint64(maxRetries),
	}
}

// Transcribe uploads an audio clip and returns its transcript. Transient
// failures (5xx, network) are retried with exponential backoff; 4xx
// responses fail immediately.
func (c *Client) Transcribe(ctx context.Context, filename string, audio []byte) (*Transcript, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("audio", filename)
	if err != nil {
		return nil, fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("write audio part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	operation := func() (*Transcript, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transcribe", bytes.NewReader(body.Bytes()))
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("create transcribe request: %w", err))
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("transcribe: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read transcribe response: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return nil, backoff.Permanent(ErrUnauthorized)
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return nil, backoff.Permanent(fmt.Errorf("transcribe: vendor rejected request: status %d", resp.StatusCode))
		case resp.StatusCode != http.StatusOK:
			return nil, fmt.Errorf("transcribe: unexpected status %d", resp.StatusCode)
		}

		var transcript Transcript
		if err := json.Unmarshal(respBody, &transcript); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("decode transcribe response: %w", err))
		}
		return &transcript, nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	return backoff.RetryWithData(operation, policy)
}
