// Package scraper provides the HTTP client for the profile scraping vendor.
package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Sentinel errors for vendor-side failures the pipeline handles specially.
var (
	// ErrUnauthorized means the configured vendor API key was rejected.
	ErrUnauthorized = errors.New("scraper: unauthorized")
	// ErrBadRequest means the vendor rejected the request parameters.
	ErrBadRequest = errors.New("scraper: bad request")
	// ErrProfilePrivate means the profile exists but its posts are not visible.
	ErrProfilePrivate = errors.New("scraper: profile is private")
)

// Profile is the scraped subject metadata.
type Profile struct {
	Handle    string `json:"handle"`
	FullName  string `json:"full_name"`
	Biography string `json:"biography"`
	AvatarURL string `json:"avatar_url"`
	IsPrivate bool   `json:"is_private"`
	Followers int    `json:"followers"`
	Following int    `json:"following"`
	Posts     []Post `json:"posts"`
}

// Post is a single scraped post. SlideURLs holds every carousel slide;
// for single-image posts it is empty and DisplayURL is the only image.
type Post struct {
	Caption    string   `json:"caption"`
	DisplayURL string   `json:"display_url"`
	SlideURLs  []string `json:"slide_urls"`
	IsVideo    bool     `json:"is_video"`
}

// ImageURLs returns every image URL of the post, carousel slides included.
func (p Post) ImageURLs() []string {
	if len(p.SlideURLs) > 0 {
		return p.SlideURLs
	}
	if p.DisplayURL != "" {
		return []string{p.DisplayURL}
	}
	return nil
}

// Client calls the scraping vendor API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a scraper client. Timeout bounds the full scrape request,
// which can take a while for large profiles.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type scrapeRequest struct {
	Handle        string `json:"handle"`
	MaxPosts      int    `json:"max_posts"`
	IncludeReels  bool   `json:"include_reels"`
	IncludeSlides bool   `json:"include_slides"`
}

type vendorError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Scrape fetches the profile and its most recent posts.
func (c *Client) Scrape(ctx context.Context, handle string, maxPosts int, includeReels bool) (*Profile, error) {
	reqBody, err := json.Marshal(scrapeRequest{
		Handle:        handle,
		MaxPosts:      maxPosts,
		IncludeReels:  includeReels,
		IncludeSlides: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal scrape request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/profile/scrape", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create scrape request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scrape %s: %w", handle, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read scrape response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusBadRequest:
		var ve vendorError
		if json.Unmarshal(body, &ve) == nil && ve.Message != "" {
			return nil, fmt.Errorf("%w: %s", ErrBadRequest, ve.Message)
		}
		return nil, ErrBadRequest
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("scrape %s: unexpected status %d: %s", handle, resp.StatusCode, truncate(body, 200))
	}

	var profile Profile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("decode scrape response: %w", err)
	}

	if profile.IsPrivate && len(profile.Posts) == 0 {
		return &profile, ErrProfilePrivate
	}
	return &profile, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
