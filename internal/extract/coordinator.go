package extract

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// Extractor turns free text into a raw category->values mapping.
// Implementations are independent vendors with different failure modes.
type Extractor interface {
	Extract(ctx context.Context, text string) (map[string][]string, error)
}

// Captioner describes the activity depicted in a single image.
type Captioner interface {
	CaptionImage(ctx context.Context, imageURL, postCaption string) (string, error)
}

// ImageItem pairs an image URL with its post caption for context.
type ImageItem struct {
	URL     string
	Caption string
}

// CaptionResult aggregates a bounded fan-out over images.
// Failures of individual images do not abort the batch.
type CaptionResult struct {
	Captions []string
	Failed   []string
}

// Coordinator runs extraction with primary/fallback escalation and
// concurrency-limited image captioning.
type Coordinator struct {
	primary   Extractor
	fallback  Extractor
	captioner Captioner
	pool      *ants.Pool
	logger    *slog.Logger
}

// NewCoordinator creates a coordinator. imageConcurrency bounds how many
// caption calls may be in flight at once (downstream rate limits).
func NewCoordinator(
	primary, fallback Extractor,
	captioner Captioner,
	imageConcurrency int,
	logger *slog.Logger,
) (*Coordinator, error) {
	if imageConcurrency <= 0 {
		imageConcurrency = 2
	}
	pool, err := ants.NewPool(imageConcurrency)
	if err != nil {
		return nil, fmt.Errorf("create caption pool: %w", err)
	}
	return &Coordinator{
		primary:   primary,
		fallback:  fallback,
		captioner: captioner,
		pool:      pool,
		logger:    logger,
	}, nil
}

// Close releases the caption pool.
func (c *Coordinator) Close() {
	c.pool.Release()
}

// Extract runs the primary extractor and escalates to the fallback when the
// primary errors or yields zero facts. Zero facts from the primary is treated
// the same as failure: the fallback is a different vendor, not a retry.
// A fallback failure is absorbed; callers receive whatever was extracted.
func (c *Coordinator) Extract(ctx context.Context, text string) Facts {
	if text == "" {
		return Facts{}
	}

	raw, err := c.primary.Extract(ctx, text)
	if err != nil {
		c.logger.Warn("primary extractor failed, trying fallback", "error", err)
	}
	facts := Normalize(raw, c.logger)
	if facts.Total() > 0 {
		return facts
	}
	if c.fallback == nil {
		return facts
	}

	raw, err = c.fallback.Extract(ctx, text)
	if err != nil {
		c.logger.Warn("fallback extractor also failed", "error", err)
		return Facts{}
	}
	return Normalize(raw, c.logger)
}

// CaptionImages fans out captioning calls over the bounded pool. Each failed
// image is recorded in Failed (prefixed "caption:") and swallowed; the batch
// always completes. Result order is not significant.
func (c *Coordinator) CaptionImages(ctx context.Context, items []ImageItem) CaptionResult {
	var (
		mu     sync.Mutex
		result CaptionResult
		wg     sync.WaitGroup
	)

	for _, item := range items {
		item := item
		wg.Add(1)
		err := c.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			caption, err := c.captioner.CaptionImage(ctx, item.URL, item.Caption)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				c.logger.Warn("image caption failed", "url", truncateURL(item.URL), "error", err)
				result.Failed = append(result.Failed, "caption:"+truncateURL(item.URL))
				return
			}
			if caption != "" {
				result.Captions = append(result.Captions, caption)
			}
		})
		if err != nil {
			wg.Done()
			mu.Lock()
			result.Failed = append(result.Failed, "caption:"+truncateURL(item.URL))
			mu.Unlock()
		}
	}

	wg.Wait()
	return result
}

func truncateURL(url string) string {
	if len(url) > 60 {
		return url[:60]
	}
	return url
}
