// Package vision provides the multimodal LLM client used for image
// captioning, primary interest extraction and icebreaker generation.
package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Provider names accepted by New.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// Config selects the multimodal model backing the client.
type Config struct {
	Provider   string
	Model      string
	APIKey     string
	OllamaHost string
	// MaxImageCaptionChars bounds the post-caption context passed along
	// with an image.
	MaxImageCaptionChars int
}

// Client wraps a langchaingo multimodal model.
type Client struct {
	llm        llms.Model
	modelName  string
	captionCtx int
}

// New creates a vision client for the configured provider.
func New(cfg Config) (*Client, error) {
	var model llms.Model
	var err error

	switch cfg.Provider {
	case ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.Model),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.APIKey),
			anthropic.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported vision provider: %s", cfg.Provider)
	}

	captionCtx := cfg.MaxImageCaptionChars
	if captionCtx <= 0 {
		captionCtx = 100
	}

	return &Client{
		llm:        model,
		modelName:  cfg.Model,
		captionCtx: captionCtx,
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.modelName
}

// CaptionImage describes the activity depicted in an image. The post caption,
// when present, is passed as context. Returns a short free-text description.
func (c *Client) CaptionImage(ctx context.Context, imageURL, postCaption string) (string, error) {
	prompt := "What hobby or activity is the person in this photo DOING?"
	if postCaption != "" {
		if len(postCaption) > c.captionCtx {
			postCaption = postCaption[:c.captionCtx]
		}
		prompt += fmt.Sprintf(" This image is from a post captioned: %q.", postCaption)
	}
	prompt += " Only describe what you are CERTAIN about." +
		" ONLY name a brand if you can clearly READ the brand name or logo text in the image;" +
		" do NOT guess brands from the shape or style of objects." +
		" Be concise: 1-2 sentences max. If unclear, say 'unclear'."

	messages := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.ImageURLPart(imageURL),
				llms.TextPart(prompt),
			},
		},
	}

	response, err := c.llm.GenerateContent(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("caption image: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("caption image: no response choices")
	}
	return response.Choices[0].Content, nil
}

const extractPrompt = `Analyze this person's social content and list their MAIN hobbies and interests.

STRICT RULES:
- Extract high-level hobbies only (e.g. 'motorcycle' NOT 'riding', 'inspection', 'maintenance')
- ONE word per interest when possible (e.g. 'motorcycle' not 'motorcycle riding')
- ONLY include brands that are EXPLICITLY mentioned by name in the text; do NOT guess brands
- NO generic verbs/actions (riding, sitting, wearing = SKIP)
- NO visual descriptions (carbon fiber, chrome, leather = SKIP)
- NO duplicates
- Max 3 interests total, only the MOST prominent ones

Categories: hobby, brand

Content:
%s

Return ONLY a JSON object mapping category to an array of strings, no markdown:`

// maxExtractChars bounds the content passed to the extraction prompt.
const maxExtractChars = 3000

// Extract asks the model for a category->values JSON object.
// Implements the extract.Extractor contract as the primary extractor.
func (c *Client) Extract(ctx context.Context, text string) (map[string][]string, error) {
	if strings.TrimSpace(text) == "" {
		return map[string][]string{}, nil
	}
	if len(text) > maxExtractChars {
		text = text[:maxExtractChars]
	}

	response, err := llms.GenerateFromSinglePrompt(ctx, c.llm, fmt.Sprintf(extractPrompt, text))
	if err != nil {
		return nil, fmt.Errorf("extract interests: %w", err)
	}

	parsed, err := parseFactsJSON(response)
	if err != nil {
		return nil, fmt.Errorf("extract interests: %w", err)
	}
	return parsed, nil
}

// GenerateIcebreaker produces a conversation starter from shared interests.
func (c *Client) GenerateIcebreaker(ctx context.Context, userInterests, targetInterests, shared []string) (string, error) {
	prompt := fmt.Sprintf(
		"Two people share these interests: %s. "+
			"Person A is also into: %s. Person B is also into: %s. "+
			"Generate a single, natural conversation starter that references their shared interests. "+
			"Make it feel personal and specific, not generic. Just the icebreaker text, no quotes or labels.",
		strings.Join(shared, ", "),
		strings.Join(capSlice(userInterests, 5), ", "),
		strings.Join(capSlice(targetInterests, 5), ", "),
	)

	response, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt)
	if err != nil {
		return "", fmt.Errorf("generate icebreaker: %w", err)
	}
	return strings.TrimSpace(response), nil
}

// parseFactsJSON decodes a model response into category->values, stripping
// markdown code fences and tolerating single-string values.
func parseFactsJSON(raw string) (map[string][]string, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		if idx := strings.Index(raw, "\n"); idx >= 0 {
			raw = raw[idx+1:]
		} else {
			raw = raw[3:]
		}
		raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
		raw = strings.TrimSpace(raw)
	}

	var loose map[string]any
	if err := json.Unmarshal([]byte(raw), &loose); err != nil {
		return nil, fmt.Errorf("non-JSON extraction response: %w", err)
	}

	out := make(map[string][]string, len(loose))
	for label, val := range loose {
		switch v := val.(type) {
		case string:
			out[label] = []string{v}
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					out[label] = append(out[label], s)
				}
			}
		}
	}
	return out, nil
}

func capSlice(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
