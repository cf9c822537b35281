// Package ner provides a zero-shot entity extractor backed by AWS Bedrock,
// used as the fallback when the primary extractor fails or returns nothing.
package ner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// Labels the zero-shot classifier may assign.
var labels = []string{"hobby", "location", "brand", "activity", "sport", "food", "music", "art"}

// Extractor calls a Bedrock text model through the Converse API.
type Extractor struct {
	client  *bedrockruntime.Client
	modelID string
}

// New loads the default AWS credential chain and builds the extractor.
func New(ctx context.Context, region, modelID string) (*Extractor, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Extractor{
		client:  bedrockruntime.NewFromConfig(cfg),
		modelID: modelID,
	}, nil
}

// maxInputChars bounds the text sent to the model.
const maxInputChars = 4000

// Extract classifies entities in text into the fixed label set.
func (e *Extractor) Extract(ctx context.Context, text string) (map[string][]string, error) {
	if strings.TrimSpace(text) == "" {
		return map[string][]string{}, nil
	}
	if len(text) > maxInputChars {
		text = text[:maxInputChars]
	}

	prompt := fmt.Sprintf(
		"Extract named entities and interests from the text below. "+
			"Assign each to exactly one of these labels: %s. "+
			"Only include entities explicitly present in the text. "+
			"Return ONLY a JSON object mapping label to an array of strings, no markdown, no prose.\n\nText:\n%s",
		strings.Join(labels, ", "), text,
	)

	out, err := e.client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(e.modelID),
		Messages: []types.Message{
			{
				Role: types.ConversationRoleUser,
				Content: []types.ContentBlock{
					&types.ContentBlockMemberText{Value: prompt},
				},
			},
		},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(512),
			Temperature: aws.Float32(0),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock converse: %w", err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, fmt.Errorf("bedrock converse: unexpected output type %T", out.Output)
	}

	var raw string
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			raw += text.Value
		}
	}

	parsed, err := parseLabelJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("bedrock converse: %w", err)
	}
	return parsed, nil
}

func parseLabelJSON(raw string) (map[string][]string, error) {
	raw = strings.TrimSpace(raw)
	// Some models wrap JSON in fences despite instructions.
	if strings.HasPrefix(raw, "```") {
		if idx := strings.Index(raw, "\n"); idx >= 0 {
			raw = raw[idx+1:]
		}
		raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
		raw = strings.TrimSpace(raw)
	}
	// Tolerate prose before/after the object.
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var out map[string][]string
	if err := json.Unmarshal([]byte(raw[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}
