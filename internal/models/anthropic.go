package models

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/givelift/recall/internal/errors"
)

// anthropicDefaultMaxTokens applies when the request does not set a
// budget; the Messages API requires one.
const anthropicDefaultMaxTokens = 1024

// AnthropicGenerator runs completions through the Anthropic Messages
// API. The API has no structured-output mode, so a requested schema is
// embedded in the system prompt instead.
type AnthropicGenerator struct {
	client *anthropic.Client
	model  string
}

var _ Generator = (*AnthropicGenerator)(nil)

func NewAnthropicGenerator(platformKey, model string) *AnthropicGenerator {
	client := anthropic.NewClient(option.WithAPIKey(platformKey))
	return &AnthropicGenerator{
		client: &client,
		model:  model,
	}
}

func (g *AnthropicGenerator) Name() string {
	return "anthropic"
}

func (g *AnthropicGenerator) Generate(ctx context.Context, apiKey string, req GenerateRequest) (Result, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}

	system := req.System
	if req.ResponseSchema != nil {
		schemaJSON, err := json.Marshal(schemaToMap(req.ResponseSchema.Schema))
		if err != nil {
			return Result{}, fmt.Errorf("failed to marshal response schema: %w", err)
		}
		instruction := "Respond with a single JSON value matching this JSON Schema. Do not add prose or code fences.\n" + string(schemaJSON)
		if system == "" {
			system = instruction
		} else {
			system = system + "\n\n" + instruction
		}
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	resp, err := g.client.Messages.New(ctx, params, opts...)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create message: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return Result{}, errors.NewProviderContract(g.Name(), "message has no text content")
	}

	return Result{
		Text:         sb.String(),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}
