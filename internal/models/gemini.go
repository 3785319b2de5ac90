package models

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/givelift/recall/internal/errors"
)

// GeminiGenerator runs completions through the Gemini API, using JSON
// response mode when a schema is requested.
type GeminiGenerator struct {
	client      *genai.Client
	platformKey string
	model       string
}

var _ Generator = (*GeminiGenerator)(nil)

func NewGeminiGenerator(ctx context.Context, platformKey, model string) (*GeminiGenerator, error) {
	if strings.TrimSpace(platformKey) == "" {
		return nil, fmt.Errorf("API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  platformKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiGenerator{
		client:      client,
		platformKey: platformKey,
		model:       model,
	}, nil
}

func (g *GeminiGenerator) Name() string {
	return "gemini"
}

func (g *GeminiGenerator) clientFor(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" || apiKey == g.platformKey {
		return g.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return client, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, apiKey string, req GenerateRequest) (Result, error) {
	client, err := g.clientFor(ctx, apiKey)
	if err != nil {
		return Result{}, err
	}

	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	if req.Temperature > 0 {
		temperature := float32(req.Temperature)
		config.Temperature = &temperature
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.ResponseSchema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = schemaToGenAI(req.ResponseSchema.Schema)
	}

	resp, err := client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), config)
	if err != nil {
		return Result{}, fmt.Errorf("failed to generate content: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return Result{}, errors.NewProviderContract(g.Name(), "empty generation response")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return Result{}, errors.NewProviderContract(g.Name(), "generation has no text parts")
	}

	result := Result{Text: sb.String()}
	if resp.UsageMetadata != nil {
		result.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
		result.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	return result, nil
}
