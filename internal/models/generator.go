// Package models adapts third-party model providers to the engine's
// text generation needs, most notably structured JSON extraction.
package models

import (
	"context"

	"github.com/givelift/recall/internal/errors"
)

// GenerateRequest describes one synchronous completion. When
// ResponseSchema is set the provider is steered toward emitting a
// single JSON value matching it; callers still validate the output.
type GenerateRequest struct {
	System         string
	Prompt         string
	ResponseSchema *ResponseSchema
	MaxTokens      int
	Temperature    float64
}

// Result carries the generated text plus token accounting where the
// provider reports it.
type Result struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// Generator produces one completion per call. The apiKey is the
// caller's own provider credential; when empty the provider uses the
// platform credential it was constructed with.
type Generator interface {
	Name() string
	Generate(ctx context.Context, apiKey string, req GenerateRequest) (Result, error)
}

// New builds the Generator for the configured provider name.
func New(ctx context.Context, provider, platformKey, model string) (Generator, error) {
	switch provider {
	case "openai":
		return NewOpenAIGenerator(platformKey, model), nil
	case "anthropic":
		return NewAnthropicGenerator(platformKey, model), nil
	case "gemini":
		return NewGeminiGenerator(ctx, platformKey, model)
	default:
		return nil, errors.NewValidation("unknown generation provider %q", provider)
	}
}
