package embedding

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/givelift/recall/internal/errors"
)

// GeminiProvider embeds text through the Gemini API. Requests carry an
// explicit task type so queries and documents land in the same space.
type GeminiProvider struct {
	client      *genai.Client
	platformKey string
	model       string
	outputDims  int32
}

var _ Provider = (*GeminiProvider)(nil)

// NewGeminiProvider builds a provider backed by the platform
// credential. Callers supplying their own key get a per-call client.
func NewGeminiProvider(ctx context.Context, platformKey, model string, dimensions int) (*GeminiProvider, error) {
	if platformKey == "" {
		return nil, fmt.Errorf("google api key is required for embeddings")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  platformKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiProvider{
		client:      client,
		platformKey: platformKey,
		model:       model,
		outputDims:  int32(dimensions),
	}, nil
}

func (p *GeminiProvider) Name() string {
	return "gemini"
}

func (p *GeminiProvider) clientFor(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" || apiKey == p.platformKey {
		return p.client, nil
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

// Embed issues one EmbedContent call per text. The Gemini embed
// endpoint reports no token usage, so Usage stays zero.
func (p *GeminiProvider) Embed(ctx context.Context, apiKey string, texts []string, task TaskType) ([][]float32, Usage, error) {
	client, err := p.clientFor(ctx, apiKey)
	if err != nil {
		return nil, Usage{}, err
	}

	dims := p.outputDims
	config := &genai.EmbedContentConfig{
		TaskType:             string(task),
		OutputDimensionality: &dims,
	}

	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		resp, err := client.Models.EmbedContent(ctx, p.model, genai.Text(text), config)
		if err != nil {
			return nil, Usage{}, fmt.Errorf("failed to embed content: %w", err)
		}
		if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
			return nil, Usage{}, errors.NewProviderContract(p.Name(), "empty embedding response")
		}
		vectors = append(vectors, resp.Embeddings[0].Values)
	}
	return vectors, Usage{}, nil
}

func (p *GeminiProvider) IsRateLimit(err error) bool {
	var apiErr genai.APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests
	}
	return false
}
