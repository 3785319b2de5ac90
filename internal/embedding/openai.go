package embedding

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/givelift/recall/internal/errors"
)

// OpenAIProvider embeds text through the OpenAI embeddings API. The
// SDK's own retries are disabled; the Client owns the retry policy.
type OpenAIProvider struct {
	client     *openai.Client
	model      string
	dimensions int
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider builds a provider using platformKey as the default
// credential. dimensions is requested from the API directly, which
// only text-embedding-3 family models honor.
func NewOpenAIProvider(platformKey, model string, dimensions int) *OpenAIProvider {
	client := openai.NewClient(
		option.WithAPIKey(platformKey),
		option.WithMaxRetries(0),
	)
	return &OpenAIProvider{
		client:     &client,
		model:      model,
		dimensions: dimensions,
	}
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Embed requests one embedding per input text. The response is
// reassembled by the index field rather than response order.
func (p *OpenAIProvider) Embed(ctx context.Context, apiKey string, texts []string, _ TaskType) ([][]float32, Usage, error) {
	params := openai.EmbeddingNewParams{
		Model:      openai.EmbeddingModel(p.model),
		Input:      openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Dimensions: openai.Int(int64(p.dimensions)),
	}
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	resp, err := p.client.Embeddings.New(ctx, params, opts...)
	if err != nil {
		return nil, Usage{}, err
	}
	if len(resp.Data) == 0 {
		return nil, Usage{}, errors.NewProviderContract(p.Name(), "response contains no embeddings")
	}

	vectors := make([][]float32, len(texts))
	for _, datum := range resp.Data {
		if datum.Index < 0 || int(datum.Index) >= len(vectors) {
			return nil, Usage{}, errors.NewProviderContract(p.Name(),
				fmt.Sprintf("embedding index %d out of range for %d inputs", datum.Index, len(texts)))
		}
		vector := make([]float32, len(datum.Embedding))
		for i, v := range datum.Embedding {
			vector[i] = float32(v)
		}
		vectors[datum.Index] = vector
	}

	usage := Usage{
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}
	return vectors, usage, nil
}

func (p *OpenAIProvider) IsRateLimit(err error) bool {
	var apiErr *openai.Error
	if stderrors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}
