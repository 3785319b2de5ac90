package cli

import (
	"context"
	"fmt"

	"github.com/givelift/recall/internal/config"
	"github.com/givelift/recall/internal/embedding"
)

// buildEmbedder assembles the same provider chain the platform service
// runs: primary provider with a vector cache, plus the configured
// fallback when it differs. CLI commands embed with platform
// credentials only.
func buildEmbedder(ctx context.Context, cfg config.Config) (embedding.Embedder, error) {
	opts := embedding.Options{
		Dimensions:  cfg.EmbeddingDimensions,
		MaxAttempts: cfg.EmbedMaxAttempts,
		BackoffBase: cfg.EmbedBackoffBase,
	}

	primaryProvider, err := buildProvider(ctx, cfg, cfg.EmbeddingProvider, cfg.EmbeddingModel)
	if err != nil {
		return nil, err
	}
	primaryCache, err := embedding.NewVectorCache("primary", cfg.CacheMaxEntries, cfg.CacheTTL)
	if err != nil {
		return nil, err
	}
	primary, err := embedding.NewClient(primaryProvider, primaryCache, opts)
	if err != nil {
		return nil, err
	}

	if cfg.FallbackProvider == "" || cfg.FallbackProvider == cfg.EmbeddingProvider {
		return primary, nil
	}

	fallbackProvider, err := buildProvider(ctx, cfg, cfg.FallbackProvider, cfg.FallbackModel)
	if err != nil {
		return nil, err
	}
	fallbackCache, err := embedding.NewVectorCache("fallback", cfg.CacheMaxEntries, cfg.CacheTTL)
	if err != nil {
		return nil, err
	}
	secondary, err := embedding.NewClient(fallbackProvider, fallbackCache, opts)
	if err != nil {
		return nil, err
	}
	return embedding.NewFallbackEmbedder(primary, secondary), nil
}

func buildProvider(ctx context.Context, cfg config.Config, name, model string) (embedding.Provider, error) {
	switch name {
	case "openai":
		return embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, model, cfg.EmbeddingDimensions), nil
	case "google", "gemini":
		return embedding.NewGeminiProvider(ctx, cfg.GoogleAPIKey, model, cfg.EmbeddingDimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", name)
	}
}
