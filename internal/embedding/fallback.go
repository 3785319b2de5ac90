package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/givelift/recall/internal/errors"
)

// FallbackEmbedder tries a primary embedder end-to-end (including its
// retry budget) and, on failure, retries once against a secondary.
// Caller-supplied API keys apply to the primary only; the secondary
// always runs on platform credentials.
type FallbackEmbedder struct {
	primary   Embedder
	secondary Embedder
	fallbacks atomic.Int64
}

var _ Embedder = (*FallbackEmbedder)(nil)

func NewFallbackEmbedder(primary, secondary Embedder) *FallbackEmbedder {
	return &FallbackEmbedder{primary: primary, secondary: secondary}
}

// Fallbacks reports how many requests were served by the secondary.
func (f *FallbackEmbedder) Fallbacks() int64 {
	return f.fallbacks.Load()
}

func (f *FallbackEmbedder) EmbedQuery(ctx context.Context, apiKey, text string) ([]float32, error) {
	vector, err := f.primary.EmbedQuery(ctx, apiKey, text)
	if err == nil || !f.shouldFallBack(ctx, err) {
		return vector, err
	}
	f.noteFallback(err)
	fallbackVector, ferr := f.secondary.EmbedQuery(ctx, "", text)
	if ferr != nil {
		return nil, wrapBothFailed(err, ferr)
	}
	return fallbackVector, nil
}

func (f *FallbackEmbedder) EmbedDocument(ctx context.Context, apiKey, text string) ([]float32, error) {
	vector, err := f.primary.EmbedDocument(ctx, apiKey, text)
	if err == nil || !f.shouldFallBack(ctx, err) {
		return vector, err
	}
	f.noteFallback(err)
	fallbackVector, ferr := f.secondary.EmbedDocument(ctx, "", text)
	if ferr != nil {
		return nil, wrapBothFailed(err, ferr)
	}
	return fallbackVector, nil
}

func (f *FallbackEmbedder) EmbedDocuments(ctx context.Context, apiKey string, texts []string) ([][]float32, error) {
	vectors, err := f.primary.EmbedDocuments(ctx, apiKey, texts)
	if err == nil || !f.shouldFallBack(ctx, err) {
		return vectors, err
	}
	f.noteFallback(err)
	fallbackVectors, ferr := f.secondary.EmbedDocuments(ctx, "", texts)
	if ferr != nil {
		return nil, wrapBothFailed(err, ferr)
	}
	return fallbackVectors, nil
}

// shouldFallBack excludes failures the secondary cannot fix: bad input
// and canceled or expired contexts.
func (f *FallbackEmbedder) shouldFallBack(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, errors.ErrValidation)
}

func (f *FallbackEmbedder) noteFallback(err error) {
	f.fallbacks.Add(1)
	slog.Warn("primary embedder failed, falling back to secondary", "error", err)
}

// wrapBothFailed keeps the secondary's classification in the unwrap
// chain while preserving the primary's failure for the logs.
func wrapBothFailed(primaryErr, secondaryErr error) error {
	return fmt.Errorf("fallback embedder failed after primary error (%v): %w", primaryErr, secondaryErr)
}
