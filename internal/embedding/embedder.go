package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/givelift/recall/internal/errors"
)

// TaskType tells the provider how the embedding will be used, which
// lets asymmetric models place queries and documents in the same space.
type TaskType string

const (
	TaskQuery    TaskType = "RETRIEVAL_QUERY"
	TaskDocument TaskType = "RETRIEVAL_DOCUMENT"
)

// emptyPlaceholder stands in for batch entries that sanitize to nothing
// so the returned vectors stay index-aligned with the caller's input.
const emptyPlaceholder = "(empty)"

// Usage reports token consumption for a single provider call.
type Usage struct {
	PromptTokens int64
	TotalTokens  int64
}

// Provider is a single upstream embedding API. Implementations perform
// one call per Embed invocation and leave retries, caching and
// dimension handling to the Client.
type Provider interface {
	Name() string
	Embed(ctx context.Context, apiKey string, texts []string, task TaskType) ([][]float32, Usage, error)
	IsRateLimit(err error) bool
}

// Embedder turns text into fixed-dimension vectors. The apiKey is the
// caller's own provider credential and may be empty, in which case the
// provider falls back to the platform credential it was built with.
type Embedder interface {
	EmbedQuery(ctx context.Context, apiKey, text string) ([]float32, error)
	EmbedDocument(ctx context.Context, apiKey, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, apiKey string, texts []string) ([][]float32, error)
}

// Stats is a point-in-time snapshot of a Client's counters.
type Stats struct {
	Requests         int64
	TextsEmbedded    int64
	CacheHits        int64
	RateLimitRetries int64
	TokensConsumed   int64
}

// Options tune a Client's dimension target and retry budget.
type Options struct {
	Dimensions  int
	MaxAttempts int
	BackoffBase time.Duration
}

// Client produces embeddings through a Provider, adding sanitization,
// caching, rate-limit retries with exponential backoff, and
// length-prefix truncation down to the configured dimensionality.
type Client struct {
	provider    Provider
	cache       *VectorCache
	dimensions  int
	maxAttempts int
	backoffBase time.Duration

	requests  atomic.Int64
	texts     atomic.Int64
	cacheHits atomic.Int64
	retries   atomic.Int64
	tokens    atomic.Int64
}

var _ Embedder = (*Client)(nil)

// NewClient wraps provider with the Client's retry and caching
// behavior. cache may be nil to disable memoization.
func NewClient(provider Provider, cache *VectorCache, opts Options) (*Client, error) {
	if provider == nil {
		return nil, fmt.Errorf("embedding provider is required")
	}
	if opts.Dimensions <= 0 {
		return nil, errors.NewValidation("embedding dimensions must be positive, got %d", opts.Dimensions)
	}
	if opts.MaxAttempts < 1 {
		return nil, errors.NewValidation("embedding max attempts must be at least 1, got %d", opts.MaxAttempts)
	}
	if opts.BackoffBase <= 0 {
		return nil, errors.NewValidation("embedding backoff base must be positive, got %s", opts.BackoffBase)
	}
	return &Client{
		provider:    provider,
		cache:       cache,
		dimensions:  opts.Dimensions,
		maxAttempts: opts.MaxAttempts,
		backoffBase: opts.BackoffBase,
	}, nil
}

// Dimensions returns the vector length this client produces.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Stats snapshots the client's cumulative counters.
func (c *Client) Stats() Stats {
	return Stats{
		Requests:         c.requests.Load(),
		TextsEmbedded:    c.texts.Load(),
		CacheHits:        c.cacheHits.Load(),
		RateLimitRetries: c.retries.Load(),
		TokensConsumed:   c.tokens.Load(),
	}
}

// EmbedQuery embeds a single retrieval query.
func (c *Client) EmbedQuery(ctx context.Context, apiKey, text string) ([]float32, error) {
	return c.embedOne(ctx, apiKey, text, TaskQuery)
}

// EmbedDocument embeds a single document or memory for indexing.
func (c *Client) EmbedDocument(ctx context.Context, apiKey, text string) ([]float32, error) {
	return c.embedOne(ctx, apiKey, text, TaskDocument)
}

func (c *Client) embedOne(ctx context.Context, apiKey, text string, task TaskType) ([]float32, error) {
	sanitized := Sanitize(text)
	if sanitized == "" {
		return nil, errors.NewValidation("text is empty after sanitization")
	}
	if vector, ok := c.cache.Get(task, sanitized); ok {
		c.cacheHits.Add(1)
		return vector, nil
	}
	vectors, err := c.callWithRetry(ctx, apiKey, []string{sanitized}, task)
	if err != nil {
		return nil, err
	}
	c.cache.Put(task, sanitized, vectors[0])
	return vectors[0], nil
}

// EmbedDocuments embeds a batch of texts for indexing. The result is
// index-aligned with texts; entries that sanitize to nothing are
// embedded as a placeholder instead of being dropped.
func (c *Client) EmbedDocuments(ctx context.Context, apiKey string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.NewValidation("no texts to embed")
	}

	sanitized := make([]string, len(texts))
	for i, text := range texts {
		s := Sanitize(text)
		if s == "" {
			s = emptyPlaceholder
		}
		sanitized[i] = s
	}

	results := make([][]float32, len(texts))
	var missing []int
	for i, s := range sanitized {
		if vector, ok := c.cache.Get(TaskDocument, s); ok {
			c.cacheHits.Add(1)
			results[i] = vector
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return results, nil
	}

	batch := make([]string, len(missing))
	for j, i := range missing {
		batch[j] = sanitized[i]
	}
	vectors, err := c.callWithRetry(ctx, apiKey, batch, TaskDocument)
	if err != nil {
		return nil, err
	}
	for j, i := range missing {
		results[i] = vectors[j]
		c.cache.Put(TaskDocument, sanitized[i], vectors[j])
	}
	return results, nil
}

func (c *Client) callWithRetry(ctx context.Context, apiKey string, texts []string, task TaskType) ([][]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		c.requests.Add(1)
		vectors, usage, err := c.provider.Embed(ctx, apiKey, texts, task)
		if err == nil {
			normalized, err := c.fitDimensions(vectors, len(texts))
			if err != nil {
				return nil, err
			}
			c.texts.Add(int64(len(texts)))
			c.tokens.Add(usage.TotalTokens)
			return normalized, nil
		}
		if !c.provider.IsRateLimit(err) {
			return nil, fmt.Errorf("failed to embed %d texts with %s: %w", len(texts), c.provider.Name(), err)
		}
		lastErr = err
		if attempt == c.maxAttempts {
			break
		}
		c.retries.Add(1)
		delay := c.backoffBase << uint(attempt-1)
		slog.Warn("embedding provider rate limited, backing off",
			"provider", c.provider.Name(),
			"attempt", attempt,
			"delay", delay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, errors.NewProviderExhausted(c.provider.Name(), c.maxAttempts, lastErr)
}

// fitDimensions validates the provider response shape and truncates
// each vector to the configured dimensionality by taking a length
// prefix, which is only sound for models trained for nested
// representations.
func (c *Client) fitDimensions(vectors [][]float32, want int) ([][]float32, error) {
	if len(vectors) != want {
		return nil, errors.NewProviderContract(c.provider.Name(),
			fmt.Sprintf("returned %d embeddings for %d inputs", len(vectors), want))
	}
	warned := false
	for i, vector := range vectors {
		switch {
		case len(vector) == 0:
			return nil, errors.NewProviderContract(c.provider.Name(),
				fmt.Sprintf("returned an empty embedding at index %d", i))
		case len(vector) < c.dimensions:
			return nil, errors.NewProviderContract(c.provider.Name(),
				fmt.Sprintf("returned %d dimensions, expected at least %d", len(vector), c.dimensions))
		case len(vector) > c.dimensions:
			if !warned {
				slog.Warn("embedding dimensions exceed target, truncating",
					"actual", len(vector),
					"target", c.dimensions,
					"provider", c.provider.Name())
				warned = true
			}
			vectors[i] = vector[:c.dimensions]
		}
	}
	return vectors, nil
}
