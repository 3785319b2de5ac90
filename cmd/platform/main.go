// Package main boots the recall engine's HTTP service: storage,
// embedding providers, the ingestion pipeline, the memory lifecycle,
// and the retrieval orchestrator behind the Fiber API.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/givelift/recall/internal/background"
	"github.com/givelift/recall/internal/chunker"
	"github.com/givelift/recall/internal/config"
	"github.com/givelift/recall/internal/docproc"
	"github.com/givelift/recall/internal/embedding"
	"github.com/givelift/recall/internal/extractor"
	"github.com/givelift/recall/internal/ingest"
	"github.com/givelift/recall/internal/memory"
	"github.com/givelift/recall/internal/models"
	"github.com/givelift/recall/internal/retrieval"
	"github.com/givelift/recall/internal/storage"
	"github.com/givelift/recall/internal/vectorindex"
	"github.com/givelift/recall/internal/web"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	_ = godotenv.Load()
	cfg := config.Load()
	slog.Info("configuration loaded",
		"http_addr", cfg.HTTPAddr,
		"embedding_provider", cfg.EmbeddingProvider,
		"embedding_model", cfg.EmbeddingModel,
		"extraction_provider", cfg.ExtractionProvider)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx, cfg.EmbeddingDimensions); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	embedder, err := buildEmbedder(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to build embedding client: %v", err)
	}

	generator, err := models.New(ctx, cfg.ExtractionProvider, platformKey(cfg, cfg.ExtractionProvider), cfg.ExtractionModel)
	if err != nil {
		log.Fatalf("failed to build extraction model: %v", err)
	}

	tasks := background.NewTaskSet(ctx, 32)

	candidates := extractor.New(generator, extractor.Options{
		MinAutoImportance:  cfg.MinAutoImportance,
		RecentTurnWindow:   cfg.RecentTurnWindow,
		MaxContentLength:   cfg.MaxMemoryLength,
		ExplicitImportance: cfg.Scoring.ExplicitImportance,
	})

	memoryService := memory.NewService(store.Memories, embedder, candidates, tasks, cfg.Scoring, memory.Options{
		Cap:              cfg.MemoryCap,
		MaxContentLength: cfg.MaxMemoryLength,
	})

	gateway := vectorindex.NewGateway(store.Memories, store.Documents, store)

	orchestrator := retrieval.NewOrchestrator(embedder, gateway, memoryService, cfg.Scoring, retrieval.Options{
		TopK:                cfg.RetrievalTopK,
		SimilarityThreshold: cfg.SimilarityThreshold,
		DedupThreshold:      cfg.DedupThreshold,
		Timeout:             cfg.RetrievalTimeout,
	})
	memoryService.SetDuplicateChecker(orchestrator)

	tokenizer, err := chunker.NewTiktoken(cfg.TokenEncoding)
	if err != nil {
		log.Fatalf("failed to load token encoding: %v", err)
	}
	splitter, err := chunker.New(tokenizer, chunker.Options{
		ChunkSize: cfg.ChunkSize,
		Overlap:   cfg.ChunkOverlap,
	})
	if err != nil {
		log.Fatalf("invalid chunking geometry: %v", err)
	}

	var converter docproc.Converter
	if cfg.ConverterURL != "" {
		converter = docproc.NewHTTPConverter(cfg.ConverterURL, 0)
	} else {
		slog.Warn("CONVERTER_URL not set, PDF uploads will be rejected")
	}
	processor := docproc.NewProcessor(converter)

	quota := vectorindex.NewQuotaChecker(store.Documents, vectorindex.QuotaPolicy{
		MaxDocuments:    cfg.MaxDocuments,
		MaxStorageBytes: cfg.MaxStorageBytes,
		MaxDailyUploads: cfg.MaxDailyUploads,
	})

	ingestService := ingest.NewService(store.Documents, quota, processor, splitter, embedder, tasks, ingest.Options{})

	server := web.NewServer(cfg.HTTPAddr, web.Services{
		Documents: ingestService,
		Usage:     gateway,
		Memories:  memoryService,
		Searcher:  orchestrator,
		Injector:  orchestrator,
		Capturer:  memoryService,
		Tasks:     tasks,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Listen()
	}()
	slog.Info("http service listening", "addr", cfg.HTTPAddr)

	select {
	case err := <-errCh:
		log.Fatalf("http server failed: %v", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	tasks.Wait()
	slog.Info("shutdown complete")
}

// buildEmbedder assembles the primary provider and, when a distinct
// fallback provider is configured, chains the two.
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

func platformKey(cfg config.Config, provider string) string {
	switch provider {
	case "anthropic":
		return cfg.AnthropicAPIKey
	case "gemini", "google":
		return cfg.GoogleAPIKey
	default:
		return cfg.OpenAIAPIKey
	}
}
