package cli

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/givelift/recall/internal/storage"
	"github.com/givelift/recall/internal/types"
	"github.com/givelift/recall/internal/vectorindex"
)

// hydratePageSize is the batch size for rebuilding a local index.
const hydratePageSize = 500

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Similarity-search memories and document chunks",
		Long:  "Embeds the query with platform credentials and searches the owner's memories and chunks, best match first.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}

	cmd.Flags().StringP("owner", "o", "", "Owner id (required)")
	cmd.Flags().IntP("limit", "l", 0, "Max results per kind (default: configured top-k)")
	cmd.Flags().Float64("threshold", -1, "Similarity floor (default: configured threshold)")
	cmd.Flags().String("type", "", "Memory type filter: auto or explicit")
	cmd.Flags().Float64("min-importance", 0, "Minimum memory importance")
	cmd.Flags().String("document", "", "Restrict chunk results to one document id")
	cmd.Flags().Bool("memories-only", false, "Skip document chunks")
	cmd.Flags().Bool("documents-only", false, "Skip memories")
	cmd.Flags().Bool("local", false, "Query an in-process index hydrated from the store (works without pgvector)")

	cmd.MarkFlagRequired("owner")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	owner, _ := cmd.Flags().GetString("owner")
	limit, _ := cmd.Flags().GetInt("limit")
	threshold, _ := cmd.Flags().GetFloat64("threshold")
	memType, _ := cmd.Flags().GetString("type")
	minImportance, _ := cmd.Flags().GetFloat64("min-importance")
	document, _ := cmd.Flags().GetString("document")
	memoriesOnly, _ := cmd.Flags().GetBool("memories-only")
	documentsOnly, _ := cmd.Flags().GetBool("documents-only")
	local, _ := cmd.Flags().GetBool("local")
	query := strings.Join(args, " ")

	store, cfg := openStore(ctx)
	defer store.Close()

	if limit <= 0 {
		limit = cfg.RetrievalTopK
	}
	if threshold < 0 {
		threshold = cfg.SimilarityThreshold
	}

	embedder, err := buildEmbedder(ctx, cfg)
	if err != nil {
		exitErr("build embedding client", err)
	}
	vector, err := embedder.EmbedQuery(ctx, "", query)
	if err != nil {
		exitErr("embed query", err)
	}

	gateway := vectorindex.NewGateway(store.Memories, store.Documents, store)
	if local {
		index, err := hydrateLocalIndex(ctx, store, owner)
		if err != nil {
			exitErr("hydrate local index", err)
		}
		gateway = vectorindex.NewGateway(index, index, store)
	}

	out := map[string]any{}

	if !documentsOnly {
		memories, err := gateway.SearchMemories(ctx, owner, vector, limit, threshold, types.MemoryFilter{
			Type:          memType,
			MinImportance: minImportance,
		})
		if err != nil {
			exitErr("search memories", err)
		}
		out["memories"] = memories
	}

	if !memoriesOnly {
		var filter types.ChunkFilter
		if document != "" {
			id, err := uuid.Parse(document)
			if err != nil {
				exitErr("parse document id", err)
			}
			filter.DocumentIDs = []uuid.UUID{id}
		}
		chunks, err := gateway.SearchChunks(ctx, owner, vector, limit, threshold, filter)
		if err != nil {
			exitErr("search chunks", err)
		}
		out["chunks"] = chunks
	}

	printJSON(out)
}

// hydrateLocalIndex copies the owner's stored vectors into a chromem
// index so searches can run without the pgvector extension.
func hydrateLocalIndex(ctx context.Context, store *storage.Store, ownerID string) (*vectorindex.ChromemIndex, error) {
	index := vectorindex.NewChromemIndex()

	offset := 0
	for {
		page, err := store.Memories.ListWithEmbeddings(ctx, ownerID, hydratePageSize, offset)
		if err != nil {
			return nil, err
		}
		for _, mem := range page {
			if len(mem.Embedding) == 0 {
				continue
			}
			if err := index.AddMemory(ctx, mem); err != nil {
				return nil, err
			}
		}
		if len(page) < hydratePageSize {
			break
		}
		offset += len(page)
	}

	offset = 0
	for {
		page, err := store.Documents.ListChunksByOwner(ctx, ownerID, hydratePageSize, offset)
		if err != nil {
			return nil, err
		}
		for _, chunk := range page {
			if len(chunk.Embedding) == 0 {
				continue
			}
			if err := index.AddChunk(ctx, chunk); err != nil {
				return nil, err
			}
		}
		if len(page) < hydratePageSize {
			break
		}
		offset += len(page)
	}

	return index, nil
}
