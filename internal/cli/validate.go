package cli

import (
	"net/url"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the deployment configuration and database",
		Long:  "Pings the database, verifies the pgvector extension, and echoes the effective configuration with credentials masked.",
		Run:   runValidate,
	}

	RootCmd.AddCommand(cmd)
}

func runValidate(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()

	store, cfg := openStore(ctx)
	defer store.Close()

	if err := store.Ping(ctx); err != nil {
		exitErr("ping database", err)
	}
	hasVector, err := store.HasVectorExtension(ctx)
	if err != nil {
		exitErr("check pgvector extension", err)
	}

	printJSON(map[string]any{
		"database":             maskDatabaseURL(cfg.DatabaseURL),
		"pgvector":             hasVector,
		"embedding_provider":   cfg.EmbeddingProvider,
		"embedding_model":      cfg.EmbeddingModel,
		"embedding_dimensions": cfg.EmbeddingDimensions,
		"fallback_provider":    cfg.FallbackProvider,
		"extraction_provider":  cfg.ExtractionProvider,
		"extraction_model":     cfg.ExtractionModel,
		"converter_configured": cfg.ConverterURL != "",
		"memory_cap":           cfg.MemoryCap,
		"max_documents":        cfg.MaxDocuments,
		"max_storage_bytes":    cfg.MaxStorageBytes,
		"max_daily_uploads":    cfg.MaxDailyUploads,
	})
}

// maskDatabaseURL strips the password from a connection string before
// it is echoed anywhere.
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "(unparseable)"
	}
	return u.Redacted()
}
