package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Long:  "Applies the documents, chunks, and memories schema, including pgvector columns and indexes, at the configured embedding dimensionality.",
		Run:   runMigrate,
	}

	RootCmd.AddCommand(cmd)
}

func runMigrate(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()

	store, cfg := openStore(ctx)
	defer store.Close()

	if err := store.Migrate(ctx, cfg.EmbeddingDimensions); err != nil {
		exitErr("migrate", err)
	}
	fmt.Printf("schema ready (vector dimensions: %d)\n", cfg.EmbeddingDimensions)
}
