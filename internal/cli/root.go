// Package cli implements the operator commands for the recall engine.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/givelift/recall/internal/config"
	"github.com/givelift/recall/internal/storage"
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "operator",
	Short: "Operations CLI for the recall retrieval and memory engine",
	Long:  "Schema migration, document ingestion, similarity search, memory maintenance, and quota inspection against a recall deployment.",
}

// openStore loads configuration and connects to the deployment's
// database. Commands that touch the store go through here.
func openStore(ctx context.Context) (*storage.Store, config.Config) {
	cfg := config.Load()
	store, err := storage.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		exitErr("connect to database", err)
	}
	return store, cfg
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}
