package cli

import (
	"github.com/spf13/cobra"

	"github.com/givelift/recall/internal/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Prune low-value memories",
		Long:  "With --owner, trims that owner down to the cap (or --keep), dropping the lowest value memories first. Without it, sweeps every owner for stale memories per the pruning policy.",
		Run:   runPrune,
	}

	cmd.Flags().StringP("owner", "o", "", "Owner to trim to the cap")
	cmd.Flags().Int("keep", -1, "How many memories to keep (default: the configured cap)")

	RootCmd.AddCommand(cmd)
}

func runPrune(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	owner, _ := cmd.Flags().GetString("owner")
	keep, _ := cmd.Flags().GetInt("keep")

	store, cfg := openStore(ctx)
	defer store.Close()

	// Prune and sweep only touch the store and the scoring policy, so
	// the service runs without embedding or extraction wiring here.
	svc := memory.NewService(store.Memories, nil, nil, nil, cfg.Scoring, memory.Options{
		Cap: cfg.MemoryCap,
	})

	if owner != "" {
		deleted, err := svc.Prune(ctx, owner, keep)
		if err != nil {
			exitErr("prune", err)
		}
		printJSON(map[string]any{"owner": owner, "deleted": deleted})
		return
	}

	deleted, err := svc.SweepStale(ctx)
	if err != nil {
		exitErr("sweep stale memories", err)
	}
	printJSON(map[string]any{"deleted": deleted})
}
