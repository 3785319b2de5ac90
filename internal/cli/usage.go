package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show an owner's stored footprint",
		Run:   runUsage,
	}

	cmd.Flags().StringP("owner", "o", "", "Owner id (required)")
	cmd.MarkFlagRequired("owner")

	RootCmd.AddCommand(cmd)
}

func runUsage(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	owner, _ := cmd.Flags().GetString("owner")

	store, _ := openStore(ctx)
	defer store.Close()

	usage, err := store.Usage(ctx, owner)
	if err != nil {
		exitErr("read usage", err)
	}
	printJSON(usage)
}
