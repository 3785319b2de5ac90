package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func init() {
	memoriesCmd := &cobra.Command{
		Use:   "memories",
		Short: "Inspect and delete stored memories",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List an owner's memories, newest first",
		Run:   runMemoriesList,
	}
	listCmd.Flags().StringP("owner", "o", "", "Owner id (required)")
	listCmd.Flags().String("category", "", "Filter by category")
	listCmd.Flags().IntP("limit", "l", 50, "Max results")
	listCmd.Flags().Int("offset", 0, "Pagination offset")
	listCmd.MarkFlagRequired("owner")

	rmCmd := &cobra.Command{
		Use:   "rm [id]",
		Short: "Delete one memory",
		Args:  cobra.ExactArgs(1),
		Run:   runMemoriesRm,
	}
	rmCmd.Flags().StringP("owner", "o", "", "Owner id (required)")
	rmCmd.MarkFlagRequired("owner")

	memoriesCmd.AddCommand(listCmd, rmCmd)
	RootCmd.AddCommand(memoriesCmd)
}

func runMemoriesList(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	owner, _ := cmd.Flags().GetString("owner")
	category, _ := cmd.Flags().GetString("category")
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")

	store, _ := openStore(ctx)
	defer store.Close()

	memories, err := store.Memories.List(ctx, owner, category, limit, offset)
	if err != nil {
		exitErr("list memories", err)
	}
	if len(memories) == 0 {
		fmt.Println("[]")
		return
	}
	printJSON(memories)
}

func runMemoriesRm(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	owner, _ := cmd.Flags().GetString("owner")

	id, err := uuid.Parse(args[0])
	if err != nil {
		exitErr("parse memory id", err)
	}

	store, _ := openStore(ctx)
	defer store.Close()

	if err := store.Memories.Delete(ctx, owner, id); err != nil {
		exitErr("delete memory", err)
	}
	fmt.Printf("{\"ok\":true,\"id\":%q}\n", id)
}
