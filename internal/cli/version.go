package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

func init() {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the operator version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("operator %s (%s)\n", Version, runtime.Version())
		},
	}

	RootCmd.AddCommand(cmd)
}
