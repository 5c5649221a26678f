package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "calllogd",
		Short:         "Method call logging daemon",
		Long:          "calllogd hosts the call logging engine with its backends, diagnostics API and retention jobs.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newServeCmd(), newArchiveCmd(), newOverridesCmd())
	return rootCmd
}
