package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "wattflow",
		Short: "Sample power sensors and stream their readings",
		Long: `wattflow polls RAPL, MSR, OPC UA and simulated power sensors on
individual deadlines and writes an ordered stream of samples, errors and
markers to a framed file or TimescaleDB.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newRunCmd(),
		newValidateCmd(),
		newTemplateCmd(),
		newDumpCmd(),
		newStatsCmd(),
	)
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetVersionTemplate(fmt.Sprintf("wattflow version %s\n", version))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "wattflow: %v\n", err)
		os.Exit(1)
	}
}
