package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"work/pkg/transcript"
)

// newContextCmd creates the "work context" subcommand.
func newContextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "context <transcript>",
		Short: "Print a transcript's context usage",
		Long:  "Prints the context percentage recorded last in a session transcript,\nor \"unknown\" when the transcript has none.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pct, ok := transcript.PercentageFile(args[0])
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "unknown")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d%%\n", pct)
			return nil
		},
	}
}
