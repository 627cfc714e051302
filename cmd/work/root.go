package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"work/internal/appversion"
)

// newRootCmd creates the root work command with all subcommands attached.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "work",
		Short:         "Track worker stages and manage session context",
		Long:          "work tracks AI coding workers bound to issues and PRs.\nIt follows each worker's stage from its tool activity and keeps its\nconversation context in budget with trims and rollovers.",
		Version:       fmt.Sprintf("work %s", appversion.String()),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.AddCommand(
		newHookCmd(),
		newRegisterCmd(),
		newStageCmd(),
		newFailCmd(),
		newSendCmd(),
		newMessagesCmd(),
		newStatusCmd(),
		newLogsCmd(),
		newContextCmd(),
		newTrimCmd(),
		newRolloverCmd(),
		newResumeCmd(),
		newWatchCmd(),
		newReviewCmd(),
		newDoneCmd(),
	)

	return cmd
}
