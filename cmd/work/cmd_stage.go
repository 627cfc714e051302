package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"work/pkg/protocol"
)

// newStageCmd creates the "work stage" subcommand.
func newStageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stage <worker> <stage>",
		Short: "Set a worker's stage by hand",
		Long:  "Sets the stage of a worker and logs a stage_change event.\nValid stages: " + stageNames() + ".",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			next := protocol.Stage(args[1])
			if !next.Valid() {
				return fmt.Errorf("Invalid stage %q (valid: %s)", args[1], stageNames()) //nolint:stylecheck // message matched by callers
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			id, err := a.resolveWorker(ctx, args[0])
			if err != nil {
				return err
			}
			w, err := a.store.Worker(ctx, id)
			if err != nil {
				return err
			}
			status := manualStatus(next, w.Status)
			if err := a.store.UpdateStage(ctx, id, next, status); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "worker %d: %s -> %s (%s)\n", id, w.Stage, next, status)
			return nil
		},
	}
}

// manualStatus is the status that goes with a hand-set stage: done and
// blocked carry their own status, and a worker leaving blocked or starting
// is running again. Anything else keeps its status.
func manualStatus(next protocol.Stage, current protocol.Status) protocol.Status {
	switch {
	case next == protocol.StageDone:
		return protocol.StatusDone
	case next == protocol.StageBlocked:
		return protocol.StatusBlocked
	case current == protocol.StatusBlocked || current == protocol.StatusStarting:
		return protocol.StatusRunning
	default:
		return current
	}
}

func stageNames() string {
	names := make([]string, len(protocol.Stages))
	for i, s := range protocol.Stages {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

// newFailCmd creates the "work fail" subcommand.
func newFailCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "fail <worker>",
		Short: "Mark a worker failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			id, err := a.resolveWorker(ctx, args[0])
			if err != nil {
				return err
			}
			if reason == "" {
				reason = "marked failed"
			}
			if err := a.store.SetStatus(ctx, id, protocol.StatusFailed, protocol.EventFailed, reason); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "worker %d failed: %s\n", id, reason)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "why the worker failed")

	return cmd
}

// newSendCmd creates the "work send" subcommand.
func newSendCmd() *cobra.Command {
	var msgType string

	cmd := &cobra.Command{
		Use:   "send <worker> <text>...",
		Short: "Queue a message for a worker",
		Long:  "Queues a message that is delivered to the worker's session\nafter its next tool call.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			id, err := a.resolveWorker(ctx, args[0])
			if err != nil {
				return err
			}
			if err := a.store.SendMessage(ctx, id, msgType, strings.Join(args[1:], " ")); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued %s for worker %d\n", msgType, id)
			return nil
		},
	}

	cmd.Flags().StringVar(&msgType, "type", "note", "message type")

	return cmd
}
