package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"work/pkg/eventlog"
	"work/pkg/protocol"
)

// logsConfig holds configuration for the logs command.
type logsConfig struct {
	tail      int
	eventType string
	replay    bool
}

// newLogsCmd creates the "work logs" subcommand.
func newLogsCmd() *cobra.Command {
	var cfg logsConfig

	cmd := &cobra.Command{
		Use:   "logs [worker]",
		Short: "Show worker events",
		Long:  "Displays events from the event log, optionally for one worker.\nWith --replay, rebuilds the worker's stage history from the log.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			opts := eventlog.QueryOpts{EventType: cfg.eventType, Limit: cfg.tail}
			if len(args) == 1 {
				if opts.WorkerID, err = a.resolveWorker(ctx, args[0]); err != nil {
					return err
				}
			}
			if cfg.replay {
				if opts.WorkerID == 0 {
					return fmt.Errorf("--replay requires a worker")
				}
				opts.EventType, opts.Limit = "", 0
			}

			r, err := eventlog.NewReader(a.paths.DBPath)
			if err != nil {
				return fmt.Errorf("open event log: %w", err)
			}
			defer r.Close()

			w := cmd.OutOrStdout()
			if cfg.replay {
				return printReplay(ctx, r, w, opts)
			}
			return printLogs(ctx, r, w, opts)
		},
	}

	cmd.Flags().IntVar(&cfg.tail, "tail", 20, "number of recent events to show (0 for all)")
	cmd.Flags().StringVar(&cfg.eventType, "type", "", "only show events of this type")
	cmd.Flags().BoolVar(&cfg.replay, "replay", false, "replay the worker's stage history")

	return cmd
}

// printLogs displays matching events oldest first.
func printLogs(ctx context.Context, r *eventlog.Reader, w io.Writer, opts eventlog.QueryOpts) error {
	events, err := r.Query(ctx, opts)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(w, "no events found")
		return nil
	}
	for _, e := range events {
		formatEvent(w, e)
	}
	return nil
}

// printReplay rebuilds the stage history of one worker.
func printReplay(ctx context.Context, r *eventlog.Reader, w io.Writer, opts eventlog.QueryOpts) error {
	events, err := r.Query(ctx, opts)
	if err != nil {
		return err
	}
	state, steps := eventlog.Replay(events)

	byID := make(map[int64]eventlog.Event, len(events))
	for _, e := range events {
		byID[e.ID] = e
	}
	for _, st := range steps {
		fmt.Fprintf(w, "%s | %s -> %s (%s)\n",
			byID[st.EventID].CreatedAt.Format(protocol.TimeLayout), st.From, st.To, st.Status)
	}
	fmt.Fprintf(w, "current: %s (%s)\n", state.Stage, state.Status)
	return nil
}

// formatEvent writes a single event in a human-readable format.
// Format: timestamp | worker_id | event_type | message
func formatEvent(w io.Writer, e eventlog.Event) {
	fmt.Fprintf(w, "%s | %-6d | %-18s | %s\n",
		e.CreatedAt.Format(protocol.TimeLayout), e.WorkerID, e.Type, e.Message)
}
