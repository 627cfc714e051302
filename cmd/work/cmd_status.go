package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"work/pkg/protocol"
	"work/pkg/store"
)

// palette colours stages and statuses in `work status`.
type palette struct {
	Active  lipgloss.Style
	Waiting lipgloss.Style
	Done    lipgloss.Style
	Blocked lipgloss.Style
	Muted   lipgloss.Style
}

func newPalette(color bool) palette {
	if !color {
		plain := lipgloss.NewStyle()
		return palette{plain, plain, plain, plain, plain}
	}
	return palette{
		Active:  lipgloss.NewStyle().Foreground(lipgloss.Color("12")), // Blue
		Waiting: lipgloss.NewStyle().Foreground(lipgloss.Color("11")), // Yellow
		Done:    lipgloss.NewStyle().Foreground(lipgloss.Color("10")), // Green
		Blocked: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),  // Red
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

func (p palette) stage(s protocol.Stage) string {
	switch s {
	case protocol.StageDone:
		return p.Done.Render(string(s))
	case protocol.StageBlocked, protocol.StageMergeConflicts:
		return p.Blocked.Render(string(s))
	case protocol.StageCIWaiting, protocol.StageReviewWaiting:
		return p.Waiting.Render(string(s))
	default:
		return p.Active.Render(string(s))
	}
}

func (p palette) status(s protocol.Status) string {
	switch s {
	case protocol.StatusDone:
		return p.Done.Render(string(s))
	case protocol.StatusBlocked, protocol.StatusFailed:
		return p.Blocked.Render(string(s))
	case protocol.StatusStarting:
		return p.Muted.Render(string(s))
	default:
		return string(s)
	}
}

// newStatusCmd creates the "work status" subcommand.
func newStatusCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "List workers",
		Long:  "Lists workers with their stage, status, PR and current session.\nFinished and failed workers are hidden unless --all is given.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			color := false
			if f, ok := out.(*os.File); ok {
				color = isatty.IsTerminal(f.Fd())
			}
			return printStatus(cmd.Context(), a.store, out, newPalette(color), all)
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "include done and failed workers")

	return cmd
}

// printStatus writes one row per worker.
func printStatus(ctx context.Context, s *store.Store, w io.Writer, p palette, all bool) error {
	workers, err := s.ListWorkers(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tISSUE\tSTAGE\tSTATUS\tPR\tSESSION\tHEARTBEAT")
	shown := 0
	for _, wk := range workers {
		if !all && wk.Status.Terminal() {
			continue
		}
		shown++
		session := "-"
		if sess, err := s.ActiveSession(ctx, wk.ID); err == nil {
			session = fmt.Sprint(sess.SessionNumber)
			if sess.PendingContinuation() {
				session += "*"
			}
		}
		pr := "-"
		if wk.PRNumber != 0 {
			pr = fmt.Sprintf("#%d", wk.PRNumber)
		}
		heartbeat := wk.HeartbeatAt
		if heartbeat == "" {
			heartbeat = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			wk.ID, wk.IssueRef(), p.stage(wk.Stage), p.status(wk.Status), pr, session, p.Muted.Render(heartbeat))
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	if shown == 0 {
		fmt.Fprintln(w, "no workers")
	}
	return nil
}
