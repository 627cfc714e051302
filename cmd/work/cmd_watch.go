package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"work/pkg/reminder"
	"work/pkg/watch"
)

// newWatchCmd creates the "work watch" subcommand.
func newWatchCmd() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch <worker>...",
		Short: "Watch workers' transcripts and print context reminders",
		Long:  "Follows the active transcript of each worker and prints a reminder\nwhen its context usage crosses a threshold. Stops on Ctrl-C.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := &lockedWriter{w: cmd.OutOrStdout()}
			var watchers []*watch.Watcher
			for _, arg := range args {
				wt, err := a.transcriptWatcher(ctx, arg, out)
				if err != nil {
					return err
				}
				wt.Debounce = debounce
				watchers = append(watchers, wt)
				fmt.Fprintf(out, "watching %s\n", wt.Path)
			}
			return watch.All(ctx, watchers)
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 200*time.Millisecond, "quiet period after a write before sampling")

	return cmd
}

// transcriptWatcher builds a watcher over the worker's active transcript
// whose samples go through the reminder throttle.
func (a *app) transcriptWatcher(ctx context.Context, arg string, out io.Writer) (*watch.Watcher, error) {
	id, err := a.resolveWorker(ctx, arg)
	if err != nil {
		return nil, err
	}
	w, err := a.store.Worker(ctx, id)
	if err != nil {
		return nil, err
	}
	sess, err := a.store.ActiveSession(ctx, id)
	if err != nil {
		return nil, err
	}
	path, err := a.locator().Resolve(w.WorktreePath, sess.SessionID)
	if err != nil {
		return nil, err
	}

	policy := a.cfg.ReminderPolicy()
	last, err := a.store.LastReminder(ctx, id)
	if err != nil {
		return nil, err
	}
	issueRef := w.IssueRef()

	return &watch.Watcher{
		Path: path,
		OnSample: func(ctx context.Context, s watch.Sample) {
			if !s.Known {
				return
			}
			r, next := reminder.MaybeWarn(s.Percent, last, time.Now(), policy)
			if !r.Emitted() {
				return
			}
			last = next
			if err := a.store.SetLastReminder(ctx, id, next); err != nil {
				a.warnf("save reminder state: %v", err)
			}
			a.metrics.Reminder(ctx, r.Level.String())
			fmt.Fprintf(out, "[%s] worker %d (%s): %s\n", r.Level, id, issueRef, r.Message)
		},
	}, nil
}

// lockedWriter serializes writes from several watcher goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
