package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"work/internal/appversion"
	"work/pkg/config"
	"work/pkg/handoff"
	"work/pkg/issue"
	"work/pkg/notify"
	"work/pkg/protocol"
	"work/pkg/shell"
	"work/pkg/stage"
	"work/pkg/store"
	"work/pkg/telemetry"
	"work/pkg/transcript"
)

// notifyTimeout bounds one notify command run.
const notifyTimeout = 10 * time.Second

// app bundles what every command needs: resolved paths, the repo config,
// the store and the telemetry recorder.
type app struct {
	paths    *Paths
	cfg      config.Config
	store    *store.Store
	metrics  telemetry.Recorder
	shutdown func(context.Context) error
	stderr   io.Writer
}

// openApp resolves paths, loads .work.toml from the repo enclosing the
// working directory and opens the store. Config problems only warn.
func openApp(cmd *cobra.Command) (*app, error) {
	paths, err := ResolvePaths()
	if err != nil {
		return nil, fmt.Errorf("resolve paths: %w", err)
	}

	a := &app{paths: paths, stderr: cmd.ErrOrStderr()}

	cwd, _ := os.Getwd()
	cfg, err := config.Load(config.FindRepoRoot(cwd))
	if err != nil {
		a.warnf("%v (using defaults)", err)
	}
	a.cfg = cfg

	s, err := openStore(cmd.Context(), paths.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	a.store = s

	a.metrics, a.shutdown = telemetry.Open(cmd.Context(), telemetry.LoadConfig(), appversion.String(), a.warnf)
	return a, nil
}

// Close flushes telemetry and closes the database.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdown(ctx); err != nil {
		a.warnf("telemetry shutdown: %v", err)
	}
	_ = a.store.DB().Close()
}

// warnf prints a non-fatal problem to stderr.
func (a *app) warnf(format string, args ...any) {
	fmt.Fprintf(a.stderr, "warning: "+format+"\n", args...)
}

func (a *app) locator() transcript.Locator {
	return transcript.Locator{ProjectsDir: a.paths.projectsDir(a.cfg.ClaudeProjectsDir)}
}

func (a *app) notifier() notify.Notifier {
	if a.cfg.NotifyCommand == "" {
		return notify.WriterNotifier{W: a.stderr}
	}
	return notify.NewCommandNotifier(a.cfg.NotifyCommand, shell.ExecRunner{Timeout: notifyTimeout})
}

func (a *app) archiver() handoff.Archiver {
	if a.cfg.ArchiveCommand == "" {
		return handoff.NopArchiver{}
	}
	return handoff.CommandArchiver{
		Command: a.cfg.ArchiveCommand,
		Timeout: a.cfg.ArchiveTimeout(),
		Runner:  shell.ExecRunner{},
	}
}

func (a *app) coordinator() *handoff.Coordinator {
	return &handoff.Coordinator{
		Store:            a.store,
		Locator:          a.locator(),
		Archiver:         a.archiver(),
		Metrics:          a.metrics,
		Warn:             a.warnf,
		ContinuationsDir: a.paths.ContinuationsDir,
		TrimOptions: transcript.Options{
			Threshold:   a.cfg.TrimThresholdChars,
			TargetTools: a.cfg.TrimTargetTools,
		},
	}
}

// tracker returns the stage tracker. transcriptPath, when the caller knows
// it, is read for the context percentage recorded when a merge ends the
// session.
func (a *app) tracker(transcriptPath string) *stage.Tracker {
	return &stage.Tracker{
		Store:    a.store,
		Notifier: a.notifier(),
		Metrics:  a.metrics,
		Warn:     a.warnf,
		ContextPercent: func(ctx context.Context, w *protocol.Worker) int {
			return a.contextPercent(ctx, w, transcriptPath)
		},
	}
}

// contextPercent reads the worker's context usage from path, or from its
// active session's transcript when path is empty. Unknown counts as 0.
func (a *app) contextPercent(ctx context.Context, w *protocol.Worker, path string) int {
	if path == "" {
		sess, err := a.store.ActiveSession(ctx, w.ID)
		if err != nil {
			return 0
		}
		if path, err = a.locator().Resolve(w.WorktreePath, sess.SessionID); err != nil {
			return 0
		}
	}
	pct, _ := transcript.PercentageFile(path)
	return pct
}

// resolveWorker turns a command-line worker reference into a worker id.
// A plain number is a worker id, falling back to an issue number when no
// such worker exists; "repo:42", JIRA keys and GitHub URLs are issue lookups.
func (a *app) resolveWorker(ctx context.Context, arg string) (int64, error) {
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		_, werr := a.store.Worker(ctx, id)
		if werr == nil {
			return id, nil
		}
		var nf *protocol.NotFoundError
		if !errors.As(werr, &nf) {
			return 0, werr
		}
	}
	ref, ok := issue.ParseArg(arg)
	if !ok {
		return 0, fmt.Errorf("not a worker id or issue reference: %q", arg)
	}
	return a.store.FindWorkerByIssue(ctx, ref.Key(), ref.Repo)
}
