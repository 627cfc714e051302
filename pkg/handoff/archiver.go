package handoff

import (
	"context"
	"fmt"
	"time"

	"work/pkg/shell"
)

// Archiver copies a transcript somewhere durable before its session ends.
// Archival is best effort: the transcript itself is never deleted.
type Archiver interface {
	Sync(ctx context.Context, transcriptPath string) error
}

// NopArchiver archives nothing.
type NopArchiver struct{}

// Sync implements Archiver.
func (NopArchiver) Sync(context.Context, string) error { return nil }

// CommandArchiver runs the configured archive command with the transcript
// path in WORK_TRANSCRIPT, bounded by Timeout.
type CommandArchiver struct {
	Command string
	Timeout time.Duration
	Runner  shell.Runner
}

// Sync implements Archiver.
func (a CommandArchiver) Sync(ctx context.Context, transcriptPath string) error {
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}
	if _, err := a.Runner.Run(ctx, a.Command, []string{"WORK_TRANSCRIPT=" + transcriptPath}); err != nil {
		return fmt.Errorf("archive %s: %w", transcriptPath, err)
	}
	return nil
}
