// Package notify delivers worker notifications (completion, blocked) to the
// human running the workers.
package notify

import (
	"context"
	"fmt"
	"io"
	"strings"

	"work/pkg/shell"
)

// Kind classifies a notification.
type Kind string

// Notification kinds.
const (
	KindComplete Kind = "complete"
	KindBlocked  Kind = "blocked"
)

// Notification is one message about one worker.
type Notification struct {
	WorkerID int64
	Issue    string
	Kind     Kind
	Body     string
}

// Title is the one-line heading, e.g. "work: #42 complete".
func (n Notification) Title() string {
	return fmt.Sprintf("work: %s %s", n.Issue, n.Kind)
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// CommandNotifier runs a shell command per notification. The command sees
// the notification through WORK_NOTIFY_* environment variables.
type CommandNotifier struct {
	command string
	runner  shell.Runner
}

// NewCommandNotifier creates a CommandNotifier for command.
func NewCommandNotifier(command string, runner shell.Runner) *CommandNotifier {
	return &CommandNotifier{command: command, runner: runner}
}

// Notify runs the command.
func (c *CommandNotifier) Notify(ctx context.Context, n Notification) error {
	env := []string{
		"WORK_NOTIFY_TITLE=" + singleLine(n.Title()),
		"WORK_NOTIFY_BODY=" + singleLine(n.Body),
		"WORK_NOTIFY_KIND=" + string(n.Kind),
		fmt.Sprintf("WORK_NOTIFY_WORKER=%d", n.WorkerID),
		"WORK_NOTIFY_ISSUE=" + n.Issue,
	}
	if _, err := c.runner.Run(ctx, c.command, env); err != nil {
		return fmt.Errorf("notify %s: %w", n.Kind, err)
	}
	return nil
}

// WriterNotifier prints notifications, one per line. Used when no notify
// command is configured.
type WriterNotifier struct {
	W io.Writer
}

// Notify writes the notification.
func (w WriterNotifier) Notify(_ context.Context, n Notification) error {
	_, err := fmt.Fprintf(w.W, "%s: %s\n", n.Title(), singleLine(n.Body))
	return err
}

// singleLine keeps notification text on one line.
func singleLine(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.ReplaceAll(s, "\n", " ")
}
