package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"work/pkg/handoff"
	"work/pkg/protocol"
	"work/pkg/reminder"
	"work/pkg/stage"
	"work/pkg/transcript"
)

// hookInput is the JSON payload Claude Code sends on stdin. Only the fields
// of the events work handles are decoded.
type hookInput struct {
	SessionID      string          `json:"session_id"`
	TranscriptPath string          `json:"transcript_path"`
	Cwd            string          `json:"cwd"`
	HookEventName  string          `json:"hook_event_name"`
	Source         string          `json:"source"`
	ToolName       string          `json:"tool_name"`
	ToolInput      json.RawMessage `json:"tool_input"`
	ToolResponse   json.RawMessage `json:"tool_response"`
}

type hookSpecificOutput struct {
	HookEventName     string `json:"hookEventName"`
	AdditionalContext string `json:"additionalContext"`
}

// hookResponse is written to stdout when the hook has context to add.
type hookResponse struct {
	HookSpecificOutput hookSpecificOutput `json:"hookSpecificOutput"`
}

// newHookCmd creates the "work hook" subcommand.
func newHookCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hook",
		Short: "Handle Claude Code hook events",
		Long: `Reads a hook event from stdin and updates the worker it belongs to.
The worker is taken from WORK_WORKER_ID, or from the event's cwd.

  {
    "hooks": {
      "SessionStart": [{"hooks": [{"type": "command", "command": "work hook"}]}],
      "PostToolUse":  [{"hooks": [{"type": "command", "command": "work hook"}]}]
    }
  }

The hook never fails: every problem is reported as a warning on stderr and
the exit status is always 0.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if f, ok := in.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: work hook expects a hook event on stdin")
				return nil
			}
			input, err := io.ReadAll(in)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: read stdin: %v\n", err)
				return nil
			}

			a, err := openApp(cmd)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
				return nil
			}
			defer a.Close()

			if out := a.handleHook(cmd.Context(), input, os.Getenv(protocol.WorkerIDEnv), time.Now()); out != nil {
				_, _ = cmd.OutOrStdout().Write(append(out, '\n'))
			}
			return nil
		},
	}
}

// handleHook processes one hook event and returns the JSON to print, or nil.
// It is fail-open: unknown events, unknown workers and store failures
// produce no output.
func (a *app) handleHook(ctx context.Context, input []byte, workerEnv string, now time.Time) []byte {
	var in hookInput
	if err := json.Unmarshal(input, &in); err != nil {
		a.warnf("parse hook event: %v", err)
		return nil
	}

	id, ok := a.hookWorker(ctx, workerEnv, in.Cwd)
	if !ok {
		return nil
	}

	var msg string
	switch in.HookEventName {
	case "PostToolUse":
		msg = a.postToolUse(ctx, id, in, now)
	case "SessionStart":
		msg = a.sessionStart(ctx, id, in)
	default:
		return nil
	}
	if msg == "" {
		return nil
	}

	out, err := json.Marshal(hookResponse{HookSpecificOutput: hookSpecificOutput{
		HookEventName:     in.HookEventName,
		AdditionalContext: msg,
	}})
	if err != nil {
		return nil
	}
	return out
}

// hookWorker finds the worker an event belongs to.
func (a *app) hookWorker(ctx context.Context, workerEnv, cwd string) (int64, bool) {
	if workerEnv != "" {
		id, err := strconv.ParseInt(workerEnv, 10, 64)
		if err != nil {
			a.warnf("%s=%q is not a worker id", protocol.WorkerIDEnv, workerEnv)
			return 0, false
		}
		return id, true
	}
	if cwd == "" {
		return 0, false
	}
	w, err := a.store.WorkerByWorktree(ctx, cwd)
	if err != nil {
		var nf *protocol.NotFoundError
		if !errors.As(err, &nf) {
			a.warnf("find worker for %s: %v", cwd, err)
		}
		return 0, false
	}
	return w.ID, true
}

// postToolUse records liveness, tracks the stage from Bash commands, and
// collects a context reminder and unread messages for the model.
func (a *app) postToolUse(ctx context.Context, id int64, in hookInput, now time.Time) string {
	if err := a.store.Heartbeat(ctx, id); err != nil {
		a.warnf("heartbeat: %v", err)
	}

	if in.ToolName == "Bash" {
		a.tracker(in.TranscriptPath).Observe(ctx, id, bashObservation(in))
	}

	var parts []string
	if r := a.contextReminder(ctx, id, in.TranscriptPath, now); r.Emitted() {
		parts = append(parts, r.Message)
	}

	msgs, err := a.store.Messages(ctx, id, true)
	if err != nil {
		a.warnf("read messages: %v", err)
	}
	for _, m := range msgs {
		parts = append(parts, fmt.Sprintf("Message (%s): %s", m.Type, m.Payload))
	}
	return strings.Join(parts, "\n")
}

// bashObservation reads the command and its output from a Bash tool event.
// The response is usually an object with stdout/stderr, but older clients
// send the output as a plain string.
func bashObservation(in hookInput) stage.Observation {
	obs := stage.Observation{Command: gjson.GetBytes(in.ToolInput, "command").String()}
	resp := gjson.ParseBytes(in.ToolResponse)
	if resp.Type == gjson.String {
		obs.Stdout = resp.String()
		return obs
	}
	obs.Stdout = resp.Get("stdout").String()
	obs.Stderr = resp.Get("stderr").String()
	obs.Interrupted = resp.Get("interrupted").Bool()
	if code := resp.Get("exit_code"); code.Exists() {
		obs.ExitCode = int(code.Int())
	}
	return obs
}

// contextReminder applies the reminder throttle to the transcript's current
// context percentage and persists the throttle time when a reminder fires.
func (a *app) contextReminder(ctx context.Context, id int64, transcriptPath string, now time.Time) reminder.Reminder {
	if transcriptPath == "" {
		return reminder.Reminder{}
	}
	pct, ok := transcript.PercentageFile(transcriptPath)
	if !ok {
		return reminder.Reminder{}
	}
	last, err := a.store.LastReminder(ctx, id)
	if err != nil {
		a.warnf("read reminder state: %v", err)
		return reminder.Reminder{}
	}
	r, next := reminder.MaybeWarn(pct, last, now, a.cfg.ReminderPolicy())
	if !r.Emitted() {
		return r
	}
	if err := a.store.SetLastReminder(ctx, id, next); err != nil {
		a.warnf("save reminder state: %v", err)
	}
	a.metrics.Reminder(ctx, r.Level.String())
	return r
}

// sessionStart binds the external session id to the worker's active
// session. When a rollover left a continuation waiting, its prompt is
// handed to the new session.
func (a *app) sessionStart(ctx context.Context, id int64, in hookInput) string {
	if in.SessionID == "" {
		return ""
	}
	prev, err := a.store.BindSession(ctx, id, in.SessionID)
	if err != nil {
		a.warnf("bind session: %v", err)
		return ""
	}
	if !prev.PendingContinuation() {
		return ""
	}
	art, err := handoff.ReadArtifact(prev.ContinuationPath)
	if err != nil {
		a.warnf("read continuation: %v", err)
		return ""
	}
	return art.Prompt()
}
