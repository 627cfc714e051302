// Package shell runs the user-configured hook commands (archival,
// notification) through /bin/sh.
package shell

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Runner abstracts command execution for testability.
// Production implementation uses os/exec; tests provide a fake.
type Runner interface {
	Run(ctx context.Context, command string, env []string) ([]byte, error)
}

// ExecRunner implements Runner with `sh -c`. Env entries are appended to the
// current process environment.
type ExecRunner struct {
	// Timeout bounds each run. Zero means only ctx bounds it.
	Timeout time.Duration
}

// Run executes command and returns its combined output.
func (r ExecRunner) Run(ctx context.Context, command string, env []string) ([]byte, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Env = append(os.Environ(), env...)
	cmd.WaitDelay = time.Second
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return out, fmt.Errorf("%s: %w", command, ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, fmt.Errorf("%s: %w: %s", command, err, strings.TrimSpace(string(out)))
		}
		return out, fmt.Errorf("%s: %w", command, err)
	}
	return out, nil
}
