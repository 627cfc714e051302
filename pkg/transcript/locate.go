package transcript

import (
	"os"
	"path/filepath"
	"strings"

	"work/pkg/protocol"
)

// Locator finds session transcripts under the Claude projects directory,
// where each working directory gets its own folder named after its path.
type Locator struct {
	// ProjectsDir is the root, usually ~/.claude/projects.
	ProjectsDir string
}

// ProjectKey returns the folder name used for a working directory: every
// character other than an ASCII letter or digit becomes '-'.
func ProjectKey(dir string) string {
	var b strings.Builder
	b.Grow(len(dir))
	for _, r := range dir {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

// ProjectDir returns the transcript folder for a working directory.
func (l Locator) ProjectDir(worktree string) string {
	return filepath.Join(l.ProjectsDir, ProjectKey(worktree))
}

// Resolve returns the transcript of sessionID for worktree. When sessionID is
// empty or has no transcript, the most recently modified .jsonl in the
// project folder is used instead. The returned path is absolute, since it
// ends up in truncation notices and continuation artifacts.
func (l Locator) Resolve(worktree, sessionID string) (string, error) {
	dir := l.ProjectDir(worktree)
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	if sessionID != "" {
		path := filepath.Join(dir, sessionID+".jsonl")
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", &protocol.NotFoundError{Kind: "transcript", Key: dir}
	}
	var (
		newest string
		mtime  int64
	)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jsonl" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if m := info.ModTime().UnixNano(); newest == "" || m > mtime {
			newest, mtime = filepath.Join(dir, e.Name()), m
		}
	}
	if newest == "" {
		return "", &protocol.NotFoundError{Kind: "transcript", Key: dir}
	}
	return newest, nil
}
