package main

import (
	"fmt"
	"os"
	"path/filepath"

	"work/pkg/protocol"
)

// Paths holds all resolved work state file paths.
// Use ResolvePaths() to populate this struct with defaults + env overrides.
type Paths struct {
	WorkHome         string // ~/.work or WORK_HOME
	DBPath           string // work-sessions.db or WORK_DB_PATH
	ContinuationsDir string // $WORK_HOME/continuations
	PromptsDir       string // $WORK_HOME/prompts
	ProjectsDir      string // ~/.claude/projects or WORK_CLAUDE_PROJECTS; empty means "use config"
}

// ResolvePaths returns all work paths, respecting env var overrides.
// Environment variables:
//   - WORK_HOME: base directory for all work state (default: ~/.work)
//   - WORK_DB_PATH: sessions database (default: $WORK_HOME/work-sessions.db)
//   - WORK_CLAUDE_PROJECTS: Claude Code transcript root (default: ~/.claude/projects)
func ResolvePaths() (*Paths, error) {
	workHome, err := resolveWorkHome()
	if err != nil {
		return nil, err
	}

	return &Paths{
		WorkHome:         workHome,
		DBPath:           resolvePathWithEnv("WORK_DB_PATH", workHome, protocol.StateDBName),
		ContinuationsDir: filepath.Join(workHome, protocol.ContinuationsDir),
		PromptsDir:       filepath.Join(workHome, protocol.PromptsDir),
		ProjectsDir:      os.Getenv("WORK_CLAUDE_PROJECTS"),
	}, nil
}

// projectsDir picks the transcript root: env, then config, then ~/.claude/projects.
func (p *Paths) projectsDir(configured string) string {
	if p.ProjectsDir != "" {
		return p.ProjectsDir
	}
	if configured != "" {
		return configured
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return protocol.ClaudeProjectsDir
	}
	return filepath.Join(home, protocol.ClaudeProjectsDir)
}

// resolveWorkHome returns the work home directory from WORK_HOME env var or ~/.work.
func resolveWorkHome() (string, error) {
	if v := os.Getenv("WORK_HOME"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, protocol.WorkDir), nil
}

// resolvePathWithEnv returns the path from envKey if set, otherwise joins base + suffix.
func resolvePathWithEnv(envKey, base, suffix string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return filepath.Join(base, suffix)
}
