// Package config loads the per-repository .work.toml.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/pelletier/go-toml/v2"

	"work/pkg/reminder"
)

// FileNames are the config files looked up at the repo root, in order of
// precedence.
var FileNames = []string{".work.toml", "work.toml"} //nolint:gochecknoglobals // static config

// Config is the behaviour configuration. Keys missing from the file keep
// their defaults; unknown keys are ignored.
type Config struct {
	WarnThreshold         int      `toml:"warn_threshold"`
	RecommendThreshold    int      `toml:"recommend_threshold"`
	UrgentThreshold       int      `toml:"urgent_threshold"`
	TrimThresholdChars    int      `toml:"trim_threshold_chars"`
	TrimTargetTools       []string `toml:"trim_target_tools"`
	CheckIntervalSeconds  int      `toml:"check_interval_seconds"`
	ArchiveCommand        string   `toml:"archive_command"`
	ArchiveTimeoutSeconds int      `toml:"archive_timeout_seconds"`
	NotifyCommand         string   `toml:"notify_command"`
	ClaudeProjectsDir     string   `toml:"claude_projects_dir"`

	// Guidance rendered into worker and review prompts.
	WorkerGuidelines      string   `toml:"worker_guidelines"`
	ReviewGuidelines      string   `toml:"review_guidelines"`
	ReviewStrictness      string   `toml:"review_strictness"`
	RequirePreMergeReview bool     `toml:"require_pre_merge_review"`
	ReviewExcludePatterns []string `toml:"review_exclude_patterns"`

	// Path is the file the config was read from, empty for defaults.
	Path string `toml:"-"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		WarnThreshold:         60,
		RecommendThreshold:    75,
		UrgentThreshold:       85,
		TrimThresholdChars:    2000,
		TrimTargetTools:       []string{"Read", "Bash", "Grep", "Glob", "WebFetch"},
		CheckIntervalSeconds:  60,
		ArchiveTimeoutSeconds: 30,
		ReviewStrictness:      "normal",
		RequirePreMergeReview: true,
		ReviewExcludePatterns: []string{
			"*.lock", "package-lock.json", "yarn.lock", "pnpm-lock.yaml", "Cargo.lock", "go.sum",
		},
	}
}

// Strictness levels accepted for review_strictness.
var Strictness = []string{"lenient", "normal", "strict"} //nolint:gochecknoglobals // static config

// Load reads the config for the repository rooted at root. With no config
// file, or an empty root, it returns the defaults. On a parse or validation
// error it returns the defaults together with the error, so callers can warn
// and carry on.
func Load(root string) (Config, error) {
	if root == "" {
		return Defaults(), nil
	}
	for _, name := range FileNames {
		path := filepath.Join(root, name)
		data, err := os.ReadFile(path) //nolint:gosec // fixed file names under the repo root
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Defaults(), fmt.Errorf("read %s: %w", path, err)
		}
		return Parse(path, data)
	}
	return Defaults(), nil
}

// Parse decodes data over the defaults and validates the result.
func Parse(path string, data []byte) (Config, error) {
	cfg := Defaults()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Defaults(), fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Defaults(), fmt.Errorf("invalid %s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

// Validate checks that thresholds ascend within (0,100] and that sizes and
// intervals are positive.
func (c Config) Validate() error {
	if c.WarnThreshold <= 0 || c.UrgentThreshold > 100 ||
		c.WarnThreshold > c.RecommendThreshold || c.RecommendThreshold > c.UrgentThreshold {
		return fmt.Errorf("thresholds must satisfy 0 < warn <= recommend <= urgent <= 100, got %d/%d/%d",
			c.WarnThreshold, c.RecommendThreshold, c.UrgentThreshold)
	}
	if c.TrimThresholdChars <= 0 {
		return fmt.Errorf("trim_threshold_chars must be positive, got %d", c.TrimThresholdChars)
	}
	if c.CheckIntervalSeconds < 0 {
		return fmt.Errorf("check_interval_seconds must not be negative, got %d", c.CheckIntervalSeconds)
	}
	if c.ArchiveTimeoutSeconds <= 0 {
		return fmt.Errorf("archive_timeout_seconds must be positive, got %d", c.ArchiveTimeoutSeconds)
	}
	if !slices.Contains(Strictness, c.ReviewStrictness) {
		return fmt.Errorf("review_strictness must be one of %v, got %q", Strictness, c.ReviewStrictness)
	}
	return nil
}

// ReminderPolicy returns the throttle policy for context reminders.
func (c Config) ReminderPolicy() reminder.Policy {
	return reminder.Policy{
		Warn:      c.WarnThreshold,
		Recommend: c.RecommendThreshold,
		Urgent:    c.UrgentThreshold,
		Interval:  time.Duration(c.CheckIntervalSeconds) * time.Second,
	}
}

// ArchiveTimeout bounds one archive command run.
func (c Config) ArchiveTimeout() time.Duration {
	return time.Duration(c.ArchiveTimeoutSeconds) * time.Second
}

// FindRepoRoot walks up from dir to the nearest directory containing .git
// (a directory, or a file in linked worktrees). Returns "" if there is none.
func FindRepoRoot(dir string) string {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
