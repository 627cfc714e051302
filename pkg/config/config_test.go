package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.WarnThreshold != 60 || cfg.RecommendThreshold != 75 || cfg.UrgentThreshold != 85 {
		t.Errorf("thresholds = %d/%d/%d", cfg.WarnThreshold, cfg.RecommendThreshold, cfg.UrgentThreshold)
	}
	if cfg.TrimThresholdChars != 2000 || cfg.CheckIntervalSeconds != 60 || cfg.ArchiveTimeoutSeconds != 30 {
		t.Errorf("defaults = %+v", cfg)
	}
	if !slices.Equal(cfg.TrimTargetTools, []string{"Read", "Bash", "Grep", "Glob", "WebFetch"}) {
		t.Errorf("trim_target_tools = %v", cfg.TrimTargetTools)
	}
	if cfg.WorkerGuidelines != "" || cfg.ReviewGuidelines != "" || cfg.ReviewStrictness != "normal" || !cfg.RequirePreMergeReview {
		t.Errorf("review defaults = %+v", cfg)
	}
	for _, p := range []string{"*.lock", "package-lock.json", "yarn.lock", "Cargo.lock"} {
		if !slices.Contains(cfg.ReviewExcludePatterns, p) {
			t.Errorf("review_exclude_patterns missing %q", p)
		}
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}

func TestLoad(t *testing.T) {
	t.Run("dot file", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, ".work.toml", `
warn_threshold = 50
recommend_threshold = 70
urgent_threshold = 90
trim_threshold_chars = 800
trim_target_tools = ["Read"]
check_interval_seconds = 30
notify_command = "notify-send work"
`)
		cfg, err := Load(dir)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.WarnThreshold != 50 || cfg.UrgentThreshold != 90 || cfg.TrimThresholdChars != 800 {
			t.Errorf("cfg = %+v", cfg)
		}
		if !slices.Equal(cfg.TrimTargetTools, []string{"Read"}) {
			t.Errorf("trim_target_tools = %v", cfg.TrimTargetTools)
		}
		if cfg.NotifyCommand != "notify-send work" || cfg.Path != filepath.Join(dir, ".work.toml") {
			t.Errorf("cfg = %+v", cfg)
		}
		if p := cfg.ReminderPolicy(); p.Interval != 30*time.Second || p.Recommend != 70 {
			t.Errorf("policy = %+v", p)
		}
	})

	t.Run("plain file", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "work.toml", `trim_threshold_chars = 1234`)
		cfg, err := Load(dir)
		if err != nil || cfg.TrimThresholdChars != 1234 {
			t.Errorf("Load = %+v, %v", cfg, err)
		}
	})

	t.Run("dot file takes precedence", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, ".work.toml", `trim_threshold_chars = 111`)
		writeFile(t, dir, "work.toml", `trim_threshold_chars = 222`)
		cfg, _ := Load(dir)
		if cfg.TrimThresholdChars != 111 {
			t.Errorf("trim_threshold_chars = %d, want 111", cfg.TrimThresholdChars)
		}
	})

	t.Run("partial file keeps defaults", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, ".work.toml", "urgent_threshold = 95\nworker_guidelines = \"Only this is set\"\nunknown_key = 1\n")
		cfg, err := Load(dir)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.UrgentThreshold != 95 || cfg.WarnThreshold != 60 || len(cfg.TrimTargetTools) != 5 {
			t.Errorf("cfg = %+v", cfg)
		}
		if cfg.WorkerGuidelines != "Only this is set" || cfg.ReviewGuidelines != "" || cfg.ReviewStrictness != "normal" {
			t.Errorf("guidelines = %+v", cfg)
		}
	})

	t.Run("review keys", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, ".work.toml", `
worker_guidelines = "Always write tests first"
review_guidelines = "Check for SQL injection"
review_strictness = "strict"
require_pre_merge_review = false
review_exclude_patterns = ["*.generated.ts", "vendor/*"]
`)
		cfg, err := Load(dir)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.WorkerGuidelines != "Always write tests first" || cfg.ReviewGuidelines != "Check for SQL injection" {
			t.Errorf("guidelines = %q / %q", cfg.WorkerGuidelines, cfg.ReviewGuidelines)
		}
		if cfg.ReviewStrictness != "strict" || cfg.RequirePreMergeReview {
			t.Errorf("strictness = %q, pre-merge = %v", cfg.ReviewStrictness, cfg.RequirePreMergeReview)
		}
		if !slices.Equal(cfg.ReviewExcludePatterns, []string{"*.generated.ts", "vendor/*"}) {
			t.Errorf("review_exclude_patterns = %v", cfg.ReviewExcludePatterns)
		}
	})

	t.Run("no file", func(t *testing.T) {
		cfg, err := Load(t.TempDir())
		if err != nil || cfg.Path != "" || cfg.WarnThreshold != 60 {
			t.Errorf("Load = %+v, %v", cfg, err)
		}
	})

	t.Run("no repo root", func(t *testing.T) {
		cfg, err := Load("")
		if err != nil || cfg.TrimThresholdChars != 2000 {
			t.Errorf("Load = %+v, %v", cfg, err)
		}
	})

	t.Run("invalid toml", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, ".work.toml", "this is not valid { toml [")
		cfg, err := Load(dir)
		if err == nil || !strings.Contains(err.Error(), "failed to parse") {
			t.Errorf("err = %v, want parse error", err)
		}
		if cfg.WarnThreshold != 60 || cfg.Path != "" {
			t.Errorf("cfg = %+v, want defaults", cfg)
		}
	})

	t.Run("thresholds out of order", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, ".work.toml", "warn_threshold = 90\nurgent_threshold = 80\n")
		cfg, err := Load(dir)
		if err == nil {
			t.Error("expected validation error")
		}
		if cfg.WarnThreshold != 60 {
			t.Errorf("cfg = %+v, want defaults", cfg)
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero warn", func(c *Config) { c.WarnThreshold = 0 }},
		{"urgent over 100", func(c *Config) { c.UrgentThreshold = 101 }},
		{"recommend below warn", func(c *Config) { c.RecommendThreshold = 50 }},
		{"zero trim threshold", func(c *Config) { c.TrimThresholdChars = 0 }},
		{"negative interval", func(c *Config) { c.CheckIntervalSeconds = -1 }},
		{"zero archive timeout", func(c *Config) { c.ArchiveTimeoutSeconds = 0 }},
		{"unknown strictness", func(c *Config) { c.ReviewStrictness = "harsh" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestFindRepoRoot(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	if got := FindRepoRoot(nested); got != root {
		t.Errorf("FindRepoRoot = %q, want %q", got, root)
	}

	worktree := t.TempDir()
	writeFile(t, worktree, ".git", "gitdir: /elsewhere\n")
	if got := FindRepoRoot(worktree); got != worktree {
		t.Errorf("FindRepoRoot(worktree) = %q, want %q", got, worktree)
	}
}
