package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"work/pkg/config"
	"work/pkg/issue"
	"work/pkg/prompt"
	"work/pkg/store"
)

// registerConfig holds configuration for the register command.
type registerConfig struct {
	repo     string
	branch   string
	worktree string
	title    string
	cli      string
	pid      int
}

// newRegisterCmd creates the "work register" subcommand.
func newRegisterCmd() *cobra.Command {
	var cfg registerConfig

	cmd := &cobra.Command{
		Use:   "register <issue>",
		Short: "Register a worker for an issue",
		Long: `Registers a worker bound to an issue and opens its first session.
The issue is a number, repo:number, a GitHub issue/PR URL or a JIRA key.
Registering the same repo and branch again reuses the worker.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, ok := issue.ParseArg(args[0])
			if !ok {
				return fmt.Errorf("not an issue reference: %q", args[0])
			}

			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("get working dir: %w", err)
			}
			worktree := cfg.worktree
			if worktree == "" {
				worktree = cwd
			}
			repo := cfg.repo
			if repo == "" {
				repo = config.FindRepoRoot(worktree)
			}
			if repo == "" {
				return fmt.Errorf("%s is not inside a git repository (use --repo)", worktree)
			}
			p := registerParams(ref, repo, worktree, cfg)

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.store.RegisterWorker(cmd.Context(), p)
			if err != nil {
				return err
			}
			path, err := a.writeTaskPrompt(id, taskPromptParams(args[0], ref, p, cfg))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered worker %d for %s on %s\n", id, args[0], p.Branch)
			fmt.Fprintf(cmd.OutOrStdout(), "export WORK_WORKER_ID=%d\n", id)
			fmt.Fprintf(cmd.OutOrStdout(), "prompt: %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.repo, "repo", "", "repository root (default: enclosing git repo)")
	cmd.Flags().StringVar(&cfg.branch, "branch", "", "branch name (default: derived from the issue)")
	cmd.Flags().StringVar(&cfg.worktree, "worktree", "", "worktree path (default: current directory)")
	cmd.Flags().StringVar(&cfg.title, "title", "", "issue title, used for the default branch name")
	cmd.Flags().StringVar(&cfg.cli, "cli", "", "GitHub CLI for the prompt (default: gh, or ghe for enterprise URLs)")
	cmd.Flags().IntVar(&cfg.pid, "pid", os.Getppid(), "worker process id")

	return cmd
}

// registerParams builds the store parameters for a parsed issue reference.
func registerParams(ref issue.Ref, repo, worktree string, cfg registerConfig) store.RegisterParams {
	repo = filepath.Clean(repo)
	repoName := ref.Repo
	if repoName == "" {
		repoName = filepath.Base(repo)
	}
	p := store.RegisterParams{
		RepoPath:     repo,
		RepoName:     repoName,
		IssueNumber:  ref.Number,
		JiraKey:      ref.JiraKey,
		IssueSource:  "github",
		Branch:       cfg.branch,
		WorktreePath: filepath.Clean(worktree),
		PID:          cfg.pid,
	}
	if ref.JiraKey != "" {
		p.IssueSource = "jira"
	}
	if p.Branch == "" {
		p.Branch = defaultBranch(ref, cfg.title)
	}
	return p
}

// defaultBranch is "issue-42[-slug]" for GitHub issues and the lowercased
// key for JIRA ("abc-123[-slug]").
func defaultBranch(ref issue.Ref, title string) string {
	base := fmt.Sprintf("issue-%d", ref.Number)
	if ref.JiraKey != "" {
		base = issue.Slugify(ref.JiraKey, 0)
	}
	if slug := issue.Slugify(title, 40); slug != "" {
		return base + "-" + slug
	}
	return base
}

// taskPromptParams describes the task for the worker's prompt. WorkerID and
// the config-driven fields are filled in by writeTaskPrompt.
func taskPromptParams(arg string, ref issue.Ref, p store.RegisterParams, cfg registerConfig) prompt.TaskParams {
	tp := prompt.TaskParams{CLI: cfg.cli, JiraKey: ref.JiraKey}
	gh, isURL := issue.ParseGitHubURL(arg)
	if tp.CLI == "" {
		tp.CLI = prompt.CLIForHost(gh.Host)
	}

	switch {
	case ref.JiraKey != "":
		tp.TaskRef = "JIRA issue " + ref.JiraKey
	case isURL:
		tp.TaskRef = fmt.Sprintf("GitHub issue #%d in %s (%s)", ref.Number, p.RepoName, arg)
	default:
		tp.TaskRef = fmt.Sprintf("GitHub issue #%d in %s", ref.Number, p.RepoName)
	}
	if cfg.title != "" {
		tp.TaskRef += ": " + cfg.title
	}
	return tp
}

// writeTaskPrompt renders the worker's task prompt into the prompts dir and
// returns its path.
func (a *app) writeTaskPrompt(id int64, tp prompt.TaskParams) (string, error) {
	tp.WorkerID = id
	tp.Guidelines = a.cfg.WorkerGuidelines
	tp.PreMergeReview = a.cfg.RequirePreMergeReview

	if err := os.MkdirAll(a.paths.PromptsDir, 0o700); err != nil {
		return "", fmt.Errorf("create prompts dir: %w", err)
	}
	path := filepath.Join(a.paths.PromptsDir, fmt.Sprintf("worker-%d.md", id))
	if err := os.WriteFile(path, []byte(prompt.Task(tp)), 0o600); err != nil {
		return "", fmt.Errorf("write prompt: %w", err)
	}
	return path, nil
}
