package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"work/pkg/issue"
	"work/pkg/prompt"
	"work/pkg/protocol"
)

// newReviewCmd creates the "work review" subcommand.
func newReviewCmd() *cobra.Command {
	var preMerge bool

	cmd := &cobra.Command{
		Use:   "review <worker>",
		Short: "Print a review prompt for a worker's changes",
		Long: `Prints the prompt for a review of the worker's branch or PR, using
review_strictness, review_guidelines and review_exclude_patterns from
.work.toml. --pre-merge adds the checks required before merging.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			id, err := a.resolveWorker(ctx, args[0])
			if err != nil {
				return err
			}
			w, err := a.store.Worker(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), prompt.Review(a.reviewParams(w, preMerge)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&preMerge, "pre-merge", false, "review before merging the PR")

	return cmd
}

func (a *app) reviewParams(w *protocol.Worker, preMerge bool) prompt.ReviewParams {
	gh, _ := issue.ParseGitHubURL(w.PRURL)
	return prompt.ReviewParams{
		TaskRef:         w.IssueRef(),
		CLI:             prompt.CLIForHost(gh.Host),
		Branch:          w.Branch,
		PRNumber:        w.PRNumber,
		PreMerge:        preMerge,
		Strictness:      a.cfg.ReviewStrictness,
		Guidelines:      a.cfg.ReviewGuidelines,
		ExcludePatterns: a.cfg.ReviewExcludePatterns,
	}
}

// newMessagesCmd creates the "work messages" subcommand.
func newMessagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "messages <worker>",
		Short: "Print and consume a worker's unread messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			id, err := a.resolveWorker(ctx, args[0])
			if err != nil {
				return err
			}
			msgs, err := a.store.Messages(ctx, id, true)
			if err != nil {
				return err
			}
			if len(msgs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no messages")
				return nil
			}
			for _, m := range msgs {
				fmt.Fprintf(cmd.OutOrStdout(), "Message (%s): %s\n", m.Type, m.Payload)
			}
			return nil
		},
	}
}

// doneConfig holds configuration for the done command.
type doneConfig struct {
	summary   string
	files     string
	tests     string
	prURL     string
	merged    bool
	followUps string
	lessons   string
}

// newDoneCmd creates the "work done" subcommand.
func newDoneCmd() *cobra.Command {
	var cfg doneConfig

	cmd := &cobra.Command{
		Use:   "done <worker>",
		Short: "Record a worker's completion summary",
		Long: `Stores the completion report, marks the worker done and ends its
active session as completed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			id, err := a.resolveWorker(ctx, args[0])
			if err != nil {
				return err
			}
			w, err := a.store.Worker(ctx, id)
			if err != nil {
				return err
			}
			// Read before the session is ended: the transcript is found through it.
			pct := a.contextPercent(ctx, w, "")

			c := protocol.Completion{
				WorkerID:       id,
				Summary:        cfg.summary,
				FilesChanged:   cfg.files,
				TestsAdded:     cfg.tests,
				PRURL:          cfg.prURL,
				Merged:         cfg.merged,
				FollowUpIssues: cfg.followUps,
				LessonsLearned: cfg.lessons,
			}
			if _, err := a.store.StoreCompletion(ctx, c, pct); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "worker %d done: %s\n", id, cfg.summary)
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.summary, "summary", "", "what was done (required)")
	cmd.Flags().StringVar(&cfg.files, "files", "", "files changed")
	cmd.Flags().StringVar(&cfg.tests, "tests", "", "tests added")
	cmd.Flags().StringVar(&cfg.prURL, "pr-url", "", "pull request URL")
	cmd.Flags().BoolVar(&cfg.merged, "merged", false, "the PR was merged")
	cmd.Flags().StringVar(&cfg.followUps, "follow-ups", "", "follow-up issues filed")
	cmd.Flags().StringVar(&cfg.lessons, "lessons", "", "lessons learned")
	_ = cmd.MarkFlagRequired("summary")

	return cmd
}
