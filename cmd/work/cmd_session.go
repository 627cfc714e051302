package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"work/pkg/handoff"
)

// newTrimCmd creates the "work trim" subcommand.
func newTrimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trim <worker>",
		Short: "Trim oversized tool results from a worker's transcript",
		Long: `Writes a trimmed copy of the worker's current transcript under a new
session id and rotates the worker onto it. The original transcript is kept.
When nothing can be trimmed, recommends a rollover instead.`,
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
			res, err := a.coordinator().Trim(ctx, id)
			if err != nil {
				return err
			}
			printTrim(cmd.OutOrStdout(), res)
			return nil
		},
	}
}

func printTrim(w io.Writer, res handoff.TrimResult) {
	s := res.Stats
	fmt.Fprintf(w, "transcript: %s (%d%% context)\n", res.Transcript, res.ContextPercent)
	fmt.Fprintf(w, "trimmed %d tool results: %s -> %s (saved %s, %.1f%%)\n",
		s.Trimmed, humanize.IBytes(uint64(s.OriginalBytes)), humanize.IBytes(uint64(s.NewBytes)),
		humanize.IBytes(uint64(s.Saved)), s.SavedPercent())
	if s.Malformed > 0 {
		fmt.Fprintf(w, "copied %d malformed lines unchanged (%v)\n", s.Malformed, s.FirstMalformed)
	}
	if res.Resume != nil {
		fmt.Fprintf(w, "session %d -> %d\n", res.Ended.SessionNumber, res.Opened.SessionNumber)
		fmt.Fprintf(w, "resume with: %s\n", res.Resume.Command())
	}
	if res.Recommendation != "" {
		fmt.Fprintf(w, "note: %s\n", res.Recommendation)
	}
}

// rolloverConfig holds configuration for the rollover command.
type rolloverConfig struct {
	summary     string
	summaryFile string
	force       bool
}

// newRolloverCmd creates the "work rollover" subcommand.
func newRolloverCmd() *cobra.Command {
	var cfg rolloverConfig

	cmd := &cobra.Command{
		Use:   "rollover <worker>",
		Short: "End a worker's session and continue in a fresh one",
		Long: `Ends the worker's current session with a handoff summary and opens the
next one. The summary is written to a continuation file and seeded into a new
transcript; the next session picks it up on start.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := readSummary(cmd.InOrStdin(), cfg)
			if err != nil {
				return err
			}

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
			res, err := a.coordinator().Rollover(ctx, id, summary, handoff.RolloverOptions{Force: cfg.force})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "session %d -> %d (%d%% context)\n",
				res.Ended.SessionNumber, res.Opened.SessionNumber, res.ContextPercent)
			fmt.Fprintf(w, "continuation: %s\n", res.ArtifactPath)
			fmt.Fprintf(w, "resume with: %s\n", res.Resume.Command())
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.summary, "summary", "", "handoff summary text")
	cmd.Flags().StringVar(&cfg.summaryFile, "summary-file", "", "read the handoff summary from a file (- for stdin)")
	cmd.Flags().BoolVar(&cfg.force, "force", false, "roll over even if the last continuation was not picked up")
	cmd.MarkFlagsMutuallyExclusive("summary", "summary-file")

	return cmd
}

// readSummary returns the summary from --summary or --summary-file.
func readSummary(stdin io.Reader, cfg rolloverConfig) (string, error) {
	summary := cfg.summary
	switch cfg.summaryFile {
	case "":
	case "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read summary: %w", err)
		}
		summary = string(data)
	default:
		data, err := os.ReadFile(cfg.summaryFile)
		if err != nil {
			return "", fmt.Errorf("read summary: %w", err)
		}
		summary = string(data)
	}
	if strings.TrimSpace(summary) == "" {
		return "", fmt.Errorf("a handoff summary is required (--summary or --summary-file)")
	}
	return summary, nil
}

// newResumeCmd creates the "work resume" subcommand.
func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <worker>",
		Short: "Print a pending continuation and mark it picked up",
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
			sess, err := a.store.ConsumeContinuation(ctx, id)
			if err != nil {
				return err
			}
			art, err := handoff.ReadArtifact(sess.ContinuationPath)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, art.Prompt())
			if art.Header.NextSessionID != "" {
				fmt.Fprintf(w, "\nresume with: claude --resume %s\n", art.Header.NextSessionID)
			}
			return nil
		},
	}
}
