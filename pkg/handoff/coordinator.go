// Package handoff carries a worker from one session to the next: rollover
// ends a session with a written summary, trim swaps in a transcript with
// oversized tool output truncated. Both flip the session records in one
// store transaction and always hand out a fresh session id.
package handoff

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"work/pkg/protocol"
	"work/pkg/store"
	"work/pkg/telemetry"
	"work/pkg/transcript"
)

// MeaningfulSavings is the saved share (percent) below which a trim is not
// worth it and a rollover is recommended instead.
const MeaningfulSavings = 10.0

// Store is the slice of the session store the coordinator needs.
type Store interface {
	Worker(ctx context.Context, id int64) (*protocol.Worker, error)
	ActiveSession(ctx context.Context, workerID int64) (*protocol.Session, error)
	RotateSession(ctx context.Context, p store.RotateParams) (ended, opened protocol.Session, err error)
	SetContinuationPath(ctx context.Context, sessionRowID int64, path string) error
}

// Coordinator runs rollovers and trims. Store errors are returned; archival
// and telemetry failures only reach Warn.
type Coordinator struct {
	Store    Store
	Locator  transcript.Locator
	Archiver Archiver           // optional
	Metrics  telemetry.Recorder // optional
	Warn     func(string, ...any)

	// ContinuationsDir receives rollover artifacts.
	ContinuationsDir string
	// TrimOptions configures transcript trimming. SourcePath is filled per run.
	TrimOptions transcript.Options

	Now   func() time.Time // optional
	NewID func() string    // optional, uuid v4 by default
}

// ResumePointer says how to continue a worker after a trim or rollover.
type ResumePointer struct {
	SessionID string
	Path      string
}

// Command is the shell command that resumes the session.
func (r ResumePointer) Command() string {
	return "claude --resume " + r.SessionID
}

// RolloverOptions modifies a rollover.
type RolloverOptions struct {
	// Force rolls over even if the active session's own continuation was
	// never consumed.
	Force bool
}

// RolloverResult describes a completed rollover.
type RolloverResult struct {
	Ended          protocol.Session
	Opened         protocol.Session
	ContextPercent int
	Transcript     string // parent transcript, empty if none was found
	ArtifactPath   string
	Resume         ResumePointer
}

// TrimResult describes a trim. Resume is nil when nothing was trimmed.
type TrimResult struct {
	Stats          transcript.Stats
	Meaningful     bool
	Recommendation string
	ContextPercent int
	Transcript     string
	Ended          protocol.Session
	Opened         protocol.Session
	Resume         *ResumePointer
}

// Rollover ends the worker's active session with summary and opens the next
// one, carrying the summary forward in a continuation artifact and a seed
// transcript under a fresh session id.
//
// Fails with NotFound for an unknown worker and PreconditionFailed when the
// worker has no active session, or (unless opts.Force) when the active
// session's continuation has not been consumed yet.
func (c *Coordinator) Rollover(ctx context.Context, workerID int64, summary string, opts RolloverOptions) (RolloverResult, error) {
	w, active, err := c.load(ctx, workerID)
	if err != nil {
		return RolloverResult{}, err
	}
	if active.PendingContinuation() && !opts.Force {
		return RolloverResult{}, &protocol.PreconditionFailedError{
			Reason: fmt.Sprintf("session %d of worker %d has not picked up %s yet (use --force to roll over anyway)",
				active.SessionNumber, workerID, active.ContinuationPath),
		}
	}

	parent, err := c.Locator.Resolve(w.WorktreePath, active.SessionID)
	if err != nil {
		c.warn("no transcript for worker %d: %v", workerID, err)
		parent = ""
	}
	if parent != "" && c.Archiver != nil {
		if err := c.Archiver.Sync(ctx, parent); err != nil {
			c.warn("archive failed, continuing: %v", err)
		}
	}

	pct := 0
	if parent != "" {
		pct, _ = transcript.PercentageFile(parent)
	}

	now := c.now()
	nextID := c.newID()
	artifact := Artifact{
		Header: Header{
			WorkerID:         w.ID,
			Issue:            w.IssueRef(),
			SessionNumber:    active.SessionNumber + 1,
			PreviousSession:  active.SessionNumber,
			ContextPercent:   pct,
			ParentTranscript: parent,
			NextSessionID:    nextID,
			CreatedAt:        now.UTC().Format(time.RFC3339),
		},
		Summary: summary,
	}
	artifactPath, err := writeArtifact(c.ContinuationsDir, artifact)
	if err != nil {
		return RolloverResult{}, err
	}

	seedPath, err := transcript.WriteSeed(c.Locator.ProjectDir(w.WorktreePath), transcript.SeedParams{
		SessionID: nextID,
		Cwd:       w.WorktreePath,
		Timestamp: now.UTC().Format(time.RFC3339),
		Prompt:    artifact.Prompt(),
		Lineage: &transcript.ContinueLineage{
			ParentFile:      parent,
			ParentSessionID: active.SessionID,
			Timestamp:       now.UTC().Format(time.RFC3339),
			WorkerID:        w.ID,
			SessionNumber:   active.SessionNumber + 1,
			ContextPercent:  pct,
			Continuation:    artifactPath,
		},
	})
	if err != nil {
		_ = os.Remove(artifactPath)
		return RolloverResult{}, err
	}

	ended, opened, err := c.Store.RotateSession(ctx, store.RotateParams{
		WorkerID:                 workerID,
		Reason:                   protocol.EndRollover,
		ContextAtEnd:             pct,
		Summary:                  summary,
		NextSessionID:            nextID,
		ContinuationPath:         artifactPath,
		AllowPendingContinuation: opts.Force,
	})
	if err != nil {
		_ = os.Remove(artifactPath)
		_ = os.Remove(seedPath)
		return RolloverResult{}, err
	}

	// A concurrent rotation can shift the number between load and commit.
	if opened.SessionNumber != artifact.Header.SessionNumber {
		artifact.Header.SessionNumber = opened.SessionNumber
		artifact.Header.PreviousSession = ended.SessionNumber
		moved, err := writeArtifact(c.ContinuationsDir, artifact)
		if err != nil {
			return RolloverResult{}, err
		}
		if err := c.Store.SetContinuationPath(ctx, opened.ID, moved); err != nil {
			return RolloverResult{}, err
		}
		_ = os.Remove(artifactPath)
		artifactPath = moved
		opened.ContinuationPath = moved
	}

	if c.Metrics != nil {
		c.Metrics.Rollover(ctx, pct)
	}
	return RolloverResult{
		Ended:          ended,
		Opened:         opened,
		ContextPercent: pct,
		Transcript:     parent,
		ArtifactPath:   artifactPath,
		Resume:         ResumePointer{SessionID: nextID, Path: seedPath},
	}, nil
}

// Trim truncates oversized tool results in the worker's current
// transcript, writes the result under a fresh session id and makes that the
// worker's active session.
//
// When nothing can be truncated no session changes and the result recommends
// a rollover. Fails with NotFound when the worker or its transcript is
// missing and PreconditionFailed when there is no active session or a
// rollover continuation is still pending.
func (c *Coordinator) Trim(ctx context.Context, workerID int64) (TrimResult, error) {
	w, active, err := c.load(ctx, workerID)
	if err != nil {
		return TrimResult{}, err
	}
	if active.PendingContinuation() {
		return TrimResult{}, &protocol.PreconditionFailedError{
			Reason: fmt.Sprintf("worker %d has a pending continuation (%s); resume it before trimming",
				workerID, active.ContinuationPath),
		}
	}

	source, err := c.Locator.Resolve(w.WorktreePath, active.SessionID)
	if err != nil {
		return TrimResult{}, err
	}
	pct, _ := transcript.PercentageFile(source)
	res := TrimResult{ContextPercent: pct, Transcript: source}

	dir := filepath.Dir(source)
	tmp, err := os.CreateTemp(dir, ".work-trim-*.jsonl")
	if err != nil {
		return TrimResult{}, fmt.Errorf("create trim output: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer func() { _ = os.Remove(tmpPath) }()

	opts := c.TrimOptions
	opts.SourcePath = source
	stats, err := transcript.TrimFile(source, tmpPath, opts)
	if err != nil {
		return TrimResult{}, err
	}
	res.Stats = stats
	res.Meaningful = stats.Trimmed > 0 && stats.SavedPercent() >= MeaningfulSavings

	if stats.Trimmed == 0 {
		res.Recommendation = fmt.Sprintf(
			"no tool results over %d chars; run `work rollover %d` with a handoff summary instead",
			opts.Threshold, workerID)
		c.recordTrim(ctx, res)
		return res, nil
	}

	now := c.now()
	nextID := c.newID()
	derived, err := transcript.DeriveFile(tmpPath, dir, nextID, &transcript.TrimLineage{
		ParentFile:      source,
		ParentSessionID: active.SessionID,
		Timestamp:       now.UTC().Format(time.RFC3339),
		Threshold:       opts.Threshold,
		TargetTools:     opts.TargetTools,
		Stats:           stats,
	})
	if err != nil {
		return TrimResult{}, err
	}

	ended, opened, err := c.Store.RotateSession(ctx, store.RotateParams{
		WorkerID:     workerID,
		Reason:       protocol.EndTrim,
		ContextAtEnd: pct,
		Summary: fmt.Sprintf("trimmed %d tool results, saved %d bytes (%.1f%%)",
			stats.Trimmed, stats.Saved, stats.SavedPercent()),
		NextSessionID: nextID,
	})
	if err != nil {
		_ = os.Remove(derived)
		return TrimResult{}, err
	}

	res.Ended, res.Opened = ended, opened
	res.Resume = &ResumePointer{SessionID: nextID, Path: derived}
	if !res.Meaningful {
		res.Recommendation = fmt.Sprintf("saved only %.1f%%; consider `work rollover %d` instead",
			stats.SavedPercent(), workerID)
	}
	c.recordTrim(ctx, res)
	return res, nil
}

// load returns the worker and its active session. A missing session is a
// failed precondition, a missing worker is NotFound.
func (c *Coordinator) load(ctx context.Context, workerID int64) (*protocol.Worker, *protocol.Session, error) {
	w, err := c.Store.Worker(ctx, workerID)
	if err != nil {
		return nil, nil, err
	}
	active, err := c.Store.ActiveSession(ctx, workerID)
	if err != nil {
		var nf *protocol.NotFoundError
		if errors.As(err, &nf) {
			return nil, nil, &protocol.PreconditionFailedError{
				Reason: fmt.Sprintf("no active session for worker %d", workerID),
			}
		}
		return nil, nil, err
	}
	return w, active, nil
}

func (c *Coordinator) recordTrim(ctx context.Context, res TrimResult) {
	if c.Metrics != nil {
		c.Metrics.Trim(ctx, res.Stats.Trimmed, res.Stats.Saved, res.Meaningful)
	}
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Coordinator) newID() string {
	if c.NewID != nil {
		return c.NewID()
	}
	return uuid.NewString()
}

func (c *Coordinator) warn(format string, args ...any) {
	if c.Warn != nil {
		c.Warn(format, args...)
	}
}
