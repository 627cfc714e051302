package store

import (
	"context"
	"errors"
	"fmt"

	"work/pkg/protocol"
)

// StoreCompletion records c and finishes the worker in one transaction: the
// worker moves to done/done, its open session (if any) ends as completed
// with c.Summary and contextAtEnd, and the stage change is logged.
func (s *Store) StoreCompletion(ctx context.Context, c protocol.Completion, contextAtEnd int) (int64, error) {
	if c.Summary == "" {
		return 0, errors.New("completion summary is required")
	}
	now := s.timestamp()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, unavailable("store completion", err)
	}
	defer func() { _ = tx.Rollback() }()

	var from string
	if err := tx.QueryRowContext(ctx, `SELECT stage FROM workers WHERE id = ?`, c.WorkerID).Scan(&from); err != nil {
		return 0, classify("store completion", "worker", c.WorkerID, err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO completions (worker_id, summary, files_changed, tests_added, pr_url, merged,
			follow_up_issues, lessons_learned, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.WorkerID, c.Summary, nullString(c.FilesChanged), nullString(c.TestsAdded), nullString(c.PRURL),
		c.Merged, nullString(c.FollowUpIssues), nullString(c.LessonsLearned), now,
	)
	if err != nil {
		return 0, unavailable("store completion", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, unavailable("store completion", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE workers SET stage = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(protocol.StageDone), string(protocol.StatusDone), now, c.WorkerID,
	); err != nil {
		return 0, unavailable("store completion", err)
	}

	events := [][2]string{{protocol.EventCompleted, completionMessage(c)}}
	if protocol.Stage(from) != protocol.StageDone {
		events = append(events, [2]string{protocol.EventStageChange,
			FormatStageChange(protocol.Stage(from), protocol.StageDone, protocol.StatusDone)})
	}

	sess, err := activeSession(ctx, tx, c.WorkerID)
	var nf *protocol.NotFoundError
	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx, `
			UPDATE sessions SET ended_at = ?, end_reason = ?, context_at_end = ?, summary = ?
			WHERE id = ? AND ended_at IS NULL`,
			now, string(protocol.EndCompleted), contextAtEnd, c.Summary, sess.ID,
		); err != nil {
			return 0, unavailable("end session", err)
		}
		events = append(events, [2]string{protocol.EventSessionEnded,
			fmt.Sprintf("session %d ended (%s) at %d%% context", sess.SessionNumber, protocol.EndCompleted, contextAtEnd)})
	case !errors.As(err, &nf):
		return 0, err
	}

	for _, ev := range events {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO events (worker_id, event_type, message, created_at) VALUES (?, ?, ?, ?)`,
			c.WorkerID, ev[0], ev[1], now,
		); err != nil {
			return 0, unavailable("log completion", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, unavailable("store completion", err)
	}
	return id, nil
}

func completionMessage(c protocol.Completion) string {
	if c.Merged {
		return "merged: " + c.Summary
	}
	return c.Summary
}
