package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"work/pkg/protocol"
)

const sessionColumns = `id, worker_id, session_number, COALESCE(session_id, ''), started_at,
	COALESCE(ended_at, ''), COALESCE(end_reason, ''), COALESCE(context_at_end, 0), COALESCE(summary, ''),
	COALESCE(continuation_path, ''), COALESCE(consumed_at, '')`

func scanSession(row rowScanner) (protocol.Session, error) {
	var s protocol.Session
	var reason string
	err := row.Scan(&s.ID, &s.WorkerID, &s.SessionNumber, &s.SessionID, &s.StartedAt,
		&s.EndedAt, &reason, &s.ContextAtEnd, &s.Summary, &s.ContinuationPath, &s.ConsumedAt)
	s.EndReason = protocol.EndReason(reason)
	return s, err
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func activeSession(ctx context.Context, q queryer, workerID int64) (protocol.Session, error) {
	s, err := scanSession(q.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE worker_id = ? AND ended_at IS NULL`, workerID))
	if err != nil {
		return s, classify("get active session", "active session for worker", workerID, err)
	}
	return s, nil
}

// ActiveSession returns the worker's open session. Returns NotFound when the
// worker has none.
func (s *Store) ActiveSession(ctx context.Context, workerID int64) (*protocol.Session, error) {
	sess, err := activeSession(ctx, s.db, workerID)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// Sessions returns all of a worker's sessions ordered by session number.
func (s *Store) Sessions(ctx context.Context, workerID int64) ([]protocol.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE worker_id = ? ORDER BY session_number`, workerID)
	if err != nil {
		return nil, unavailable("list sessions", err)
	}
	defer rows.Close()

	var sessions []protocol.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, unavailable("scan session", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate sessions", err)
	}
	return sessions, nil
}

// RotateParams describes how the active session ends and how its successor starts.
type RotateParams struct {
	WorkerID     int64
	Reason       protocol.EndReason
	ContextAtEnd int
	Summary      string

	// NextSessionID is the external id of the successor, if already known
	// (trim knows it; rollover learns it when the new session starts).
	NextSessionID string
	// ContinuationPath is the artifact the successor must pick up.
	ContinuationPath string
	// AllowPendingContinuation lets a rollover replace a session whose own
	// continuation was never consumed.
	AllowPendingContinuation bool
}

// RotateSession ends the worker's active session and opens the next one in
// a single transaction, preserving the single-active-session invariant and
// gapless session numbering. Returns the ended and the opened session.
//
// Fails with PreconditionFailed when the worker has no active session or the
// active session still holds an unconsumed continuation.
func (s *Store) RotateSession(ctx context.Context, p RotateParams) (ended, opened protocol.Session, err error) {
	now := s.timestamp()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ended, opened, unavailable("rotate session", err)
	}
	defer func() { _ = tx.Rollback() }()

	ended, err = activeSession(ctx, tx, p.WorkerID)
	if err != nil {
		var nf *protocol.NotFoundError
		if errors.As(err, &nf) {
			return ended, opened, &protocol.PreconditionFailedError{
				Reason: fmt.Sprintf("no active session for worker %d", p.WorkerID),
			}
		}
		return ended, opened, err
	}
	if ended.PendingContinuation() && !p.AllowPendingContinuation {
		return ended, opened, &protocol.PreconditionFailedError{
			Reason: fmt.Sprintf("session %d of worker %d has an unconsumed continuation (%s)",
				ended.SessionNumber, p.WorkerID, ended.ContinuationPath),
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE sessions SET ended_at = ?, end_reason = ?, context_at_end = ?, summary = ?
		WHERE id = ? AND ended_at IS NULL`,
		now, string(p.Reason), p.ContextAtEnd, p.Summary, ended.ID,
	); err != nil {
		return ended, opened, unavailable("end session", err)
	}

	consumedAt := sql.NullString{}
	if p.ContinuationPath == "" {
		consumedAt = sql.NullString{String: now, Valid: true}
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (worker_id, session_number, session_id, started_at, continuation_path, consumed_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.WorkerID, ended.SessionNumber+1, nullString(p.NextSessionID), now,
		nullString(p.ContinuationPath), consumedAt,
	)
	if err != nil {
		return ended, opened, unavailable("open session", err)
	}
	newID, err := res.LastInsertId()
	if err != nil {
		return ended, opened, unavailable("open session", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (worker_id, event_type, message, created_at) VALUES (?, ?, ?, ?)`,
		p.WorkerID, rotationEvent(p.Reason),
		fmt.Sprintf("session %d -> %d at %d%% context", ended.SessionNumber, ended.SessionNumber+1, p.ContextAtEnd),
		now,
	); err != nil {
		return ended, opened, unavailable("log rotation", err)
	}

	if err := tx.Commit(); err != nil {
		return ended, opened, unavailable("rotate session", err)
	}

	ended.EndedAt = now
	ended.EndReason = p.Reason
	ended.ContextAtEnd = p.ContextAtEnd
	ended.Summary = p.Summary
	opened = protocol.Session{
		ID:               newID,
		WorkerID:         p.WorkerID,
		SessionNumber:    ended.SessionNumber + 1,
		SessionID:        p.NextSessionID,
		StartedAt:        now,
		ContinuationPath: p.ContinuationPath,
		ConsumedAt:       consumedAt.String,
	}
	return ended, opened, nil
}

func rotationEvent(reason protocol.EndReason) string {
	if reason == protocol.EndTrim {
		return protocol.EventTrim
	}
	return protocol.EventRollover
}

// EndSession closes the worker's active session without opening a
// successor. Returns the ended session, or NotFound when none is open.
func (s *Store) EndSession(ctx context.Context, workerID int64, reason protocol.EndReason, contextAtEnd int, summary string) (*protocol.Session, error) {
	now := s.timestamp()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("end session", err)
	}
	defer func() { _ = tx.Rollback() }()

	sess, err := activeSession(ctx, tx, workerID)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE sessions SET ended_at = ?, end_reason = ?, context_at_end = ?, summary = ?
		WHERE id = ? AND ended_at IS NULL`,
		now, string(reason), contextAtEnd, nullString(summary), sess.ID,
	); err != nil {
		return nil, unavailable("end session", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (worker_id, event_type, message, created_at) VALUES (?, ?, ?, ?)`,
		workerID, protocol.EventSessionEnded,
		fmt.Sprintf("session %d ended (%s) at %d%% context", sess.SessionNumber, reason, contextAtEnd),
		now,
	); err != nil {
		return nil, unavailable("log session end", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, unavailable("end session", err)
	}

	sess.EndedAt = now
	sess.EndReason = reason
	sess.ContextAtEnd = contextAtEnd
	sess.Summary = summary
	return &sess, nil
}

// SetContinuationPath records the artifact path on an open session. Used when
// the artifact can only be rendered after the session number is known.
func (s *Store) SetContinuationPath(ctx context.Context, sessionRowID int64, path string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET continuation_path = ?, consumed_at = NULL WHERE id = ? AND ended_at IS NULL`,
		path, sessionRowID)
	if err != nil {
		return unavailable("set continuation path", err)
	}
	return nil
}

// BindSession attaches an external session id to the worker's active session
// and marks a pending continuation consumed. Returns the session as it was
// before binding so callers can see whether a continuation was pending.
func (s *Store) BindSession(ctx context.Context, workerID int64, externalID string) (*protocol.Session, error) {
	sess, err := activeSession(ctx, s.db, workerID)
	if err != nil {
		return nil, err
	}
	if sess.SessionID == externalID && !sess.PendingContinuation() {
		return &sess, nil
	}

	now := s.timestamp()
	if _, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET session_id = ?, consumed_at = COALESCE(consumed_at, ?)
		WHERE id = ?`, externalID, now, sess.ID,
	); err != nil {
		return nil, unavailable("bind session", err)
	}
	if err := s.LogEvent(ctx, workerID, protocol.EventSessionBound,
		fmt.Sprintf("session %d bound to %s", sess.SessionNumber, externalID)); err != nil {
		return nil, err
	}
	return &sess, nil
}

// ConsumeContinuation marks the active session's continuation as picked up
// and returns the session. Returns PreconditionFailed if nothing is pending.
func (s *Store) ConsumeContinuation(ctx context.Context, workerID int64) (*protocol.Session, error) {
	sess, err := activeSession(ctx, s.db, workerID)
	if err != nil {
		return nil, err
	}
	if !sess.PendingContinuation() {
		return nil, &protocol.PreconditionFailedError{
			Reason: fmt.Sprintf("worker %d has no pending continuation", workerID),
		}
	}
	now := s.timestamp()
	if _, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET consumed_at = ? WHERE id = ?`, now, sess.ID); err != nil {
		return nil, unavailable("consume continuation", err)
	}
	sess.ConsumedAt = now
	return &sess, nil
}
