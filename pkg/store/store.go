// Package store is the durable record of workers, their events, sessions and
// queued messages. It is the only coordination point between worker
// processes: every method is a single statement or a single transaction,
// scoped by worker id, so concurrent workers need no further locking.
//
// Every driver failure other than a missing row is reported as
// *protocol.StoreUnavailableError; missing rows are *protocol.NotFoundError.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"work/pkg/protocol"
)

// Store manages the work session tables in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a Store backed by the given SQLite database.
// The schema is not applied; call Init once per process.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// SetClock overrides the time source (for testing).
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Init applies the schema and the column migrations for older databases.
// Migrations use ALTER TABLE, which errors if the column already exists;
// those errors are ignored.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, protocol.SchemaDDL); err != nil {
		return unavailable("apply schema", err)
	}
	_, _ = s.db.ExecContext(ctx, protocol.MigrateReminderColumn)
	_, _ = s.db.ExecContext(ctx, protocol.MigrateContinuationColumns)
	return nil
}

// DB exposes the underlying handle for read-only helpers such as eventlog.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) timestamp() string {
	return s.now().UTC().Format(protocol.TimeLayout)
}

// unavailable wraps a driver error as a StoreUnavailableError.
func unavailable(op string, err error) error {
	return &protocol.StoreUnavailableError{Op: op, Err: err}
}

// classify maps sql.ErrNoRows to NotFound and everything else to StoreUnavailable.
func classify(op, kind string, key any, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return &protocol.NotFoundError{Kind: kind, Key: fmt.Sprint(key)}
	}
	return unavailable(op, err)
}

// RegisterParams holds parameters for registering a worker.
type RegisterParams struct {
	RepoPath     string
	RepoName     string
	IssueNumber  int    // 0 for JIRA-only workers
	JiraKey      string // optional
	IssueSource  string // github | jira; default github
	Branch       string
	WorktreePath string
	PID          int
}

// RegisterWorker inserts a worker, or replaces the runtime fields of the
// worker already registered for the same repo and branch, and makes sure it
// has an open session. Returns the worker id.
func (s *Store) RegisterWorker(ctx context.Context, p RegisterParams) (int64, error) {
	source := p.IssueSource
	if source == "" {
		source = "github"
	}
	now := s.timestamp()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, unavailable("register worker", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workers (repo_path, repo_name, issue_number, jira_key, issue_source,
		                     branch, worktree_path, pid, status, stage, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo_path, branch) DO UPDATE SET
			repo_name = excluded.repo_name,
			issue_number = excluded.issue_number,
			jira_key = excluded.jira_key,
			issue_source = excluded.issue_source,
			worktree_path = excluded.worktree_path,
			pid = excluded.pid,
			status = excluded.status,
			stage = excluded.stage,
			updated_at = excluded.updated_at`,
		p.RepoPath, p.RepoName, nullInt(p.IssueNumber), nullString(p.JiraKey), source,
		p.Branch, p.WorktreePath, nullInt(p.PID),
		string(protocol.StatusStarting), string(protocol.StageExploring), now, now,
	)
	if err != nil {
		return 0, unavailable("register worker", err)
	}

	var id int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM workers WHERE repo_path = ? AND branch = ?`, p.RepoPath, p.Branch,
	).Scan(&id)
	if err != nil {
		return 0, unavailable("register worker", err)
	}

	var open int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE worker_id = ? AND ended_at IS NULL`, id,
	).Scan(&open); err != nil {
		return 0, unavailable("register worker", err)
	}
	if open == 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (worker_id, session_number, started_at)
			VALUES (?, COALESCE((SELECT MAX(session_number) FROM sessions WHERE worker_id = ?), 0) + 1, ?)`,
			id, id, now,
		); err != nil {
			return 0, unavailable("open first session", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (worker_id, event_type, message, created_at) VALUES (?, ?, ?, ?)`,
		id, protocol.EventRegistered, fmt.Sprintf("%s on %s (pid %d)", p.RepoName, p.Branch, p.PID), now,
	); err != nil {
		return 0, unavailable("register worker", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, unavailable("register worker", err)
	}
	return id, nil
}

const workerColumns = `id, repo_path, repo_name, COALESCE(issue_number, 0), COALESCE(jira_key, ''),
	issue_source, branch, worktree_path, COALESCE(pid, 0), COALESCE(pr_number, 0), COALESCE(pr_url, ''),
	status, stage, created_at, updated_at, COALESCE(heartbeat_at, ''), COALESCE(last_reminder_at, '')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorker(row rowScanner) (protocol.Worker, error) {
	var w protocol.Worker
	var status, stage string
	err := row.Scan(&w.ID, &w.RepoPath, &w.RepoName, &w.IssueNumber, &w.JiraKey,
		&w.IssueSource, &w.Branch, &w.WorktreePath, &w.PID, &w.PRNumber, &w.PRURL,
		&status, &stage, &w.CreatedAt, &w.UpdatedAt, &w.HeartbeatAt, &w.LastReminderAt)
	w.Status = protocol.Status(status)
	w.Stage = protocol.Stage(stage)
	return w, err
}

// Worker returns the worker with the given id.
func (s *Store) Worker(ctx context.Context, id int64) (*protocol.Worker, error) {
	w, err := scanWorker(s.db.QueryRowContext(ctx,
		`SELECT `+workerColumns+` FROM workers WHERE id = ?`, id))
	if err != nil {
		return nil, classify("get worker", "worker", id, err)
	}
	return &w, nil
}

// WorkerByWorktree returns the most recently updated worker whose worktree
// path equals dir.
func (s *Store) WorkerByWorktree(ctx context.Context, dir string) (*protocol.Worker, error) {
	w, err := scanWorker(s.db.QueryRowContext(ctx,
		`SELECT `+workerColumns+` FROM workers WHERE worktree_path = ? ORDER BY updated_at DESC, id DESC LIMIT 1`, dir))
	if err != nil {
		return nil, classify("get worker by worktree", "worker for worktree", dir, err)
	}
	return &w, nil
}

// FindWorkerByIssue looks a worker up by issue number (optionally scoped to
// a repo name) or by JIRA key. Returns NotFound when nothing matches.
func (s *Store) FindWorkerByIssue(ctx context.Context, issue, repoName string) (int64, error) {
	var (
		id  int64
		err error
	)
	if n, convErr := strconv.Atoi(issue); convErr == nil {
		q := `SELECT id FROM workers WHERE issue_number = ?`
		args := []any{n}
		if repoName != "" {
			q += ` AND repo_name = ?`
			args = append(args, repoName)
		}
		err = s.db.QueryRowContext(ctx, q+` ORDER BY id DESC LIMIT 1`, args...).Scan(&id)
	} else {
		err = s.db.QueryRowContext(ctx,
			`SELECT id FROM workers WHERE jira_key = ? ORDER BY id DESC LIMIT 1`, issue).Scan(&id)
	}
	if err != nil {
		return 0, classify("find worker", "worker for issue", issue, err)
	}
	return id, nil
}

// ListWorkers returns all workers, newest first.
func (s *Store) ListWorkers(ctx context.Context) ([]protocol.Worker, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+workerColumns+` FROM workers ORDER BY id DESC`)
	if err != nil {
		return nil, unavailable("list workers", err)
	}
	defer rows.Close()

	var workers []protocol.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, unavailable("scan worker", err)
		}
		workers = append(workers, w)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate workers", err)
	}
	return workers, nil
}

// UpdateStage sets a worker's stage and status and logs a stage_change event
// in the same transaction. Unknown stages are rejected.
func (s *Store) UpdateStage(ctx context.Context, id int64, stage protocol.Stage, status protocol.Status) error {
	if !stage.Valid() {
		return fmt.Errorf("Invalid stage %q", stage) //nolint:stylecheck // message matched by callers
	}
	now := s.timestamp()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("update stage", err)
	}
	defer func() { _ = tx.Rollback() }()

	var from string
	if err := tx.QueryRowContext(ctx, `SELECT stage FROM workers WHERE id = ?`, id).Scan(&from); err != nil {
		return classify("update stage", "worker", id, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE workers SET stage = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(stage), string(status), now, id,
	); err != nil {
		return unavailable("update stage", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (worker_id, event_type, message, created_at) VALUES (?, ?, ?, ?)`,
		id, protocol.EventStageChange, FormatStageChange(protocol.Stage(from), stage, status), now,
	); err != nil {
		return unavailable("log stage change", err)
	}

	if err := tx.Commit(); err != nil {
		return unavailable("update stage", err)
	}
	return nil
}

// FormatStageChange renders the stage_change event message. eventlog.Replay
// parses this format back.
func FormatStageChange(from, to protocol.Stage, status protocol.Status) string {
	return fmt.Sprintf("%s -> %s (%s)", from, to, status)
}

// SetStatus sets a worker's status without touching its stage and logs
// eventType with message.
func (s *Store) SetStatus(ctx context.Context, id int64, status protocol.Status, eventType, message string) error {
	now := s.timestamp()
	res, err := s.db.ExecContext(ctx,
		`UPDATE workers SET status = ?, updated_at = ? WHERE id = ?`, string(status), now, id)
	if err != nil {
		return unavailable("set status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &protocol.NotFoundError{Kind: "worker", Key: fmt.Sprint(id)}
	}
	return s.LogEvent(ctx, id, eventType, message)
}

// UpdatePR records the pull request opened for a worker and marks it pr_open.
func (s *Store) UpdatePR(ctx context.Context, id int64, number int, url string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workers SET pr_number = ?, pr_url = ?, status = ?, updated_at = ? WHERE id = ?`,
		number, url, string(protocol.StatusPROpen), s.timestamp(), id)
	if err != nil {
		return unavailable("update pr", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &protocol.NotFoundError{Kind: "worker", Key: fmt.Sprint(id)}
	}
	return nil
}

// Heartbeat records that the worker is alive. A worker still in "starting"
// becomes "running" on its first heartbeat.
func (s *Store) Heartbeat(ctx context.Context, id int64) error {
	now := s.timestamp()
	_, err := s.db.ExecContext(ctx, `
		UPDATE workers SET heartbeat_at = ?,
			status = CASE WHEN status = ? THEN ? ELSE status END
		WHERE id = ?`,
		now, string(protocol.StatusStarting), string(protocol.StatusRunning), id)
	if err != nil {
		return unavailable("heartbeat", err)
	}
	return nil
}

// LastReminder returns when the worker last received a context reminder,
// or the zero time if never.
func (s *Store) LastReminder(ctx context.Context, id int64) (time.Time, error) {
	var at sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT last_reminder_at FROM workers WHERE id = ?`, id).Scan(&at)
	if err != nil {
		return time.Time{}, classify("get last reminder", "worker", id, err)
	}
	if !at.Valid || at.String == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(protocol.TimeLayout, at.String, time.UTC)
	if err != nil {
		return time.Time{}, nil //nolint:nilerr // unparseable value behaves as "never reminded"
	}
	return t, nil
}

// SetLastReminder persists the reminder throttle timestamp.
func (s *Store) SetLastReminder(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE workers SET last_reminder_at = ? WHERE id = ?`,
		at.UTC().Format(protocol.TimeLayout), id)
	if err != nil {
		return unavailable("set last reminder", err)
	}
	return nil
}

// LogEvent appends an event for a worker.
func (s *Store) LogEvent(ctx context.Context, workerID int64, eventType, message string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (worker_id, event_type, message, created_at) VALUES (?, ?, ?, ?)`,
		workerID, eventType, message, s.timestamp())
	if err != nil {
		return unavailable("log event", err)
	}
	return nil
}

// Events returns a worker's events in insertion order.
func (s *Store) Events(ctx context.Context, workerID int64) ([]protocol.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, worker_id, event_type, COALESCE(message, ''), created_at
		FROM events WHERE worker_id = ? ORDER BY id`, workerID)
	if err != nil {
		return nil, unavailable("list events", err)
	}
	defer rows.Close()

	var events []protocol.Event
	for rows.Next() {
		var e protocol.Event
		if err := rows.Scan(&e.ID, &e.WorkerID, &e.Type, &e.Message, &e.CreatedAt); err != nil {
			return nil, unavailable("scan event", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate events", err)
	}
	return events, nil
}

func nullInt(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: v != 0}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
