package protocol

// SchemaDDL defines the SQLite schema for the work session database.
// Tables: workers, events, sessions, messages, completions.
// Execute against a SQLite database with: db.Exec(SchemaDDL)
const SchemaDDL = `
-- One row per worker session bound to an issue/PR. Never deleted.
CREATE TABLE IF NOT EXISTS workers (
    id INTEGER PRIMARY KEY,
    repo_path TEXT NOT NULL,
    repo_name TEXT NOT NULL,
    issue_number INTEGER,
    jira_key TEXT,
    issue_source TEXT NOT NULL DEFAULT 'github',
    branch TEXT NOT NULL,
    worktree_path TEXT NOT NULL,
    pid INTEGER,
    pr_number INTEGER,
    pr_url TEXT,
    status TEXT NOT NULL DEFAULT 'starting',
    stage TEXT NOT NULL DEFAULT 'exploring',
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now')),
    heartbeat_at TEXT,
    last_reminder_at TEXT,
    UNIQUE(repo_path, branch)
);

-- Append-only audit log of worker transitions
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY,
    worker_id INTEGER NOT NULL,
    event_type TEXT NOT NULL,
    message TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_events_worker ON events(worker_id);

-- Conversation sessions per worker; a new row per rollover or trim
CREATE TABLE IF NOT EXISTS sessions (
    id INTEGER PRIMARY KEY,
    worker_id INTEGER NOT NULL,
    session_number INTEGER NOT NULL,
    session_id TEXT,
    started_at TEXT NOT NULL DEFAULT (datetime('now')),
    ended_at TEXT,
    end_reason TEXT,
    context_at_end INTEGER,
    summary TEXT,
    continuation_path TEXT,
    consumed_at TEXT,
    UNIQUE(worker_id, session_number)
);

CREATE INDEX IF NOT EXISTS idx_sessions_worker ON sessions(worker_id);

-- At most one open session per worker
CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_active
    ON sessions(worker_id) WHERE ended_at IS NULL;

-- Advisory messages queued for a worker, delivered by the hook
CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY,
    worker_id INTEGER NOT NULL,
    message_type TEXT NOT NULL,
    payload TEXT NOT NULL,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    read_at TEXT
);

-- What a worker reported when it finished its task
CREATE TABLE IF NOT EXISTS completions (
    id INTEGER PRIMARY KEY,
    worker_id INTEGER NOT NULL,
    summary TEXT NOT NULL,
    files_changed TEXT,
    tests_added TEXT,
    pr_url TEXT,
    merged INTEGER NOT NULL DEFAULT 0,
    follow_up_issues TEXT,
    lessons_learned TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_completions_worker ON completions(worker_id);
`

// MigrateReminderColumn adds last_reminder_at to workers tables created
// before reminder throttling was persisted.
const MigrateReminderColumn = `ALTER TABLE workers ADD COLUMN last_reminder_at TEXT;`

// MigrateContinuationColumns adds continuation tracking to existing sessions tables.
const MigrateContinuationColumns = `
ALTER TABLE sessions ADD COLUMN continuation_path TEXT;
ALTER TABLE sessions ADD COLUMN consumed_at TEXT;
`

// TimeLayout is the timestamp format stored in every *_at column,
// matching SQLite's datetime('now').
const TimeLayout = "2006-01-02 15:04:05"
