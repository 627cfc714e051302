package protocol

import "fmt"

// Worker represents a row in the workers SQLite table.
type Worker struct {
	ID             int64  `json:"id"`
	RepoPath       string `json:"repo_path"`
	RepoName       string `json:"repo_name"`
	IssueNumber    int    `json:"issue_number,omitempty"`
	JiraKey        string `json:"jira_key,omitempty"`
	IssueSource    string `json:"issue_source"` // github | jira
	Branch         string `json:"branch"`
	WorktreePath   string `json:"worktree_path"`
	PID            int    `json:"pid,omitempty"`
	PRNumber       int    `json:"pr_number,omitempty"`
	PRURL          string `json:"pr_url,omitempty"`
	Status         Status `json:"status"`
	Stage          Stage  `json:"stage"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
	HeartbeatAt    string `json:"heartbeat_at,omitempty"`
	LastReminderAt string `json:"last_reminder_at,omitempty"`
}

// IssueRef returns a human-readable issue reference: the JIRA key for
// JIRA workers, otherwise "<repo>#<number>".
func (w Worker) IssueRef() string {
	if w.JiraKey != "" {
		return w.JiraKey
	}
	if w.IssueNumber > 0 {
		return fmt.Sprintf("%s#%d", w.RepoName, w.IssueNumber)
	}
	return w.Branch
}

// Event represents a row in the events SQLite table. Write-once.
type Event struct {
	ID        int64  `json:"id"`
	WorkerID  int64  `json:"worker_id"`
	Type      string `json:"event_type"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

// Session represents a row in the sessions SQLite table.
// EndedAt, EndReason, ContextAtEnd and Summary are set exactly once.
type Session struct {
	ID               int64     `json:"id"`
	WorkerID         int64     `json:"worker_id"`
	SessionNumber    int       `json:"session_number"`
	SessionID        string    `json:"session_id,omitempty"` // external (Claude) session id
	StartedAt        string    `json:"started_at"`
	EndedAt          string    `json:"ended_at,omitempty"`
	EndReason        EndReason `json:"end_reason,omitempty"`
	ContextAtEnd     int       `json:"context_at_end,omitempty"`
	Summary          string    `json:"summary,omitempty"`
	ContinuationPath string    `json:"continuation_path,omitempty"`
	ConsumedAt       string    `json:"consumed_at,omitempty"`
}

// Active reports whether the session has not ended.
func (s Session) Active() bool { return s.EndedAt == "" }

// PendingContinuation reports whether the session was opened by a rollover
// whose continuation artifact has not been picked up yet.
func (s Session) PendingContinuation() bool {
	return s.ContinuationPath != "" && s.ConsumedAt == ""
}

// Message represents a row in the messages SQLite table.
type Message struct {
	ID        int64  `json:"id"`
	WorkerID  int64  `json:"worker_id"`
	Type      string `json:"message_type"`
	Payload   string `json:"payload"`
	CreatedAt string `json:"created_at"`
	ReadAt    string `json:"read_at,omitempty"`
}

// Completion represents a row in the completions SQLite table: the report a
// worker files when its task is finished.
type Completion struct {
	ID             int64  `json:"id"`
	WorkerID       int64  `json:"worker_id"`
	Summary        string `json:"summary"`
	FilesChanged   string `json:"files_changed,omitempty"`
	TestsAdded     string `json:"tests_added,omitempty"`
	PRURL          string `json:"pr_url,omitempty"`
	Merged         bool   `json:"merged"`
	FollowUpIssues string `json:"follow_up_issues,omitempty"`
	LessonsLearned string `json:"lessons_learned,omitempty"`
	CreatedAt      string `json:"created_at"`
}
