package protocol

// Directory and path constants used throughout work.
const (
	// WorkDir is the user-level state directory (e.g., ~/.work).
	WorkDir = ".work"

	// StateDBName is the SQLite database file inside WorkDir.
	StateDBName = "work-sessions.db"

	// ContinuationsDir holds rendered rollover artifacts inside WorkDir.
	ContinuationsDir = "continuations"

	// PromptsDir holds the task prompt written for each registered worker.
	PromptsDir = "prompts"

	// ClaudeProjectsDir is where Claude Code keeps per-project session transcripts,
	// relative to the user's home directory.
	ClaudeProjectsDir = ".claude/projects"

	// WorkerIDEnv names the env var a spawned worker session carries so hooks
	// can attribute tool events to it.
	WorkerIDEnv = "WORK_WORKER_ID"
)
