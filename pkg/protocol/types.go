package protocol

// Stage is a worker's position in its task workflow.
type Stage string

// Stage constants. StageExploring is the initial stage of every worker.
const (
	StageExploring        Stage = "exploring"
	StagePlanning         Stage = "planning"
	StageImplementing     Stage = "implementing"
	StageTesting          Stage = "testing"
	StagePRCreating       Stage = "pr_creating"
	StageCIWaiting        Stage = "ci_waiting"
	StageReviewWaiting    Stage = "review_waiting"
	StageReviewResponding Stage = "review_responding"
	StageMergeConflicts   Stage = "merge_conflicts"
	StageDone             Stage = "done"
	StageBlocked          Stage = "blocked"
)

// Stages lists every valid stage in workflow order.
var Stages = []Stage{ //nolint:gochecknoglobals // static enum table
	StageExploring,
	StagePlanning,
	StageImplementing,
	StageTesting,
	StagePRCreating,
	StageCIWaiting,
	StageReviewWaiting,
	StageReviewResponding,
	StageMergeConflicts,
	StageDone,
	StageBlocked,
}

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool {
	for _, known := range Stages {
		if s == known {
			return true
		}
	}
	return false
}

// Status is the coarse lifecycle status of a worker, orthogonal to its stage.
type Status string

// Status constants.
const (
	StatusStarting Status = "starting" // registered, no tool activity yet
	StatusRunning  Status = "running"
	StatusPROpen   Status = "pr_open"
	StatusBlocked  Status = "blocked"
	StatusDone     Status = "done"
	StatusFailed   Status = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// EndReason records why a session record was closed.
type EndReason string

// EndReason constants.
const (
	EndRollover  EndReason = "rollover"
	EndTrim      EndReason = "trim"
	EndCompleted EndReason = "completed"
)

// Event type constants written to the events table.
const (
	EventRegistered       = "registered"
	EventStageChange      = "stage_change"
	EventPRCreated        = "pr_created"
	EventCICheck          = "ci_check"
	EventCIPassed         = "ci_passed"
	EventMerged           = "merged"
	EventConflict         = "conflict"
	EventConflictResolved = "conflict_resolved"
	EventRollover         = "rollover"
	EventTrim             = "trim"
	EventFailed           = "failed"
	EventSessionBound     = "session_bound"
	EventSessionEnded     = "session_ended"
	EventCompleted        = "completed"
)
