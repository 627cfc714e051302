package stage

import (
	"fmt"

	"work/pkg/notify"
	"work/pkg/protocol"
)

// State is the part of a worker the transition table reads and writes.
type State struct {
	Stage  protocol.Stage
	Status protocol.Status
}

// EffectKind tags an Effect.
type EffectKind int

// Effect kinds.
const (
	EffectRecordPR EffectKind = iota + 1
	EffectLogEvent
	EffectNotify
	EffectEndSession
)

// Effect is a side effect the caller must apply after persisting the new
// state.
type Effect struct {
	Kind EffectKind

	// EffectRecordPR
	PRNumber int
	PRURL    string

	// EffectLogEvent
	EventType string
	Message   string

	// EffectNotify
	Notify notify.Kind

	// EffectEndSession uses Message as the session summary.
}

// Outcome is the result of one transition.
type Outcome struct {
	Event   Event
	From    State
	To      State
	Changed bool
	Effects []Effect
}

// Transition applies event to current. Pure function.
//
//	PRCreated         -> ci_waiting / pr_open        record PR, log pr_created
//	ChecksFailed      -> unchanged                   log ci_check
//	ChecksPassed      -> review_waiting / unchanged  log ci_passed
//	Merged            -> done / done                 log merged, notify complete,
//	                     end session (completed)
//	ConflictDetected  -> merge_conflicts / blocked   log conflict, notify blocked
//	ConflictResolved  -> implementing / running      log conflict_resolved
//	                     (only from merge_conflicts, blocked, or status blocked)
func Transition(current State, ev Event) Outcome {
	out := Outcome{Event: ev, From: current, To: current}

	switch ev.Kind {
	case PRCreated:
		out.To = State{Stage: protocol.StageCIWaiting, Status: protocol.StatusPROpen}
		out.Effects = []Effect{
			{Kind: EffectRecordPR, PRNumber: ev.PRNumber, PRURL: ev.PRURL},
			logEffect(protocol.EventPRCreated, fmt.Sprintf("PR #%d created: %s", ev.PRNumber, ev.PRURL)),
		}

	case ChecksFailed:
		out.Effects = []Effect{logEffect(protocol.EventCICheck, "CI checks failing")}

	case ChecksPassed:
		out.To.Stage = protocol.StageReviewWaiting
		out.Effects = []Effect{logEffect(protocol.EventCIPassed, "CI checks passed")}

	case Merged:
		out.To = State{Stage: protocol.StageDone, Status: protocol.StatusDone}
		out.Effects = []Effect{
			logEffect(protocol.EventMerged, "PR merged"),
			{Kind: EffectNotify, Notify: notify.KindComplete, Message: "PR merged"},
			{Kind: EffectEndSession, Message: "PR merged"},
		}

	case ConflictDetected:
		out.To = State{Stage: protocol.StageMergeConflicts, Status: protocol.StatusBlocked}
		out.Effects = []Effect{
			logEffect(protocol.EventConflict, "merge conflict detected"),
			{Kind: EffectNotify, Notify: notify.KindBlocked, Message: "merge conflict needs attention"},
		}

	case ConflictResolved:
		if !inConflict(current) {
			return out
		}
		out.To = State{Stage: protocol.StageImplementing, Status: protocol.StatusRunning}
		out.Effects = []Effect{logEffect(protocol.EventConflictResolved, "merge conflict resolved")}

	case NoMatch:
		return out
	}

	out.Changed = out.To != out.From
	return out
}

func inConflict(s State) bool {
	return s.Stage == protocol.StageMergeConflicts ||
		s.Stage == protocol.StageBlocked ||
		s.Status == protocol.StatusBlocked
}

func logEffect(eventType, message string) Effect {
	return Effect{Kind: EffectLogEvent, EventType: eventType, Message: message}
}
