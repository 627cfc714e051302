package eventlog

import (
	"fmt"
	"strings"

	"work/pkg/protocol"
)

// State is a worker's stage and status as rebuilt from its events.
type State struct {
	Stage  protocol.Stage
	Status protocol.Status
}

// Step is one stage change found in the log.
type Step struct {
	EventID int64
	From    protocol.Stage
	To      protocol.Stage
	Status  protocol.Status
}

// ParseStageChange parses a stage_change message of the form
// "<from> -> <to> (<status>)".
func ParseStageChange(msg string) (from, to protocol.Stage, status protocol.Status, err error) {
	arrow := strings.Index(msg, " -> ")
	open := strings.LastIndex(msg, " (")
	if arrow < 0 || open < arrow || !strings.HasSuffix(msg, ")") {
		return "", "", "", fmt.Errorf("malformed stage change %q", msg)
	}
	from = protocol.Stage(msg[:arrow])
	to = protocol.Stage(msg[arrow+len(" -> ") : open])
	status = protocol.Status(msg[open+len(" (") : len(msg)-1])
	if !to.Valid() {
		return "", "", "", fmt.Errorf("unknown stage %q in %q", to, msg)
	}
	return from, to, status, nil
}

// Replay rebuilds a worker's state from its events in log order. A
// registration resets the state to exploring/starting, every stage_change
// sets stage and status, and a failed event marks the worker failed.
// Unparseable stage changes are skipped.
func Replay(events []Event) (State, []Step) {
	st := State{Stage: protocol.StageExploring, Status: protocol.StatusStarting}
	var steps []Step
	for _, e := range events {
		switch e.Type {
		case protocol.EventRegistered:
			st = State{Stage: protocol.StageExploring, Status: protocol.StatusStarting}
		case protocol.EventStageChange:
			from, to, status, err := ParseStageChange(e.Message)
			if err != nil {
				continue
			}
			st = State{Stage: to, Status: status}
			steps = append(steps, Step{EventID: e.ID, From: from, To: to, Status: status})
		case protocol.EventFailed:
			st.Status = protocol.StatusFailed
		}
	}
	return st, steps
}
