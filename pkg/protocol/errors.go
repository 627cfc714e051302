package protocol

import "fmt"

// NotFoundError reports a missing file, worker row or session row.
// Kind names what was looked up ("worker", "session", "transcript").
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Key)
}

// MalformedError reports an unparseable transcript line. Extraction skips
// these and trimming copies them through, reporting the first in its stats.
type MalformedError struct {
	Line int
	Err  error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed transcript line %d: %v", e.Line, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// StoreUnavailableError wraps any failure of the durable backend.
// Passive paths (heartbeat, stage transitions) swallow it; explicit
// actions (trim, rollover) surface it.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable (%s): %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// PreconditionFailedError reports an operation requested in a state that
// does not allow it, e.g. rollover without an active session.
type PreconditionFailedError struct {
	Reason string
}

func (e *PreconditionFailedError) Error() string {
	return "precondition failed: " + e.Reason
}
