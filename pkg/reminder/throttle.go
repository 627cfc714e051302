// Package reminder decides when a worker should be told about its context
// usage. MaybeWarn is pure; callers persist the returned timestamp.
package reminder

import (
	"fmt"
	"time"
)

// Level is the severity of a reminder.
type Level int

// Levels in ascending severity.
const (
	LevelNone Level = iota
	LevelWarn
	LevelRecommend
	LevelUrgent
)

func (l Level) String() string {
	switch l {
	case LevelWarn:
		return "warn"
	case LevelRecommend:
		return "recommend"
	case LevelUrgent:
		return "urgent"
	default:
		return "none"
	}
}

// Policy holds the thresholds (percent) and the minimum gap between two
// reminders.
type Policy struct {
	Warn      int
	Recommend int
	Urgent    int
	Interval  time.Duration
}

// DefaultPolicy is 60/75/85 percent with at most one reminder a minute.
func DefaultPolicy() Policy {
	return Policy{Warn: 60, Recommend: 75, Urgent: 85, Interval: 60 * time.Second}
}

// Reminder is an advisory message. Level is LevelNone when there is nothing
// to say.
type Reminder struct {
	Level     Level
	Threshold int
	Percent   int
	Message   string
}

// Emitted reports whether the reminder carries a message.
func (r Reminder) Emitted() bool { return r.Level != LevelNone }

// MaybeWarn returns the reminder for pct, or none when pct is below the warn
// threshold or the previous reminder at last is less than Interval old.
// Thresholds are checked from the highest down, so at most one fires. The
// returned time is now when a reminder fires and last otherwise.
func MaybeWarn(pct int, last, now time.Time, p Policy) (Reminder, time.Time) {
	if pct < p.Warn {
		return Reminder{}, last
	}
	if !last.IsZero() && now.Sub(last) < p.Interval {
		return Reminder{}, last
	}

	r := Reminder{Percent: pct}
	switch {
	case pct >= p.Urgent:
		r.Level, r.Threshold = LevelUrgent, p.Urgent
		r.Message = fmt.Sprintf("Context at %d%%. Wrap up now: write a handoff summary and run `work rollover`.", pct)
	case pct >= p.Recommend:
		r.Level, r.Threshold = LevelRecommend, p.Recommend
		r.Message = fmt.Sprintf("Context at %d%%. Consider `work trim` or a rollover at the next stopping point.", pct)
	default:
		r.Level, r.Threshold = LevelWarn, p.Warn
		r.Message = fmt.Sprintf("Context at %d%%. Keep tool output small.", pct)
	}
	return r, now
}
