package stage

import (
	"context"
	"errors"

	"work/pkg/notify"
	"work/pkg/protocol"
	"work/pkg/telemetry"
)

// Store is the slice of the session store the tracker needs.
type Store interface {
	Worker(ctx context.Context, id int64) (*protocol.Worker, error)
	UpdateStage(ctx context.Context, id int64, stage protocol.Stage, status protocol.Status) error
	UpdatePR(ctx context.Context, id int64, number int, url string) error
	LogEvent(ctx context.Context, workerID int64, eventType, message string) error
	EndSession(ctx context.Context, workerID int64, reason protocol.EndReason, contextAtEnd int, summary string) (*protocol.Session, error)
}

// Tracker classifies observed commands and persists the resulting
// transitions. It never returns an error: tracking must not interrupt the
// worker, so store and notifier failures go to Warn and the observation is
// dropped.
type Tracker struct {
	Store    Store
	Notifier notify.Notifier      // optional
	Metrics  telemetry.Recorder   // optional
	Warn     func(string, ...any) // optional

	// ContextPercent reports the worker's context usage when its session
	// ends. Optional; 0 is recorded without it.
	ContextPercent func(ctx context.Context, w *protocol.Worker) int
}

// Observe classifies obs and applies the transition for workerID. The
// returned outcome has Changed=false and no effects when nothing was applied.
func (t *Tracker) Observe(ctx context.Context, workerID int64, obs Observation) Outcome {
	ev := Classify(obs)
	if ev.Kind == NoMatch {
		return Outcome{Event: ev}
	}

	w, err := t.Store.Worker(ctx, workerID)
	if err != nil {
		t.warn("stage tracking skipped for worker %d: %v", workerID, err)
		return Outcome{Event: ev}
	}

	out := Transition(State{Stage: w.Stage, Status: w.Status}, ev)
	if out.Changed {
		if err := t.Store.UpdateStage(ctx, workerID, out.To.Stage, out.To.Status); err != nil {
			t.warn("stage update dropped for worker %d: %v", workerID, err)
			return Outcome{Event: ev, From: out.From, To: out.From}
		}
	}

	for _, eff := range out.Effects {
		t.apply(ctx, w, eff)
	}
	if t.Metrics != nil && (out.Changed || len(out.Effects) > 0) {
		t.Metrics.Transition(ctx, ev.Kind.String(), string(out.From.Stage), string(out.To.Stage))
	}
	return out
}

func (t *Tracker) apply(ctx context.Context, w *protocol.Worker, eff Effect) {
	var err error
	switch eff.Kind {
	case EffectRecordPR:
		err = t.Store.UpdatePR(ctx, w.ID, eff.PRNumber, eff.PRURL)
	case EffectLogEvent:
		err = t.Store.LogEvent(ctx, w.ID, eff.EventType, eff.Message)
	case EffectEndSession:
		pct := 0
		if t.ContextPercent != nil {
			pct = t.ContextPercent(ctx, w)
		}
		_, err = t.Store.EndSession(ctx, w.ID, protocol.EndCompleted, pct, eff.Message)
		var nf *protocol.NotFoundError
		if errors.As(err, &nf) {
			return
		}
	case EffectNotify:
		if t.Notifier == nil {
			return
		}
		err = t.Notifier.Notify(ctx, notify.Notification{
			WorkerID: w.ID,
			Issue:    w.IssueRef(),
			Kind:     eff.Notify,
			Body:     eff.Message,
		})
	}
	if err != nil {
		t.warn("worker %d: %v", w.ID, err)
	}
}

func (t *Tracker) warn(format string, args ...any) {
	if t.Warn != nil {
		t.Warn(format, args...)
	}
}
