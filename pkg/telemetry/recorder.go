// Package telemetry counts stage transitions, trims, rollovers and context
// reminders as OpenTelemetry metrics. Recording never fails the caller; when
// no collector is configured the Nop recorder is used.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Recorder receives domain measurements.
type Recorder interface {
	Transition(ctx context.Context, event, from, to string)
	Trim(ctx context.Context, trimmed int, savedBytes int64, meaningful bool)
	Rollover(ctx context.Context, contextPercent int)
	Reminder(ctx context.Context, level string)
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) Transition(context.Context, string, string, string) {} //nolint:revive // interface impl
func (Nop) Trim(context.Context, int, int64, bool)              {} //nolint:revive // interface impl
func (Nop) Rollover(context.Context, int)                       {} //nolint:revive // interface impl
func (Nop) Reminder(context.Context, string)                    {} //nolint:revive // interface impl

// Metrics records measurements on instruments created from a meter.
type Metrics struct {
	transitions metric.Int64Counter
	trims       metric.Int64Counter
	trimSaved   metric.Int64Counter
	rollovers   metric.Int64Counter
	rolloverPct metric.Int64Histogram
	reminders   metric.Int64Counter
}

// NewMetrics creates the work instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.transitions, err = meter.Int64Counter(
		"work_stage_transitions_total",
		metric.WithDescription("Stage transitions applied from observed tool events"),
		metric.WithUnit("{transition}"),
	); err != nil {
		return nil, fmt.Errorf("creating transitions counter: %w", err)
	}
	if m.trims, err = meter.Int64Counter(
		"work_trims_total",
		metric.WithDescription("Transcript trims performed"),
		metric.WithUnit("{trim}"),
	); err != nil {
		return nil, fmt.Errorf("creating trims counter: %w", err)
	}
	if m.trimSaved, err = meter.Int64Counter(
		"work_trim_saved_bytes_total",
		metric.WithDescription("Bytes removed from transcripts by trimming"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, fmt.Errorf("creating trim bytes counter: %w", err)
	}
	if m.rollovers, err = meter.Int64Counter(
		"work_rollovers_total",
		metric.WithDescription("Session rollovers performed"),
		metric.WithUnit("{rollover}"),
	); err != nil {
		return nil, fmt.Errorf("creating rollovers counter: %w", err)
	}
	if m.rolloverPct, err = meter.Int64Histogram(
		"work_rollover_context_percent",
		metric.WithDescription("Context utilisation when a session was rolled over"),
		metric.WithUnit("%"),
	); err != nil {
		return nil, fmt.Errorf("creating rollover histogram: %w", err)
	}
	if m.reminders, err = meter.Int64Counter(
		"work_context_reminders_total",
		metric.WithDescription("Context reminders emitted"),
		metric.WithUnit("{reminder}"),
	); err != nil {
		return nil, fmt.Errorf("creating reminders counter: %w", err)
	}
	return &m, nil
}

// Transition counts one applied transition.
func (m *Metrics) Transition(ctx context.Context, event, from, to string) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", event),
		attribute.String("from_stage", from),
		attribute.String("to_stage", to),
	))
}

// Trim counts one trim and the bytes it saved.
func (m *Metrics) Trim(ctx context.Context, trimmed int, savedBytes int64, meaningful bool) {
	opt := metric.WithAttributes(attribute.Bool("meaningful", meaningful))
	m.trims.Add(ctx, 1, opt)
	if trimmed > 0 && savedBytes > 0 {
		m.trimSaved.Add(ctx, savedBytes, opt)
	}
}

// Rollover counts one rollover and the context it was taken at.
func (m *Metrics) Rollover(ctx context.Context, contextPercent int) {
	m.rollovers.Add(ctx, 1)
	m.rolloverPct.Record(ctx, int64(contextPercent))
}

// Reminder counts one emitted reminder.
func (m *Metrics) Reminder(ctx context.Context, level string) {
	m.reminders.Add(ctx, 1, metric.WithAttributes(attribute.String("level", level)))
}
