package reminder

import (
	"testing"
	"time"
)

func TestMaybeWarn_Levels(t *testing.T) {
	p := DefaultPolicy()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		pct       int
		want      Level
		threshold int
	}{
		{0, LevelNone, 0},
		{59, LevelNone, 0},
		{60, LevelWarn, 60},
		{74, LevelWarn, 60},
		{75, LevelRecommend, 75},
		{84, LevelRecommend, 75},
		{85, LevelUrgent, 85},
		{100, LevelUrgent, 85},
	}
	for _, tt := range tests {
		r, next := MaybeWarn(tt.pct, time.Time{}, now, p)
		if r.Level != tt.want || r.Threshold != tt.threshold {
			t.Errorf("MaybeWarn(%d) = %s/%d, want %s/%d", tt.pct, r.Level, r.Threshold, tt.want, tt.threshold)
		}
		if r.Emitted() {
			if !next.Equal(now) {
				t.Errorf("MaybeWarn(%d) last = %v, want now", tt.pct, next)
			}
			if r.Message == "" || r.Percent != tt.pct {
				t.Errorf("MaybeWarn(%d) = %+v", tt.pct, r)
			}
		} else if !next.IsZero() {
			t.Errorf("MaybeWarn(%d) advanced last without a message", tt.pct)
		}
	}
}

func TestMaybeWarn_AtMostOneHighestThreshold(t *testing.T) {
	p := Policy{Warn: 10, Recommend: 20, Urgent: 30, Interval: time.Minute}
	now := time.Now()
	for pct := 0; pct <= 100; pct++ {
		r, _ := MaybeWarn(pct, time.Time{}, now, p)
		highest := 0
		for _, th := range []int{p.Warn, p.Recommend, p.Urgent} {
			if th <= pct {
				highest = th
			}
		}
		if r.Threshold != highest {
			t.Errorf("pct %d: threshold %d, want %d", pct, r.Threshold, highest)
		}
	}
}

func TestMaybeWarn_Throttled(t *testing.T) {
	p := DefaultPolicy()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	r, last := MaybeWarn(80, time.Time{}, start, p)
	if !r.Emitted() {
		t.Fatal("first reminder not emitted")
	}

	r, next := MaybeWarn(90, last, start.Add(59*time.Second), p)
	if r.Emitted() {
		t.Error("reminder inside the interval")
	}
	if !next.Equal(last) {
		t.Error("suppressed reminder moved last")
	}

	r, next = MaybeWarn(90, last, start.Add(60*time.Second), p)
	if r.Level != LevelUrgent {
		t.Errorf("after interval level = %s, want urgent", r.Level)
	}
	if !next.Equal(start.Add(60 * time.Second)) {
		t.Error("emitted reminder did not advance last")
	}
}

func TestMaybeWarn_BelowThresholdKeepsLast(t *testing.T) {
	last := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	r, next := MaybeWarn(30, last, last.Add(time.Hour), DefaultPolicy())
	if r.Emitted() || !next.Equal(last) {
		t.Errorf("got %+v, %v", r, next)
	}
}
