package scheduler

import (
	"testing"
	"time"
)

func must(layout, s string) time.Time {
	t, err := time.Parse(layout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func rfc(s string) time.Time {
	return must(time.RFC3339, s)
}

func TestNextSlot_HourlyBeforeAnchor(t *testing.T) {
	job := &Job{AnchorTime: rfc("2026-01-01T10:00:00Z"), IntervalValue: 1, IntervalUnit: UnitHour}
	got := nextSlot(job, rfc("2026-01-01T09:00:00Z"), false)
	want := rfc("2026-01-01T10:00:00Z")
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestNextSlot_ExactSlot_NotAfterExecution(t *testing.T) {
	job := &Job{AnchorTime: rfc("2026-01-01T10:00:00Z"), IntervalValue: 1, IntervalUnit: UnitHour}
	got := nextSlot(job, rfc("2026-01-01T12:00:00Z"), false)
	want := rfc("2026-01-01T12:00:00Z")
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestNextSlot_ExactSlot_AfterExecution(t *testing.T) {
	job := &Job{AnchorTime: rfc("2026-01-01T10:00:00Z"), IntervalValue: 1, IntervalUnit: UnitHour}
	got := nextSlot(job, rfc("2026-01-01T12:00:00Z"), true)
	want := rfc("2026-01-01T13:00:00Z")
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestNextSlot_BetweenSlots(t *testing.T) {
	job := &Job{AnchorTime: rfc("2026-01-01T10:00:00Z"), IntervalValue: 1, IntervalUnit: UnitHour}
	got := nextSlot(job, rfc("2026-01-01T12:30:00Z"), false)
	want := rfc("2026-01-01T13:00:00Z")
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestNextSlot_WeeklyInterval(t *testing.T) {
	job := &Job{AnchorTime: rfc("2026-01-01T09:00:00Z"), IntervalValue: 2, IntervalUnit: UnitWeek}
	got := nextSlot(job, rfc("2026-01-10T00:00:00Z"), false)
	want := rfc("2026-01-15T09:00:00Z")
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestNextSlot_MonthlyClampsShortMonth(t *testing.T) {
	job := &Job{AnchorTime: rfc("2026-01-31T08:00:00Z"), IntervalValue: 1, IntervalUnit: UnitMonth}
	got := nextSlot(job, rfc("2026-02-15T00:00:00Z"), false)
	want := rfc("2026-02-28T08:00:00Z")
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestNextSlot_MonthlyExactAfterExecution(t *testing.T) {
	job := &Job{AnchorTime: rfc("2026-01-31T08:00:00Z"), IntervalValue: 1, IntervalUnit: UnitMonth}
	got := nextSlot(job, rfc("2026-02-28T08:00:00Z"), true)
	want := rfc("2026-03-31T08:00:00Z")
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestNextSlot_IsPure(t *testing.T) {
	job := &Job{AnchorTime: rfc("2026-01-01T10:00:00Z"), IntervalValue: 15, IntervalUnit: UnitMinute}
	now := rfc("2026-01-02T03:47:00Z")
	a := nextSlot(job, now, false)
	b := nextSlot(job, now, false)
	if !a.Equal(b) {
		t.Fatalf("nextSlot not pure: %v != %v", a, b)
	}
}

func TestResumeNextRun_Recurring(t *testing.T) {
	job := &Job{Kind: KindRecurring, AnchorTime: rfc("2025-01-01T10:00:00Z"), IntervalValue: 1, IntervalUnit: UnitHour}
	got := ResumeNextRun(job, rfc("2025-01-01T14:17:00Z"))
	want := rfc("2025-01-01T15:00:00Z")
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestResumeNextRun_Once(t *testing.T) {
	anchor := rfc("2025-01-01T10:00:00Z")
	job := &Job{Kind: KindOnce, AnchorTime: anchor}
	got := ResumeNextRun(job, rfc("2025-01-01T14:17:00Z"))
	if !got.Equal(anchor) {
		t.Fatalf("got %v want %v", got, anchor)
	}
}

func TestNextSlot_AnchorNeverMoves(t *testing.T) {
	job := &Job{AnchorTime: rfc("2026-01-01T10:00:00Z"), IntervalValue: 1, IntervalUnit: UnitHour}
	anchor := job.AnchorTime
	nextSlot(job, rfc("2026-06-01T00:00:00Z"), true)
	if !job.AnchorTime.Equal(anchor) {
		t.Fatalf("nextSlot mutated AnchorTime")
	}
}
