package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/abdatta/wappflow/internal/scheduler"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_CreateAndGet(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	job := &scheduler.Job{
		Kind:          scheduler.KindRecurring,
		ContactName:   "Alice",
		Message:       "hello",
		AnchorTime:    time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC),
		IntervalValue: 1,
		IntervalUnit:  scheduler.UnitHour,
	}
	if err := s.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if job.ID == "" {
		t.Fatalf("Create did not assign an ID")
	}

	got, err := s.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ContactName != "Alice" || got.Status != scheduler.StatusActive {
		t.Fatalf("unexpected job: %+v", got)
	}
	if got.NextRun == nil || !got.NextRun.Equal(job.AnchorTime) {
		t.Fatalf("expected NextRun seeded to AnchorTime, got %v", got.NextRun)
	}
}

func TestStore_ListDue(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	due := &scheduler.Job{
		Kind: scheduler.KindOnce, ContactName: "Bob", Message: "due",
		AnchorTime: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
	}
	future := &scheduler.Job{
		Kind: scheduler.KindOnce, ContactName: "Carl", Message: "future",
		AnchorTime: time.Date(2026, 1, 1, 11, 0, 0, 0, time.UTC),
	}
	for _, j := range []*scheduler.Job{due, future} {
		if err := s.Create(ctx, j); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	got, err := s.ListDue(ctx, now)
	if err != nil {
		t.Fatalf("ListDue: %v", err)
	}
	if len(got) != 1 || got[0].ID != due.ID {
		t.Fatalf("expected only the due job, got %+v", got)
	}
}

func TestStore_SetStatus(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	job := &scheduler.Job{
		Kind: scheduler.KindOnce, ContactName: "Dana", Message: "once",
		AnchorTime: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
	}
	if err := s.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	lastRun := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	if err := s.SetStatus(ctx, job.ID, scheduler.StatusCompleted, nil, &lastRun); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	got, err := s.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != scheduler.StatusCompleted || got.NextRun != nil {
		t.Fatalf("unexpected job after SetStatus: %+v", got)
	}
}

func TestStore_HistoryAppendAndUpdate(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	job := &scheduler.Job{
		Kind: scheduler.KindOnce, ContactName: "Eve", Message: "hi",
		AnchorTime: time.Now().UTC(),
	}
	if err := s.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	id, err := s.HistoryAppend(ctx, &scheduler.HistoryEntry{
		JobID: job.ID, Kind: job.Kind, ContactName: job.ContactName,
		Message: job.Message, Status: scheduler.HistorySending, Timestamp: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("HistoryAppend: %v", err)
	}
	if err := s.HistoryUpdate(ctx, id, scheduler.HistorySent, ""); err != nil {
		t.Fatalf("HistoryUpdate: %v", err)
	}

	entries, err := s.HistoryList(ctx, job.ID, 10)
	if err != nil {
		t.Fatalf("HistoryList: %v", err)
	}
	if len(entries) != 1 || entries[0].Status != scheduler.HistorySent {
		t.Fatalf("unexpected history: %+v", entries)
	}
}

func TestStore_DeleteCascadesHistory(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	job := &scheduler.Job{
		Kind: scheduler.KindOnce, ContactName: "Finn", Message: "hi",
		AnchorTime: time.Now().UTC(),
	}
	if err := s.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.HistoryAppend(ctx, &scheduler.HistoryEntry{
		JobID: job.ID, Kind: job.Kind, ContactName: job.ContactName,
		Message: job.Message, Status: scheduler.HistorySent, Timestamp: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("HistoryAppend: %v", err)
	}

	if err := s.Delete(ctx, job.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	entries, err := s.HistoryList(ctx, job.ID, 10)
	if err != nil {
		t.Fatalf("HistoryList: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected cascaded history to be gone, got %+v", entries)
	}
}

func TestStore_Settings(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	if _, ok, err := s.GetSetting(ctx, "timezone"); err != nil || ok {
		t.Fatalf("expected missing setting, got ok=%v err=%v", ok, err)
	}
	if err := s.SetSetting(ctx, "timezone", "America/New_York"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	v, ok, err := s.GetSetting(ctx, "timezone")
	if err != nil || !ok || v != "America/New_York" {
		t.Fatalf("unexpected setting: v=%q ok=%v err=%v", v, ok, err)
	}
}
