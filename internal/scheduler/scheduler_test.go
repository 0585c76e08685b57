package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/abdatta/wappflow/internal/pkg/metrics"
)

// fakeStore is an in-memory JobStore sufficient to drive the dispatch loop
// in tests without a real database.
type fakeStore struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	history map[string]*HistoryEntry
	nextID  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: map[string]*Job{}, history: map[string]*HistoryEntry{}}
}

func (f *fakeStore) genID() string {
	f.nextID++
	return time.Now().String() + string(rune('a'+f.nextID))
}

func (f *fakeStore) Create(ctx context.Context, job *Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if job.ID == "" {
		job.ID = f.genID()
	}
	if job.Status == "" {
		job.Status = StatusActive
	}
	if job.NextRun == nil {
		nr := job.AnchorTime
		job.NextRun = &nr
	}
	cp := *job
	f.jobs[job.ID] = &cp
	return nil
}

func (f *fakeStore) Get(ctx context.Context, id string) (*Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (f *fakeStore) List(ctx context.Context) ([]*Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Job
	for _, j := range f.jobs {
		cp := *j
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeStore) ListDue(ctx context.Context, now time.Time) ([]*Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Job
	for _, j := range f.jobs {
		if j.Status != StatusActive {
			continue
		}
		if j.Kind == KindOnce && !j.AnchorTime.After(now) {
			cp := *j
			out = append(out, &cp)
			continue
		}
		if j.Kind == KindRecurring && j.NextRun != nil && !j.NextRun.After(now) {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) Update(ctx context.Context, job *Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.jobs[job.ID]; !ok {
		return ErrNotFound
	}
	cp := *job
	f.jobs[job.ID] = &cp
	return nil
}

func (f *fakeStore) SetStatus(ctx context.Context, id string, status Status, nextRun, lastRun *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return ErrNotFound
	}
	j.Status = status
	j.NextRun = nextRun
	j.LastRun = lastRun
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.jobs, id)
	return nil
}

func (f *fakeStore) HistoryAppend(ctx context.Context, entry *HistoryEntry) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if entry.ID == "" {
		entry.ID = f.genID()
	}
	cp := *entry
	f.history[entry.ID] = &cp
	return entry.ID, nil
}

func (f *fakeStore) HistoryUpdate(ctx context.Context, id string, status HistoryStatus, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.history[id]
	if !ok {
		return ErrNotFound
	}
	e.Status = status
	e.Error = errMsg
	return nil
}

func (f *fakeStore) HistoryList(ctx context.Context, jobID string, limit int) ([]*HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*HistoryEntry
	for _, e := range f.history {
		if jobID == "" || e.JobID == jobID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) GetSetting(ctx context.Context, key string) (string, bool, error) { return "", false, nil }
func (f *fakeStore) SetSetting(ctx context.Context, key, value string) error          { return nil }

// fakeSender returns a scripted outcome on every Send call.
type fakeSender struct {
	mu      sync.Mutex
	ready   bool
	outcome SendOutcome
	err     error
	calls   int
}

func (f *fakeSender) IsReady(ctx context.Context) bool { return f.ready }
func (f *fakeSender) Send(ctx context.Context, contactName, message string) (SendOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.outcome, f.err
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []NotifyEvent
}

func (f *fakeNotifier) Notify(ctx context.Context, event NotifyEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) NowUTC() time.Time { return c.now }

func newTestScheduler(store *fakeStore, sender *fakeSender, notifier *fakeNotifier, now time.Time) *Scheduler {
	clk := &fakeClock{now: now}
	return New(store, sender, notifier, clk, metrics.Noop(), Options{TickInterval: time.Minute})
}

func historyByJob(store *fakeStore, jobID string) []*HistoryEntry {
	var out []*HistoryEntry
	for _, e := range store.history {
		if e.JobID == jobID {
			out = append(out, e)
		}
	}
	return out
}

// Scenario 1: catch-up after downtime, within tolerance.
func TestScenario_CatchUpWithinTolerance(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	tol := 10
	job := &Job{
		Kind: KindRecurring, ContactName: "Alice", Message: "hi",
		AnchorTime: rfc("2025-01-01T10:00:00Z"), IntervalValue: 1, IntervalUnit: UnitHour,
		ToleranceMinutes: &tol,
	}
	store.Create(ctx, job)

	sender := &fakeSender{ready: true, outcome: SendOK}
	notifier := &fakeNotifier{}
	s := newTestScheduler(store, sender, notifier, rfc("2025-01-01T11:05:00Z"))
	s.Tick(ctx)

	hist := historyByJob(store, job.ID)
	if len(hist) != 1 || hist[0].Status != HistorySent {
		t.Fatalf("expected one sent entry, got %+v", hist)
	}
	got, _ := store.Get(ctx, job.ID)
	want := rfc("2025-01-01T12:00:00Z")
	if got.NextRun == nil || !got.NextRun.Equal(want) {
		t.Fatalf("nextRun = %v, want %v", got.NextRun, want)
	}
}

// Scenario 2: skipped slot, beyond tolerance.
func TestScenario_SkippedSlot(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	tol := 10
	job := &Job{
		Kind: KindRecurring, ContactName: "Alice", Message: "hi",
		AnchorTime: rfc("2025-01-01T10:00:00Z"), IntervalValue: 1, IntervalUnit: UnitHour,
		ToleranceMinutes: &tol,
	}
	store.Create(ctx, job)

	sender := &fakeSender{ready: true, outcome: SendOK}
	notifier := &fakeNotifier{}
	s := newTestScheduler(store, sender, notifier, rfc("2025-01-01T11:20:00Z"))
	s.Tick(ctx)

	hist := historyByJob(store, job.ID)
	if len(hist) != 1 || hist[0].Status != HistorySkipped {
		t.Fatalf("expected one skipped entry, got %+v", hist)
	}
	if sender.calls != 0 {
		t.Fatalf("expected no send, got %d calls", sender.calls)
	}
	got, _ := store.Get(ctx, job.ID)
	want := rfc("2025-01-01T12:00:00Z")
	if got.NextRun == nil || !got.NextRun.Equal(want) {
		t.Fatalf("nextRun = %v, want %v", got.NextRun, want)
	}
}

// Scenario 3: skip-then-execute within a single tick.
func TestScenario_SkipThenExecute(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	tol := 10
	job := &Job{
		Kind: KindRecurring, ContactName: "Alice", Message: "hi",
		AnchorTime: rfc("2025-01-01T10:00:00Z"), IntervalValue: 1, IntervalUnit: UnitHour,
		ToleranceMinutes: &tol,
	}
	store.Create(ctx, job)

	sender := &fakeSender{ready: true, outcome: SendOK}
	notifier := &fakeNotifier{}
	s := newTestScheduler(store, sender, notifier, rfc("2025-01-01T12:03:00Z"))
	s.Tick(ctx)

	hist := historyByJob(store, job.ID)
	if len(hist) != 2 {
		t.Fatalf("expected skip + sent, got %+v", hist)
	}
	got, _ := store.Get(ctx, job.ID)
	want := rfc("2025-01-01T13:00:00Z")
	if got.NextRun == nil || !got.NextRun.Equal(want) {
		t.Fatalf("nextRun = %v, want %v", got.NextRun, want)
	}
}

// Scenario 4: unknown outcome advances cadence without an in-slot retry.
func TestScenario_UnknownDoesNotRetry(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	tol := 30
	job := &Job{
		Kind: KindRecurring, ContactName: "Alice", Message: "hi",
		AnchorTime: rfc("2025-01-01T10:00:00Z"), IntervalValue: 1, IntervalUnit: UnitHour,
		ToleranceMinutes: &tol,
	}
	store.Create(ctx, job)

	sender := &fakeSender{ready: true, outcome: SendUnknown, err: nil}
	notifier := &fakeNotifier{}
	s := newTestScheduler(store, sender, notifier, rfc("2025-01-01T10:00:00Z"))
	s.Tick(ctx)

	got, _ := store.Get(ctx, job.ID)
	want := rfc("2025-01-01T11:00:00Z")
	if got.NextRun == nil || !got.NextRun.Equal(want) {
		t.Fatalf("nextRun = %v, want %v", got.NextRun, want)
	}

	s.clock.(*fakeClock).now = rfc("2025-01-01T10:01:00Z")
	s.Tick(ctx)
	if sender.calls != 1 {
		t.Fatalf("expected no retry, got %d calls", sender.calls)
	}
}

// Scenario 6: a once job anchored in the past executes and completes.
func TestScenario_OnceJobInThePast(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	job := &Job{
		Kind: KindOnce, ContactName: "Alice", Message: "hi",
		AnchorTime: rfc("2025-01-01T09:55:00Z"),
	}
	store.Create(ctx, job)

	sender := &fakeSender{ready: true, outcome: SendOK}
	notifier := &fakeNotifier{}
	s := newTestScheduler(store, sender, notifier, rfc("2025-01-01T10:00:00Z"))
	s.Tick(ctx)

	got, _ := store.Get(ctx, job.ID)
	if got.Status != StatusCompleted {
		t.Fatalf("status = %v, want completed", got.Status)
	}
}

// Scenario 5: pause/resume preserves cadence alignment to the anchor.
func TestScenario_PauseResumePreservesCadence(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	job := &Job{
		Kind: KindRecurring, ContactName: "Alice", Message: "hi",
		AnchorTime: rfc("2025-01-01T10:00:00Z"), IntervalValue: 1, IntervalUnit: UnitHour,
	}
	store.Create(ctx, job)

	if err := store.SetStatus(ctx, job.ID, StatusPaused, nil, nil); err != nil {
		t.Fatalf("pause: %v", err)
	}

	paused, _ := store.Get(ctx, job.ID)
	if paused.Status != StatusPaused || paused.NextRun != nil {
		t.Fatalf("expected paused job with nil nextRun, got %+v", paused)
	}

	resumeAt := rfc("2025-01-01T14:17:00Z")
	next := ResumeNextRun(paused, resumeAt)
	want := rfc("2025-01-01T15:00:00Z")
	if !next.Equal(want) {
		t.Fatalf("ResumeNextRun = %v, want %v", next, want)
	}

	if err := store.SetStatus(ctx, job.ID, StatusActive, &next, paused.LastRun); err != nil {
		t.Fatalf("resume: %v", err)
	}

	sender := &fakeSender{ready: true, outcome: SendOK}
	notifier := &fakeNotifier{}
	s := newTestScheduler(store, sender, notifier, want)
	s.Tick(ctx)

	if sender.calls != 1 {
		t.Fatalf("expected the resumed slot to fire once it's due, got %d calls", sender.calls)
	}
}

// TestExecutingSet_PreventsOverlap verifies the at-most-one-concurrent
// guarantee: a job already in executingSet is not re-selected.
func TestExecutingSet_PreventsOverlap(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	job := &Job{Kind: KindOnce, ContactName: "Alice", Message: "hi", AnchorTime: rfc("2025-01-01T09:00:00Z")}
	store.Create(ctx, job)

	sender := &fakeSender{ready: true, outcome: SendOK}
	notifier := &fakeNotifier{}
	s := newTestScheduler(store, sender, notifier, rfc("2025-01-01T10:00:00Z"))

	s.markExecuting(job.ID)
	s.Tick(ctx)
	if sender.calls != 0 {
		t.Fatalf("expected job held in executingSet to be skipped, got %d calls", sender.calls)
	}
}

func TestIsReadyFalse_SkipsTickEntirely(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	job := &Job{Kind: KindOnce, ContactName: "Alice", Message: "hi", AnchorTime: rfc("2025-01-01T09:00:00Z")}
	store.Create(ctx, job)

	sender := &fakeSender{ready: false}
	notifier := &fakeNotifier{}
	s := newTestScheduler(store, sender, notifier, rfc("2025-01-01T10:00:00Z"))
	s.Tick(ctx)

	if sender.calls != 0 {
		t.Fatalf("expected no calls when sender is not ready")
	}
}
