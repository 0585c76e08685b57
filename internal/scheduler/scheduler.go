package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/abdatta/wappflow/internal/clock"
	"github.com/abdatta/wappflow/internal/consts"
	"github.com/abdatta/wappflow/internal/pkg/logs"
	"github.com/abdatta/wappflow/internal/pkg/metrics"
	"github.com/abdatta/wappflow/internal/pkg/utils"
	"github.com/bytedance/gg/gmap"
	"github.com/google/uuid"
)

// Options configures a Scheduler.
type Options struct {
	// TickInterval is the dispatch loop cadence. The design targets once per
	// wall minute; tests use a shorter interval or drive Tick directly.
	TickInterval time.Duration
}

// Scheduler is the dispatch engine: it ticks, asks the JobStore for due
// jobs, advances them through Recurrence, and drives MessageSender under
// the executingSet and sender-serialisation disciplines.
type Scheduler struct {
	store    JobStore
	sender   MessageSender
	notifier Notifier
	clock    clock.Clock
	metrics  *metrics.Metrics
	opts     Options

	executingMu sync.Mutex
	executing   map[string]struct{}

	// senderMu serialises calls into MessageSender. The dispatch loop is
	// already sequential (runJob is never called concurrently for distinct
	// jobs), so this is belt-and-braces against future parallelisation, not
	// the sole correctness mechanism.
	senderMu sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Scheduler. Call Start to begin ticking.
func New(store JobStore, sender MessageSender, notifier Notifier, clk clock.Clock, m *metrics.Metrics, opts Options) *Scheduler {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Minute
	}
	if m == nil {
		m = metrics.Noop()
	}
	return &Scheduler{
		store:     store,
		sender:    sender,
		notifier:  notifier,
		clock:     clk,
		metrics:   m,
		opts:      opts,
		executing: make(map[string]struct{}),
	}
}

// Start spawns the dispatch loop in its own goroutine and returns
// immediately.
func (s *Scheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go s.loop(runCtx)
}

// Stop signals the dispatch loop to exit and waits for the in-flight tick,
// if any, to finish. It does not abort a job attempt in progress: runJob
// always runs to completion once started, per the no-abort-on-shutdown
// contract.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs exactly one dispatch iteration. Exported so tests can drive it
// without waiting on the ticker.
func (s *Scheduler) Tick(ctx context.Context) {
	s.metrics.TicksTotal.Inc()

	if !s.sender.IsReady(ctx) {
		s.metrics.TickSkippedTotal.Inc()
		logs.CtxDebug(ctx, "scheduler: tick skipped: %s", ErrNotReady)
		return
	}

	now := s.clock.NowUTC()
	due, err := s.store.ListDue(ctx, now)
	if err != nil {
		logs.CtxWarn(ctx, "scheduler: listDue failed: %v", err)
		return
	}

	for _, job := range due {
		s.metrics.JobsDueTotal.Inc()
		s.processDueJob(ctx, job, now)
	}

	if ids := s.ExecutingIDs(); len(ids) > 0 {
		logs.CtxDebug(ctx, "scheduler: %d job(s) still in flight: %v", len(ids), ids)
	}
}

// ExecutingIDs returns the ids of jobs currently mid-send. Exposed for
// diagnostics; order is unspecified.
func (s *Scheduler) ExecutingIDs() []string {
	s.executingMu.Lock()
	defer s.executingMu.Unlock()
	return gmap.ToSlice(s.executing, func(id string, _ struct{}) string { return id })
}

// processDueJob decides whether a due job's current slot should be sent or
// skipped. "Current slot" is recomputed from the anchor/interval math
// (currentSlot), not trusted from the stored NextRun field: NextRun can lag
// behind by more than one interval — on the first tick after a long-down
// process, or for a job whose anchorTime is already far in the past — and
// comparing "now" against a stale NextRun would misjudge lateness entirely.
//
// Two independent checks follow from that recomputed slot:
//   - backlog: if the stored NextRun is more than one interval behind the
//     recomputed slot, at least one intermediate occurrence was superseded
//     before ever being evaluated. That whole gap collapses into a single
//     skipped HistoryEntry rather than one per missed slot.
//   - lateness: the recomputed slot itself is then checked against
//     tolerance, independently of the backlog check above.
func (s *Scheduler) processDueJob(ctx context.Context, job *Job, now time.Time) {
	if s.isExecuting(job.ID) {
		return
	}

	if job.Kind == KindRecurring && job.ToleranceMinutes != nil && job.NextRun != nil {
		due := currentSlot(job, now)

		if job.NextRun.Before(prevSlot(job, due)) {
			if !s.skipBacklog(ctx, job, now, due) {
				return
			}
		}

		late := now.Sub(due).Minutes()
		if late > float64(*job.ToleranceMinutes) {
			s.skipLateSlot(ctx, job, due, now, late)
			return
		}
	}

	s.runJob(ctx, job, now)
}

// skipBacklog collapses every occurrence from the stored NextRun up to, but
// not including, due into a single skipped HistoryEntry, and
// advances the job onto due. It returns false if a store error aborted the
// tick.
func (s *Scheduler) skipBacklog(ctx context.Context, job *Job, now, due time.Time) bool {
	lateMinutes := now.Sub(*job.NextRun).Minutes()
	entry := &HistoryEntry{
		JobID: job.ID, Kind: job.Kind, ContactName: job.ContactName,
		Message: job.Message, Status: HistorySkipped, Timestamp: now,
		Error: fmt.Sprintf("%s: late by %.0fm, catching up to current slot", ErrSkippedLate, lateMinutes),
	}
	if !s.recordSkip(ctx, job, &due, entry) {
		return false
	}
	job.NextRun = &due
	return true
}

// skipLateSlot records a skipped HistoryEntry for due itself and advances
// the job past it.
func (s *Scheduler) skipLateSlot(ctx context.Context, job *Job, due, now time.Time, lateMinutes float64) bool {
	entry := &HistoryEntry{
		JobID: job.ID, Kind: job.Kind, ContactName: job.ContactName,
		Message: job.Message, Status: HistorySkipped, Timestamp: now,
		Error: fmt.Sprintf("%s: late by %.0fm", ErrSkippedLate, lateMinutes),
	}
	next := nextSlot(job, now, false)
	if !s.recordSkip(ctx, job, &next, entry) {
		return false
	}
	job.NextRun = &next
	return true
}

// recordSkip appends entry, marks it terminal, and advances the job to
// nextRun in the store. It returns false if any store call failed.
func (s *Scheduler) recordSkip(ctx context.Context, job *Job, nextRun *time.Time, entry *HistoryEntry) bool {
	hid, err := s.store.HistoryAppend(ctx, entry)
	if err != nil {
		logs.CtxWarn(ctx, "scheduler: job %s: %s: historyAppend failed: %v", job.ID, ErrStore, err)
		return false
	}
	if err := s.store.HistoryUpdate(ctx, hid, HistorySkipped, entry.Error); err != nil {
		logs.CtxWarn(ctx, "scheduler: job %s: %s: historyUpdate failed: %v", job.ID, ErrStore, err)
		return false
	}
	if err := s.store.SetStatus(ctx, job.ID, StatusActive, nextRun, job.LastRun); err != nil {
		logs.CtxWarn(ctx, "scheduler: job %s: %s: setStatus failed: %v", job.ID, ErrStore, err)
		return false
	}

	s.metrics.OutcomesTotal.WithLabelValues(string(HistorySkipped)).Inc()
	s.notifier.Notify(ctx, NotifyEvent{
		JobID: job.ID, ContactName: job.ContactName, Message: job.Message,
		Status: HistorySkipped, Timestamp: entry.Timestamp, Error: entry.Error,
	})
	return true
}

// runJob executes a single due job: inserts it into the executing set,
// writes a "sending" HistoryEntry, invokes MessageSender under the sender
// mutex, and writes the terminal outcome back to the store and the
// notifier. A panic inside this function is recovered and recorded as an
// internal error rather than crashing the dispatch loop.
func (s *Scheduler) runJob(ctx context.Context, job *Job, now time.Time) {
	if !s.markExecuting(job.ID) {
		return
	}
	defer s.clearExecuting(job.ID)
	defer func() {
		if r := recover(); r != nil {
			logs.CtxError(ctx, "scheduler: job %s: %s: panic in runJob: %v", job.ID, ErrInternal, r)
		}
	}()

	ctx = logs.SetLogID(ctx, uuid.NewString())
	ctx = context.WithValue(ctx, consts.CtxKeyJobID, job.ID)

	logs.CtxDebug(ctx, "scheduler: job %s: sending to %q: %q", job.ID, job.ContactName, utils.Truncate80(job.Message))

	hid, err := s.store.HistoryAppend(ctx, &HistoryEntry{
		JobID: job.ID, Kind: job.Kind, ContactName: job.ContactName,
		Message: job.Message, Status: HistorySending, Timestamp: now,
	})
	if err != nil {
		logs.CtxWarn(ctx, "scheduler: job %s: historyAppend failed: %v", job.ID, err)
		return
	}

	outcome, sendErr := s.send(ctx, job, hid)
	s.applyOutcome(ctx, job, now, hid, outcome, sendErr)
}

func (s *Scheduler) send(ctx context.Context, job *Job, hid string) (outcome SendOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = SendUnknown
			err = fmt.Errorf("%w: panic in MessageSender.Send: %v", ErrInternal, r)
		}
	}()

	s.senderMu.Lock()
	defer s.senderMu.Unlock()

	timer := prometheusTimer(s.metrics)
	defer timer()

	outcome, err = s.sender.Send(ctx, job.ContactName, job.Message)
	switch outcome {
	case SendFailed:
		err = wrapSendErr(ErrSendFailed, err)
	case SendUnknown:
		err = wrapSendErr(ErrSendUnknown, err)
	}
	return outcome, err
}

// wrapSendErr attaches kind to the MessageSender's own error so history rows
// and API responses can recover a stable taxonomy string via ErrKind, even
// when the underlying cause is nil (an outcome with no accompanying error).
func wrapSendErr(kind sentinel, err error) error {
	if err == nil {
		return kind
	}
	return fmt.Errorf("%w: %v", kind, err)
}

func (s *Scheduler) applyOutcome(ctx context.Context, job *Job, now time.Time, hid string, outcome SendOutcome, sendErr error) {
	switch outcome {
	case SendOK:
		lastRun := now
		var status Status
		var next *time.Time
		if job.Kind == KindOnce {
			status = StatusCompleted
		} else {
			status = StatusActive
			n := nextSlot(job, now, true)
			next = &n
		}
		if err := s.store.SetStatus(ctx, job.ID, status, next, &lastRun); err != nil {
			logs.CtxWarn(ctx, "scheduler: job %s: setStatus failed: %v", job.ID, err)
		}
		if err := s.store.HistoryUpdate(ctx, hid, HistorySent, ""); err != nil {
			logs.CtxWarn(ctx, "scheduler: job %s: historyUpdate failed: %v", job.ID, err)
		}
		s.metrics.OutcomesTotal.WithLabelValues(string(HistorySent)).Inc()
		s.notifier.Notify(ctx, NotifyEvent{JobID: job.ID, ContactName: job.ContactName, Message: job.Message, Status: HistorySent, Timestamp: now})

	case SendFailed:
		reason := errString(sendErr)
		lastRun := now
		var status Status
		var next *time.Time
		if job.Kind == KindOnce {
			status = StatusFailed
		} else {
			status = StatusActive
			n := nextSlot(job, now, false)
			next = &n
		}
		if err := s.store.SetStatus(ctx, job.ID, status, next, &lastRun); err != nil {
			logs.CtxWarn(ctx, "scheduler: job %s: setStatus failed: %v", job.ID, err)
		}
		if err := s.store.HistoryUpdate(ctx, hid, HistoryFailed, reason); err != nil {
			logs.CtxWarn(ctx, "scheduler: job %s: historyUpdate failed: %v", job.ID, err)
		}
		s.metrics.OutcomesTotal.WithLabelValues(string(HistoryFailed)).Inc()
		s.notifier.Notify(ctx, NotifyEvent{JobID: job.ID, ContactName: job.ContactName, Message: job.Message, Status: HistoryFailed, Timestamp: now, Error: reason})

	case SendUnknown:
		reason := errString(sendErr)
		lastRun := now
		n := nextSlot(job, now, true)
		if err := s.store.SetStatus(ctx, job.ID, StatusActive, &n, &lastRun); err != nil {
			logs.CtxWarn(ctx, "scheduler: job %s: setStatus failed: %v", job.ID, err)
		}
		if err := s.store.HistoryUpdate(ctx, hid, HistoryUnknown, reason); err != nil {
			logs.CtxWarn(ctx, "scheduler: job %s: historyUpdate failed: %v", job.ID, err)
		}
		s.metrics.OutcomesTotal.WithLabelValues(string(HistoryUnknown)).Inc()
		s.notifier.Notify(ctx, NotifyEvent{JobID: job.ID, ContactName: job.ContactName, Message: job.Message, Status: HistoryUnknown, Timestamp: now, Error: reason})
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (s *Scheduler) isExecuting(id string) bool {
	s.executingMu.Lock()
	defer s.executingMu.Unlock()
	_, ok := s.executing[id]
	return ok
}

func (s *Scheduler) markExecuting(id string) bool {
	s.executingMu.Lock()
	defer s.executingMu.Unlock()
	if _, ok := s.executing[id]; ok {
		return false
	}
	s.executing[id] = struct{}{}
	s.metrics.ExecutingGauge.Set(float64(len(s.executing)))
	return true
}

func (s *Scheduler) clearExecuting(id string) {
	s.executingMu.Lock()
	defer s.executingMu.Unlock()
	delete(s.executing, id)
	s.metrics.ExecutingGauge.Set(float64(len(s.executing)))
}

func prometheusTimer(m *metrics.Metrics) func() {
	start := time.Now()
	return func() {
		m.SendDuration.Observe(time.Since(start).Seconds())
	}
}
