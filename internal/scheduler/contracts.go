package scheduler

import (
	"context"
	"time"
)

// JobStore persists Jobs and their HistoryEntry records. Implementations
// must make ListDue efficient against a status+time predicate and must
// make SetStatus atomic across the fields it touches: a crash between
// writing NextRun and writing LastRun would let the dispatcher re-fire a
// slot that already ran.
type JobStore interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	List(ctx context.Context) ([]*Job, error)

	// ListDue returns every StatusActive job whose AnchorTime or NextRun is
	// at or before now, ordered by CreatedAt ascending so older jobs are
	// considered first within a tick.
	ListDue(ctx context.Context, now time.Time) ([]*Job, error)

	// Update replaces the editable fields of an existing job (kind, contact
	// name, message, anchor time, interval, tolerance) and writes NextRun as
	// given. It does not touch Status/LastRun.
	Update(ctx context.Context, job *Job) error

	// SetStatus atomically updates status plus the derived run-time fields
	// in a single transaction.
	SetStatus(ctx context.Context, id string, status Status, nextRun, lastRun *time.Time) error

	Delete(ctx context.Context, id string) error

	HistoryAppend(ctx context.Context, entry *HistoryEntry) (string, error)
	HistoryUpdate(ctx context.Context, id string, status HistoryStatus, errMsg string) error
	HistoryList(ctx context.Context, jobID string, limit int) ([]*HistoryEntry, error)

	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
}

// SendOutcome is the result MessageSender reports for one attempt.
type SendOutcome int

const (
	// SendOK means the message was confirmed delivered to the transport.
	SendOK SendOutcome = iota
	// SendFailed means the transport affirmatively rejected the send. A
	// recurring job stays on its current slot if that slot equals now, so
	// the next tick may retry it; otherwise it advances to the next slot.
	SendFailed
	// SendUnknown means the outcome could not be determined before the
	// sender's internal timeout elapsed. Treated like SendOK for scheduling
	// purposes: the slot is consumed, not retried in-slot.
	SendUnknown
)

// MessageSender is the narrow contract the scheduler drives to actually
// deliver a message. Implementations own their own transport, session
// lifecycle, and internal send timeout (at least 20 seconds); on timeout
// they must report SendUnknown rather than blocking runJob indefinitely.
type MessageSender interface {
	// IsReady reports whether the sender currently has a usable session.
	// The dispatcher checks this once per tick before attempting any sends;
	// false skips the whole tick: no job is selected or attempted, and due
	// jobs are left untouched for the next tick.
	IsReady(ctx context.Context) bool

	// Send delivers message to contactName. It must serialize concurrent
	// callers itself if the underlying transport cannot multiplex (the
	// reference implementation does this with a single-lane queue).
	Send(ctx context.Context, contactName, message string) (SendOutcome, error)
}

// NotifyEvent describes a terminal HistoryEntry outcome for fan-out to
// Notifier targets.
type NotifyEvent struct {
	JobID       string
	ContactName string
	Message     string
	Status      HistoryStatus
	Timestamp   time.Time
	Error       string
}

// Notifier fans a NotifyEvent out to external channels (push notification
// targets). Notify must not block the dispatcher on a slow or unreachable
// target and must never return an error that changes job scheduling:
// notification failures are logged, not propagated.
type Notifier interface {
	Notify(ctx context.Context, event NotifyEvent)
}
