// Package notify implements scheduler.Notifier: fire-and-forget push
// notification fan-out on terminal job outcomes.
package notify

import (
	"context"
	"fmt"

	"github.com/abdatta/wappflow/internal/pkg/logs"
	"github.com/abdatta/wappflow/internal/scheduler"
)

// Target is one outbound destination a terminal event is pushed to.
type Target interface {
	// Notify delivers a short human-readable summary of event. Errors are
	// logged by the caller, never propagated back into the dispatch loop.
	Notify(ctx context.Context, event scheduler.NotifyEvent) error
}

// Fanout is a scheduler.Notifier that pushes every event to every
// configured Target. A slow or unreachable target never blocks the
// dispatcher: each target is notified in its own goroutine. No timeout is
// applied beyond whatever deadline the caller's ctx carries.
type Fanout struct {
	targets []Target
}

func NewFanout(targets ...Target) *Fanout {
	return &Fanout{targets: targets}
}

func (f *Fanout) Notify(ctx context.Context, event scheduler.NotifyEvent) {
	for _, target := range f.targets {
		target := target
		go func() {
			if err := target.Notify(ctx, event); err != nil {
				logs.Warn("notify: target failed for job %s: %v", event.JobID, err)
			}
		}()
	}
}

// Summary renders the short text sent to every target.
func Summary(event scheduler.NotifyEvent) string {
	switch event.Status {
	case scheduler.HistorySent:
		return fmt.Sprintf("Sent to %s", event.ContactName)
	case scheduler.HistoryFailed:
		return fmt.Sprintf("Failed to send to %s: %s", event.ContactName, event.Error)
	case scheduler.HistoryUnknown:
		return fmt.Sprintf("Unknown delivery status for %s: %s", event.ContactName, event.Error)
	case scheduler.HistorySkipped:
		return fmt.Sprintf("Skipped job for %s: %s", event.ContactName, event.Error)
	default:
		return fmt.Sprintf("%s: %s", event.ContactName, event.Status)
	}
}
