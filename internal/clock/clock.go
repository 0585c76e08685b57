// Package clock provides the scheduler's only source of wall-clock time,
// so dispatch decisions can be tested against a fixed instant instead of
// real elapsed time.
package clock

import "time"

// Clock exposes monotonic/wall-clock time to the rest of the scheduler.
// Injected as a collaborator rather than called via time.Now() directly so
// tests can fake "now".
type Clock interface {
	// NowUTC returns the current instant, truncated to minute resolution,
	// in UTC. All dispatcher decisions compare against minute-truncated
	// times to avoid drift and to give "this slot" a stable identity.
	NowUTC() time.Time
}

// System is the real Clock, backed by time.Now().
type System struct{}

func (System) NowUTC() time.Time {
	return TruncateToMinute(time.Now().UTC())
}

// TruncateToMinute zeroes the seconds and sub-second component of t.
func TruncateToMinute(t time.Time) time.Time {
	return t.Truncate(time.Minute)
}

// InZone converts t to the named IANA zone, falling back to UTC if the zone
// name is empty or unknown. It is for presentation only; nothing in this
// module calls it, and API responses and CLI output print UTC.
func InZone(t time.Time, name string) time.Time {
	if name == "" {
		return t.UTC()
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return t.UTC()
	}
	return t.In(loc)
}

// Fake is a Clock for tests: it always returns a fixed, settable instant.
type Fake struct {
	now time.Time
}

func NewFake(now time.Time) *Fake {
	return &Fake{now: TruncateToMinute(now.UTC())}
}

func (f *Fake) NowUTC() time.Time {
	return f.now
}

func (f *Fake) Set(now time.Time) {
	f.now = TruncateToMinute(now.UTC())
}

func (f *Fake) Advance(d time.Duration) {
	f.now = TruncateToMinute(f.now.Add(d))
}
