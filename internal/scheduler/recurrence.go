package scheduler

import "time"

// nextSlot computes the next scheduled instant for job, given the current
// minute-truncated instant now. It is a pure function: same inputs, same
// output, no I/O, no use of time.Now.
//
// afterExecution distinguishes two callers:
//   - false: "the next slot at or after now" (used by resume, by the
//     late-slot skip, and after a failed send, so a slot equal to now stays
//     eligible).
//   - true: "what slot comes after the one that just ran" (used after a
//     sent or unknown outcome, to advance past the current slot).
//
// For kind=once there is exactly one slot: job.AnchorTime itself. Callers
// must not invoke nextSlot for a once job past execution; the dispatcher
// marks it completed instead of asking for a next slot.
func nextSlot(job *Job, now time.Time, afterExecution bool) time.Time {
	base := job.AnchorTime
	i := job.IntervalValue

	if job.IntervalUnit == UnitMonth {
		return nextMonthSlot(base, now, i, afterExecution)
	}

	step := unitDuration(job.IntervalUnit) * time.Duration(i)
	elapsed := now.Sub(base)
	if elapsed < 0 {
		return base
	}

	k := int64(elapsed / step)
	current := base.Add(time.Duration(k) * step)

	if current.Equal(now) {
		if afterExecution {
			return base.Add(time.Duration(k+1) * step)
		}
		return current
	}
	return base.Add(time.Duration(k+1) * step)
}

// currentSlot returns the most recently scheduled instant at or before now,
// aligned to job's anchor and interval. This is the slot a tick evaluates
// for execute-or-skip — the floor, as opposed to nextSlot's ceiling-biased
// next-occurrence semantics used for resume and post-execution advance.
func currentSlot(job *Job, now time.Time) time.Time {
	base := job.AnchorTime
	if now.Before(base) {
		return base
	}
	if job.IntervalUnit == UnitMonth {
		return currentMonthSlot(base, now, job.IntervalValue)
	}
	step := unitDuration(job.IntervalUnit) * time.Duration(job.IntervalValue)
	k := int64(now.Sub(base) / step)
	return base.Add(time.Duration(k) * step)
}

func currentMonthSlot(base, now time.Time, intervalMonths int) time.Time {
	t := base
	for k := 1; ; k++ {
		next := addMonths(base, k*intervalMonths)
		if next.After(now) {
			return t
		}
		t = next
	}
}

// prevSlot returns the slot immediately before slot in job's cadence. slot
// is assumed to already be anchor-aligned.
func prevSlot(job *Job, slot time.Time) time.Time {
	if job.IntervalUnit == UnitMonth {
		return addMonths(slot, -job.IntervalValue)
	}
	step := unitDuration(job.IntervalUnit) * time.Duration(job.IntervalValue)
	return slot.Add(-step)
}

// ResumeNextRun computes the NextRun a paused job should resume onto: the
// next slot at or after now, aligned to the job's anchor. A once job always
// resumes onto its single anchor instant.
func ResumeNextRun(job *Job, now time.Time) time.Time {
	if job.Kind == KindOnce {
		return job.AnchorTime
	}
	return nextSlot(job, now, false)
}

func unitDuration(u IntervalUnit) time.Duration {
	switch u {
	case UnitMinute:
		return time.Minute
	case UnitHour:
		return time.Hour
	case UnitDay:
		return 24 * time.Hour
	case UnitWeek:
		return 7 * 24 * time.Hour
	default:
		return time.Minute
	}
}

// nextMonthSlot walks month-by-month from base rather than converting a
// month count to a fixed duration: months have variable length and a fixed
// millisecond-per-month constant drifts the anchor day over the year. Each
// candidate is computed from base itself (base + k months), so a clamped
// short month does not carry its clamped day into later slots.
func nextMonthSlot(base, now time.Time, intervalMonths int, afterExecution bool) time.Time {
	k := 0
	t := base
	for !t.After(now) {
		k++
		t = addMonths(base, k*intervalMonths)
	}
	// t is now strictly after now, i.e. the slot that follows "now".
	if afterExecution || k == 0 {
		return t
	}
	prev := addMonths(base, (k-1)*intervalMonths)
	if prev.Equal(now) {
		return prev
	}
	return t
}

// addMonths adds n months to t, clamping the day-of-month when the target
// month is shorter (e.g. Jan 31 + 1 month lands on Feb 28/29, not Mar 3).
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	h, mi, s := t.Clock()
	ns := t.Nanosecond()

	totalMonths := int(m) - 1 + n
	targetYear := y + totalMonths/12
	targetMonth := totalMonths % 12
	if targetMonth < 0 {
		targetMonth += 12
		targetYear--
	}

	firstOfTarget := time.Date(targetYear, time.Month(targetMonth+1), 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(targetYear, time.Month(targetMonth+1), d, h, mi, s, ns, t.Location())
}
