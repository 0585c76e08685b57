// Package metrics exposes the scheduler's Prometheus instrumentation. A
// single Metrics value is constructed at process init and threaded through
// the composition root; nothing in this package reaches for a global
// registry implicitly.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every counter/gauge the scheduler and gateway touch.
type Metrics struct {
	TicksTotal       prometheus.Counter
	TickSkippedTotal prometheus.Counter
	JobsDueTotal     prometheus.Counter
	OutcomesTotal    *prometheus.CounterVec
	ExecutingGauge   prometheus.Gauge
	SendDuration     prometheus.Histogram
}

// New constructs a Metrics value and registers it against reg. Callers
// typically pass prometheus.NewRegistry() or prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wfsched",
			Subsystem: "dispatch",
			Name:      "ticks_total",
			Help:      "Number of dispatch ticks run.",
		}),
		TickSkippedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wfsched",
			Subsystem: "dispatch",
			Name:      "ticks_skipped_total",
			Help:      "Number of ticks skipped because the sender was not ready.",
		}),
		JobsDueTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wfsched",
			Subsystem: "dispatch",
			Name:      "jobs_due_total",
			Help:      "Number of job-due selections observed across all ticks.",
		}),
		OutcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wfsched",
			Subsystem: "dispatch",
			Name:      "outcomes_total",
			Help:      "Terminal history outcomes, labelled by status.",
		}, []string{"status"}),
		ExecutingGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wfsched",
			Subsystem: "dispatch",
			Name:      "executing_jobs",
			Help:      "Current size of the in-memory executing set.",
		}),
		SendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "wfsched",
			Subsystem: "sender",
			Name:      "send_duration_seconds",
			Help:      "Wall time spent inside MessageSender.Send.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.TickSkippedTotal,
		m.JobsDueTotal,
		m.OutcomesTotal,
		m.ExecutingGauge,
		m.SendDuration,
	)
	return m
}

// Noop returns a Metrics value registered on a fresh private registry that
// nothing exposes, safe to use in tests that don't care about instrumentation.
func Noop() *Metrics {
	return New(prometheus.NewRegistry())
}
