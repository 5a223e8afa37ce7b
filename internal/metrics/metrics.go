// Package metrics exposes prometheus counters for annotation lookups and
// grid layout computations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the counters updated by the core packages. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	Lookups           prometheus.Counter
	LookupMisses      prometheus.Counter
	SyntheticRecords  prometheus.Counter
	ColorParseErrors  prometheus.Counter
	Layouts           prometheus.Counter
	LayoutFailures    prometheus.Counter
	SelectionMutation prometheus.Counter
}

// New creates the counters and registers them with reg. A nil reg leaves
// the counters unregistered, which is what tests usually want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Lookups: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "annoview",
			Subsystem: "annotation",
			Name:      "lookups_total",
			Help:      "Non-background label lookups.",
		}),
		LookupMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "annoview",
			Subsystem: "annotation",
			Name:      "lookup_misses_total",
			Help:      "Lookups against a table-backed index that found no record.",
		}),
		SyntheticRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "annoview",
			Subsystem: "annotation",
			Name:      "synthetic_records_total",
			Help:      "Records fabricated on first lookup by a lazy index.",
		}),
		ColorParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "annoview",
			Subsystem: "coloring",
			Name:      "parse_errors_total",
			Help:      "Encoded color values that could not be parsed.",
		}),
		Layouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "annoview",
			Subsystem: "grid",
			Name:      "layouts_total",
			Help:      "Grid layouts computed.",
		}),
		LayoutFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "annoview",
			Subsystem: "grid",
			Name:      "layout_failures_total",
			Help:      "Grid layouts that failed.",
		}),
		SelectionMutation: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "annoview",
			Subsystem: "selection",
			Name:      "mutations_total",
			Help:      "Selection state mutations.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Lookups,
			m.LookupMisses,
			m.SyntheticRecords,
			m.ColorParseErrors,
			m.Layouts,
			m.LayoutFailures,
			m.SelectionMutation,
		)
	}
	return m
}

// Inc increments c when both m and c are set.
func (m *Metrics) Inc(c func(*Metrics) prometheus.Counter) {
	if m == nil {
		return
	}
	if counter := c(m); counter != nil {
		counter.Inc()
	}
}
