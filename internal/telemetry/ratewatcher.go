// Package telemetry renders the live capture dashboard spec.md §4.6
// describes: rate watchers over the per-source counter arrays and the
// kernel flow-key map, a terminal UI or a single self-overwriting
// status line, and a Prometheus exposition of the same counters.
//
// Grounded on original_source/tcbee/tcbee/src/viz/rate_watcher.rs
// (RateWatcher<T>) and src/viz/dashboard.rs (the sampling/render loop),
// rendered with the teacher's bubbletea/lipgloss stack
// (_examples/other_examples's thobiasn-tori-cli) for the TUI surface.
package telemetry

import (
	"fmt"
	"time"
)

// CounterFunc reports a counter's current cumulative sum, already
// summed across CPUs by the caller (internal/ringbuf.Source.Counters
// does this).
type CounterFunc func() (uint64, error)

// RateWatcher converts a monotone counter into a rate by comparing
// successive samples against wall-clock elapsed time. The Go rendering
// of the Rust RateWatcher<T> generic: T here is implicit in whichever
// CounterFunc is supplied, since Go's counters are already plain
// uint64 sums rather than a typed per-architecture counter value.
type RateWatcher struct {
	Name string
	Unit string

	counter  CounterFunc
	lastSum  uint64
	lastTime time.Time
	started  bool
}

// NewRateWatcher creates a watcher over counter, labelled name and
// suffixed with unit (e.g. "pkt", "call") when formatted.
func NewRateWatcher(name, unit string, counter CounterFunc) *RateWatcher {
	return &RateWatcher{Name: name, Unit: unit, counter: counter}
}

// Tick samples the counter and returns the rate (units per second)
// since the previous Tick. The first call always returns zero, since
// no elapsed interval exists yet to divide by.
func (w *RateWatcher) Tick() (float64, error) {
	now := time.Now()
	sum, err := w.counter()
	if err != nil {
		return 0, fmt.Errorf("telemetry: %s: %w", w.Name, err)
	}

	if !w.started {
		w.started = true
		w.lastSum, w.lastTime = sum, now
		return 0, nil
	}

	elapsed := now.Sub(w.lastTime).Seconds()
	var rate float64
	if elapsed > 0 {
		// sum is cumulative and non-decreasing except across a process
		// restart; guard against the diff going negative rather than
		// reporting a bogus rate.
		if sum >= w.lastSum {
			rate = float64(sum-w.lastSum) / elapsed
		}
	}
	w.lastSum, w.lastTime = sum, now
	return rate, nil
}

// FormatRate renders a rate with a K/M/G magnitude suffix, e.g.
// "12.30 Kpkt/s".
func FormatRate(rate float64, unit string) string {
	switch {
	case rate >= 1e9:
		return fmt.Sprintf("%.2f G%s/s", rate/1e9, unit)
	case rate >= 1e6:
		return fmt.Sprintf("%.2f M%s/s", rate/1e6, unit)
	case rate >= 1e3:
		return fmt.Sprintf("%.2f K%s/s", rate/1e3, unit)
	default:
		return fmt.Sprintf("%.2f %s/s", rate, unit)
	}
}

// FormatBytes renders a byte count with a K/M/G magnitude suffix, for
// the status panel's on-disk capture-file size.
func FormatBytes(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.2f GiB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.2f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.2f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
