// Package ringbuf wraps one kernel-side ring buffer per event source
// (xdp ingress, tc egress, each tracepoint, each kprobe) together with
// the per-CPU counters the kernel program increments alongside every
// reserve/submit/drop.
//
// Grounded on the teacher's probes/network/tcp-flow/tcp_flow.go, which
// pairs a *ringbuf.Reader with ebpf.Collection maps, and on
// original_source/tcbee/tcbee-ebpf/src/counters.rs, whose
// EVENTS_HANDLED/EVENTS_DROPPED/INGRESS_EVENTS/EGRESS_EVENTS
// PerCpuArray maps this package reads back from userspace.
package ringbuf

import (
	"fmt"

	cilium "github.com/cilium/ebpf"
	cringbuf "github.com/cilium/ebpf/ringbuf"
)

// Source is one event source's ring buffer plus its counters. Sources
// that don't distinguish ingress/egress (the tracepoints and kprobes)
// leave those maps nil; Counters reports zero for an absent map
// instead of erroring, so callers can treat every source uniformly.
type Source struct {
	Name    string
	reader  *cringbuf.Reader
	handled *cilium.Map
	dropped *cilium.Map
	ingress *cilium.Map
	egress  *cilium.Map
}

// Counters is a snapshot of a source's accounting, summed across CPUs.
type Counters struct {
	Handled uint64
	Dropped uint64
	Ingress uint64
	Egress  uint64
}

// NewSource opens a ring buffer reader on eventsMap and attaches
// whichever counter maps the caller has for this source kind.
func NewSource(name string, eventsMap *cilium.Map, handled, dropped, ingress, egress *cilium.Map) (*Source, error) {
	r, err := cringbuf.NewReader(eventsMap)
	if err != nil {
		return nil, fmt.Errorf("ringbuf: new reader for %s: %w", name, err)
	}
	return &Source{
		Name:    name,
		reader:  r,
		handled: handled,
		dropped: dropped,
		ingress: ingress,
		egress:  egress,
	}, nil
}

// Read blocks until a record is available or the reader is closed.
func (s *Source) Read() (cringbuf.Record, error) {
	return s.reader.Read()
}

// Close releases the ring buffer reader. Safe to call once; a second
// Read after Close returns ringbuf.ErrClosed, matching the teacher's
// processEvents loop exit condition.
func (s *Source) Close() error {
	return s.reader.Close()
}

// Counters sums the per-CPU slots of whichever counter maps this
// source was given.
func (s *Source) Counters() (Counters, error) {
	var c Counters
	var err error
	if c.Handled, err = sumPerCPU(s.handled); err != nil {
		return Counters{}, fmt.Errorf("ringbuf: %s handled counter: %w", s.Name, err)
	}
	if c.Dropped, err = sumPerCPU(s.dropped); err != nil {
		return Counters{}, fmt.Errorf("ringbuf: %s dropped counter: %w", s.Name, err)
	}
	if c.Ingress, err = sumPerCPU(s.ingress); err != nil {
		return Counters{}, fmt.Errorf("ringbuf: %s ingress counter: %w", s.Name, err)
	}
	if c.Egress, err = sumPerCPU(s.egress); err != nil {
		return Counters{}, fmt.Errorf("ringbuf: %s egress counter: %w", s.Name, err)
	}
	return c, nil
}

// sumPerCPU reads a PerCpuArray counter at key 0 and sums the value
// every CPU holds there. A nil map (a counter this source doesn't
// track) contributes zero.
func sumPerCPU(m *cilium.Map) (uint64, error) {
	if m == nil {
		return 0, nil
	}
	var perCPU []uint32
	if err := m.Lookup(uint32(0), &perCPU); err != nil {
		return 0, err
	}
	var total uint64
	for _, v := range perCPU {
		total += uint64(v)
	}
	return total, nil
}
