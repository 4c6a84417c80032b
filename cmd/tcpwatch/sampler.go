package main

import (
	"encoding/binary"
	"net"
	"os"

	cilium "github.com/cilium/ebpf"

	"github.com/probelab/tcpwatch/internal/probe"
	"github.com/probelab/tcpwatch/internal/ringbuf"
	"github.com/probelab/tcpwatch/internal/storage"
	"github.com/probelab/tcpwatch/internal/telemetry"
)

// dashboardSampler adapts the running capture session to
// telemetry.Sampler: it sums the enabled sources' counters into the
// two rate pairs spec.md §4.6 names (packet rate, kernel-call rate),
// polls the kernel flow-key map, and stats the capture files for their
// total on-disk size.
type dashboardSampler struct {
	sources []*ringbuf.Source
	specs   []sourceSpec
	flowMap *cilium.Map

	ingress *telemetry.RateWatcher
	egress  *telemetry.RateWatcher
	send    *telemetry.RateWatcher
	recv    *telemetry.RateWatcher
}

func newDashboardSampler(sess *captureSession, mgr *probe.Manager) *dashboardSampler {
	s := &dashboardSampler{sources: sess.sources, specs: sess.specs, flowMap: mgr.Map(probe.MapFlowKeys)}
	s.ingress = telemetry.NewRateWatcher("ingress", "pkt", s.sumCounter(func(c ringbuf.Counters) uint64 { return c.Ingress }))
	s.egress = telemetry.NewRateWatcher("egress", "pkt", s.sumCounter(func(c ringbuf.Counters) uint64 { return c.Egress }))
	s.send = telemetry.NewRateWatcher("send", "call", s.sumCounterNamed("tcp_sendmsg"))
	s.recv = telemetry.NewRateWatcher("recv", "call", s.sumCounterNamed("tcp_cleanup_rbuf"))
	return s
}

func (s *dashboardSampler) sumCounter(pick func(ringbuf.Counters) uint64) telemetry.CounterFunc {
	return func() (uint64, error) {
		var total uint64
		for _, src := range s.sources {
			c, err := src.Counters()
			if err != nil {
				return 0, err
			}
			total += pick(c)
		}
		return total, nil
	}
}

func (s *dashboardSampler) sumCounterNamed(name string) telemetry.CounterFunc {
	return func() (uint64, error) {
		for _, src := range s.sources {
			if src.Name != name {
				continue
			}
			c, err := src.Counters()
			if err != nil {
				return 0, err
			}
			return c.Handled, nil
		}
		return 0, nil
	}
}

// kernelFlowKey is the fixed layout the packet-path programs insert
// into MapFlowKeys: a v4 5-tuple plus an AF_INET/AF_INET6 discriminant,
// the userspace-readable counterpart of the flow key spec.md §3
// defines. Go decodes it the same way internal/events decodes an
// on-wire Header's address fields (host-order uint32s).
type kernelFlowKey struct {
	SAddr  uint32
	DAddr  uint32
	SPort  uint16
	DPort  uint16
	Family uint16
}

func (s *dashboardSampler) activeFlows() ([]storage.FlowKey, error) {
	if s.flowMap == nil {
		return nil, nil
	}
	var (
		key   kernelFlowKey
		value uint8
		flows []storage.FlowKey
	)
	it := s.flowMap.Iterate()
	for it.Next(&key, &value) {
		var sb, db [4]byte
		binary.LittleEndian.PutUint32(sb[:], key.SAddr)
		binary.LittleEndian.PutUint32(db[:], key.DAddr)
		flows = append(flows, storage.FlowKey{
			Src:     net.IPv4(sb[0], sb[1], sb[2], sb[3]).String(),
			Dst:     net.IPv4(db[0], db[1], db[2], db[3]).String(),
			SPort:   int64(key.SPort),
			DPort:   int64(key.DPort),
			L4Proto: 6,
		})
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return flows, nil
}

func (s *dashboardSampler) captureSize() int64 {
	var total int64
	for _, spec := range s.specs {
		if fi, err := os.Stat(spec.FilePath); err == nil {
			total += fi.Size()
		}
	}
	return total
}

// Sample implements telemetry.Sampler.
func (s *dashboardSampler) Sample() (telemetry.Sample, error) {
	ingress, err := s.ingress.Tick()
	if err != nil {
		return telemetry.Sample{}, err
	}
	egress, err := s.egress.Tick()
	if err != nil {
		return telemetry.Sample{}, err
	}
	send, err := s.send.Tick()
	if err != nil {
		return telemetry.Sample{}, err
	}
	recv, err := s.recv.Tick()
	if err != nil {
		return telemetry.Sample{}, err
	}
	flows, err := s.activeFlows()
	if err != nil {
		return telemetry.Sample{}, err
	}
	return telemetry.Sample{
		IngressRate: ingress,
		EgressRate:  egress,
		SendRate:    send,
		RecvRate:    recv,
		Flows:       flows,
		CaptureSize: s.captureSize(),
	}, nil
}
