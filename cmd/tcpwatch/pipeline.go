package main

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"

	cilium "github.com/cilium/ebpf"

	"github.com/probelab/tcpwatch/internal/events"
	"github.com/probelab/tcpwatch/internal/ingest"
	"github.com/probelab/tcpwatch/internal/probe"
	"github.com/probelab/tcpwatch/internal/ringbuf"
	"github.com/probelab/tcpwatch/internal/spool"
	"github.com/probelab/tcpwatch/internal/storage"
)

// sourceSpec names everything needed to wire one kernel event source
// end to end: which ring buffer and counters it owns, which event kind
// its records decode as, and the capture file it spools to.
//
// Conventional paths follow spec.md §6: "/tmp/<source>.tcp".
type sourceSpec struct {
	Name       string
	Kind       events.Kind
	EventsMap  string
	Handled    string
	Dropped    string
	Ingress    string
	Egress     string
	FilePath   string
}

const captureDir = "/tmp"

// buildSources returns the source specs enabled by cfg's -h/-t/-k
// flags, matching the program/map names internal/probe.Load attaches.
func buildSources(cfg Config) []sourceSpec {
	var specs []sourceSpec
	if cfg.Headers {
		specs = append(specs,
			sourceSpec{
				Name: "xdp_ingress", Kind: events.KindHeader,
				EventsMap: probe.MapXDPEvents, Handled: probe.MapXDPHandled, Dropped: probe.MapXDPDropped,
				Ingress:  probe.MapXDPPackets,
				FilePath: filepath.Join(captureDir, "xdp_ingress.tcp"),
			},
			sourceSpec{
				Name: "tc_egress", Kind: events.KindHeader,
				EventsMap: probe.MapTCEvents, Handled: probe.MapTCHandled, Dropped: probe.MapTCDropped,
				Egress:   probe.MapTCPackets,
				FilePath: filepath.Join(captureDir, "tc_egress.tcp"),
			},
		)
	}
	if cfg.Tracepoints {
		specs = append(specs,
			sourceSpec{
				Name: "tcp_probe", Kind: events.KindCongestionProbe,
				EventsMap: probe.MapCongestionProbeEvents, Handled: probe.MapProbeHandled, Dropped: probe.MapProbeDropped,
				FilePath: filepath.Join(captureDir, "tcp_probe.tcp"),
			},
			sourceSpec{
				Name: "tcp_retransmit_skb", Kind: events.KindRetransmit,
				EventsMap: probe.MapRetransmitEvents, Handled: probe.MapRetransmitHandled, Dropped: probe.MapRetransmitDropped,
				FilePath: filepath.Join(captureDir, "tcp_retransmit_skb.tcp"),
			},
			sourceSpec{
				Name: "tcp_bad_csum", Kind: events.KindBadChecksum,
				EventsMap: probe.MapBadChecksumEvents, Handled: probe.MapBadChecksumHandled, Dropped: probe.MapBadChecksumDropped,
				FilePath: filepath.Join(captureDir, "tcp_bad_csum.tcp"),
			},
		)
	}
	if cfg.KernelProbes {
		specs = append(specs,
			sourceSpec{
				Name: "tcp_sendmsg", Kind: events.KindSocketSnapshot,
				EventsMap: probe.MapSocketSendEvents, Handled: probe.MapSocketSendHandled, Dropped: probe.MapSocketSendDropped,
				FilePath: filepath.Join(captureDir, "tcp_sendmsg.tcp"),
			},
			sourceSpec{
				Name: "tcp_cleanup_rbuf", Kind: events.KindSocketSnapshot,
				EventsMap: probe.MapSocketRecvEvents, Handled: probe.MapSocketRecvHandled, Dropped: probe.MapSocketRecvDropped,
				FilePath: filepath.Join(captureDir, "tcp_cleanup_rbuf.tcp"),
			},
		)
	}
	return specs
}

// recordSize mirrors internal/ingest's private record-size table; kept
// local to avoid exporting it from ingest purely for the spooler's
// buffered-writer sizing hint.
func recordSize(kind events.Kind) int {
	switch kind {
	case events.KindHeader:
		return events.HeaderSize
	case events.KindCongestionProbe:
		return events.CongestionProbeSize
	case events.KindSocketSnapshot:
		return events.SocketSnapshotSize
	case events.KindSocketCwndOnly:
		return events.SocketCwndOnlySize
	case events.KindRetransmit:
		return events.RetransmitSize
	case events.KindBadChecksum:
		return events.BadChecksumSize
	default:
		return 0
	}
}

// openSource wires one sourceSpec to a live ring buffer reader and its
// counters, looking maps up in the loaded collection by name.
func openSource(mgr *probe.Manager, spec sourceSpec) (*ringbuf.Source, error) {
	eventsMap := mgr.Map(spec.EventsMap)
	if eventsMap == nil {
		return nil, fmt.Errorf("pipeline: %s: events map %q not found in object", spec.Name, spec.EventsMap)
	}
	mapOrNil := func(name string) *cilium.Map {
		if name == "" {
			return nil
		}
		return mgr.Map(name)
	}
	return ringbuf.NewSource(spec.Name, eventsMap,
		mapOrNil(spec.Handled), mapOrNil(spec.Dropped), mapOrNil(spec.Ingress), mapOrNil(spec.Egress))
}

// captureSession is the set of live ring-buffer sources and the drain
// goroutines spooling them, for the duration of one capture run.
type captureSession struct {
	sources []*ringbuf.Source
	specs   []sourceSpec
	wg      sync.WaitGroup
}

// startCapture opens one ringbuf.Source per spec and launches its
// drain goroutine. Drains run until ctx is canceled and each ring
// buffer's reader is closed by stopSources.
func startCapture(ctx context.Context, mgr *probe.Manager, specs []sourceSpec) (*captureSession, error) {
	sess := &captureSession{specs: specs}
	for _, spec := range specs {
		src, err := openSource(mgr, spec)
		if err != nil {
			sess.stopSources()
			return nil, err
		}
		sess.sources = append(sess.sources, src)

		drain := &spool.Drain{
			Name:       spec.Name,
			Source:     src,
			FilePath:   spec.FilePath,
			RecordSize: recordSize(spec.Kind),
		}
		sess.wg.Add(1)
		go func(d *spool.Drain) {
			defer sess.wg.Done()
			if err := d.Run(ctx); err != nil {
				log.Printf("pipeline: drain %s: %v", d.Name, err)
			}
		}(drain)
	}
	return sess, nil
}

// stopSources closes every opened ring buffer reader, which unblocks
// any drain goroutine currently parked in a blocking Read.
func (s *captureSession) stopSources() {
	for _, src := range s.sources {
		src.Close()
	}
}

// wait blocks until every drain goroutine has flushed and exited.
func (s *captureSession) wait() {
	s.wg.Wait()
}

// runIngest processes every spec's completed capture file through one
// internal/ingest.Reader feeding the shared channel, and a single
// internal/ingest.Demux writer, exactly as spec.md §4.4/§5 describes:
// readers forward in file order, the writer linearizes arrival order
// and lands typed points in store. Called after capture has stopped
// and every drain has flushed, so each reader sees a complete file and
// terminates normally at EOF rather than racing the spooler.
func runIngest(specs []sourceSpec, store *storage.Store) error {
	ch := make(chan ingest.Envelope, ingest.ChannelCapacity)

	var readers sync.WaitGroup
	ctx := context.Background()
	for _, spec := range specs {
		r := &ingest.Reader{Source: spec.Name, Kind: spec.Kind, FilePath: spec.FilePath, Out: ch}
		readers.Add(1)
		go func(r *ingest.Reader) {
			defer readers.Done()
			if err := r.Run(ctx); err != nil {
				log.Printf("pipeline: ingest reader %s: %v", r.Source, err)
			}
		}(r)
	}

	go func() {
		readers.Wait()
		close(ch)
	}()

	demux := ingest.NewDemux(store)
	return demux.Run(ch)
}
