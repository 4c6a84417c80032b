// Package ingest reads per-source capture files written by
// internal/spool, decodes each framed record back into a typed event,
// and demultiplexes the merged stream into per-flow, per-series data
// points landed in internal/storage.
//
// Grounded on original_source/tcbee/tcbee-process/src/main.rs (one
// reader task per capture file, a bounded mpsc channel, one writer
// task consuming it) and original_source/tcbee/tcbee-process/src/flow_tracker.rs
// (per-flow series bookkeeping, eager series creation, empty-series
// cleanup at shutdown).
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/probelab/tcpwatch/internal/events"
)

// ChannelCapacity is the shared reader-to-writer channel's buffer size
// from spec.md §4.4: large enough to absorb a burst from several
// high-rate sources without a reader blocking mid-record.
const ChannelCapacity = 100_000

// Envelope is one decoded event on its way to the demultiplexer. Source
// names the capture file it came from, for logging and misalignment
// diagnostics; Kind lets the writer look up field metadata without a
// type switch per event.
type Envelope struct {
	Source string
	Kind   events.Kind
	Event  events.FieldIndexer
}

// recordSize reports the fixed wire size of one event kind's record,
// excluding the trailing sentinel.
func recordSize(kind events.Kind) (int, error) {
	switch kind {
	case events.KindHeader:
		return events.HeaderSize, nil
	case events.KindCongestionProbe:
		return events.CongestionProbeSize, nil
	case events.KindSocketSnapshot:
		return events.SocketSnapshotSize, nil
	case events.KindSocketCwndOnly:
		return events.SocketCwndOnlySize, nil
	case events.KindRetransmit:
		return events.RetransmitSize, nil
	case events.KindBadChecksum:
		return events.BadChecksumSize, nil
	default:
		return 0, fmt.Errorf("ingest: unknown event kind %v", kind)
	}
}

func decode(kind events.Kind, buf []byte) (events.FieldIndexer, error) {
	switch kind {
	case events.KindHeader:
		return events.DecodeHeader(buf)
	case events.KindCongestionProbe:
		return events.DecodeCongestionProbe(buf)
	case events.KindSocketSnapshot:
		return events.DecodeSocketSnapshot(buf)
	case events.KindSocketCwndOnly:
		return events.DecodeSocketCwndOnly(buf)
	case events.KindRetransmit:
		return events.DecodeRetransmit(buf)
	case events.KindBadChecksum:
		return events.DecodeBadChecksum(buf)
	default:
		return nil, fmt.Errorf("ingest: unknown event kind %v", kind)
	}
}

// MisalignedError panics out of Reader.Run when a frame's trailing
// bytes don't match events.Sentinel. Per spec.md §7, this is fatal: the
// capture file is corrupt or misaligned and continuing would silently
// associate fields with the wrong schema. Rendered as a typed panic
// value (rather than a bare string) so a recover() in a test harness
// can inspect which source and offset failed.
type MisalignedError struct {
	Source string
	Offset int64
	Got    []byte
}

func (e *MisalignedError) Error() string {
	return fmt.Sprintf("ingest: misaligned %s capture at offset %d: expected sentinel %x, got %x",
		e.Source, e.Offset, events.Sentinel, e.Got)
}

// Reader drains one capture file, decoding fixed-size frames and
// forwarding them on Out. One Reader runs per enabled source.
type Reader struct {
	Source   string
	Kind     events.Kind
	FilePath string
	Out      chan<- Envelope
}

// Run reads FilePath to EOF (or until Out's consumer stops accepting,
// i.e. ctx is canceled), decoding one (record, sentinel) frame at a
// time. A short read at EOF is a normal termination: any partially
// written trailing record is discarded rather than surfaced as an
// error, since the spooler may have been mid-write when the source
// file was last flushed. A sentinel mismatch is fatal and panics,
// naming the offending source and byte offset.
func (r *Reader) Run(ctx context.Context) error {
	size, err := recordSize(r.Kind)
	if err != nil {
		return err
	}
	frameSize := size + len(events.Sentinel)

	f, err := os.Open(r.FilePath)
	if err != nil {
		return fmt.Errorf("ingest: open %s: %w", r.FilePath, err)
	}
	defer f.Close()

	log.Printf("ingest: %s reading %s (frame size %d)", r.Source, r.FilePath, frameSize)

	buf := make([]byte, frameSize)
	var offset int64
	for {
		n, err := io.ReadFull(f, buf)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				log.Printf("ingest: %s reached end of capture after %d bytes", r.Source, offset+int64(n))
				return nil
			}
			return fmt.Errorf("ingest: %s read: %w", r.Source, err)
		}

		record := buf[:size]
		sentinel := buf[size:frameSize]
		if !bytes.Equal(sentinel, events.Sentinel[:]) {
			got := make([]byte, len(sentinel))
			copy(got, sentinel)
			panic(&MisalignedError{Source: r.Source, Offset: offset, Got: got})
		}

		ev, err := decode(r.Kind, record)
		if err != nil {
			return fmt.Errorf("ingest: %s decode at offset %d: %w", r.Source, offset, err)
		}

		select {
		case r.Out <- Envelope{Source: r.Source, Kind: r.Kind, Event: ev}:
		case <-ctx.Done():
			// Reader tasks stop at the next channel-send boundary
			// (spec.md §5); this frame is simply not forwarded.
			return nil
		}

		offset += int64(frameSize)
	}
}
