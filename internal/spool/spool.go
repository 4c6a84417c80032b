// Package spool drains one ring-buffer source into its own append-only
// capture file, framing each record with the trailing sentinel the
// ingest side uses to detect misalignment.
//
// Grounded on original_source/tcbee/tcbee/src/handlers/mod.rs's
// BufferHandler::run: open the file non-blocking/append, wrap it in a
// buffered writer sized to hold WriterBufferSize records, loop reading
// the ring buffer and yielding when it's empty, flush and exit on
// cancellation.
package spool

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/cilium/ebpf/ringbuf"
)

// Reader is the subset of internal/ringbuf.Source's surface Drain
// needs, kept as an interface so tests can drain a fake source without
// a live kernel ring buffer.
type Reader interface {
	Read() (ringbuf.Record, error)
}

// WriterBufferSize is how many records' worth of capacity the buffered
// writer is sized to, matching WRITER_BUFFER_SIZE in
// original_source/tcbee/tcbee/src/config.rs's counterpart.
const WriterBufferSize = 10000

// Sentinel is appended after every record so the ingest reader can
// detect a misaligned read. See internal/events.Sentinel for why this
// is kept rather than removed.
var Sentinel = [4]byte{0xFF, 0xFF, 0xFF, 0xFF}

// Filter decides whether a raw record should be kept. A nil Filter
// keeps everything.
type Filter func(raw []byte) bool

// Drain owns one ring-buffer source and the file it spools into.
type Drain struct {
	Name       string
	Source     Reader
	FilePath   string
	RecordSize int
	Keep       Filter
}

// Run drains the source until its reader closes or ctx is canceled,
// writing every kept record followed by Sentinel. It always flushes
// before returning, whether it exits via cancellation or a closed
// reader.
func (d *Drain) Run(ctx context.Context) error {
	f, err := os.OpenFile(d.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("spool: open %s: %w", d.FilePath, err)
	}
	defer f.Close()

	w := bufio.NewWriterSize(f, d.RecordSize*WriterBufferSize)
	defer w.Flush()

	log.Printf("spool: %s draining into %s (record size %d)", d.Name, d.FilePath, d.RecordSize)

	done := ctx.Done()
	for {
		select {
		case <-done:
			log.Printf("spool: %s stopping on cancellation", d.Name)
			return w.Flush()
		default:
		}

		record, err := d.Source.Read()
		if err != nil {
			if errors.Is(err, ringbuf.ErrClosed) {
				return w.Flush()
			}
			log.Printf("spool: %s read error: %v", d.Name, err)
			continue
		}

		if d.Keep != nil && !d.Keep(record.RawSample) {
			continue
		}

		if _, err := w.Write(record.RawSample); err != nil {
			return fmt.Errorf("spool: %s write record: %w", d.Name, err)
		}
		if _, err := w.Write(Sentinel[:]); err != nil {
			return fmt.Errorf("spool: %s write sentinel: %w", d.Name, err)
		}
	}
}
