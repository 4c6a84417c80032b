// Package events decodes the fixed-size capture records written by the
// ring-buffer drain spoolers into typed Go values, and exposes each
// event kind through a common indexer interface so the ingest
// demultiplexer can walk an event's fields without a type switch per
// time series.
//
// Grounded on original_source/db/src/bindings/{tcp_packet,tcp_probe,sock}.rs
// and original_source/tcbee-process/src/bindings/{sock,cwnd}.rs: each
// Rust binding implements an EventIndexer trait over a #[repr(C)]
// struct read straight off the wire. Go has no pointer-cast
// equivalent worth using here (there's no `unsafe` in this pack), so
// decoding goes through encoding/binary the way the teacher's
// tcp_flow.go already reads its ring buffer records.
package events

import (
	"encoding/binary"
	"fmt"

	"github.com/probelab/tcpwatch/internal/storage"
)

// Value is the scalar a FieldIndexer exposes per field; it is the same
// typed-scalar shape the storage package persists, so a field read
// from an event can be handed to storage.Store.InsertDataPoint without
// conversion.
type Value = storage.Value

// Sentinel is the 4-byte marker every capture record is followed by.
// Kept exactly as the source emits it (see SPEC_FULL.md §9): it is a
// correctness check on the reader's framing, not a real record
// boundary, and the unexplained kernel-side padding it compensates for
// is not fixed here.
var Sentinel = [4]byte{0xFF, 0xFF, 0xFF, 0xFF}

// Kind identifies which capture stream a record came from.
type Kind int

const (
	KindHeader Kind = iota
	KindCongestionProbe
	KindSocketSnapshot
	KindSocketCwndOnly
	KindRetransmit
	KindBadChecksum
)

func (k Kind) String() string {
	switch k {
	case KindHeader:
		return "header"
	case KindCongestionProbe:
		return "congestion_probe"
	case KindSocketSnapshot:
		return "socket_snapshot"
	case KindSocketCwndOnly:
		return "socket_cwnd_only"
	case KindRetransmit:
		return "retransmit"
	case KindBadChecksum:
		return "bad_checksum"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// FieldIndexer is the Go rendering of the Rust EventIndexer trait: a
// positional view over an event's non-identifying fields, used by the
// ingest demultiplexer to create one time series per populated field
// without knowing the concrete event type.
type FieldIndexer interface {
	// Field returns the value at index i, and false if the field was
	// not populated in this particular record (the Rust original skips
	// emitting a data point at all for a zero/absent field, to save
	// space — Field reports that same absence).
	Field(i int) (Value, bool)
	// DefaultField is a zero value of field i's type. The ingest
	// demultiplexer uses only its Type, to declare the field's time
	// series; no point is recorded for a field a record didn't populate.
	DefaultField(i int) Value
	// FieldName is the time series name a populated field is stored
	// under.
	FieldName(i int) string
	// MaxIndex is the highest valid index accepted by Field/DefaultField/FieldName.
	MaxIndex() int
	// FlowKey identifies the flow this record belongs to.
	FlowKey() storage.FlowKey
	// Timestamp is the record's capture time, in the unit the kernel
	// stamped it with (nanoseconds since boot).
	Timestamp() float64
}

// readUint16 and friends centralize the little-endian decode every
// event kind uses for its wire-format integers; the kernel side always
// writes host (little-endian, on every architecture this system
// targets) byte order for plain scalar fields.
func readUint16(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }
func readUint32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
func readUint64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }
