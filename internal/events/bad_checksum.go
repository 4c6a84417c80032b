package events

import (
	"fmt"
	"net"

	"github.com/probelab/tcpwatch/internal/storage"
)

// BadChecksumSize is the wire size of a BadChecksum record.
const BadChecksumSize = 8 + 4 + 4

// BadChecksum is a tcp:tcp_bad_csum tracepoint sample: an IPv4 segment
// the kernel rejected for a checksum mismatch. Like Retransmit, it is
// occurrence-only.
//
// Grounded on
// original_source/tcbee-record/tcbee-common/src/bindings/tcp_bad_csum.rs's
// tcp_bad_csum_entry. The source tracepoint is IPv4-only.
type BadChecksum struct {
	Time  uint64
	SAddr [4]byte
	DAddr [4]byte
}

var badChecksumFieldNames = [...]string{"bad_checksum"}

// DecodeBadChecksum parses a BadChecksum out of a capture record.
func DecodeBadChecksum(buf []byte) (BadChecksum, error) {
	if len(buf) < BadChecksumSize {
		return BadChecksum{}, fmt.Errorf("events: short bad checksum record: %d bytes", len(buf))
	}
	var b BadChecksum
	b.Time = readUint64(buf[0:8])
	copy(b.SAddr[:], buf[8:12])
	copy(b.DAddr[:], buf[12:16])
	return b, nil
}

// FlowKey reports the 5-tuple this record belongs to. Ports are not
// captured by tcp:tcp_bad_csum, so both are reported as 0; callers that
// need the port-qualified flow should instead correlate on address
// pair and timestamp proximity against a Header record.
func (b BadChecksum) FlowKey() storage.FlowKey {
	src := net.IPv4(b.SAddr[0], b.SAddr[1], b.SAddr[2], b.SAddr[3])
	dst := net.IPv4(b.DAddr[0], b.DAddr[1], b.DAddr[2], b.DAddr[3])
	return flowKey(src, dst, 0, 0)
}

func (b BadChecksum) Timestamp() float64 { return float64(b.Time) }

func (b BadChecksum) MaxIndex() int { return 0 }

func (b BadChecksum) FieldName(i int) string {
	if i != 0 {
		panic("events: bad checksum field index out of range")
	}
	return badChecksumFieldNames[0]
}

func (b BadChecksum) DefaultField(i int) Value {
	if i != 0 {
		panic("events: bad checksum field index out of range")
	}
	return storage.BoolValue(false)
}

func (b BadChecksum) Field(i int) (Value, bool) {
	if i != 0 {
		return Value{}, false
	}
	return storage.BoolValue(true), true
}
