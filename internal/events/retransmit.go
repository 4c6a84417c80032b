package events

import (
	"fmt"
	"net"

	"github.com/probelab/tcpwatch/internal/storage"
)

// RetransmitSize is the wire size of a Retransmit record.
const RetransmitSize = 8 + 2 + 2 + 2 + 4 + 4 + 16 + 16

// Retransmit is a tcp:tcp_retransmit_synack tracepoint sample: a
// SYN-ACK the kernel had to resend. It carries no extra numeric
// fields beyond its flow key and timestamp — its time series is a
// pure occurrence count.
//
// Grounded on
// original_source/tcbee-record/tcbee-common/src/bindings/tcp_retransmit_synack.rs's
// tcp_retransmit_synack_entry.
type Retransmit struct {
	Time    uint64
	SPort   uint16
	DPort   uint16
	Family  uint16
	SAddr   [4]byte
	DAddr   [4]byte
	SAddrV6 [16]byte
	DAddrV6 [16]byte
}

var retransmitFieldNames = [...]string{"retransmit_synack"}

// DecodeRetransmit parses a Retransmit out of a capture record.
func DecodeRetransmit(buf []byte) (Retransmit, error) {
	if len(buf) < RetransmitSize {
		return Retransmit{}, fmt.Errorf("events: short retransmit record: %d bytes", len(buf))
	}
	var r Retransmit
	r.Time = readUint64(buf[0:8])
	r.SPort = readUint16(buf[8:10])
	r.DPort = readUint16(buf[10:12])
	r.Family = readUint16(buf[12:14])
	copy(r.SAddr[:], buf[14:18])
	copy(r.DAddr[:], buf[18:22])
	copy(r.SAddrV6[:], buf[22:38])
	copy(r.DAddrV6[:], buf[38:54])
	return r, nil
}

func (r Retransmit) FlowKey() storage.FlowKey {
	var src, dst net.IP
	if r.Family == afInet {
		src = net.IPv4(r.SAddr[0], r.SAddr[1], r.SAddr[2], r.SAddr[3])
		dst = net.IPv4(r.DAddr[0], r.DAddr[1], r.DAddr[2], r.DAddr[3])
	} else {
		src = net.IP(r.SAddrV6[:])
		dst = net.IP(r.DAddrV6[:])
	}
	return flowKey(src, dst, r.SPort, r.DPort)
}

func (r Retransmit) Timestamp() float64 { return float64(r.Time) }

func (r Retransmit) MaxIndex() int { return 0 }

func (r Retransmit) FieldName(i int) string {
	if i != 0 {
		panic("events: retransmit field index out of range")
	}
	return retransmitFieldNames[0]
}

func (r Retransmit) DefaultField(i int) Value {
	if i != 0 {
		panic("events: retransmit field index out of range")
	}
	return storage.BoolValue(false)
}

// Field always reports a single occurrence: every captured record is
// one retransmit event, so it is always present.
func (r Retransmit) Field(i int) (Value, bool) {
	if i != 0 {
		return Value{}, false
	}
	return storage.BoolValue(true), true
}
