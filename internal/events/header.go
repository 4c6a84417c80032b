package events

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/probelab/tcpwatch/internal/storage"
)

// HeaderSize is the wire size of a Header record, the tc/xdp packet
// header capture: 8+4+4+16+16+2+2+4+4+2+1*6+2 = 70 bytes of fields, one
// after another with no bitpacking, matching the individual bool fields
// tcp_packet.rs's TcpPacket struct declares, plus 2 trailing bytes that
// pad the record to the 8-byte alignment of its leading timestamp
// (sizeof(struct header_record) in bpf/tcp_observer.c).
const HeaderSize = 72

// Header is a per-packet header capture from the tc classifier or xdp
// program: sequence/ack/window plus the six TCP control flags.
//
// Grounded on original_source/db/src/bindings/tcp_packet.rs's TcpPacket.
type Header struct {
	Time     uint64
	SAddr    uint32
	DAddr    uint32
	SAddrV6  [16]byte
	DAddrV6  [16]byte
	SPort    uint16
	DPort    uint16
	Seq      uint32
	Ack      uint32
	Window   uint16
	FlagURG  bool
	FlagACK  bool
	FlagPSH  bool
	FlagRST  bool
	FlagSYN  bool
	FlagFIN  bool
	Checksum uint16
}

var headerFieldNames = [...]string{
	"SEQ_NUM", "ACK_NUM", "WINDOW",
	"FLAG_URG", "FLAG_ACK", "FLAG_PSH", "FLAG_RST", "FLAG_SYN", "FLAG_FIN",
	"CHECKSUM",
}

// DecodeHeader parses a Header out of a capture record, ignoring the
// trailing sentinel.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("events: short header record: %d bytes", len(buf))
	}
	var h Header
	h.Time = readUint64(buf[0:8])
	h.SAddr = readUint32(buf[8:12])
	h.DAddr = readUint32(buf[12:16])
	copy(h.SAddrV6[:], buf[16:32])
	copy(h.DAddrV6[:], buf[32:48])
	h.SPort = readUint16(buf[48:50])
	h.DPort = readUint16(buf[50:52])
	h.Seq = readUint32(buf[52:56])
	h.Ack = readUint32(buf[56:60])
	h.Window = readUint16(buf[60:62])
	h.FlagURG = buf[62] != 0
	h.FlagACK = buf[63] != 0
	h.FlagPSH = buf[64] != 0
	h.FlagRST = buf[65] != 0
	h.FlagSYN = buf[66] != 0
	h.FlagFIN = buf[67] != 0
	h.Checksum = binary.LittleEndian.Uint16(buf[68:70])
	return h, nil
}

// FlowKey reports the 5-tuple this header belongs to. A zero saddr/daddr
// pair signals the record carries an IPv6 address instead, exactly as
// tcp_packet.rs's get_ip_tuple branches.
func (h Header) FlowKey() storage.FlowKey {
	var src, dst net.IP
	if h.SAddr != 0 && h.DAddr != 0 {
		src = ipv4FromUint32(h.SAddr)
		dst = ipv4FromUint32(h.DAddr)
	} else {
		src = net.IP(h.SAddrV6[:])
		dst = net.IP(h.DAddrV6[:])
	}
	return flowKey(src, dst, h.SPort, h.DPort)
}

func ipv4FromUint32(v uint32) net.IP {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return net.IPv4(b[0], b[1], b[2], b[3])
}

func (h Header) Timestamp() float64 { return float64(h.Time) }

func (h Header) MaxIndex() int { return len(headerFieldNames) - 1 }

func (h Header) FieldName(i int) string {
	if i < 0 || i >= len(headerFieldNames) {
		panic("events: header field index out of range")
	}
	return headerFieldNames[i]
}

func (h Header) DefaultField(i int) Value {
	switch i {
	case 0, 1, 2, 9:
		return storage.IntValue(0)
	case 3, 4, 5, 6, 7, 8:
		return storage.BoolValue(false)
	default:
		panic("events: header field index out of range")
	}
}

// Field returns a header field, skipping emission when it's zero (for
// counters) or false (for flags) to avoid recording a data point for
// an event that didn't happen — matching tcp_packet.rs's get_field.
func (h Header) Field(i int) (Value, bool) {
	switch i {
	case 0:
		return presentInt(int64(h.Seq))
	case 1:
		return presentInt(int64(h.Ack))
	case 2:
		return presentInt(int64(h.Window))
	case 3:
		return presentFlag(h.FlagURG)
	case 4:
		return presentFlag(h.FlagACK)
	case 5:
		return presentFlag(h.FlagPSH)
	case 6:
		return presentFlag(h.FlagRST)
	case 7:
		return presentFlag(h.FlagSYN)
	case 8:
		return presentFlag(h.FlagFIN)
	case 9:
		return presentInt(int64(h.Checksum))
	default:
		return Value{}, false
	}
}

func presentInt(v int64) (Value, bool) {
	if v <= 0 {
		return Value{}, false
	}
	return storage.IntValue(v), true
}

func presentFlag(v bool) (Value, bool) {
	if !v {
		return Value{}, false
	}
	return storage.BoolValue(true), true
}
