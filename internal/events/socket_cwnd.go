package events

import (
	"fmt"
	"net"

	"github.com/probelab/tcpwatch/internal/storage"
)

// SocketCwndOnlySize is the wire size of a SocketCwndOnly record.
const SocketCwndOnlySize = 58

// SocketCwndOnly is the lightweight kprobe sample taken on the
// tcp_sendmsg fast path: just the congestion window, traded against
// SocketSnapshot's fuller-but-costlier capture.
//
// Grounded on original_source/tcbee-process/src/bindings/cwnd.rs's
// cwnd_trace_entry.
type SocketCwndOnly struct {
	Time    uint64
	AddrV4  uint64
	SrcV6   [16]byte
	DstV6   [16]byte
	Ports   uint32
	Family  uint16
	SndCwnd uint32
}

var socketCwndOnlyFieldNames = [...]string{"perf_snd_cwnd"}

// DecodeSocketCwndOnly parses a SocketCwndOnly out of a capture record.
func DecodeSocketCwndOnly(buf []byte) (SocketCwndOnly, error) {
	if len(buf) < SocketCwndOnlySize {
		return SocketCwndOnly{}, fmt.Errorf("events: short socket cwnd record: %d bytes", len(buf))
	}
	var c SocketCwndOnly
	c.Time = readUint64(buf[0:8])
	c.AddrV4 = readUint64(buf[8:16])
	copy(c.SrcV6[:], buf[16:32])
	copy(c.DstV6[:], buf[32:48])
	c.Ports = readUint32(buf[48:52])
	c.Family = readUint16(buf[52:54])
	c.SndCwnd = readUint32(buf[54:58])
	return c, nil
}

func (c SocketCwndOnly) FlowKey() storage.FlowKey {
	var src, dst net.IP
	if c.Family == afInet {
		src, dst = decodeAddrV4Pair(c.AddrV4)
	} else {
		src = net.IP(c.SrcV6[:])
		dst = net.IP(c.DstV6[:])
	}
	sport, dport := decodePortPair(c.Ports)
	return flowKey(src, dst, sport, dport)
}

func (c SocketCwndOnly) Timestamp() float64 { return float64(c.Time) }

func (c SocketCwndOnly) MaxIndex() int { return 0 }

func (c SocketCwndOnly) FieldName(i int) string {
	if i != 0 {
		panic("events: socket cwnd field index out of range")
	}
	return socketCwndOnlyFieldNames[0]
}

func (c SocketCwndOnly) DefaultField(i int) Value {
	if i != 0 {
		panic("events: socket cwnd field index out of range")
	}
	return storage.IntValue(0)
}

func (c SocketCwndOnly) Field(i int) (Value, bool) {
	if i != 0 {
		return Value{}, false
	}
	return presentInt(int64(c.SndCwnd))
}
