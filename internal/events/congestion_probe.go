package events

import (
	"fmt"
	"net"

	"github.com/probelab/tcpwatch/internal/storage"
)

// CongestionProbeSize is the wire size of a CongestionProbe record.
const CongestionProbeSize = 112

// CongestionProbe is a tcp:tcp_probe tracepoint sample: one reading of
// the congestion control state at a point in the connection's life.
//
// Grounded on original_source/db/src/bindings/tcp_probe.rs's TcpProbe.
type CongestionProbe struct {
	Time       uint64
	SAddr      [28]byte
	DAddr      [28]byte
	SPort      uint16
	DPort      uint16
	Family     uint16
	Mark       uint32
	DataLen    uint16
	SndNxt     uint32
	SndUna     uint32
	SndCwnd    uint32
	Ssthresh   uint32
	SndWnd     uint32
	SRTT       uint32
	RcvWnd     uint32
	SockCookie uint64
}

var congestionProbeFieldNames = [...]string{
	"MARK", "DATA_LEN", "SND_NXT", "SND_UNA", "SND_CWND",
	"SSTHRESH", "SND_WND", "SRTT", "RCV_WND", "SOCK_COOKIE",
}

// DecodeCongestionProbe parses a CongestionProbe out of a capture
// record.
func DecodeCongestionProbe(buf []byte) (CongestionProbe, error) {
	if len(buf) < CongestionProbeSize {
		return CongestionProbe{}, fmt.Errorf("events: short congestion probe record: %d bytes", len(buf))
	}
	var p CongestionProbe
	p.Time = readUint64(buf[0:8])
	copy(p.SAddr[:], buf[8:36])
	copy(p.DAddr[:], buf[36:64])
	p.SPort = readUint16(buf[64:66])
	p.DPort = readUint16(buf[66:68])
	p.Family = readUint16(buf[68:70])
	p.Mark = readUint32(buf[70:74])
	p.DataLen = readUint16(buf[74:76])
	p.SndNxt = readUint32(buf[76:80])
	p.SndUna = readUint32(buf[80:84])
	p.SndCwnd = readUint32(buf[84:88])
	p.Ssthresh = readUint32(buf[88:92])
	p.SndWnd = readUint32(buf[92:96])
	p.SRTT = readUint32(buf[96:100])
	p.RcvWnd = readUint32(buf[100:104])
	p.SockCookie = readUint64(buf[104:112])
	return p, nil
}

// FlowKey reports the 5-tuple this probe sample belongs to. The source
// and destination addresses live inside a 28-byte sockaddr-shaped
// buffer whose IPv4/IPv6 payload is extracted with shortenToIPv4/
// shortenToIPv6 depending on the address family.
//
// Both ports are taken as the little-endian uint16s the record carries,
// with no byte swap; unlike the socket snapshot kinds, this source does
// not go through decodePortPair.
func (p CongestionProbe) FlowKey() storage.FlowKey {
	var src, dst net.IP
	if p.Family == afInet {
		src = shortenToIPv4(p.SAddr)
		dst = shortenToIPv4(p.DAddr)
	} else {
		src = shortenToIPv6(p.SAddr)
		dst = shortenToIPv6(p.DAddr)
	}
	return flowKey(src, dst, p.SPort, p.DPort)
}

func (p CongestionProbe) Timestamp() float64 { return float64(p.Time) }

func (p CongestionProbe) MaxIndex() int { return len(congestionProbeFieldNames) - 1 }

func (p CongestionProbe) FieldName(i int) string {
	if i < 0 || i >= len(congestionProbeFieldNames) {
		panic("events: congestion probe field index out of range")
	}
	return congestionProbeFieldNames[i]
}

func (p CongestionProbe) DefaultField(i int) Value {
	if i < 0 || i >= len(congestionProbeFieldNames) {
		panic("events: congestion probe field index out of range")
	}
	return storage.IntValue(0)
}

func (p CongestionProbe) Field(i int) (Value, bool) {
	switch i {
	case 0:
		return presentInt(int64(p.Mark))
	case 1:
		return presentInt(int64(p.DataLen))
	case 2:
		return presentInt(int64(p.SndNxt))
	case 3:
		return presentInt(int64(p.SndUna))
	case 4:
		return presentInt(int64(p.SndCwnd))
	case 5:
		return presentInt(int64(p.Ssthresh))
	case 6:
		return presentInt(int64(p.SndWnd))
	case 7:
		return presentInt(int64(p.SRTT))
	case 8:
		return presentInt(int64(p.RcvWnd))
	case 9:
		return presentInt(int64(p.SockCookie))
	default:
		return Value{}, false
	}
}
