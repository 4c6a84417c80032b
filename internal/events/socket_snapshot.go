package events

import (
	"fmt"
	"net"

	"github.com/probelab/tcpwatch/internal/storage"
)

// SocketSnapshotSize is the wire size of a SocketSnapshot record.
const SocketSnapshotSize = 160

// SocketSnapshot is a kprobe sample taken on the socket's struct
// tcp_sock at the send/receive path, expanded past the original
// source's field set using the field list m-lab/tcp-info's
// LinuxTCPInfo documents for struct tcp_info, since spec.md calls for
// a fuller socket snapshot than tcbee-process captured.
//
// Grounded on original_source/tcbee-process/src/bindings/sock.rs's
// sock_trace_entry for the shared header/address/port fields and the
// kprobe-readable subset (rto, cwnd, retransmits, rtt
// variance, ...); field names follow m-lab-tcp-info/tcp/tcpinfo.go's
// LinuxTCPInfo where the two overlap.
type SocketSnapshot struct {
	Time          uint64
	AddrV4        uint64
	SrcV6         [16]byte
	DstV6         [16]byte
	Ports         uint32
	Family        uint16
	State         uint8
	CAState       uint8
	Retransmits   uint8
	RTO           uint32
	SndCwnd       uint32
	SndSsthresh   uint32
	RcvSsthresh   uint32
	RTT           uint32
	RTTVar        uint32
	Unacked       uint32
	Sacked        uint32
	Lost          uint32
	Retrans       uint32
	TotalRetrans  uint32
	PMTU          uint32
	AdvMSS        uint32
	Reordering    uint32
	RcvRTT        uint32
	RcvSpace      uint32
	MinRTT        uint32
	DeliveryRate  uint64
	BusyTime      uint64
	SndWnd        uint32
}

var socketSnapshotFieldNames = [...]string{
	"state", "ca_state", "retransmits", "rto", "snd_cwnd", "snd_ssthresh",
	"rcv_ssthresh", "rtt", "rttvar", "unacked", "sacked", "lost", "retrans",
	"total_retrans", "pmtu", "advmss", "reordering", "rcv_rtt", "rcv_space",
	"min_rtt", "delivery_rate", "busy_time", "snd_wnd",
}

// DecodeSocketSnapshot parses a SocketSnapshot out of a capture record.
func DecodeSocketSnapshot(buf []byte) (SocketSnapshot, error) {
	if len(buf) < SocketSnapshotSize {
		return SocketSnapshot{}, fmt.Errorf("events: short socket snapshot record: %d bytes", len(buf))
	}
	var s SocketSnapshot
	s.Time = readUint64(buf[0:8])
	s.AddrV4 = readUint64(buf[8:16])
	copy(s.SrcV6[:], buf[16:32])
	copy(s.DstV6[:], buf[32:48])
	s.Ports = readUint32(buf[48:52])
	s.Family = readUint16(buf[52:54])
	s.State = buf[54]
	s.CAState = buf[55]
	s.Retransmits = buf[56]
	s.RTO = readUint32(buf[57:61])
	s.SndCwnd = readUint32(buf[61:65])
	s.SndSsthresh = readUint32(buf[65:69])
	s.RcvSsthresh = readUint32(buf[69:73])
	s.RTT = readUint32(buf[73:77])
	s.RTTVar = readUint32(buf[77:81])
	s.Unacked = readUint32(buf[81:85])
	s.Sacked = readUint32(buf[85:89])
	s.Lost = readUint32(buf[89:93])
	s.Retrans = readUint32(buf[93:97])
	s.TotalRetrans = readUint32(buf[97:101])
	s.PMTU = readUint32(buf[101:105])
	s.AdvMSS = readUint32(buf[105:109])
	s.Reordering = readUint32(buf[109:113])
	s.RcvRTT = readUint32(buf[113:117])
	s.RcvSpace = readUint32(buf[117:121])
	s.MinRTT = readUint32(buf[121:125])
	s.DeliveryRate = readUint64(buf[125:133])
	s.BusyTime = readUint64(buf[133:141])
	s.SndWnd = readUint32(buf[141:145])
	return s, nil
}

// FlowKey reports the 5-tuple this snapshot belongs to, decoding the
// packed addr_v4/ports fields exactly as
// original_source/tcbee-process/src/bindings/sock.rs's get_ip_tuple
// does.
func (s SocketSnapshot) FlowKey() storage.FlowKey {
	var src, dst net.IP
	if s.Family == afInet {
		src, dst = decodeAddrV4Pair(s.AddrV4)
	} else {
		src = net.IP(s.SrcV6[:])
		dst = net.IP(s.DstV6[:])
	}
	sport, dport := decodePortPair(s.Ports)
	return flowKey(src, dst, sport, dport)
}

func (s SocketSnapshot) Timestamp() float64 { return float64(s.Time) }

func (s SocketSnapshot) MaxIndex() int { return len(socketSnapshotFieldNames) - 1 }

func (s SocketSnapshot) FieldName(i int) string {
	if i < 0 || i >= len(socketSnapshotFieldNames) {
		panic("events: socket snapshot field index out of range")
	}
	return socketSnapshotFieldNames[i]
}

func (s SocketSnapshot) DefaultField(i int) Value {
	if i < 0 || i >= len(socketSnapshotFieldNames) {
		panic("events: socket snapshot field index out of range")
	}
	return storage.IntValue(0)
}

func (s SocketSnapshot) Field(i int) (Value, bool) {
	switch i {
	case 0:
		return presentInt(int64(s.State))
	case 1:
		return presentInt(int64(s.CAState))
	case 2:
		return presentInt(int64(s.Retransmits))
	case 3:
		return presentInt(int64(s.RTO))
	case 4:
		return presentInt(int64(s.SndCwnd))
	case 5:
		return presentInt(int64(s.SndSsthresh))
	case 6:
		return presentInt(int64(s.RcvSsthresh))
	case 7:
		return presentInt(int64(s.RTT))
	case 8:
		return presentInt(int64(s.RTTVar))
	case 9:
		return presentInt(int64(s.Unacked))
	case 10:
		return presentInt(int64(s.Sacked))
	case 11:
		return presentInt(int64(s.Lost))
	case 12:
		return presentInt(int64(s.Retrans))
	case 13:
		return presentInt(int64(s.TotalRetrans))
	case 14:
		return presentInt(int64(s.PMTU))
	case 15:
		return presentInt(int64(s.AdvMSS))
	case 16:
		return presentInt(int64(s.Reordering))
	case 17:
		return presentInt(int64(s.RcvRTT))
	case 18:
		return presentInt(int64(s.RcvSpace))
	case 19:
		return presentInt(int64(s.MinRTT))
	case 20:
		return presentInt(int64(s.DeliveryRate))
	case 21:
		return presentInt(int64(s.BusyTime))
	case 22:
		return presentInt(int64(s.SndWnd))
	default:
		return Value{}, false
	}
}
