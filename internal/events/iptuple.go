package events

import (
	"encoding/binary"
	"net"

	"github.com/probelab/tcpwatch/internal/storage"
)

// afInet mirrors the kernel's AF_INET family tag used to pick the IPv4
// branch of a sockaddr-shaped field.
const afInet = 2

// flowKey builds the 5-tuple storage.FlowKey the demultiplexer keys
// flows on, normalizing whatever address representation an event kind
// carries into dotted-quad/hex-colon strings.
func flowKey(src, dst net.IP, sport, dport uint16) storage.FlowKey {
	return storage.FlowKey{
		Src:     src.String(),
		Dst:     dst.String(),
		SPort:   int64(sport),
		DPort:   int64(dport),
		L4Proto: 6,
	}
}

// decodeAddrV4Pair splits the packed 8-byte addr_v4 field the socket
// and congestion-window events share into source and destination IPv4
// addresses.
//
// Grounded on original_source/db/src/bindings/sock.rs's get_ip_tuple:
// the field is read as 8 big-endian bytes, split into two 4-byte
// halves, and each half is byte-reversed before being read as an
// address.
func decodeAddrV4Pair(addrV4 uint64) (src, dst net.IP) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], addrV4)
	return reversedIPv4(buf[0:4]), reversedIPv4(buf[4:8])
}

func reversedIPv4(b []byte) net.IP {
	return net.IPv4(b[3], b[2], b[1], b[0])
}

// decodePortPair splits the packed 4-byte ports field the socket and
// congestion-window events share into source and destination ports.
//
// Grounded on the same get_ip_tuple: the field is read as 4 big-endian
// bytes, split into two 2-byte halves, and each half is parsed
// little-endian.
func decodePortPair(ports uint32) (sport, dport uint16) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], ports)
	return binary.LittleEndian.Uint16(buf[0:2]), binary.LittleEndian.Uint16(buf[2:4])
}

// shortenToIPv4 extracts an embedded IPv4 address from the 28-byte
// sockaddr-shaped buffer tcp_probe captures. Two offsets appear in
// original_source (main.rs's crate-level helper, actually imported by
// tcp_probe.rs, uses +4; flow_tracker.rs's unused local copy uses the
// same +4 for v4 but +4 for v6 too). We follow the helper tcp_probe.rs
// actually imports: +4 for v4.
func shortenToIPv4(buf [28]byte) net.IP {
	return net.IPv4(buf[4], buf[5], buf[6], buf[7])
}

// shortenToIPv6 extracts an embedded IPv6 address from the same
// 28-byte buffer, at the +8 offset used by the crate-level helper
// tcp_probe.rs imports (as opposed to flow_tracker.rs's unused,
// differently-offset local copy).
func shortenToIPv6(buf [28]byte) net.IP {
	ip := make(net.IP, 16)
	copy(ip, buf[8:24])
	return ip
}
