package probe

import "github.com/cilium/ebpf"

// Counter map names the kernel side keeps as BPF_MAP_TYPE_PERCPU_ARRAY
// single-element accumulators, one set per source, plus the flow-key
// set the packet-path programs populate for the dashboard.
//
// Grounded on original_source/tcbee/tcbee-ebpf/src/counters.rs's
// EVENTS_HANDLED/EVENTS_DROPPED/INGRESS_EVENTS/EGRESS_EVENTS maps,
// extended with one handled/dropped pair per source the way spec.md
// §4.1/§4.2 describes ("every source ... increments the handled
// counter ... increments the dropped counter").
const (
	MapXDPHandled = "xdp_ingress_handled"
	MapXDPDropped = "xdp_ingress_dropped"
	MapXDPPackets = "xdp_ingress_packets"

	MapTCHandled = "tc_egress_handled"
	MapTCDropped = "tc_egress_dropped"
	MapTCPackets = "tc_egress_packets"

	MapProbeHandled       = "tcp_probe_handled"
	MapProbeDropped       = "tcp_probe_dropped"
	MapRetransmitHandled  = "tcp_retransmit_handled"
	MapRetransmitDropped  = "tcp_retransmit_dropped"
	MapBadChecksumHandled = "tcp_bad_csum_handled"
	MapBadChecksumDropped = "tcp_bad_csum_dropped"

	MapSocketSendHandled = "tcp_sendmsg_handled"
	MapSocketSendDropped = "tcp_sendmsg_dropped"
	MapSocketRecvHandled = "tcp_cleanup_rbuf_handled"
	MapSocketRecvDropped = "tcp_cleanup_rbuf_dropped"

	// MapFlowKeys is the LRU hash (one map shared by all CPUs, not a
	// per-CPU map) the packet-path programs
	// insert observed flow keys into (spec.md §4.1: "insert the flow
	// key into a per-CPU flow-map used by the live dashboard;
	// insertion failures are tolerated"). Value is unused (a zero
	// byte); presence as a key is all that's read back.
	MapFlowKeys = "flow_keys"
)

// Map looks up a named map in the loaded collection, or nil if it
// isn't present (e.g. a counter pair for a source that was never
// attached). Callers (internal/ringbuf, mainly) already handle a nil
// map as "this source doesn't track that counter."
func (m *Manager) Map(name string) *ebpf.Map {
	if m.coll == nil {
		return nil
	}
	return m.coll.Maps[name]
}
