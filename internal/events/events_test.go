package events

import (
	"encoding/binary"
	"testing"
)

func TestDecodeHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint64(buf[0:8], 123456789)
	binary.LittleEndian.PutUint32(buf[8:12], 0x0100007f)  // 127.0.0.1 host order
	binary.LittleEndian.PutUint32(buf[12:16], 0x0200007f) // 127.0.0.2
	binary.LittleEndian.PutUint16(buf[48:50], 51000)
	binary.LittleEndian.PutUint16(buf[50:52], 443)
	binary.LittleEndian.PutUint32(buf[52:56], 1000)
	binary.LittleEndian.PutUint32(buf[56:60], 2000)
	binary.LittleEndian.PutUint16(buf[60:62], 65535)
	buf[66] = 1 // flag_syn
	binary.LittleEndian.PutUint16(buf[68:70], 0xBEEF)

	h, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if h.Time != 123456789 {
		t.Errorf("Time = %d, want 123456789", h.Time)
	}
	if h.SPort != 51000 || h.DPort != 443 {
		t.Errorf("ports = %d/%d, want 51000/443", h.SPort, h.DPort)
	}
	if h.Seq != 1000 || h.Ack != 2000 || h.Window != 65535 {
		t.Errorf("seq/ack/window = %d/%d/%d, want 1000/2000/65535", h.Seq, h.Ack, h.Window)
	}
	if !h.FlagSYN {
		t.Error("FlagSYN = false, want true")
	}
	if h.FlagFIN {
		t.Error("FlagFIN = true, want false")
	}
	if h.Checksum != 0xBEEF {
		t.Errorf("Checksum = %x, want beef", h.Checksum)
	}

	key := h.FlowKey()
	if key.SPort != 51000 || key.DPort != 443 || key.L4Proto != 6 {
		t.Errorf("FlowKey = %+v, unexpected", key)
	}
}

func TestDecodeHeaderShortBuffer(t *testing.T) {
	if _, err := DecodeHeader(make([]byte, HeaderSize-1)); err == nil {
		t.Fatal("expected error decoding short header buffer")
	}
}

func TestHeaderFieldSkipsZeroAndFalse(t *testing.T) {
	var h Header
	if _, ok := h.Field(0); ok {
		t.Error("zero SEQ_NUM should not be present")
	}
	if _, ok := h.Field(3); ok {
		t.Error("unset FLAG_URG should not be present")
	}
	h.Seq = 42
	h.FlagURG = true
	if v, ok := h.Field(0); !ok || v.I != 42 {
		t.Errorf("Field(0) = %+v, %v; want 42, true", v, ok)
	}
	if v, ok := h.Field(3); !ok || !v.B {
		t.Errorf("Field(3) = %+v, %v; want true, true", v, ok)
	}
}

// TestSocketSnapshotPortDecode pins the resolved port-endianness open
// question: the packed 4-byte ports field is read as two big-endian
// bytes then each half reparsed little-endian, per
// original_source/tcbee-process/src/bindings/sock.rs's get_ip_tuple.
func TestSocketSnapshotPortDecode(t *testing.T) {
	// Want sport=0x50C3 (20675), dport=0xBB01 (47873) once decodePortPair
	// runs its to_be_bytes-then-split-then-from_le_bytes dance. That
	// requires the packed "ports" field (read little-endian off the
	// wire, matching the kernel's native encoding) to equal 0xC35001BB.
	var buf [SocketSnapshotSize]byte
	buf[52] = byte(afInet)
	binary.LittleEndian.PutUint32(buf[48:52], 0xC35001BB)
	snap, err := DecodeSocketSnapshot(buf[:])
	if err != nil {
		t.Fatalf("DecodeSocketSnapshot: %v", err)
	}
	key := snap.FlowKey()
	// sport: from_le_bytes([0xC3,0x50]) = 0x50C3 = 20675
	if key.SPort != 20675 {
		t.Errorf("SPort = %d, want 20675", key.SPort)
	}
	// dport: from_le_bytes([0x01,0xBB]) = 0xBB01 = 47873
	if key.DPort != 47873 {
		t.Errorf("DPort = %d, want 47873", key.DPort)
	}
}

func TestDecodeCongestionProbeRoundTrip(t *testing.T) {
	buf := make([]byte, CongestionProbeSize)
	binary.LittleEndian.PutUint64(buf[0:8], 999)
	buf[8+4] = 127 // saddr[4] within the 28-byte sockaddr buffer (shortenToIPv4 offset)
	buf[8+5] = 0
	buf[8+6] = 0
	buf[8+7] = 1
	binary.LittleEndian.PutUint16(buf[68:70], 2) // family = AF_INET
	binary.LittleEndian.PutUint32(buf[84:88], 10) // snd_cwnd

	p, err := DecodeCongestionProbe(buf)
	if err != nil {
		t.Fatalf("DecodeCongestionProbe: %v", err)
	}
	if p.Time != 999 {
		t.Errorf("Time = %d, want 999", p.Time)
	}
	key := p.FlowKey()
	if key.Src != "127.0.0.1" {
		t.Errorf("Src = %q, want 127.0.0.1", key.Src)
	}
	if v, ok := p.Field(4); !ok || v.I != 10 {
		t.Errorf("SND_CWND field = %+v, %v; want 10, true", v, ok)
	}
}

func TestDecodeRetransmitAndBadChecksumShort(t *testing.T) {
	if _, err := DecodeRetransmit(make([]byte, RetransmitSize-1)); err == nil {
		t.Fatal("expected error decoding short retransmit buffer")
	}
	if _, err := DecodeBadChecksum(make([]byte, BadChecksumSize-1)); err == nil {
		t.Fatal("expected error decoding short bad checksum buffer")
	}
}

func TestBadChecksumFlowKeyAddresses(t *testing.T) {
	buf := make([]byte, BadChecksumSize)
	buf[8], buf[9], buf[10], buf[11] = 10, 0, 0, 1
	buf[12], buf[13], buf[14], buf[15] = 10, 0, 0, 2
	b, err := DecodeBadChecksum(buf)
	if err != nil {
		t.Fatalf("DecodeBadChecksum: %v", err)
	}
	key := b.FlowKey()
	if key.Src != "10.0.0.1" || key.Dst != "10.0.0.2" {
		t.Errorf("FlowKey = %+v, want 10.0.0.1 -> 10.0.0.2", key)
	}
}
