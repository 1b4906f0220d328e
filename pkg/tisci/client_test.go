//go:build unit

package tisci

import (
	"encoding/binary"
	"testing"
)

// scriptTransport replies to each request from a caller-provided
// function and records the raw requests it saw.
type scriptTransport struct {
	sent  [][]byte
	reply func(req []byte) []byte
}

func (s *scriptTransport) Send(msg []byte) error {
	cp := make([]byte, len(msg))
	copy(cp, msg)
	s.sent = append(s.sent, cp)
	return nil
}

func (s *scriptTransport) Receive(buf []byte) (int, error) {
	req := s.sent[len(s.sent)-1]
	return copy(buf, s.reply(req)), nil
}

// ackReply builds a response echoing the request's type and sequence
// with the generic ACK flag and the given payload.
func ackReply(req []byte, payload []byte) []byte {
	h, _ := parseHeader(req)
	out := make([]byte, HeaderSize+len(payload))
	resp := Header{Type: h.Type, Host: 0, Seq: h.Seq, Flags: FlagRespGenericAck}
	resp.pack(out)
	copy(out[HeaderSize:], payload)
	return out
}

func TestHeaderRoundTrip(t *testing.T) {
	in := Header{Type: MsgSetClockState, Host: 12, Seq: 200, Flags: FlagReqAckOnProcessed}
	var buf [HeaderSize]byte
	in.pack(buf[:])

	out, err := parseHeader(buf[:])
	if err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, in)
	}

	// Packed layout: type u16 LE, host, seq, flags u32 LE
	if binary.LittleEndian.Uint16(buf[0:2]) != MsgSetClockState {
		t.Error("type not packed little-endian at offset 0")
	}
	if buf[2] != 12 || buf[3] != 200 {
		t.Error("host/seq bytes misplaced")
	}

	if _, err := parseHeader(buf[:4]); err == nil {
		t.Error("short buffer accepted")
	}
}

func TestGetRevision(t *testing.T) {
	tp := &scriptTransport{reply: func(req []byte) []byte {
		payload := make([]byte, 36)
		copy(payload, "SYSFW v2021.05\x00")
		binary.LittleEndian.PutUint16(payload[32:34], 0x15)
		payload[34] = 3
		payload[35] = 1
		return ackReply(req, payload)
	}}
	c := NewClient(tp, 12)

	v, err := c.GetRevision()
	if err != nil {
		t.Fatalf("GetRevision failed: %v", err)
	}
	if v.Description != "SYSFW v2021.05" {
		t.Errorf("Description = %q", v.Description)
	}
	if v.Revision != 0x15 || v.ABIMajor != 3 || v.ABIMinor != 1 {
		t.Errorf("version = %+v", v)
	}

	req := tp.sent[0]
	h, _ := parseHeader(req)
	if h.Type != MsgVersion {
		t.Errorf("request type = %#04x", h.Type)
	}
	if h.Host != 12 {
		t.Errorf("request host = %d", h.Host)
	}
	if h.Flags&FlagReqAckOnProcessed == 0 {
		t.Error("ack-on-processed flag not set")
	}
}

func TestSetDeviceStatePayload(t *testing.T) {
	tp := &scriptTransport{reply: func(req []byte) []byte { return ackReply(req, nil) }}
	c := NewClient(tp, 12)

	if err := c.SetDeviceState(0x30, DeviceSwStateOn); err != nil {
		t.Fatalf("SetDeviceState failed: %v", err)
	}

	req := tp.sent[0]
	payload := req[HeaderSize:]
	if len(payload) != 9 {
		t.Fatalf("payload length = %d, want 9", len(payload))
	}
	if binary.LittleEndian.Uint32(payload[0:4]) != 0x30 {
		t.Error("device id not at offset 0")
	}
	if payload[8] != DeviceSwStateOn {
		t.Error("state not at offset 8")
	}
}

func TestGetDeviceState(t *testing.T) {
	tp := &scriptTransport{reply: func(req []byte) []byte {
		payload := make([]byte, 10)
		binary.LittleEndian.PutUint32(payload[0:4], 7)
		binary.LittleEndian.PutUint32(payload[4:8], 2)
		payload[8] = DeviceSwStateOn
		payload[9] = DeviceSwStateOn
		return ackReply(req, payload)
	}}
	c := NewClient(tp, 12)

	st, err := c.GetDeviceState(0x30)
	if err != nil {
		t.Fatalf("GetDeviceState failed: %v", err)
	}
	if st.ContextLossCount != 7 || st.Resets != 2 {
		t.Errorf("state = %+v", st)
	}
	if st.ProgrammedState != DeviceSwStateOn || st.CurrentState != DeviceSwStateOn {
		t.Errorf("power states = (%d, %d)", st.ProgrammedState, st.CurrentState)
	}
}

func TestClockState(t *testing.T) {
	tp := &scriptTransport{reply: func(req []byte) []byte {
		h, _ := parseHeader(req)
		if h.Type == MsgGetClockState {
			return ackReply(req, []byte{ClockSwStateReq, ClockSwStateReq})
		}
		return ackReply(req, nil)
	}}
	c := NewClient(tp, 12)

	if err := c.SetClockState(0x30, 2, ClockSwStateReq); err != nil {
		t.Fatalf("SetClockState failed: %v", err)
	}
	payload := tp.sent[0][HeaderSize:]
	if len(payload) != 6 || payload[4] != 2 || payload[5] != ClockSwStateReq {
		t.Errorf("clock request payload = % x", payload)
	}

	prog, cur, err := c.GetClockState(0x30, 2)
	if err != nil {
		t.Fatalf("GetClockState failed: %v", err)
	}
	if prog != ClockSwStateReq || cur != ClockSwStateReq {
		t.Errorf("clock states = (%d, %d)", prog, cur)
	}
}

func TestXferSequenceAdvances(t *testing.T) {
	tp := &scriptTransport{reply: func(req []byte) []byte { return ackReply(req, nil) }}
	c := NewClient(tp, 12)

	for i := 0; i < 3; i++ {
		if err := c.SetDeviceState(1, DeviceSwStateOn); err != nil {
			t.Fatal(err)
		}
	}

	seqs := make(map[uint8]bool)
	for _, req := range tp.sent {
		h, _ := parseHeader(req)
		seqs[h.Seq] = true
	}
	if len(seqs) != 3 {
		t.Errorf("sequence numbers not distinct: %v", seqs)
	}
}

func TestXferRejectsBadReplies(t *testing.T) {
	tests := []struct {
		name  string
		reply func(req []byte) []byte
	}{
		{
			name: "wrong type",
			reply: func(req []byte) []byte {
				out := ackReply(req, nil)
				binary.LittleEndian.PutUint16(out[0:2], MsgVersion)
				return out
			},
		},
		{
			name: "wrong sequence",
			reply: func(req []byte) []byte {
				out := ackReply(req, nil)
				out[3] ^= 0xFF
				return out
			},
		},
		{
			name: "missing ack",
			reply: func(req []byte) []byte {
				out := ackReply(req, nil)
				binary.LittleEndian.PutUint32(out[4:8], 0)
				return out
			},
		},
		{
			name:  "truncated",
			reply: func(req []byte) []byte { return []byte{0x00} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(&scriptTransport{reply: tt.reply}, 12)
			if err := c.SetDeviceState(1, DeviceSwStateOn); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
