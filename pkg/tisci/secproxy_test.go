//go:build unit

package tisci

import (
	"bytes"
	"testing"
)

type mapRegs map[uint32]uint32

func (m mapRegs) Read32(off uint32) uint32     { return m[off] }
func (m mapRegs) Write32(off uint32, v uint32) { m[off] = v }

func TestSecureProxyRoundTrip(t *testing.T) {
	target := mapRegs{}
	rt := mapRegs{}
	// Same thread for both directions loops the frame back
	sp := NewSecureProxy(target, rt, 0, 0)

	msg := []byte("tisci request payload")
	if err := sp.Send(msg); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	// The words land between the first and last data registers
	if target[secProxyDataFirst] == 0 {
		t.Error("first data register not written")
	}
	if _, ok := target[secProxyDataLast]; !ok {
		t.Error("committing write to the last data register missing")
	}

	rt[rtThreadStatus] = 1 // one message queued
	buf := make([]byte, secProxyMsgBytes)
	n, err := sp.Receive(buf)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if n != secProxyMsgBytes {
		t.Errorf("Receive returned %d bytes, want %d", n, secProxyMsgBytes)
	}
	if !bytes.Equal(buf[:len(msg)], msg) {
		t.Errorf("payload mismatch: got %q", buf[:len(msg)])
	}
	for _, b := range buf[len(msg):] {
		if b != 0 {
			t.Error("frame padding not zeroed")
			break
		}
	}
}

func TestSecureProxyThreadStride(t *testing.T) {
	target := mapRegs{}
	rt := mapRegs{}
	sp := NewSecureProxy(target, rt, 3, 1)

	if err := sp.Send([]byte{0xAA}); err != nil {
		t.Fatal(err)
	}
	if target[3*secProxyThreadStride+secProxyDataFirst]&0xFF != 0xAA {
		t.Error("frame not written to thread 3's window")
	}
	if _, ok := target[secProxyDataFirst]; ok {
		t.Error("frame leaked into thread 0's window")
	}
}

func TestSecureProxySendTooLarge(t *testing.T) {
	sp := NewSecureProxy(mapRegs{}, mapRegs{}, 0, 0)
	if err := sp.Send(make([]byte, secProxyMsgBytes+1)); err == nil {
		t.Error("oversized frame accepted")
	}
}

func TestSecureProxyThreadError(t *testing.T) {
	target := mapRegs{}
	rt := mapRegs{
		0 * secProxyThreadStride: rtStatusErrorMask,
		1 * secProxyThreadStride: rtStatusErrorMask | 1,
	}
	sp := NewSecureProxy(target, rt, 0, 1)

	if err := sp.Send([]byte{1}); err == nil {
		t.Error("send on corrupted thread accepted")
	}
	if _, err := sp.Receive(make([]byte, 4)); err == nil {
		t.Error("receive on corrupted thread accepted")
	}
}
