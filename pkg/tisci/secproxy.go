package tisci

import (
	"encoding/binary"
	"fmt"
	"runtime"

	"github.com/emergingrobotics/go-edma/pkg/regmap"
)

// Secure proxy register layout. Each proxy thread owns a stride of the
// target-data and realtime-status windows; messages are fixed-size
// frames written one word at a time, the write to the last data
// register committing the frame.
const (
	secProxyThreadStride = 0x1000
	secProxyMsgBytes     = 60
	secProxyDataFirst    = 0x04
	secProxyDataLast     = 0x3C

	rtThreadStatus     = 0x00
	rtStatusErrorMask  = 1 << 31
	rtStatusCurCntMask = 0x7F
)

// maxReceivePolls bounds the busy-wait for a reply frame.
const maxReceivePolls = 1_000_000

// SecureProxy is a Transport over a TI secure-proxy mailbox: one
// thread for requests, one for replies. target and rt are the mapped
// target-data and realtime-status register windows.
type SecureProxy struct {
	target   regmap.RegisterFile
	rt       regmap.RegisterFile
	txThread uint32
	rxThread uint32
}

// NewSecureProxy creates a transport over the given proxy threads.
func NewSecureProxy(target, rt regmap.RegisterFile, txThread, rxThread uint32) *SecureProxy {
	return &SecureProxy{
		target:   target,
		rt:       rt,
		txThread: txThread,
		rxThread: rxThread,
	}
}

func (s *SecureProxy) threadError(thread uint32) error {
	if s.rt.Read32(thread*secProxyThreadStride+rtThreadStatus)&rtStatusErrorMask != 0 {
		return fmt.Errorf("secure proxy thread %d is corrupted", thread)
	}
	return nil
}

// Send implements Transport. The message is zero-padded to the fixed
// frame size; the final register write commits it.
func (s *SecureProxy) Send(msg []byte) error {
	if len(msg) > secProxyMsgBytes {
		return fmt.Errorf("message of %d bytes exceeds frame size %d", len(msg), secProxyMsgBytes)
	}
	if err := s.threadError(s.txThread); err != nil {
		return err
	}

	var frame [secProxyMsgBytes]byte
	copy(frame[:], msg)

	base := s.txThread * secProxyThreadStride
	for reg, i := uint32(secProxyDataFirst), 0; reg <= secProxyDataLast; reg, i = reg+4, i+4 {
		s.target.Write32(base+reg, binary.LittleEndian.Uint32(frame[i:i+4]))
	}
	return nil
}

// Receive implements Transport. It busy-waits (bounded) for a frame
// on the reply thread.
func (s *SecureProxy) Receive(buf []byte) (int, error) {
	base := s.rxThread * secProxyThreadStride

	polls := 0
	for {
		status := s.rt.Read32(base + rtThreadStatus)
		if status&rtStatusErrorMask != 0 {
			return 0, fmt.Errorf("secure proxy thread %d is corrupted", s.rxThread)
		}
		if status&rtStatusCurCntMask != 0 {
			break
		}
		polls++
		if polls >= maxReceivePolls {
			return 0, fmt.Errorf("no reply on secure proxy thread %d", s.rxThread)
		}
		runtime.Gosched()
	}

	var frame [secProxyMsgBytes]byte
	for reg, i := uint32(secProxyDataFirst), 0; reg <= secProxyDataLast; reg, i = reg+4, i+4 {
		binary.LittleEndian.PutUint32(frame[i:i+4], s.target.Read32(base+reg))
	}
	n := copy(buf, frame[:])
	return n, nil
}
