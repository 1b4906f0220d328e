// Package tisci implements the client side of the TI system
// controller (TISCI) message protocol, as far as the DMA subsystem
// needs it: firmware revision, device power state and clock state.
// Messages are packed little-endian C structs prefixed with a generic
// 8-byte header.
package tisci

import (
	"encoding/binary"
	"fmt"
)

// Message types
const (
	MsgVersion        uint16 = 0x0002
	MsgSetClockState  uint16 = 0x0100
	MsgGetClockState  uint16 = 0x0101
	MsgSetDeviceState uint16 = 0x0200
	MsgGetDeviceState uint16 = 0x0201
)

// Request and response flags
const (
	FlagReqAckOnReceived  uint32 = 1 << 0
	FlagReqAckOnProcessed uint32 = 1 << 1
	FlagRespGenericAck    uint32 = 1 << 1
)

// Device states for SetDeviceState
const (
	DeviceSwStateAutoOff uint8 = 0
	DeviceSwStateRetain  uint8 = 1
	DeviceSwStateOn      uint8 = 2
)

// Clock states for SetClockState
const (
	ClockSwStateUnreq uint8 = 0
	ClockSwStateAuto  uint8 = 1
	ClockSwStateReq   uint8 = 2
)

// HeaderSize is the packed size of the generic message header.
const HeaderSize = 8

// Header is the generic header prefixed to every request and response:
// {type u16, host u8, seq u8, flags u32}, packed little-endian.
type Header struct {
	Type  uint16
	Host  uint8
	Seq   uint8
	Flags uint32
}

func (h *Header) pack(buf []byte) {
	binary.LittleEndian.PutUint16(buf[0:2], h.Type)
	buf[2] = h.Host
	buf[3] = h.Seq
	binary.LittleEndian.PutUint32(buf[4:8], h.Flags)
}

func parseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("message too short for header (%d bytes)", len(buf))
	}
	return Header{
		Type:  binary.LittleEndian.Uint16(buf[0:2]),
		Host:  buf[2],
		Seq:   buf[3],
		Flags: binary.LittleEndian.Uint32(buf[4:8]),
	}, nil
}

// Version is the firmware revision reported by the system controller.
type Version struct {
	Description string
	Revision    uint16
	ABIMajor    uint8
	ABIMinor    uint8
}

// DeviceState is the power state of a device as reported by
// GetDeviceState.
type DeviceState struct {
	ContextLossCount uint32
	Resets           uint32
	ProgrammedState  uint8
	CurrentState     uint8
}
