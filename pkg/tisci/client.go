package tisci

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// Transport carries one packed message to the system controller and
// returns the controller's reply. Implementations are message
// oriented; a reply always corresponds to the last request sent.
type Transport interface {
	Send(msg []byte) error
	Receive(buf []byte) (int, error)
}

// Client issues TISCI requests over a Transport. Safe for use from
// multiple goroutines; requests are serialized.
type Client struct {
	mu   sync.Mutex
	tp   Transport
	host uint8
	seq  uint8
}

// NewClient creates a client identifying itself as the given host.
func NewClient(tp Transport, host uint8) *Client {
	return &Client{tp: tp, host: host}
}

// xfer sends one request and validates the response header: the reply
// must echo the request type and sequence number and carry the ACK
// flag. It returns the response payload after the header.
func (c *Client) xfer(msgType uint16, payload []byte, respLen int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	hdr := Header{
		Type:  msgType,
		Host:  c.host,
		Seq:   c.seq,
		Flags: FlagReqAckOnProcessed,
	}

	msg := make([]byte, HeaderSize+len(payload))
	hdr.pack(msg)
	copy(msg[HeaderSize:], payload)

	if err := c.tp.Send(msg); err != nil {
		return nil, fmt.Errorf("sending message %#04x: %w", msgType, err)
	}

	resp := make([]byte, HeaderSize+respLen)
	n, err := c.tp.Receive(resp)
	if err != nil {
		return nil, fmt.Errorf("receiving reply to %#04x: %w", msgType, err)
	}
	resp = resp[:n]

	rh, err := parseHeader(resp)
	if err != nil {
		return nil, fmt.Errorf("reply to %#04x: %w", msgType, err)
	}
	if rh.Type != msgType {
		return nil, fmt.Errorf("reply type %#04x does not match request %#04x", rh.Type, msgType)
	}
	if rh.Seq != c.seq {
		return nil, fmt.Errorf("reply seq %d does not match request seq %d", rh.Seq, c.seq)
	}
	if rh.Flags&FlagRespGenericAck == 0 {
		return nil, fmt.Errorf("request %#04x not acknowledged (flags %#x)", msgType, rh.Flags)
	}
	if len(resp) < HeaderSize+respLen {
		return nil, fmt.Errorf("reply to %#04x truncated: %d bytes", msgType, len(resp))
	}
	return resp[HeaderSize : HeaderSize+respLen], nil
}

// GetRevision queries the firmware revision.
func (c *Client) GetRevision() (Version, error) {
	// resp: description[32], revision u16, abi_major u8, abi_minor u8
	p, err := c.xfer(MsgVersion, nil, 36)
	if err != nil {
		return Version{}, err
	}
	desc := p[:32]
	n := 0
	for n < len(desc) && desc[n] != 0 {
		n++
	}
	return Version{
		Description: string(desc[:n]),
		Revision:    binary.LittleEndian.Uint16(p[32:34]),
		ABIMajor:    p[34],
		ABIMinor:    p[35],
	}, nil
}

// SetDeviceState requests a device power state transition.
func (c *Client) SetDeviceState(id uint32, state uint8) error {
	// req: id u32, reserved u32, state u8
	payload := make([]byte, 9)
	binary.LittleEndian.PutUint32(payload[0:4], id)
	payload[8] = state
	_, err := c.xfer(MsgSetDeviceState, payload, 0)
	return err
}

// GetDeviceState queries a device's power state.
func (c *Client) GetDeviceState(id uint32) (DeviceState, error) {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, id)
	// resp: context_loss_count u32, resets u32, programmed u8, current u8
	p, err := c.xfer(MsgGetDeviceState, payload, 10)
	if err != nil {
		return DeviceState{}, err
	}
	return DeviceState{
		ContextLossCount: binary.LittleEndian.Uint32(p[0:4]),
		Resets:           binary.LittleEndian.Uint32(p[4:8]),
		ProgrammedState:  p[8],
		CurrentState:     p[9],
	}, nil
}

// SetClockState requests a clock state transition on a device clock.
func (c *Client) SetClockState(devID uint32, clkID uint8, state uint8) error {
	// req: dev_id u32, clk_id u8, request_state u8
	payload := make([]byte, 6)
	binary.LittleEndian.PutUint32(payload[0:4], devID)
	payload[4] = clkID
	payload[5] = state
	_, err := c.xfer(MsgSetClockState, payload, 0)
	return err
}

// GetClockState queries the current state of a device clock. It
// returns the programmed and current hardware states.
func (c *Client) GetClockState(devID uint32, clkID uint8) (programmed, current uint8, err error) {
	payload := make([]byte, 5)
	binary.LittleEndian.PutUint32(payload[0:4], devID)
	payload[4] = clkID
	p, err := c.xfer(MsgGetClockState, payload, 2)
	if err != nil {
		return 0, 0, err
	}
	return p[0], p[1], nil
}
