package testutil

import (
	"errors"
	"sync"

	"github.com/emergingrobotics/go-edma/pkg/regmap"
)

var errClosed = errors.New("fake interrupt line closed")

// FakeRegisterFile implements a behavioral in-memory model of the
// TPCC register file for one shadow region: the event and interrupt
// registers follow their write-one-to-set / write-one-to-clear
// semantics, everything else is plain storage. With AutoComplete set,
// a manual trigger (ESR write) runs the mapped descriptor to
// completion immediately: counts are consumed and the completion bit
// of the descriptor's completion code latches in IPR.
type FakeRegisterFile struct {
	mu     sync.Mutex
	region uint32
	mem    map[uint32]uint32

	er  [2]uint32 // event status
	eer [2]uint32 // event enable
	ier [2]uint32 // interrupt enable
	ipr [2]uint32 // interrupt pending

	AutoComplete bool
}

// NewFakeRegisterFile creates a model serving the given shadow region.
func NewFakeRegisterFile(region uint32) *FakeRegisterFile {
	return &FakeRegisterFile{
		region: region,
		mem:    make(map[uint32]uint32),
	}
}

// shadowReg maps off to a (register, high-word) pair when it falls in
// the modeled shadow region, with ok reporting the match.
func (f *FakeRegisterFile) shadowReg(off uint32) (reg uint32, hi int, ok bool) {
	base := regmap.ShadowBase + f.region*regmap.ShadowSize
	if off < base || off >= base+regmap.ShadowSize {
		return 0, 0, false
	}
	reg = off - base
	if reg%8 >= 4 {
		return reg - 4, 1, true
	}
	return reg, 0, true
}

// Read32 implements regmap.RegisterFile.
func (f *FakeRegisterFile) Read32(off uint32) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()

	if reg, hi, ok := f.shadowReg(off); ok {
		switch reg {
		case regmap.RegER:
			return f.er[hi]
		case regmap.RegEER:
			return f.eer[hi]
		case regmap.RegIER:
			return f.ier[hi]
		case regmap.RegIPR:
			return f.ipr[hi]
		}
	}
	return f.mem[off]
}

// Write32 implements regmap.RegisterFile.
func (f *FakeRegisterFile) Write32(off uint32, v uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if reg, hi, ok := f.shadowReg(off); ok {
		switch reg {
		case regmap.RegESR:
			f.er[hi] |= v
			if f.AutoComplete {
				f.runTriggered(v, hi)
			}
			return
		case regmap.RegECR:
			f.er[hi] &^= v
			return
		case regmap.RegEESR:
			f.eer[hi] |= v
			return
		case regmap.RegEECR:
			f.eer[hi] &^= v
			return
		case regmap.RegIESR:
			f.ier[hi] |= v
			return
		case regmap.RegIECR:
			f.ier[hi] &^= v
			return
		case regmap.RegICR:
			f.ipr[hi] &^= v
			return
		case regmap.RegIEVAL, regmap.RegSECR:
			return
		}
	}
	f.mem[off] = v
}

// runTriggered consumes the descriptors of all manually triggered
// channels. Callers hold f.mu.
func (f *FakeRegisterFile) runTriggered(mask uint32, hi int) {
	for bit := uint32(0); bit < 32; bit++ {
		if mask&(1<<bit) == 0 {
			continue
		}
		ch := bit + uint32(hi)*32
		param := (f.mem[regmap.DchmapOffset(ch)] & regmap.DchmapParamMask) >>
			regmap.DchmapParamShift
		base := regmap.ParamOffset(param)

		opt := f.mem[base]
		// Counts drain as the engine moves the block: BCNT and
		// CCNT reach zero, ACNT is static
		f.mem[base+0x08] &= 0x0000_FFFF
		f.mem[base+0x1C] &^= 0x0000_FFFF

		// Event consumed
		f.er[hi] &^= 1 << bit

		if opt&regmap.OptTCIntEnMask != 0 {
			tcc := (opt & regmap.OptTCCMask) >> regmap.OptTCCShift
			f.ipr[tcc/32] |= 1 << (tcc % 32)
		}
	}
}

// Raise latches a completion bit without touching any descriptor.
func (f *FakeRegisterFile) Raise(tcc uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ipr[tcc/32] |= 1 << (tcc % 32)
}

// RaiseEvent latches a hardware event for a channel, as a peripheral
// trigger would.
func (f *FakeRegisterFile) RaiseEvent(ch uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.er[ch/32] |= 1 << (ch % 32)
}

// EventEnabled reports whether event-triggered mode is armed for ch.
func (f *FakeRegisterFile) EventEnabled(ch uint32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.eer[ch/32]&(1<<(ch%32)) != 0
}

// InterruptEnabled reports whether the completion interrupt source of
// ch is unmasked.
func (f *FakeRegisterFile) InterruptEnabled(ch uint32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ier[ch/32]&(1<<(ch%32)) != 0
}

// CompletionPending reports whether tcc's completion bit is latched.
func (f *FakeRegisterFile) CompletionPending(tcc uint32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ipr[tcc/32]&(1<<(tcc%32)) != 0
}

// FakeInterruptLine is an in-process interrupt source with the same
// wait/re-arm contract as a UIO line.
type FakeInterruptLine struct {
	mu      sync.Mutex
	fired   chan uint32
	count   uint32
	enabled bool
	closed  bool
}

// NewFakeInterruptLine creates an interrupt line fake.
func NewFakeInterruptLine() *FakeInterruptLine {
	return &FakeInterruptLine{fired: make(chan uint32, 16)}
}

// Fire delivers one interrupt to a waiter.
func (l *FakeInterruptLine) Fire() {
	l.mu.Lock()
	l.count++
	n := l.count
	closed := l.closed
	l.mu.Unlock()
	if !closed {
		l.fired <- n
	}
}

// Wait blocks until Fire or Close.
func (l *FakeInterruptLine) Wait() (uint32, error) {
	n, ok := <-l.fired
	if !ok {
		return 0, errClosed
	}
	return n, nil
}

// Enable records the line as armed.
func (l *FakeInterruptLine) Enable() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = true
	return nil
}

// Disable records the line as masked.
func (l *FakeInterruptLine) Disable() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = false
	return nil
}

// Close makes pending and future Waits fail.
func (l *FakeInterruptLine) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.fired)
	}
	return nil
}
