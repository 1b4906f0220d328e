package edma

import (
	"sync/atomic"

	"github.com/emergingrobotics/go-edma/pkg/regmap"
)

// CompletionStatus is the state reported to a channel's completion
// callback.
type CompletionStatus int

const (
	// CompletionComplete: the descriptor's remaining length is zero.
	CompletionComplete CompletionStatus = iota
	// CompletionBlock: an intermediate completion; data remains.
	CompletionBlock
)

func (s CompletionStatus) String() string {
	if s == CompletionComplete {
		return "complete"
	}
	return "block"
}

// CompletionCallback is invoked from interrupt context when a
// channel's completion code fires. It must not call back into the
// lifecycle operations of the same device.
type CompletionCallback func(channel uint32, status CompletionStatus, arg any)

// completionHandler is the dispatcher-visible registration bundle. It
// is published with a single atomic pointer swap so the dispatcher
// sees either the previous or the new registration, never a torn one.
type completionHandler struct {
	cb      CompletionCallback
	arg     any
	channel uint32
}

// channelSlot is the per-channel bookkeeping. dir is written only in
// task context under the device mutex; handler is shared with the
// completion dispatcher.
type channelSlot struct {
	dir     Direction
	handler atomic.Pointer[completionHandler]
}

// ChannelStatus is a point-in-time view of a configured channel.
type ChannelStatus struct {
	Busy          bool
	Direction     Direction
	PendingLength uint32
}

// Shadow-region event and interrupt register helpers. All take the
// channel (equal to its completion code) and handle the low/high word
// split internally.

func clearEvent(r regmap.RegisterFile, region, ch uint32) {
	regmap.SetBit(r, regmap.ShadowReg(region, regmap.RegECR), ch)
}

func clearInterrupt(r regmap.RegisterFile, region, ch uint32) {
	regmap.SetBit(r, regmap.ShadowReg(region, regmap.RegICR), ch)
}

// setEvent issues a manual (software) trigger.
func setEvent(r regmap.RegisterFile, region, ch uint32) {
	regmap.SetBit(r, regmap.ShadowReg(region, regmap.RegESR), ch)
}

// enableEvent arms event-triggered mode.
func enableEvent(r regmap.RegisterFile, region, ch uint32) {
	regmap.SetBit(r, regmap.ShadowReg(region, regmap.RegEESR), ch)
}

func disableEvent(r regmap.RegisterFile, region, ch uint32) {
	regmap.SetBit(r, regmap.ShadowReg(region, regmap.RegEECR), ch)
}

func enableCompletionIntr(r regmap.RegisterFile, region, ch uint32) {
	regmap.SetBit(r, regmap.ShadowReg(region, regmap.RegIESR), ch)
}

func disableCompletionIntr(r regmap.RegisterFile, region, ch uint32) {
	regmap.SetBit(r, regmap.ShadowReg(region, regmap.RegIECR), ch)
}

func interruptPending(r regmap.RegisterFile, region, ch uint32) bool {
	return regmap.TestBit(r, regmap.ShadowReg(region, regmap.RegIPR), ch)
}

func eventPending(r regmap.RegisterFile, region, ch uint32) bool {
	return regmap.TestBit(r, regmap.ShadowReg(region, regmap.RegER), ch)
}

// armTriggers starts a transfer according to the direction's trigger
// rule. Pending event and interrupt state is cleared first in every
// case.
func (d Direction) armTriggers(r regmap.RegisterFile, region, ch uint32) error {
	switch d {
	case DirMemToMem:
		// Single manual trigger for the whole block
		clearEvent(r, region, ch)
		clearInterrupt(r, region, ch)
		setEvent(r, region, ch)

	case DirPeripheralToMem:
		clearEvent(r, region, ch)
		clearInterrupt(r, region, ch)
		enableEvent(r, region, ch)

	case DirMemToPeripheral:
		// Event-triggered, with one manual trigger to prime the
		// first burst
		clearEvent(r, region, ch)
		clearInterrupt(r, region, ch)
		enableEvent(r, region, ch)
		setEvent(r, region, ch)

	default:
		return NewError(StatusUnsupported, "starting channel with no direction")
	}
	return nil
}

// disarmTriggers disables the trigger mode matching the direction and
// clears pending event and interrupt state. Resources stay allocated.
func (d Direction) disarmTriggers(r regmap.RegisterFile, region, ch uint32) error {
	switch d {
	case DirMemToMem:
		// Manual trigger mode has nothing armed; the pending event
		// is cleared below

	case DirPeripheralToMem, DirMemToPeripheral:
		disableEvent(r, region, ch)

	default:
		return NewError(StatusUnsupported, "stopping channel with no direction")
	}

	clearEvent(r, region, ch)
	clearInterrupt(r, region, ch)
	return nil
}

// busy derives the busy flag from the completion and event-pending
// bits. A peripheral-driven channel can sit between bursts with no
// completion bit set yet, so the event-pending condition is
// load-bearing there.
func (d Direction) busy(transferComplete, hasPendingEvent bool) (bool, error) {
	switch d {
	case DirMemToMem:
		return !transferComplete, nil
	case DirPeripheralToMem, DirMemToPeripheral:
		return !transferComplete && hasPendingEvent, nil
	default:
		return false, NewError(StatusUnsupported, "status of channel with no direction")
	}
}
