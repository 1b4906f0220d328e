package edma

import (
	"log"

	"github.com/emergingrobotics/go-edma/pkg/regmap"
)

// ServiceCompletions runs one pass of the completion dispatcher: it
// scans the 64-bit completion vector of the device's shadow region,
// acknowledges every set bit and invokes the registered per-channel
// callbacks. It runs in interrupt context and must never mutate
// allocator state; the only shared data it touches is the atomic
// handler pointer of each slot.
func (d *Device) ServiceCompletions() {
	low := d.regs.Read32(regmap.ShadowReg(d.region, regmap.RegIPR))
	high := d.regs.Read32(regmap.ShadowReg(d.region, regmap.RegIPR) + 4)

	for tcc := uint32(0); tcc < 32; tcc++ {
		if low&(1<<tcc) != 0 {
			clearInterrupt(d.regs, d.region, tcc)
			d.completeChannel(tcc)
		}
	}
	for tcc := uint32(32); tcc < 64; tcc++ {
		if high&(1<<(tcc-32)) != 0 {
			clearInterrupt(d.regs, d.region, tcc)
			d.completeChannel(tcc)
		}
	}

	// Clear the aggregator group status and re-evaluate the
	// interrupt line, once per invocation
	d.regs.Write32(d.aggStatusOff, d.aggClearMask)
	regmap.UpdateField(d.regs, regmap.ShadowReg(d.region, regmap.RegIEVAL),
		regmap.IevalEvalMask, regmap.IevalEvalShift, 1)
}

// completeChannel derives the completion status for one acknowledged
// completion code and invokes its callback. A code with no registered
// handler has no caller to report to; it is skipped.
func (d *Device) completeChannel(tcc uint32) {
	if tcc >= d.channels {
		log.Printf("[edma] %s: completion for unmapped code %d", d.name, tcc)
		return
	}
	h := d.slots[tcc].handler.Load()
	if h == nil {
		return
	}

	status := CompletionComplete
	if d.pendingLength(tcc) != 0 {
		status = CompletionBlock
	}
	h.cb(h.channel, status, h.arg)
}

// ServeCompletions drives ServiceCompletions from the device's
// interrupt line until Wait fails (typically because the line was
// closed). The line is re-armed after every pass.
func (d *Device) ServeCompletions() error {
	if d.irq == nil {
		return NewError(StatusInvalidArgument,
			d.name+": no interrupt line attached")
	}
	if err := d.irq.Enable(); err != nil {
		return err
	}
	for {
		if _, err := d.irq.Wait(); err != nil {
			return err
		}
		d.ServiceCompletions()
		if err := d.irq.Enable(); err != nil {
			return err
		}
	}
}
