//go:build linux

package regmap

import (
	"fmt"

	"periph.io/x/host/v3/pmem"
)

// MMIO is a RegisterFile backed by a physical-memory mapping of the
// controller's register window.
type MMIO struct {
	view *pmem.View
	regs []uint32
	base uint64
}

// Map maps size bytes of physical address space starting at base. The
// caller needs access to /dev/mem (or /dev/gpiomem on some systems).
func Map(base uint64, size int) (*MMIO, error) {
	view, err := pmem.Map(base, size)
	if err != nil {
		return nil, fmt.Errorf("mapping registers at %#x: %w", base, err)
	}
	return &MMIO{
		view: view,
		regs: view.Uint32(),
		base: base,
	}, nil
}

// Base returns the physical base address of the mapping.
func (m *MMIO) Base() uint64 {
	return m.base
}

// Read32 reads the register at byte offset off.
func (m *MMIO) Read32(off uint32) uint32 {
	return m.regs[off/4]
}

// Write32 writes the register at byte offset off.
func (m *MMIO) Write32(off uint32, v uint32) {
	m.regs[off/4] = v
}

// Close unmaps the register window.
func (m *MMIO) Close() error {
	m.regs = nil
	return m.view.Close()
}
