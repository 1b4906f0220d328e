package edma

import (
	"fmt"
	"log"
	"math/bits"
	"sync/atomic"
)

// ResourceKind identifies one of the controller's partitionable
// resource pools. The numeric values match the static-configuration
// encoding used in devicetree.
type ResourceKind uint16

const (
	ResourceDMAChannel ResourceKind = 0
	ResourceParam      ResourceKind = 1
)

func (k ResourceKind) String() string {
	switch k {
	case ResourceDMAChannel:
		return "dma-channel"
	case ResourceParam:
		return "param"
	default:
		return fmt.Sprintf("unknown resource kind (%d)", uint16(k))
	}
}

// ResourceRange is one static-configuration claim: an inclusive index
// range of a resource pool owned by this device instance.
type ResourceRange struct {
	Kind  ResourceKind
	Start uint16
	End   uint16
}

// ResourceAllocAny requests any free index from a pool.
const ResourceAllocAny = ^uint32(0)

// Bitmap is a fixed-capacity set of resource indices. It is not safe
// for concurrent use; the device serializes all mutations in task
// context, and the completion dispatcher never touches it.
type Bitmap struct {
	words    []uint32
	capacity uint32
}

// NewBitmap creates a bitmap covering indices [0, capacity).
func NewBitmap(capacity uint32) *Bitmap {
	return &Bitmap{
		words:    make([]uint32, (capacity+31)/32),
		capacity: capacity,
	}
}

// Capacity returns the number of indices the bitmap covers.
func (b *Bitmap) Capacity() uint32 {
	if b == nil {
		return 0
	}
	return b.capacity
}

// AllocRange sets every bit in [start, end] inclusive. Invalid input
// leaves the bitmap unchanged. Ranges are arbitrary integers from
// static configuration, so the word split matters: a range within one
// word is a single masked OR, a spanning range is a partial first
// word, full interior words and a partial last word.
func (b *Bitmap) AllocRange(start, end uint32) error {
	if b == nil || start > end || end >= b.capacity {
		log.Printf("[edma] invalid values detected during resource allocation: capacity=%d start=%d end=%d",
			b.Capacity(), start, end)
		return NewError(StatusInvalidResourceRange,
			fmt.Sprintf("allocating range [%d, %d]", start, end))
	}

	startWord := start / 32
	endWord := end / 32
	startBit := start % 32
	endBit := end % 32

	if startWord == endWord {
		// All bits fall in the same word
		mask := uint32((uint64(1)<<(endBit-startBit+1))-1) << startBit
		b.words[startWord] |= mask
		return nil
	}

	// First word: bits from startBit to 31
	b.words[startWord] |= 0xFFFF_FFFF << startBit

	// Interior words: all bits
	for i := startWord + 1; i < endWord; i++ {
		b.words[i] = 0xFFFF_FFFF
	}

	// Last word: bits from 0 to endBit
	b.words[endWord] |= uint32((uint64(1) << (endBit + 1)) - 1)
	return nil
}

// Test reports whether idx is set.
func (b *Bitmap) Test(idx uint32) bool {
	if idx >= b.capacity {
		return false
	}
	return b.words[idx/32]&(1<<(idx%32)) != 0
}

// Set sets a single index.
func (b *Bitmap) Set(idx uint32) {
	if idx < b.capacity {
		b.words[idx/32] |= 1 << (idx % 32)
	}
}

// Clear clears a single index.
func (b *Bitmap) Clear(idx uint32) {
	if idx < b.capacity {
		b.words[idx/32] &^= 1 << (idx % 32)
	}
}

// CountSet returns the number of set indices.
func (b *Bitmap) CountSet() uint32 {
	var n uint32
	for _, w := range b.words {
		n += uint32(bits.OnesCount32(w))
	}
	return n
}

// resourcePool pairs the statically-owned index set with its runtime
// occupancy. alloc and free run in task context only, under the
// device mutex.
type resourcePool struct {
	kind  ResourceKind
	owned *Bitmap
	inUse *Bitmap
}

func newResourcePool(kind ResourceKind, capacity uint32) resourcePool {
	return resourcePool{
		kind:  kind,
		owned: NewBitmap(capacity),
		inUse: NewBitmap(capacity),
	}
}

// alloc claims index idx, or any free owned index when idx is
// ResourceAllocAny. Returns the claimed index.
func (p *resourcePool) alloc(idx uint32) (uint32, error) {
	if idx == ResourceAllocAny {
		for i := uint32(0); i < p.owned.Capacity(); i++ {
			if p.owned.Test(i) && !p.inUse.Test(i) {
				p.inUse.Set(i)
				return i, nil
			}
		}
		return 0, NewError(StatusAllocationFailed,
			fmt.Sprintf("%s pool exhausted", p.kind))
	}
	if !p.owned.Test(idx) || p.inUse.Test(idx) {
		return 0, NewError(StatusAllocationFailed,
			fmt.Sprintf("%s %d not available", p.kind, idx))
	}
	p.inUse.Set(idx)
	return idx, nil
}

// free releases a previously claimed index.
func (p *resourcePool) free(idx uint32) error {
	if idx >= p.inUse.Capacity() || !p.inUse.Test(idx) {
		return NewError(StatusCancelled,
			fmt.Sprintf("releasing %s %d which is not allocated", p.kind, idx))
	}
	p.inUse.Clear(idx)
	return nil
}

// AtomicBitmap is a fixed-capacity index set shared between task and
// interrupt context. The single-bit operations are atomic
// read-modify-writes; there are no range operations because bulk
// claims happen only during initialization, before interrupts are
// enabled.
type AtomicBitmap struct {
	words    []atomic.Uint32
	capacity uint32
}

// NewAtomicBitmap creates an atomic bitmap covering [0, capacity).
func NewAtomicBitmap(capacity uint32) *AtomicBitmap {
	return &AtomicBitmap{
		words:    make([]atomic.Uint32, (capacity+31)/32),
		capacity: capacity,
	}
}

// Test reports whether idx is set.
func (b *AtomicBitmap) Test(idx uint32) bool {
	if idx >= b.capacity {
		return false
	}
	return b.words[idx/32].Load()&(1<<(idx%32)) != 0
}

// TestAndSet sets idx and reports whether it was already set.
func (b *AtomicBitmap) TestAndSet(idx uint32) bool {
	if idx >= b.capacity {
		return false
	}
	mask := uint32(1) << (idx % 32)
	w := &b.words[idx/32]
	for {
		old := w.Load()
		if old&mask != 0 {
			return true
		}
		if w.CompareAndSwap(old, old|mask) {
			return false
		}
	}
}

// Clear clears idx.
func (b *AtomicBitmap) Clear(idx uint32) {
	if idx >= b.capacity {
		return
	}
	mask := ^(uint32(1) << (idx % 32))
	w := &b.words[idx/32]
	for {
		old := w.Load()
		if w.CompareAndSwap(old, old&mask) {
			return
		}
	}
}
