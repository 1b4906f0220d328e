//go:build unit

package edma

import (
	"errors"
	"testing"
)

func TestAllocRangeSameWord(t *testing.T) {
	b := NewBitmap(64)
	if err := b.AllocRange(3, 9); err != nil {
		t.Fatalf("AllocRange(3, 9) failed: %v", err)
	}

	for idx := uint32(0); idx < 64; idx++ {
		want := idx >= 3 && idx <= 9
		if b.Test(idx) != want {
			t.Errorf("bit %d: got %v, want %v", idx, b.Test(idx), want)
		}
	}
	if b.CountSet() != 7 {
		t.Errorf("CountSet() = %d, want 7", b.CountSet())
	}
}

func TestAllocRangeSpanningWords(t *testing.T) {
	b := NewBitmap(64)
	if err := b.AllocRange(20, 45); err != nil {
		t.Fatalf("AllocRange(20, 45) failed: %v", err)
	}

	for idx := uint32(0); idx < 64; idx++ {
		want := idx >= 20 && idx <= 45
		if b.Test(idx) != want {
			t.Errorf("bit %d: got %v, want %v", idx, b.Test(idx), want)
		}
	}
	if b.CountSet() != 26 {
		t.Errorf("CountSet() = %d, want 26", b.CountSet())
	}
}

func TestAllocRangeInteriorWords(t *testing.T) {
	b := NewBitmap(128)
	if err := b.AllocRange(5, 100); err != nil {
		t.Fatalf("AllocRange(5, 100) failed: %v", err)
	}

	if b.Test(4) || !b.Test(5) || !b.Test(63) || !b.Test(64) || !b.Test(100) || b.Test(101) {
		t.Error("range boundaries are wrong")
	}
	if b.CountSet() != 96 {
		t.Errorf("CountSet() = %d, want 96", b.CountSet())
	}
}

func TestAllocRangeWordAligned(t *testing.T) {
	b := NewBitmap(96)
	if err := b.AllocRange(32, 63); err != nil {
		t.Fatalf("AllocRange(32, 63) failed: %v", err)
	}
	if b.Test(31) || !b.Test(32) || !b.Test(63) || b.Test(64) {
		t.Error("word-aligned range boundaries are wrong")
	}
	if b.CountSet() != 32 {
		t.Errorf("CountSet() = %d, want 32", b.CountSet())
	}
}

func TestAllocRangeInvalid(t *testing.T) {
	tests := []struct {
		name       string
		start, end uint32
	}{
		{"start after end", 9, 3},
		{"end at capacity", 0, 64},
		{"end past capacity", 60, 70},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBitmap(64)
			err := b.AllocRange(tt.start, tt.end)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if StatusOf(err) != StatusInvalidResourceRange {
				t.Errorf("status = %v, want %v", StatusOf(err), StatusInvalidResourceRange)
			}
			if b.CountSet() != 0 {
				t.Errorf("bitmap modified on invalid input: %d bits set", b.CountSet())
			}
		})
	}
}

func TestAllocRangeNilBitmap(t *testing.T) {
	var b *Bitmap
	if err := b.AllocRange(0, 3); err == nil {
		t.Error("expected error on nil bitmap")
	}
	if b.Capacity() != 0 {
		t.Errorf("nil bitmap capacity = %d, want 0", b.Capacity())
	}
}

func TestBitmapSetClear(t *testing.T) {
	b := NewBitmap(40)
	b.Set(39)
	if !b.Test(39) {
		t.Error("bit 39 not set")
	}
	b.Clear(39)
	if b.Test(39) {
		t.Error("bit 39 not cleared")
	}

	// Out-of-range operations are no-ops
	b.Set(40)
	if b.Test(40) {
		t.Error("out-of-range Set took effect")
	}
}

func TestResourcePoolAllocSpecific(t *testing.T) {
	p := newResourcePool(ResourceDMAChannel, 16)
	if err := p.owned.AllocRange(4, 7); err != nil {
		t.Fatal(err)
	}

	idx, err := p.alloc(5)
	if err != nil {
		t.Fatalf("alloc(5) failed: %v", err)
	}
	if idx != 5 {
		t.Errorf("alloc(5) = %d", idx)
	}

	if _, err := p.alloc(5); err == nil {
		t.Error("double allocation succeeded")
	}
	if _, err := p.alloc(2); err == nil {
		t.Error("allocation outside owned range succeeded")
	}
}

func TestResourcePoolAllocAny(t *testing.T) {
	p := newResourcePool(ResourceParam, 16)
	if err := p.owned.AllocRange(4, 6); err != nil {
		t.Fatal(err)
	}

	got := make(map[uint32]bool)
	for i := 0; i < 3; i++ {
		idx, err := p.alloc(ResourceAllocAny)
		if err != nil {
			t.Fatalf("alloc %d failed: %v", i, err)
		}
		if idx < 4 || idx > 6 {
			t.Errorf("allocated %d outside owned range", idx)
		}
		if got[idx] {
			t.Errorf("index %d allocated twice", idx)
		}
		got[idx] = true
	}

	_, err := p.alloc(ResourceAllocAny)
	if StatusOf(err) != StatusAllocationFailed {
		t.Errorf("exhausted pool: status = %v, want %v", StatusOf(err), StatusAllocationFailed)
	}
}

func TestResourcePoolFree(t *testing.T) {
	p := newResourcePool(ResourceParam, 8)
	if err := p.owned.AllocRange(0, 7); err != nil {
		t.Fatal(err)
	}

	if err := p.free(3); StatusOf(err) != StatusCancelled {
		t.Errorf("freeing unallocated index: status = %v, want %v",
			StatusOf(err), StatusCancelled)
	}

	if _, err := p.alloc(3); err != nil {
		t.Fatal(err)
	}
	if err := p.free(3); err != nil {
		t.Errorf("free(3) failed: %v", err)
	}
	if _, err := p.alloc(3); err != nil {
		t.Errorf("re-allocation after free failed: %v", err)
	}
}

func TestAtomicBitmapTestAndSet(t *testing.T) {
	b := NewAtomicBitmap(64)

	if b.TestAndSet(40) {
		t.Error("first TestAndSet reported already set")
	}
	if !b.Test(40) {
		t.Error("bit 40 not set")
	}
	if !b.TestAndSet(40) {
		t.Error("second TestAndSet reported clear")
	}

	b.Clear(40)
	if b.Test(40) {
		t.Error("bit 40 not cleared")
	}
	if b.Test(33) {
		t.Error("unrelated bit set")
	}
}

func TestResourceKindString(t *testing.T) {
	if ResourceDMAChannel.String() != "dma-channel" {
		t.Errorf("ResourceDMAChannel.String() = %q", ResourceDMAChannel.String())
	}
	if ResourceParam.String() != "param" {
		t.Errorf("ResourceParam.String() = %q", ResourceParam.String())
	}
	if ResourceKind(7).String() != "unknown resource kind (7)" {
		t.Errorf("unknown kind string = %q", ResourceKind(7).String())
	}
}

func TestStatusOf(t *testing.T) {
	if StatusOf(nil) != StatusSuccess {
		t.Error("StatusOf(nil) != StatusSuccess")
	}
	if StatusOf(errors.New("plain")) != StatusInvalidArgument {
		t.Error("plain error did not map to StatusInvalidArgument")
	}
	wrapped := NewErrorWithCause(StatusAllocationFailed, "outer",
		NewError(StatusInvalidResourceRange, "inner"))
	if StatusOf(wrapped) != StatusAllocationFailed {
		t.Error("wrapped error lost its outer status")
	}
	if !errors.Is(wrapped, &Error{Status: StatusAllocationFailed}) {
		t.Error("errors.Is did not match on status")
	}
}
