//go:build unit

package regmap

import "testing"

// mapRegFile is a plain-storage RegisterFile for exercising the access
// helpers.
type mapRegFile map[uint32]uint32

func (m mapRegFile) Read32(off uint32) uint32     { return m[off] }
func (m mapRegFile) Write32(off uint32, v uint32) { m[off] = v }

func TestUpdateField(t *testing.T) {
	r := mapRegFile{0x240: 0xFFFF_FFFF}
	UpdateField(r, 0x240, 0x7<<8, 8, 2)
	// Only the three masked bits change: bit 11 stays set
	if got := r[0x240]; got != 0xFFFF_FAFF {
		t.Errorf("register = 0x%08x, want 0xFFFFFAFF", got)
	}
	UpdateField(r, 0x240, 0x7<<8, 8, 0)
	if got := r[0x240]; got != 0xFFFF_F8FF {
		t.Errorf("register = 0x%08x, want 0xFFFFF8FF", got)
	}
}

func TestSetBitWordSelection(t *testing.T) {
	r := mapRegFile{}
	SetBit(r, 0x100, 5)
	SetBit(r, 0x100, 37)

	if r[0x100] != 1<<5 {
		t.Errorf("low word = 0x%08x, want 0x%08x", r[0x100], uint32(1<<5))
	}
	if r[0x104] != 1<<5 {
		t.Errorf("high word = 0x%08x, want 0x%08x", r[0x104], uint32(1<<5))
	}
}

func TestTestBitWordSelection(t *testing.T) {
	r := mapRegFile{0x100: 1 << 3, 0x104: 1 << 8}

	if !TestBit(r, 0x100, 3) {
		t.Error("bit 3 not seen in low word")
	}
	if TestBit(r, 0x100, 8) {
		t.Error("bit 8 read from the wrong word")
	}
	if !TestBit(r, 0x100, 40) {
		t.Error("bit 40 not seen in high word")
	}
	if TestBit(r, 0x100, 35) {
		t.Error("bit 35 falsely set")
	}
}

func TestShadowReg(t *testing.T) {
	if got := ShadowReg(0, RegER); got != 0x2000 {
		t.Errorf("ShadowReg(0, ER) = 0x%04x", got)
	}
	if got := ShadowReg(1, RegIPR); got != 0x2268 {
		t.Errorf("ShadowReg(1, IPR) = 0x%04x", got)
	}
	if got := ShadowReg(7, RegIEVAL); got != 0x2000+7*0x200+0x78 {
		t.Errorf("ShadowReg(7, IEVAL) = 0x%04x", got)
	}
}

func TestParamOffset(t *testing.T) {
	if got := ParamOffset(0); got != 0x4000 {
		t.Errorf("ParamOffset(0) = 0x%04x", got)
	}
	if got := ParamOffset(127); got != 0x4000+127*0x20 {
		t.Errorf("ParamOffset(127) = 0x%04x", got)
	}
}

func TestDmaqnumOffset(t *testing.T) {
	tests := []struct {
		ch                 uint32
		wantOff, wantShift uint32
	}{
		{0, 0x240, 0},
		{7, 0x240, 28},
		{8, 0x244, 0},
		{63, 0x25C, 28},
	}
	for _, tt := range tests {
		off, mask, shift := DmaqnumOffset(tt.ch)
		if off != tt.wantOff || shift != tt.wantShift {
			t.Errorf("DmaqnumOffset(%d) = (0x%x, _, %d), want (0x%x, _, %d)",
				tt.ch, off, shift, tt.wantOff, tt.wantShift)
		}
		if mask != 0x7<<shift {
			t.Errorf("DmaqnumOffset(%d) mask = 0x%x", tt.ch, mask)
		}
	}
}

func TestDraeOffset(t *testing.T) {
	if got := DraeOffset(0, 0); got != 0x340 {
		t.Errorf("DraeOffset(0, 0) = 0x%04x", got)
	}
	if got := DraeOffset(0, 40); got != 0x344 {
		t.Errorf("DraeOffset(0, 40) = 0x%04x", got)
	}
	if got := DraeOffset(3, 10); got != 0x340+3*8 {
		t.Errorf("DraeOffset(3, 10) = 0x%04x", got)
	}
}
