package testutil

import (
	"testing"

	"github.com/emergingrobotics/go-edma/pkg/regmap"
)

// ReadParamWord reads one word of a PARAM entry.
func ReadParamWord(r regmap.RegisterFile, idx, word uint32) uint32 {
	return r.Read32(regmap.ParamOffset(idx) + word*4)
}

// MappedParam returns the PARAM entry a channel is mapped to.
func MappedParam(r regmap.RegisterFile, ch uint32) uint32 {
	return (r.Read32(regmap.DchmapOffset(ch)) & regmap.DchmapParamMask) >>
		regmap.DchmapParamShift
}

// AssertReg fails the test when a register does not hold the expected
// value.
func AssertReg(t *testing.T, r regmap.RegisterFile, off, expected uint32) {
	t.Helper()
	if got := r.Read32(off); got != expected {
		t.Errorf("register %#x = %#x, expected %#x", off, got, expected)
	}
}
