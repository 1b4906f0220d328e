package regmap

// RegisterFile is a 32-bit word-addressed register window. Offsets are
// byte offsets from the controller base and must be word aligned.
// Implementations are expected to complete every access in bounded
// time; none of the methods may block.
type RegisterFile interface {
	Read32(off uint32) uint32
	Write32(off uint32, v uint32)
}

// UpdateField read-modify-writes a register field: the bits covered by
// mask are replaced with v shifted into place.
func UpdateField(r RegisterFile, off, mask, shift, v uint32) {
	reg := r.Read32(off)
	r.Write32(off, (reg&^mask)|(v<<shift))
}

// SetBit writes a single-bit "write one to set/clear" register. The
// high-word variant at off+4 is selected for bits 32-63.
func SetBit(r RegisterFile, off, bit uint32) {
	if bit >= 32 {
		off += 4
	}
	r.Write32(off, 1<<(bit%32))
}

// TestBit reads bit from a paired low/high status register.
func TestBit(r RegisterFile, off, bit uint32) bool {
	if bit >= 32 {
		off += 4
	}
	return r.Read32(off)&(1<<(bit%32)) != 0
}
