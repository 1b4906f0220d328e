// Package regmap defines the TPCC (third-party channel controller)
// register layout of the TI EDMA engine and the access primitives used
// to reach it. Offsets are relative to the controller's register base.
package regmap

// Global region registers.
const (
	RegPID   = 0x0000 // peripheral identification
	RegCCCFG = 0x0004 // controller configuration

	// Interrupt aggregator registers (modeled inside the mapped window).
	RegIntAggMask   = 0x00A0
	RegIntAggStatus = 0x00A4

	// DCHMAP: one word per DMA channel mapping it to a PARAM entry.
	RegDCHMAPBase = 0x0100

	// DMAQNUM: 3-bit event queue number per channel, 8 channels per word.
	RegDMAQNUMBase = 0x0240

	// DRAE/DRAEH: per-region channel access enable, one pair per region.
	RegDRAEBase = 0x0340
)

// DCHMAP fields.
const (
	DchmapParamMask  = 0x0000_3FE0
	DchmapParamShift = 5
)

// Shadow region window. Region n occupies ShadowSize bytes starting at
// ShadowBase + n*ShadowSize. High-word variants of each register sit at
// the low-word offset plus 4.
const (
	ShadowBase = 0x2000
	ShadowSize = 0x200

	RegER    = 0x00 // event status
	RegECR   = 0x08 // event clear
	RegESR   = 0x10 // event set (manual trigger)
	RegCER   = 0x18 // chained event
	RegEER   = 0x20 // event enable status
	RegEECR  = 0x28 // event enable clear
	RegEESR  = 0x30 // event enable set
	RegSER   = 0x38 // secondary event status
	RegSECR  = 0x40 // secondary event clear
	RegIER   = 0x50 // interrupt enable status
	RegIECR  = 0x58 // interrupt enable clear
	RegIESR  = 0x60 // interrupt enable set
	RegIPR   = 0x68 // interrupt pending
	RegICR   = 0x70 // interrupt clear
	RegIEVAL = 0x78 // interrupt evaluate
)

// IEVAL fields.
const (
	IevalEvalMask  = 0x1
	IevalEvalShift = 0
)

// PARAM entry memory: 8 words per entry.
const (
	ParamBase      = 0x4000
	ParamEntrySize = 0x20
	ParamWords     = 8
)

// OPT word fields of a PARAM entry.
const (
	OptSAMMask      = 1 << 0
	OptDAMMask      = 1 << 1
	OptSyncDimMask  = 1 << 2
	OptStaticMask   = 1 << 3
	OptTCCModeMask  = 1 << 11
	OptTCCShift     = 12
	OptTCCMask      = 0x3F << OptTCCShift
	OptTCIntEnMask  = 1 << 20
	OptITCIntEnMask = 1 << 21
)

// ShadowReg returns the offset of a shadow-region register for the
// given region. reg must be one of the Reg* shadow offsets above.
func ShadowReg(region, reg uint32) uint32 {
	return ShadowBase + region*ShadowSize + reg
}

// ParamOffset returns the offset of PARAM entry idx.
func ParamOffset(idx uint32) uint32 {
	return ParamBase + idx*ParamEntrySize
}

// DchmapOffset returns the offset of channel ch's DCHMAP word.
func DchmapOffset(ch uint32) uint32 {
	return RegDCHMAPBase + 4*ch
}

// DmaqnumOffset returns the offset of the DMAQNUM word holding channel
// ch's queue assignment, and the mask and shift of its field.
func DmaqnumOffset(ch uint32) (off, mask, shift uint32) {
	off = RegDMAQNUMBase + 4*(ch/8)
	shift = (ch % 8) * 4
	mask = 0x7 << shift
	return off, mask, shift
}

// DraeOffset returns the offset of the region's channel access enable
// word covering channel ch (DRAE for channels 0-31, DRAEH for 32-63).
func DraeOffset(region, ch uint32) uint32 {
	off := RegDRAEBase + 8*region
	if ch >= 32 {
		off += 4
	}
	return off
}
