package edma

import (
	"fmt"
	"math"

	"github.com/emergingrobotics/go-edma/pkg/regmap"
)

// Direction is the transfer direction of a channel. It is a closed
// variant: each direction carries its own descriptor synthesis rule
// and its own trigger arm/disarm behavior.
type Direction int

const (
	DirIdle Direction = iota
	DirMemToMem
	DirMemToPeripheral
	DirPeripheralToMem
)

func (d Direction) String() string {
	switch d {
	case DirIdle:
		return "idle"
	case DirMemToMem:
		return "mem-to-mem"
	case DirMemToPeripheral:
		return "mem-to-peripheral"
	case DirPeripheralToMem:
		return "peripheral-to-mem"
	default:
		return fmt.Sprintf("unknown direction (%d)", int(d))
	}
}

// LinkNone is the PARAM link sentinel meaning "no chained descriptor".
const LinkNone = 0xFFFF

// ParamEntry is the register image of one PARAM set: the transfer
// geometry the engine executes. ACnt*BCnt*CCnt is the total byte
// length moved; re-reading the live entry and recomputing the product
// yields the bytes still pending.
type ParamEntry struct {
	Opt        uint32
	SrcAddr    uint32
	ACnt       uint16
	BCnt       uint16
	DstAddr    uint32
	SrcBIdx    int16
	DstBIdx    int16
	Link       uint16
	BCntReload uint16
	SrcCIdx    int16
	DstCIdx    int16
	CCnt       uint16
	SrcBIdxExt int8
	DstBIdxExt int8
}

// PendingLength returns the byte count described by the entry.
func (p *ParamEntry) PendingLength() uint32 {
	return uint32(p.ACnt) * uint32(p.BCnt) * uint32(p.CCnt)
}

// words encodes the entry into its 8-word register image.
func (p *ParamEntry) words() [regmap.ParamWords]uint32 {
	return [regmap.ParamWords]uint32{
		p.Opt,
		p.SrcAddr,
		uint32(p.ACnt) | uint32(p.BCnt)<<16,
		p.DstAddr,
		uint32(uint16(p.SrcBIdx)) | uint32(uint16(p.DstBIdx))<<16,
		uint32(p.Link) | uint32(p.BCntReload)<<16,
		uint32(uint16(p.SrcCIdx)) | uint32(uint16(p.DstCIdx))<<16,
		uint32(p.CCnt) | uint32(uint8(p.SrcBIdxExt))<<16 | uint32(uint8(p.DstBIdxExt))<<24,
	}
}

func paramFromWords(w [regmap.ParamWords]uint32) ParamEntry {
	return ParamEntry{
		Opt:        w[0],
		SrcAddr:    w[1],
		ACnt:       uint16(w[2]),
		BCnt:       uint16(w[2] >> 16),
		DstAddr:    w[3],
		SrcBIdx:    int16(w[4]),
		DstBIdx:    int16(w[4] >> 16),
		Link:       uint16(w[5]),
		BCntReload: uint16(w[5] >> 16),
		SrcCIdx:    int16(w[6]),
		DstCIdx:    int16(w[6] >> 16),
		CCnt:       uint16(w[7]),
		SrcBIdxExt: int8(w[7] >> 16),
		DstBIdxExt: int8(w[7] >> 24),
	}
}

func writeParam(r regmap.RegisterFile, idx uint32, p *ParamEntry) {
	off := regmap.ParamOffset(idx)
	for i, w := range p.words() {
		r.Write32(off+uint32(i)*4, w)
	}
}

func readParam(r regmap.RegisterFile, idx uint32) ParamEntry {
	off := regmap.ParamOffset(idx)
	var w [regmap.ParamWords]uint32
	for i := range w {
		w[i] = r.Read32(off + uint32(i)*4)
	}
	return paramFromWords(w)
}

// B-index stride fields are 15 bits wide with an 8-bit extension.
func paramBIdx(v uint32) int16 {
	return int16(v & 0x7FFF)
}

func paramBIdxExt(v uint32) int8 {
	return int8((v >> 15) & 0xFF)
}

// optBits composes the OPT word shared by all directions: completion
// interrupt enabled, two-dimensional (AB) sync, completion code cc.
func optBits(cc uint32) uint32 {
	return regmap.OptTCIntEnMask | regmap.OptSyncDimMask |
		((cc << regmap.OptTCCShift) & regmap.OptTCCMask)
}

// TransferRequest describes one transfer to be synthesized into a
// PARAM entry. Sizes and burst lengths are in bytes.
type TransferRequest struct {
	Direction   Direction
	SrcAddr     uint32
	DstAddr     uint32
	SrcDataSize uint32
	DstDataSize uint32
	SrcBurstLen uint32
	DstBurstLen uint32
	BlockSize   uint32
	BlockCount  uint32

	// Callback, if set, is invoked from the completion dispatcher
	// with CallbackArg when the channel's completion code fires.
	Callback    CompletionCallback
	CallbackArg any
}

// synthesizeParam derives the PARAM entry for a request, with cc as
// the completion code packed into OPT.
func synthesizeParam(req *TransferRequest, cc uint32) (ParamEntry, error) {
	switch req.Direction {
	case DirMemToMem:
		return synthMemToMem(req, cc)
	case DirMemToPeripheral:
		return synthMemToPeripheral(req, cc)
	case DirPeripheralToMem:
		return synthPeripheralToMem(req, cc)
	default:
		return ParamEntry{}, NewError(StatusUnsupportedDirection,
			fmt.Sprintf("synthesizing descriptor for %s", req.Direction))
	}
}

// synthMemToMem: ACNT = data size, BCNT = block/ACNT, CCNT = 1. Both
// sides advance contiguously and symmetrically.
func synthMemToMem(req *TransferRequest, cc uint32) (ParamEntry, error) {
	if req.SrcDataSize != req.DstDataSize {
		return ParamEntry{}, NewError(StatusSizeMismatch,
			"mem-to-mem: source and destination data size mismatch")
	}
	if req.SrcDataSize == 0 || req.BlockSize%req.SrcDataSize != 0 {
		return ParamEntry{}, NewError(StatusUnsupported,
			"mem-to-mem: block size must be a multiple of data size")
	}
	if req.BlockSize/req.SrcDataSize > math.MaxUint16 {
		return ParamEntry{}, NewError(StatusUnsupported,
			fmt.Sprintf("mem-to-mem: block size / data size must be at most %d", math.MaxUint16))
	}

	aCnt := req.SrcDataSize
	bCnt := uint16(req.BlockSize / aCnt)

	return ParamEntry{
		Opt:        optBits(cc),
		SrcAddr:    req.SrcAddr,
		DstAddr:    req.DstAddr,
		ACnt:       uint16(aCnt),
		BCnt:       bCnt,
		CCnt:       1,
		BCntReload: bCnt,
		SrcBIdx:    paramBIdx(aCnt),
		DstBIdx:    paramBIdx(aCnt),
		SrcBIdxExt: paramBIdxExt(aCnt),
		DstBIdxExt: paramBIdxExt(aCnt),
		SrcCIdx:    int16(aCnt),
		DstCIdx:    int16(aCnt),
		Link:       LinkNone,
	}, nil
}

func validatePeripheralGeometry(req *TransferRequest, context string) error {
	if req.SrcDataSize != req.DstDataSize {
		return NewError(StatusSizeMismatch,
			context+": source and destination data size mismatch")
	}
	if req.SrcBurstLen != req.DstBurstLen {
		return NewError(StatusSizeMismatch,
			context+": source and destination burst length mismatch")
	}
	if req.SrcDataSize == 0 || req.SrcBurstLen%req.SrcDataSize != 0 {
		return NewError(StatusUnsupported,
			context+": burst length must be a multiple of data size")
	}
	if req.SrcBurstLen == 0 || req.BlockSize%req.SrcBurstLen != 0 {
		return NewError(StatusUnsupported,
			context+": block size must be a multiple of burst length")
	}
	return nil
}

// synthMemToPeripheral: ACNT = data size, BCNT = burst/data size,
// CCNT = block/burst. Only the source side advances; the destination
// is a fixed peripheral address, so all destination strides are zero.
func synthMemToPeripheral(req *TransferRequest, cc uint32) (ParamEntry, error) {
	if err := validatePeripheralGeometry(req, "mem-to-peripheral"); err != nil {
		return ParamEntry{}, err
	}

	aCnt := req.SrcDataSize
	bCnt := uint16(req.SrcBurstLen / req.SrcDataSize)
	cCnt := uint16(req.BlockSize / req.SrcBurstLen)

	return ParamEntry{
		Opt:        optBits(cc),
		SrcAddr:    req.SrcAddr,
		DstAddr:    req.DstAddr,
		ACnt:       uint16(aCnt),
		BCnt:       bCnt,
		CCnt:       cCnt,
		BCntReload: bCnt,
		SrcBIdx:    paramBIdx(aCnt),
		SrcBIdxExt: paramBIdxExt(aCnt),
		DstBIdx:    0,
		DstBIdxExt: 0,
		SrcCIdx:    int16(req.SrcBurstLen),
		DstCIdx:    0,
		Link:       LinkNone,
	}, nil
}

// synthPeripheralToMem mirrors synthMemToPeripheral with the roles
// inverted: the source is the fixed peripheral address.
func synthPeripheralToMem(req *TransferRequest, cc uint32) (ParamEntry, error) {
	if err := validatePeripheralGeometry(req, "peripheral-to-mem"); err != nil {
		return ParamEntry{}, err
	}

	aCnt := req.SrcDataSize
	bCnt := uint16(req.SrcBurstLen / req.SrcDataSize)
	cCnt := uint16(req.BlockSize / req.SrcBurstLen)

	return ParamEntry{
		Opt:        optBits(cc),
		SrcAddr:    req.SrcAddr,
		DstAddr:    req.DstAddr,
		ACnt:       uint16(aCnt),
		BCnt:       bCnt,
		CCnt:       cCnt,
		BCntReload: bCnt,
		SrcBIdx:    0,
		SrcBIdxExt: 0,
		DstBIdx:    paramBIdx(aCnt),
		DstBIdxExt: paramBIdxExt(aCnt),
		SrcCIdx:    0,
		DstCIdx:    int16(req.SrcBurstLen),
		Link:       LinkNone,
	}, nil
}
