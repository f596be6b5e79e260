// Package trace decodes the packed memory-access record batches delivered
// to the batch analysis API (spec.md §6).
//
// spec.md describes the wire record as "a packed 56-byte structure" with a
// header of 8+8+4+4+4+4+4+4=40 bytes followed by "8 x 8 = 32 bytes: up to 32
// lane addresses". Those numbers are inconsistent with each other: an
// active-mask field is 32 bits wide (up to 32 active lanes, matching
// original_source's GPU_WARP_SIZE), and 32 lane addresses at 8 bytes each is
// 256 bytes, not 32 — nowhere close to fitting a 56-byte record alongside a
// 40-byte header. This package resolves the inconsistency using
// original_source/src/tools/pc_dependency_analysis.cpp, whose in-memory
// MemoryAccess struct carries one uint64 address per lane for all
// GPU_WARP_SIZE (32) lanes: RecordSize below is the header (40 bytes) plus
// 32 addresses of 8 bytes each (256 bytes), 296 bytes total. The per-field
// header layout and semantics otherwise match spec.md §6 exactly.
package trace

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
)

// MaxLanes is the number of lanes in one warp (spec.md GLOSSARY: "a group
// of 32 lanes executed in lockstep").
const MaxLanes = 32

// headerSize is the fixed portion of a record before the lane-address array.
const headerSize = 8 + 8 + 4 + 4 + 4 + 4 + 4 + 4

// RecordSize is the total size in bytes of one packed trace record.
const RecordSize = headerSize + MaxLanes*8

// MemoryType is the record's memory-space tag.
type MemoryType uint32

const (
	MemoryGlobal MemoryType = 0
	MemoryShared MemoryType = 1
	MemoryLocal  MemoryType = 2
)

func (t MemoryType) String() string {
	switch t {
	case MemoryGlobal:
		return "global"
	case MemoryShared:
		return "shared"
	case MemoryLocal:
		return "local"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(t))
	}
}

// Access flag bits (spec.md §6).
const (
	FlagRead     uint32 = 1 << 0
	FlagWrite    uint32 = 1 << 1
	FlagAtomic   uint32 = 1 << 2
	FlagPrefetch uint32 = 1 << 3
	FlagGlobal   uint32 = 1 << 4
	FlagShared   uint32 = 1 << 5
	FlagLocal    uint32 = 1 << 6
)

// ErrUnknownMemoryType names the condition of a record's memory-type tag
// not being one of the three catalogued values (spec.md §7 category 4).
// Decode does not return it: it reports such records through its
// unknownType callback and leaves them out of the result.
var ErrUnknownMemoryType = errors.New("trace: unknown memory-type tag")

// Record is one decoded memory-access trace record.
type Record struct {
	PC                uint64
	BlockID           uint64
	WarpID            uint32
	ActiveMask        uint32
	AccessSize        uint32
	Flags             uint32
	DistinctSectors   uint32
	Type              MemoryType
	Addresses         [MaxLanes]uint64
}

// ActiveLaneCount returns popcount(ActiveMask).
func (r *Record) ActiveLaneCount() int {
	return bits.OnesCount32(r.ActiveMask)
}

// pcMask keeps the low 24 bits of the wire PC field: spec.md defines PC as
// "a 24-bit identifier, obtained by truncating the sanitizer-provided PC
// offset" — there is exactly one PC namespace, and every table keyed by PC
// (DepTable, FlagsRegistry, HistogramTable) must agree on this truncation.
const pcMask = 0xFFFFFF

// TruncatedPC returns the 24-bit PC identifier every PC-keyed table (the
// stats package's DepTable, FlagsRegistry and HistogramTable) uses,
// truncating the wire record's full PC field.
func (r *Record) TruncatedPC() uint32 {
	return uint32(r.PC) & pcMask
}

// LaneActive reports whether lane i participated in this access.
func (r *Record) LaneActive(lane int) bool {
	return r.ActiveMask&(1<<uint(lane)) != 0
}

// Decode parses count records out of buf, starting at offset 0. buf must be
// at least count*RecordSize bytes. Unknown memory-type tags are reported via
// unknownType (record index, tag) rather than aborting the whole batch —
// callers skip that record and continue (spec.md §7 category 4).
func Decode(buf []byte, count int, unknownType func(index int, tag uint32)) ([]Record, error) {
	if len(buf) < count*RecordSize {
		return nil, fmt.Errorf("trace: buffer too short: have %d bytes, need %d for %d records", len(buf), count*RecordSize, count)
	}
	records := make([]Record, 0, count)
	for i := 0; i < count; i++ {
		off := i * RecordSize
		rec := Record{
			PC:              binary.LittleEndian.Uint64(buf[off:]),
			BlockID:         binary.LittleEndian.Uint64(buf[off+8:]),
			WarpID:          binary.LittleEndian.Uint32(buf[off+16:]),
			ActiveMask:      binary.LittleEndian.Uint32(buf[off+20:]),
			AccessSize:      binary.LittleEndian.Uint32(buf[off+24:]),
			Flags:           binary.LittleEndian.Uint32(buf[off+28:]),
			DistinctSectors: binary.LittleEndian.Uint32(buf[off+32:]),
			Type:            MemoryType(binary.LittleEndian.Uint32(buf[off+36:])),
		}
		addrOff := off + headerSize
		for lane := 0; lane < MaxLanes; lane++ {
			rec.Addresses[lane] = binary.LittleEndian.Uint64(buf[addrOff+lane*8:])
		}
		switch rec.Type {
		case MemoryGlobal, MemoryShared, MemoryLocal:
		default:
			if unknownType != nil {
				unknownType(i, uint32(rec.Type))
			}
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
