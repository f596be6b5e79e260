// Package shadowarena implements the Shadow Arena (C2): a per-region flat
// array of atomically-updated shadow cells with 4-way cache-line
// interleaving and generation-stamped O(1) logical reset.
//
// This generalizes the atomic-cell-array idiom in
// internal/race/shadowmem/shadow_cas.go (there: a fixed 65536-slot
// hash-indexed table resolving collisions with CAS-based linear probing,
// because the address space is unbounded and unrelated addresses may alias
// into the same slot). Here the index is not a hash: the caller already
// knows the byte offset within the region, so the 4-way interleave formula
// gives a direct, collision-free physical index and no probing is needed.
// What carries over is the shape, not the hashing: one atomic.Uint64 per
// cell, exchanged with acquire-release ordering.
package shadowarena

import (
	"fmt"
	"sync/atomic"
)

// Arena holds the shadow cells for one live allocation region.
type Arena struct {
	size    uint64 // logical byte size of the owning region
	stride  uint64 // ceil(size/4)
	cells   []atomic.Uint64
}

// New allocates an Arena covering size bytes.
func New(size uint64) *Arena {
	stride := (size + 3) / 4
	sizeCelled := stride * 4
	return &Arena{
		size:   size,
		stride: stride,
		cells:  make([]atomic.Uint64, sizeCelled),
	}
}

// physicalIndex maps a logical byte offset to its physical slot using the
// 4-way cache-line interleave: the four bytes of one 4-byte stride land
// stride slots apart, while the first bytes of consecutive strides
// (offsets 0, 4, 8, ...) land in adjacent slots, so the eight 4-byte
// strides of an aligned 32-byte access touch 8 adjacent cells (64 bytes,
// one cache line).
func (a *Arena) physicalIndex(offset uint64) uint64 {
	return (offset / 4) + (offset%4)*a.stride
}

// Exchange atomically stores newValue into the cell at offset and returns
// the previous value. Panics if offset is out of range for the region — a
// logic error at the call site, not a data-plane condition (spec.md §4.2 /
// §7: this is the sole panic-worthy path in the data plane).
func (a *Arena) Exchange(offset uint64, newValue uint64) uint64 {
	if offset >= a.size {
		panic(fmt.Sprintf("shadowarena: offset %d out of range for region of size %d", offset, a.size))
	}
	return a.cells[a.physicalIndex(offset)].Swap(newValue)
}

// Load returns the current raw value of the cell at offset without mutating
// it. Panics under the same condition as Exchange.
func (a *Arena) Load(offset uint64) uint64 {
	if offset >= a.size {
		panic(fmt.Sprintf("shadowarena: offset %d out of range for region of size %d", offset, a.size))
	}
	return a.cells[a.physicalIndex(offset)].Load()
}

// Size returns the logical byte size of the arena.
func (a *Arena) Size() uint64 { return a.size }

// Reset returns the arena to a logically-zero state by explicit
// zeroing. spec.md §9 prefers OS-level madvise(MADV_DONTNEED) on
// anonymous mapped pages when available; no dependency in this corpus
// wires x/sys for that purpose in a component this domain touches (see
// DESIGN.md), so this port takes the documented fallback: explicit zero,
// amortized once per 255 kernels (only on generation wrap).
func (a *Arena) Reset() {
	for i := range a.cells {
		a.cells[i].Store(0)
	}
}
