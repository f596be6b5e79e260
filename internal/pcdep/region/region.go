// Package region implements the Region Index (C1): an ordered, non-
// overlapping set of live allocation regions with O(log N) address lookup.
//
// No example in the reference corpus implements a reusable ordered-map or
// interval-tree type applicable here, so this package uses a sorted slice
// searched with the standard library's sort.Search, in the same spirit the
// teacher reaches for stdlib primitives (sync.Map, atomic.Pointer) rather
// than a third-party container library wherever the standard library
// already provides the right tool.
package region

import (
	"errors"
	"fmt"
	"sort"
)

// ErrOverlap is returned by Insert when the candidate region overlaps a
// live region.
var ErrOverlap = errors.New("region: overlaps a live region")

// ErrNotFound is returned by Remove when no live region starts at the given
// address.
var ErrNotFound = errors.New("region: no live region at that start address")

// Region is a closed-open byte range [Start, End), immutable after creation.
type Region struct {
	Start uint64
	End   uint64
}

// Size returns the number of bytes covered by the region.
func (r Region) Size() uint64 { return r.End - r.Start }

// Contains reports whether addr falls within [Start, End).
func (r Region) Contains(addr uint64) bool {
	return addr >= r.Start && addr < r.End
}

// Less implements the total order (start, end) lexicographic comparison
// required by spec: regions are ordered by start, then by end.
func (r Region) Less(other Region) bool {
	if r.Start != other.Start {
		return r.Start < other.Start
	}
	return r.End < other.End
}

func (r Region) overlaps(other Region) bool {
	return r.Start < other.End && other.Start < r.End
}

func (r Region) String() string {
	return fmt.Sprintf("[%#x, %#x)", r.Start, r.End)
}

// Index is the ordered set of live regions. Not safe for concurrent
// mutation; per spec.md §5 it is written only by the producer thread and
// frozen (read-only) for the duration of an in-flight batch.
type Index struct {
	regions []Region
}

// New returns an empty region index.
func New() *Index {
	return &Index{}
}

// Insert adds a region covering [start, start+size). It rejects (logging is
// the caller's responsibility; Insert returns ErrOverlap) an insert that
// overlaps any live region, leaving the index unchanged.
func (idx *Index) Insert(start, size uint64) (Region, error) {
	candidate := Region{Start: start, End: start + size}

	i := sort.Search(len(idx.regions), func(i int) bool {
		return !idx.regions[i].Less(candidate)
	})
	if i > 0 && idx.regions[i-1].overlaps(candidate) {
		return Region{}, fmt.Errorf("%w: %s overlaps %s", ErrOverlap, candidate, idx.regions[i-1])
	}
	if i < len(idx.regions) && idx.regions[i].overlaps(candidate) {
		return Region{}, fmt.Errorf("%w: %s overlaps %s", ErrOverlap, candidate, idx.regions[i])
	}

	idx.regions = append(idx.regions, Region{})
	copy(idx.regions[i+1:], idx.regions[i:])
	idx.regions[i] = candidate
	return candidate, nil
}

// Remove deletes the live region whose Start matches. Returns ErrNotFound
// (caller logs and no-ops) if absent.
func (idx *Index) Remove(start uint64) (Region, error) {
	i := sort.Search(len(idx.regions), func(i int) bool {
		return idx.regions[i].Start >= start
	})
	if i >= len(idx.regions) || idx.regions[i].Start != start {
		return Region{}, fmt.Errorf("%w: start=%#x", ErrNotFound, start)
	}
	removed := idx.regions[i]
	idx.regions = append(idx.regions[:i], idx.regions[i+1:]...)
	return removed, nil
}

// Find returns the live region containing addr, or (Region{}, false) if
// none. Runs in O(log N) via upper-bound search then a single step back;
// never returns a region where addr == region.End (closed-open semantics).
func (idx *Index) Find(addr uint64) (Region, bool) {
	i := sort.Search(len(idx.regions), func(i int) bool {
		return idx.regions[i].Start > addr
	})
	if i == 0 {
		return Region{}, false
	}
	r := idx.regions[i-1]
	if r.Contains(addr) {
		return r, true
	}
	return Region{}, false
}

// Len returns the number of live regions.
func (idx *Index) Len() int { return len(idx.regions) }

// All returns the live regions in sorted order. The slice is the index's own
// storage, not a copy: callers must not mutate it, and a later Insert or
// Remove may change its contents.
func (idx *Index) All() []Region {
	return idx.regions
}
