// Package stats holds the per-kernel result tables produced by the
// Dependency Classifier (C4) and Auxiliary Stats (C9), and the fixed-size
// elementwise-combine helpers used by the Merge Stage (C6).
//
// The elementwise-combine shape (loop over a fixed-size array, combine two
// values pairwise) is grounded on internal/race/vectorclock/vectorclock.go's
// Join method, which merges two [65536]uint32 vector clocks elementwise by
// max. This package needs the same shape for two different arrays and a
// different combining operator (sum, not max): ScopeCounts.Add for the
// 4-element per-scope tally, and SectorHistogram.Add for the 65-element
// coalescing histogram.
package stats

// Scope identifies the coordinate level at which a prior access and the
// current access differ.
type Scope int

const (
	ScopeThread Scope = iota
	ScopeLaneWithinWarp
	ScopeWarpWithinBlock
	ScopeAcrossBlock
	numScopes
)

// ScopeCounts is the 4-element per-(current_pc, ancient_pc) tally described
// in spec.md §3 ("PC-Dependency Table").
type ScopeCounts [numScopes]uint64

// Bump increments the counter for the given scope by one.
func (c *ScopeCounts) Bump(s Scope) {
	c[s]++
}

// Add merges other into c elementwise, matching vectorclock.Join's shape
// with + in place of max.
func (c *ScopeCounts) Add(other ScopeCounts) {
	for i := range c {
		c[i] += other[i]
	}
}

// Sum returns the total of all four counters, used by property P1 (total
// count preservation).
func (c ScopeCounts) Sum() uint64 {
	var total uint64
	for _, v := range c {
		total += v
	}
	return total
}

// SectorHistogram is the 65-counter histogram described in spec.md §3:
// indices 0..31 count distinct-32-byte-sector occurrences (k+1 sectors at
// index k), indices 32..64 count active-lane counts (k lanes at index 32+k).
type SectorHistogram [65]uint64

// BumpSectors increments the distinct-sector-count bucket. A count below 1
// is ignored; a count above 32 is clamped to 32 (spec.md §4.9).
func (h *SectorHistogram) BumpSectors(count int) {
	if count < 1 {
		return
	}
	if count > 32 {
		count = 32
	}
	h[count-1]++
}

// BumpActiveLanes increments the active-lane-count bucket for popcount(mask)
// active lanes, in [0, 32].
func (h *SectorHistogram) BumpActiveLanes(activeLanes int) {
	if activeLanes < 0 || activeLanes > 32 {
		return
	}
	h[32+activeLanes]++
}

// Add merges other into h elementwise.
func (h *SectorHistogram) Add(other SectorHistogram) {
	for i := range h {
		h[i] += other[i]
	}
}

// FlagsEntry is one row of the PC Flags Registry (spec.md §3): flags
// OR-accumulate, access_size takes the max observed.
type FlagsEntry struct {
	Flags      uint32
	AccessSize uint32
}

// Merge OR-accumulates flags and takes the max access size, per C6.
func (e *FlagsEntry) Merge(flags, accessSize uint32) {
	e.Flags |= flags
	if accessSize > e.AccessSize {
		e.AccessSize = accessSize
	}
}

// DepTable is the PC-Dependency Table: current_pc -> ancient_pc -> counts.
// Key ancient_pc == 0 denotes a cold miss (spec.md §3, §9 Open Question:
// cold-miss sentinel is 0).
type DepTable map[uint32]map[uint32]*ScopeCounts

// NewDepTable returns an empty dependency table.
func NewDepTable() DepTable { return make(DepTable) }

// Bump records one occurrence of (currentPC, ancientPC) at the given scope,
// creating intermediate maps as needed.
func (t DepTable) Bump(currentPC, ancientPC uint32, s Scope) {
	inner, ok := t[currentPC]
	if !ok {
		inner = make(map[uint32]*ScopeCounts)
		t[currentPC] = inner
	}
	counts, ok := inner[ancientPC]
	if !ok {
		counts = &ScopeCounts{}
		inner[ancientPC] = counts
	}
	counts.Bump(s)
}

// Merge folds other into t, elementwise-summing overlapping (current,
// ancient) entries. Used by the Merge Stage (C6) to combine per-worker
// partial tables in fixed worker order.
func (t DepTable) Merge(other DepTable) {
	for cur, inner := range other {
		dst, ok := t[cur]
		if !ok {
			dst = make(map[uint32]*ScopeCounts)
			t[cur] = dst
		}
		for anc, counts := range inner {
			existing, ok := dst[anc]
			if !ok {
				c := *counts
				dst[anc] = &c
				continue
			}
			existing.Add(*counts)
		}
	}
}

// FlagsRegistry maps pc -> FlagsEntry.
type FlagsRegistry map[uint32]*FlagsEntry

// NewFlagsRegistry returns an empty registry.
func NewFlagsRegistry() FlagsRegistry { return make(FlagsRegistry) }

// Register OR-accumulates flags and bumps access_size for pc.
func (r FlagsRegistry) Register(pc uint32, flags, accessSize uint32) {
	e, ok := r[pc]
	if !ok {
		e = &FlagsEntry{}
		r[pc] = e
	}
	e.Merge(flags, accessSize)
}

// Merge folds other into r.
func (r FlagsRegistry) Merge(other FlagsRegistry) {
	for pc, e := range other {
		r.Register(pc, e.Flags, e.AccessSize)
	}
}

// HistogramTable maps pc -> SectorHistogram.
type HistogramTable map[uint32]*SectorHistogram

// NewHistogramTable returns an empty histogram table.
func NewHistogramTable() HistogramTable { return make(HistogramTable) }

func (h HistogramTable) entry(pc uint32) *SectorHistogram {
	e, ok := h[pc]
	if !ok {
		e = &SectorHistogram{}
		h[pc] = e
	}
	return e
}

// BumpSectors bumps the distinct-sector bucket for pc.
func (h HistogramTable) BumpSectors(pc uint32, count int) {
	h.entry(pc).BumpSectors(count)
}

// BumpActiveLanes bumps the active-lane bucket for pc.
func (h HistogramTable) BumpActiveLanes(pc uint32, activeLanes int) {
	h.entry(pc).BumpActiveLanes(activeLanes)
}

// Merge folds other into h.
func (h HistogramTable) Merge(other HistogramTable) {
	for pc, hist := range other {
		h.entry(pc).Add(*hist)
	}
}

// EngineStats mirrors internal/race/detector.PromotionStats: a block of
// observability counters incremented at the exact points spec.md §7's error
// categories fire, exposed for tests and diagnostics rather than the hot
// path itself.
type EngineStats struct {
	ColdMisses uint64
	Classified uint64

	// RejectedOverlaps is category 2 (spec.md §7): a new allocation
	// overlapping a live region, rejected at Region Index insert.
	RejectedOverlaps uint64

	// BadLookups is category 1 (spec.md §7): a record's lane address falls
	// outside every live region at classification time, so the access is
	// skipped rather than classified.
	BadLookups uint64

	BadFrees        uint64
	UnknownTypeTags uint64
	IOErrors        uint64
}
