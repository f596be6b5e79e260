// Package sharedshadow implements the Shared-Memory Shadow (C3): a
// per-worker map from (block id, address-low-32) to a packed shadow cell.
//
// Shared memory has no stable address across CTAs, so the key must include
// block id (spec.md §4.3). One Shadow belongs to exactly one worker; C5
// shards batches deterministically by block id, so every access to a given
// block's shared shadow is serial on one worker and no atomics are needed
// here, unlike the global Shadow Arena (C2).
//
// The lazy per-block submap allocation mirrors
// internal/race/syncshadow/syncvar.go's lazy-field-allocation idiom, where a
// SyncVar allocates its channel/waitGroup state only on first use rather
// than up front for every synchronization variable. Here, a worker's shadow
// allocates a block's submap only the first time that block touches shared
// memory.
package sharedshadow

// Shadow is one worker's shared-memory shadow, covering every block that
// worker has processed since the last kernel boundary.
type Shadow struct {
	blocks map[uint64]map[uint32]uint64
}

// New returns an empty per-worker shared-memory shadow.
func New() *Shadow {
	return &Shadow{blocks: make(map[uint64]map[uint32]uint64)}
}

// Load returns the current cell for (blockID, addrLow), or 0 if the block or
// address has never been touched — the zero value doubles as
// cell.IsCold's cold-miss sentinel, so callers can treat a missing entry
// exactly like an explicit cold cell.
func (s *Shadow) Load(blockID uint64, addrLow uint32) uint64 {
	block, ok := s.blocks[blockID]
	if !ok {
		return 0
	}
	return block[addrLow]
}

// Store records newValue for (blockID, addrLow), lazily allocating the
// block's submap on first touch.
func (s *Shadow) Store(blockID uint64, addrLow uint32, newValue uint64) {
	block, ok := s.blocks[blockID]
	if !ok {
		block = make(map[uint32]uint64)
		s.blocks[blockID] = block
	}
	block[addrLow] = newValue
}

// Clear drops every block's shared-memory state. Called at kernel end
// (spec.md §4.8: "clear per-worker shared-memory shadows; they are
// per-kernel").
func (s *Shadow) Clear() {
	s.blocks = make(map[uint64]map[uint32]uint64)
}

// BlockCount returns the number of distinct blocks currently tracked, for
// tests and diagnostics.
func (s *Shadow) BlockCount() int { return len(s.blocks) }
