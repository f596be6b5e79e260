// Package classifier implements the Dependency Classifier (C4): the
// single-cell state machine that turns one memory access into a
// (current_pc, ancient_pc, scope) tally.
//
// This is a direct generalization of internal/race/detector/detector.go's
// OnWrite/OnRead shape: atomically fetch the previous state, decode it,
// compare it against the current access, and classify. FastTrack compares
// epochs against a happens-before frontier to decide "race or not"; this
// classifier compares packed (generation, pc, thread) cells against the
// current access's coordinates to decide "which scope, if any, connects
// them" — same fetch-decode-compare shape, different verdict.
package classifier

import (
	"github.com/AccelProf/sanalyzer/internal/pcdep/cell"
	"github.com/AccelProf/sanalyzer/internal/pcdep/shadowarena"
	"github.com/AccelProf/sanalyzer/internal/pcdep/stats"
)

// GlobalAccess classifies one byte-offset access against a region's shadow
// arena, atomically exchanging the cell for the new (generation, pc,
// thread) tuple and returning the dependency this access has on whatever
// was there before.
//
//   - coldMiss is true if the previous cell was invalid, or stamped with a
//     stale generation (a prior kernel's leftover value, per spec.md's
//     generation-reset invariant P4).
//   - When !coldMiss, ancientPC and scope describe the prior access.
func GlobalAccess(arena *shadowarena.Arena, offset uint64, generation uint8, pc uint32, block uint32, warp, lane uint8) (ancientPC uint32, scope stats.Scope, coldMiss bool) {
	newPacked := cell.Pack(generation, pc, cell.FlatThreadID(block, warp, lane))
	old := arena.Exchange(offset, newPacked)

	if cell.IsCold(old) {
		return 0, 0, true
	}
	oldGeneration, oldPC, oldFlat := cell.Decode(old)
	if oldGeneration != generation {
		return 0, 0, true
	}

	oldBlock, oldWarp, oldLane := cell.DecodeFlatThreadID(oldFlat)
	return oldPC, scopeOf(oldBlock, block, oldWarp, warp, oldLane, lane), false
}

// SharedAccess classifies one shared-memory access against a single cell
// value drawn from the caller's per-block, per-worker map (package
// sharedshadow). Shared cells have no atomics: C5 shards deterministically
// by block id so a given block's shared shadow is touched by exactly one
// worker, single-threaded between dispatch and merge. Block id plays no
// part in the comparison — it is implicit in the cell's owning submap — so
// the scope space collapses to {thread, lane-within-warp, warp-within-block}
// and "across-block" is impossible by construction (spec.md §4.4).
func SharedAccess(previous uint64, generation uint8, pc uint32, warp, lane uint8) (newPacked uint64, ancientPC uint32, scope stats.Scope, coldMiss bool) {
	newPacked = cell.Pack(generation, pc, cell.FlatWarpLane(warp, lane))

	if cell.IsCold(previous) {
		return newPacked, 0, 0, true
	}
	oldGeneration, oldPC, oldFlat := cell.Decode(previous)
	if oldGeneration != generation {
		return newPacked, 0, 0, true
	}

	oldWarp, oldLane := cell.DecodeFlatWarpLane(oldFlat)
	if oldWarp != warp {
		return newPacked, oldPC, stats.ScopeWarpWithinBlock, false
	}
	if oldLane != lane {
		return newPacked, oldPC, stats.ScopeLaneWithinWarp, false
	}
	return newPacked, oldPC, stats.ScopeThread, false
}

// scopeOf implements spec.md §4.4's coordinate comparison ladder:
// block first, then warp, then lane, else same thread.
func scopeOf(oldBlock, block uint32, oldWarp, warp uint8, oldLane, lane uint8) stats.Scope {
	switch {
	case oldBlock != block:
		return stats.ScopeAcrossBlock
	case oldWarp != warp:
		return stats.ScopeWarpWithinBlock
	case oldLane != lane:
		return stats.ScopeLaneWithinWarp
	default:
		return stats.ScopeThread
	}
}
