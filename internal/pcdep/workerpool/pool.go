// Package workerpool implements the Worker Pool (C5): a fixed set of
// persistent workers, sharded deterministically by block id, joined once
// per batch.
//
// The teacher has no worker pool of its own — internal/race/api/race.go's
// closest analogue is a single long-lived global detector singleton plus a
// mutex-protected TID-reuse pool (initTIDPool/allocTID/freeTID). This
// package generalizes that "persistent shared state guarded by one mutex,
// long-lived across many short operations" shape into an explicit
// producer/worker rendezvous, following spec.md §4.5's algorithm directly:
// one mutex, two condition variables (jobs-available, jobs-complete), a job
// generation counter, and deterministic block-id-mod-W sharding.
package workerpool

import (
	"errors"
	"runtime"
	"sync"

	"github.com/AccelProf/sanalyzer/internal/pcdep/classifier"
	"github.com/AccelProf/sanalyzer/internal/pcdep/sharedshadow"
	"github.com/AccelProf/sanalyzer/internal/pcdep/shadowarena"
	"github.com/AccelProf/sanalyzer/internal/pcdep/stats"
	"github.com/AccelProf/sanalyzer/internal/pcdep/trace"
)

// ErrShutdown is returned by Analyze when the pool is shutting down with a
// batch still pending (spec.md §7 category 5): no partial output is
// produced.
var ErrShutdown = errors.New("workerpool: shutdown requested while batch pending")

// ArenaLookup resolves a global-memory address to the region-relative
// offset within its owning arena. ok is false if no live region covers
// addr (spec.md §7 category 1: bad region lookup, logged by the caller).
type ArenaLookup func(addr uint64) (offset uint64, arena *shadowarena.Arena, ok bool)

// Result is one worker's partial contribution for a batch, folded into the
// engine's global tables by the Merge Stage (C6).
type Result struct {
	DepTable  stats.DepTable
	Flags     stats.FlagsRegistry
	Histogram stats.HistogramTable
	Stats     stats.EngineStats
}

func newResult() *Result {
	return &Result{
		DepTable:  stats.NewDepTable(),
		Flags:     stats.NewFlagsRegistry(),
		Histogram: stats.NewHistogramTable(),
	}
}

type worker struct {
	id      int
	result  *Result
	shared  *sharedshadow.Shadow
	partition []int
}

// Pool is a fixed set of W = runtime.NumCPU() persistent workers.
type Pool struct {
	mu           sync.Mutex
	jobsAvail    *sync.Cond
	jobsComplete *sync.Cond

	workers    []*worker
	generation uint64
	pending    int
	shutdown   bool

	// Set once per Analyze call, read by workers under the same generation.
	batch          []trace.Record
	generationByte uint8
	lookup         ArenaLookup
}

// New creates a pool of W persistent workers and starts their goroutines.
// W defaults to runtime.NumCPU() when w <= 0.
func New(w int) *Pool {
	if w <= 0 {
		w = runtime.NumCPU()
		if w < 1 {
			w = 1
		}
	}
	p := &Pool{}
	p.jobsAvail = sync.NewCond(&p.mu)
	p.jobsComplete = sync.NewCond(&p.mu)
	p.workers = make([]*worker, w)
	for i := range p.workers {
		p.workers[i] = &worker{id: i, result: newResult(), shared: sharedshadow.New()}
		go p.workerLoop(p.workers[i])
	}
	return p
}

// Width returns the number of workers in the pool.
func (p *Pool) Width() int { return len(p.workers) }

// Shutdown stops all workers cooperatively; any Analyze in flight aborts
// with ErrShutdown. Idempotent.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.shutdown = true
	p.mu.Unlock()
	p.jobsAvail.Broadcast()
	p.jobsComplete.Broadcast()
}

// ClearSharedShadows drops every worker's per-block shared-memory state,
// called at kernel end (spec.md §4.8).
func (p *Pool) ClearSharedShadows() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.workers {
		w.shared.Clear()
	}
}

// Analyze partitions batch by block-id-mod-W, dispatches to workers, joins,
// and returns each worker's partial result in worker order (0..W-1) so the
// caller's merge is deterministic (spec.md §4.6).
func (p *Pool) Analyze(batch []trace.Record, generationByte uint8, lookup ArenaLookup) ([]*Result, error) {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return nil, ErrShutdown
	}

	w := len(p.workers)
	for _, wk := range p.workers {
		wk.result = newResult()
		wk.partition = wk.partition[:0]
	}
	for i := range batch {
		shard := int(batch[i].BlockID % uint64(w))
		p.workers[shard].partition = append(p.workers[shard].partition, i)
	}

	pending := 0
	for _, wk := range p.workers {
		if len(wk.partition) > 0 {
			pending++
		}
	}

	p.batch = batch
	p.generationByte = generationByte
	p.lookup = lookup
	p.generation++
	p.pending = pending
	p.jobsAvail.Broadcast()

	for p.pending > 0 && !p.shutdown {
		p.jobsComplete.Wait()
	}
	shutdownNow := p.shutdown
	p.mu.Unlock()

	if shutdownNow {
		return nil, ErrShutdown
	}

	results := make([]*Result, w)
	for i, wk := range p.workers {
		results[i] = wk.result
	}
	return results, nil
}

func (p *Pool) workerLoop(w *worker) {
	seen := uint64(0)
	p.mu.Lock()
	for {
		for p.generation == seen && !p.shutdown {
			p.jobsAvail.Wait()
		}
		if p.shutdown {
			p.mu.Unlock()
			return
		}
		seen = p.generation
		partition := w.partition
		batch := p.batch
		generationByte := p.generationByte
		lookup := p.lookup
		p.mu.Unlock()

		if len(partition) > 0 {
			processPartition(w, batch, partition, generationByte, lookup)
		}

		p.mu.Lock()
		if len(partition) > 0 {
			p.pending--
			if p.pending == 0 {
				p.jobsComplete.Signal()
			}
		}
	}
}

// processPartition applies the Dependency Classifier (C4) to every record
// in one worker's shard, in original batch order, matching spec.md §4.5's
// ordering guarantee for shared-memory intra-CTA semantics.
func processPartition(w *worker, batch []trace.Record, partition []int, generationByte uint8, lookup ArenaLookup) {
	for _, idx := range partition {
		rec := &batch[idx]

		// Auxiliary Stats (C9) are registered unconditionally, before the
		// memory-type branch, matching original_source's
		// gpu_data_analysis/evt_callback ordering (see SPEC_FULL.md
		// SUPPLEMENTED section).
		spaceBit := spaceBitFor(rec.Type)
		pc := rec.TruncatedPC()
		w.result.Flags.Register(pc, rec.Flags|spaceBit, rec.AccessSize)
		w.result.Histogram.BumpSectors(pc, int(rec.DistinctSectors))
		w.result.Histogram.BumpActiveLanes(pc, rec.ActiveLaneCount())

		if rec.ActiveMask == 0 {
			// Boundary behavior: active-mask zero contributes only to
			// flags/size/histograms, never to dependencies.
			continue
		}

		switch rec.Type {
		case trace.MemoryGlobal:
			classifyGlobal(w, rec, generationByte, lookup)
		case trace.MemoryShared:
			classifyShared(w, rec, generationByte)
		case trace.MemoryLocal:
			// Non-goal: local (stack) memory dependency tracking (spec.md
			// §1, §4.4). Flags/size already registered above.
		}
	}
}

func spaceBitFor(t trace.MemoryType) uint32 {
	switch t {
	case trace.MemoryGlobal:
		return trace.FlagGlobal
	case trace.MemoryShared:
		return trace.FlagShared
	case trace.MemoryLocal:
		return trace.FlagLocal
	default:
		return 0
	}
}

func classifyGlobal(w *worker, rec *trace.Record, generationByte uint8, lookup ArenaLookup) {
	pc := rec.TruncatedPC()
	block := uint32(rec.BlockID)

	for lane := 0; lane < trace.MaxLanes; lane++ {
		if !rec.LaneActive(lane) {
			continue
		}
		baseAddr := rec.Addresses[lane]
		offset, arena, ok := lookup(baseAddr)
		if !ok {
			// Category 1 (spec.md §7): the lane address falls outside every
			// live region. Skipped, not fatal to the batch; the engine logs
			// a per-batch summary from this count once results are merged.
			w.result.Stats.BadLookups++
			continue
		}
		for i := uint32(0); i < rec.AccessSize; i += 4 {
			strideOffset := offset + uint64(i)
			if strideOffset >= arena.Size() {
				// Out-of-range shadow offset: abort remaining strides of
				// this record only (spec.md §7 category 3).
				break
			}
			ancientPC, scope, cold := classifier.GlobalAccess(arena, strideOffset, generationByte, pc, block, uint8(rec.WarpID), uint8(lane))
			if cold {
				w.result.DepTable.Bump(pc, 0, stats.ScopeThread)
				w.result.Stats.ColdMisses++
				continue
			}
			w.result.DepTable.Bump(pc, ancientPC, scope)
			w.result.Stats.Classified++
		}
	}
}

func classifyShared(w *worker, rec *trace.Record, generationByte uint8) {
	pc := rec.TruncatedPC()
	blockID := rec.BlockID

	for lane := 0; lane < trace.MaxLanes; lane++ {
		if !rec.LaneActive(lane) {
			continue
		}
		baseAddr := rec.Addresses[lane]
		for i := uint32(0); i < rec.AccessSize; i += 4 {
			addrLow := uint32(baseAddr+uint64(i)) & 0xFFFFFFFF
			previous := w.shared.Load(blockID, addrLow)
			newPacked, ancientPC, scope, cold := classifier.SharedAccess(previous, generationByte, pc, uint8(rec.WarpID), uint8(lane))
			w.shared.Store(blockID, addrLow, newPacked)
			if cold {
				w.result.DepTable.Bump(pc, 0, stats.ScopeThread)
				w.result.Stats.ColdMisses++
				continue
			}
			w.result.DepTable.Bump(pc, ancientPC, scope)
			w.result.Stats.Classified++
		}
	}
}
