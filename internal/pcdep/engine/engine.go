// Package engine implements the explicit engine object called for by
// spec.md §9's design note: "Replace [global mutable state] with an
// explicit engine object passed to callbacks; wrap the event-ingestion API
// as thin free functions that delegate to one process-wide engine
// instance." Engine is that object; the top-level pcdep package supplies
// the thin free functions, following race/api.go's delegation-to-a-
// singleton pattern in internal/race/api/race.go.
//
// Engine composes the Region Index (C1), Shadow Arena (C2, one per live
// region), Worker Pool (C5, which owns the per-worker Shared-Memory Shadow,
// C3), and the per-kernel result tables (C9). It implements the narrow
// EventSink interface spec.md §9 calls for, so a sibling tool variant
// (heatmap, block-divergence — out of scope here) could share the same
// dispatch seam.
package engine

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/AccelProf/sanalyzer/internal/pcdep/config"
	"github.com/AccelProf/sanalyzer/internal/pcdep/region"
	"github.com/AccelProf/sanalyzer/internal/pcdep/report"
	"github.com/AccelProf/sanalyzer/internal/pcdep/shadowarena"
	"github.com/AccelProf/sanalyzer/internal/pcdep/stats"
	"github.com/AccelProf/sanalyzer/internal/pcdep/trace"
	"github.com/AccelProf/sanalyzer/internal/pcdep/workerpool"
)

// EventTag identifies one kind of event delivered through OnEvent (C7).
type EventTag int

const (
	EventKernelLaunch EventTag = iota
	EventKernelEnd
	EventMemAlloc
	EventMemFree
	EventTenAlloc
	EventTenFree
)

// Event is one tagged event record from the sanitizer runtime's event bus.
// Operator-boundary and mem-copy/mem-set events have no tag here: C7
// ignores them by construction (spec.md §4.7).
type Event struct {
	Tag        EventTag
	Addr       uint64
	Size       uint64
	KernelName string
	Device     uint32
	KernelPC   uint64
}

// EventSink is the narrow interface spec.md §9 calls for: "{ on_event,
// on_batch, on_flush } with compile-time selection driven by a
// configuration enum." *Engine implements exactly the PC-Dependency
// variant.
type EventSink interface {
	OnEvent(evt Event) error
	OnBatch(buf []byte, recordCount int) error
	OnFlush(csvOut, jsonOut io.Writer) error
}

// Engine is the process-wide PC-Dependency analysis engine.
type Engine struct {
	cfg    config.Config
	logger *log.Logger

	regions *region.Index
	arenas  map[region.Region]*shadowarena.Arena
	pool    *workerpool.Pool

	generation   uint8 // current kernel generation; 0 is never assigned
	kernelID     uint32
	kernelActive bool
	currentKernel report.Kernel

	dep       stats.DepTable
	flags     stats.FlagsRegistry
	hist      stats.HistogramTable
	aggregate stats.EngineStats

	kernelsProcessed uint64
}

// Option configures New.
type Option func(*Engine)

// WithLogger overrides the default stderr logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithWorkers overrides the worker pool width (default runtime.NumCPU()).
func WithWorkers(w int) Option {
	return func(e *Engine) { e.pool = workerpool.New(w) }
}

// New creates an Engine reading its environment configuration via
// config.FromEnv, matching the teacher's process-wide-singleton-at-
// first-use construction style (internal/race/api/race.go's Init/init).
func New(opts ...Option) *Engine {
	e := &Engine{
		cfg:     config.FromEnv(),
		logger:  log.New(os.Stderr, "[PC_DEPENDENCY] ", 0),
		regions: region.New(),
		arenas:  make(map[region.Region]*shadowarena.Arena),
		dep:       stats.NewDepTable(),
		flags:     stats.NewFlagsRegistry(),
		hist:      stats.NewHistogramTable(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.pool == nil {
		e.pool = workerpool.New(0)
	}
	return e
}

// Close shuts down the worker pool. Safe to call once at process exit,
// mirroring race/api.go's Fini().
func (e *Engine) Close() {
	e.pool.Shutdown()
}

// Stats returns a snapshot of the engine's aggregate observability
// counters (spec.md §7's error categories plus classification totals).
func (e *Engine) Stats() stats.EngineStats { return e.aggregate }

// KernelsProcessed returns the number of kernels flushed so far.
func (e *Engine) KernelsProcessed() uint64 { return e.kernelsProcessed }

// --- C7 Event Adapter -------------------------------------------------

// OnEvent dispatches a tagged event to its handler (spec.md §4.7). Unknown
// tags are ignored, matching C7's "operator-start/-end ... are ignored".
func (e *Engine) OnEvent(evt Event) error {
	switch evt.Tag {
	case EventKernelLaunch:
		return e.OnKernelLaunch(evt.KernelName, evt.Device, evt.KernelPC)
	case EventKernelEnd:
		e.pool.ClearSharedShadows()
		return nil
	case EventMemAlloc:
		return e.OnMemAlloc(evt.Addr, evt.Size)
	case EventMemFree:
		return e.OnMemFree(evt.Addr)
	case EventTenAlloc:
		return e.OnTenAlloc(evt.Addr, evt.Size)
	case EventTenFree:
		return e.OnTenFree(evt.Addr)
	default:
		return nil
	}
}

// OnMemAlloc creates a Region and its Shadow Arena (C1, C2). Tensor
// allocations route through the identical path (spec.md §4.7 / §9's
// resolved Open Question: overlap is rejected at the Region Index).
func (e *Engine) OnMemAlloc(addr, size uint64) error {
	r, err := e.regions.Insert(addr, size)
	if err != nil {
		e.aggregate.RejectedOverlaps++
		e.logger.Printf("rejected overlapping allocation at %#x size %d: %v", addr, size, err)
		return fmt.Errorf("%w: %v", ErrRegionOverlap, err)
	}
	e.arenas[r] = shadowarena.New(size)
	e.logger.Printf("allocated shadow arena for region %s, size %d", r, size)
	return nil
}

// OnTenAlloc is identical to OnMemAlloc (spec.md §4.7).
func (e *Engine) OnTenAlloc(addr, size uint64) error { return e.OnMemAlloc(addr, size) }

// OnMemFree destroys the Region and its Shadow Arena matching addr exactly.
// A mismatched free is logged and ignored (spec.md §7 category 1).
func (e *Engine) OnMemFree(addr uint64) error {
	r, err := e.regions.Remove(addr)
	if err != nil {
		e.aggregate.BadFrees++
		e.logger.Printf("free of unknown region at %#x: %v", addr, err)
		return fmt.Errorf("%w: %v", ErrUnknownRegion, err)
	}
	delete(e.arenas, r)
	e.logger.Printf("freed shadow arena for region %s", r)
	return nil
}

// OnTenFree is identical to OnMemFree (spec.md §4.7).
func (e *Engine) OnTenFree(addr uint64) error { return e.OnMemFree(addr) }

// --- C8 Kernel Lifecycle ------------------------------------------------

// OnKernelLaunch assigns a sequential kernel id, clears the per-kernel
// result tables and every worker's shared-memory shadow, and advances the
// shadow generation (spec.md §4.8).
func (e *Engine) OnKernelLaunch(name string, device uint32, pc uint64) error {
	e.currentKernel = report.Kernel{ID: e.kernelID, Name: name, Device: device, PC: pc}
	e.kernelID++
	e.kernelActive = true

	e.dep = stats.NewDepTable()
	e.flags = stats.NewFlagsRegistry()
	e.hist = stats.NewHistogramTable()
	e.pool.ClearSharedShadows()

	e.generation++
	if e.generation == 0 {
		for _, arena := range e.arenas {
			arena.Reset()
		}
		e.generation = 1
	}
	e.logger.Printf("kernel %d (%s) starting, generation=%d", e.currentKernel.ID, name, e.generation)
	return nil
}

// OnBatch decodes and analyzes one trace batch (§6's Analyze entry point),
// dispatching to the Worker Pool (C5) and folding results via the Merge
// Stage (C6).
func (e *Engine) OnBatch(buf []byte, recordCount int) error {
	if !e.kernelActive {
		return ErrNoActiveKernel
	}
	records, err := trace.Decode(buf, recordCount, func(index int, tag uint32) {
		e.aggregate.UnknownTypeTags++
		e.logger.Printf("record %d: %v: tag=%d", index, ErrUnknownMemoryType, tag)
	})
	if err != nil {
		return err
	}

	results, err := e.pool.Analyze(records, e.generation, e.lookup)
	if err != nil {
		e.logger.Printf("batch aborted: %v", err)
		return fmt.Errorf("%w: %v", ErrShutdownPending, err)
	}

	// Merge Stage (C6): fixed worker order (0..W-1) makes output
	// byte-identical across runs with the same input.
	var batchBadLookups uint64
	for _, r := range results {
		e.dep.Merge(r.DepTable)
		e.flags.Merge(r.Flags)
		e.hist.Merge(r.Histogram)
		e.aggregate.ColdMisses += r.Stats.ColdMisses
		e.aggregate.Classified += r.Stats.Classified
		e.aggregate.BadLookups += r.Stats.BadLookups
		batchBadLookups += r.Stats.BadLookups
	}
	if batchBadLookups > 0 {
		// Category 1 (spec.md §7): logged as a per-batch summary rather
		// than per-lane, since a batch can carry thousands of records.
		e.logger.Printf("%d record(s) in this batch addressed no live region", batchBadLookups)
	}
	return nil
}

// Analyze is the public name for the batch analysis API in spec.md §6:
// analyze(buffer_ptr, record_count).
func (e *Engine) Analyze(buf []byte, recordCount int) error { return e.OnBatch(buf, recordCount) }

func (e *Engine) lookup(addr uint64) (uint64, *shadowarena.Arena, bool) {
	r, ok := e.regions.Find(addr)
	if !ok {
		return 0, nil, false
	}
	arena, ok := e.arenas[r]
	if !ok {
		return 0, nil, false
	}
	return addr - r.Start, arena, true
}

// OnFlush serializes the current kernel's results to csvOut and jsonOut
// (spec.md §6). Output directory creation and filename generation are the
// caller's responsibility (spec.md §1's "external collaborators").
func (e *Engine) OnFlush(csvOut, jsonOut io.Writer) error {
	if err := report.WriteCSV(csvOut, e.dep, e.flags); err != nil {
		e.aggregate.IOErrors++
		return fmt.Errorf("%w: %v", ErrFlushIO, err)
	}
	if err := report.WriteJSON(jsonOut, e.currentKernel, e.dep, e.flags, e.hist); err != nil {
		e.aggregate.IOErrors++
		return fmt.Errorf("%w: %v", ErrFlushIO, err)
	}
	return nil
}

// OnKernelEnd clears per-worker shared-memory shadows and flushes the
// kernel's results, combining OnEvent(EventKernelEnd) and OnFlush for
// callers that don't need the two steps split apart (spec.md §4.8).
func (e *Engine) OnKernelEnd(csvOut, jsonOut io.Writer) error {
	e.pool.ClearSharedShadows()
	err := e.OnFlush(csvOut, jsonOut)
	if err != nil {
		// I/O errors on flush drop the in-memory kernel state so the next
		// kernel starts clean (spec.md §7 category 6).
		e.dep = stats.NewDepTable()
		e.flags = stats.NewFlagsRegistry()
		e.hist = stats.NewHistogramTable()
	}
	e.kernelActive = false
	e.kernelsProcessed++
	if e.cfg.LimitReached(e.kernelsProcessed) {
		e.logger.Printf("MAX_NUM_KERNEL_MONITORED reached at kernel %d", e.kernelsProcessed)
	}
	return err
}
