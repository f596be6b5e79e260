package engine

import "errors"

// Sentinel errors for spec.md §7's error categories. Category 3
// (out-of-range shadow offset) has no sentinel: the worker's stride loop
// bound-checks and stops silently. ErrUnknownMemoryType (category 4) is
// only logged; the record is skipped and OnBatch does not return it.
// Nothing here panics except cell_at-style out-of-range offsets deep in
// shadowarena, which are logic errors, not data-plane conditions.
var (
	// ErrRegionOverlap is category 2: region overlap on insert. The new
	// region is dropped.
	ErrRegionOverlap = errors.New("pcdep: region overlap on insert")

	// ErrUnknownRegion is category 1: alloc-free mismatch or free of an
	// unknown address.
	ErrUnknownRegion = errors.New("pcdep: free of unknown region")

	// ErrUnknownMemoryType is category 4: unknown memory-type tag on a
	// record.
	ErrUnknownMemoryType = errors.New("pcdep: unknown memory-type tag")

	// ErrShutdownPending is category 5: worker-pool shutdown requested
	// while a batch was pending.
	ErrShutdownPending = errors.New("pcdep: worker pool shutdown while batch pending")

	// ErrFlushIO is category 6: I/O error on kernel flush.
	ErrFlushIO = errors.New("pcdep: I/O error on kernel flush")

	// ErrNoActiveKernel is returned by Analyze/OnBatch when no kernel is
	// active (before any KernelLaunch event, or after OnKernelEnd) — a
	// caller-contract violation, but
	// reported as an error rather than panicking since it can arise from
	// misordered external event delivery.
	ErrNoActiveKernel = errors.New("pcdep: no active kernel")
)
