// Package pcdep is the public entry point for the PC-Dependency Analyzer.
//
// It thinly wraps internal/pcdep/engine, following the same delegation
// pattern race/api.go uses over internal/race/api: package-level free
// functions operate on one lazily-initialized, process-wide *Engine, while
// NewEngine/Engine.Close remain available for callers that want an
// explicit, non-global instance (spec.md §9: "Replace [global state] with
// an explicit engine object").
package pcdep

import (
	"io"
	"sync"

	"github.com/AccelProf/sanalyzer/internal/pcdep/engine"
)

// Engine is the analyzer engine handle. See internal/pcdep/engine.Engine
// for the full component composition (C1-C9).
type Engine = engine.Engine

// Option configures a new Engine.
type Option = engine.Option

// WithLogger and WithWorkers pass through to internal/pcdep/engine.
var (
	WithLogger  = engine.WithLogger
	WithWorkers = engine.WithWorkers
)

// NewEngine constructs an explicit, independent Engine instance.
func NewEngine(opts ...Option) *Engine {
	return engine.New(opts...)
}

var (
	defaultOnce   sync.Once
	defaultEngine *Engine
)

func def() *Engine {
	defaultOnce.Do(func() {
		defaultEngine = engine.New()
	})
	return defaultEngine
}

// Init returns the process-wide default Engine, constructing it on first
// use. Mirrors race/api.go's Init().
func Init() *Engine { return def() }

// Fini shuts down the process-wide default Engine's worker pool. Mirrors
// race/api.go's Fini(). A no-op if the default Engine was never
// constructed (by Init, GetInfo or any of the package-level wrappers).
func Fini() {
	if defaultEngine != nil {
		defaultEngine.Close()
	}
}

// OnMemAlloc, OnMemFree, OnTenAlloc, OnTenFree, OnKernelLaunch, OnKernelEnd
// and Analyze delegate to the default engine, matching race/api.go's
// RaceRead/RaceWrite-style thin wrappers.

//nolint:revive
func OnMemAlloc(addr, size uint64) error { return def().OnMemAlloc(addr, size) }

//nolint:revive
func OnMemFree(addr uint64) error { return def().OnMemFree(addr) }

//nolint:revive
func OnTenAlloc(addr, size uint64) error { return def().OnTenAlloc(addr, size) }

//nolint:revive
func OnTenFree(addr uint64) error { return def().OnTenFree(addr) }

//nolint:revive
func OnKernelLaunch(name string, device uint32, pc uint64) error {
	return def().OnKernelLaunch(name, device, pc)
}

//nolint:revive
func OnKernelEnd(csvOut, jsonOut io.Writer) error { return def().OnKernelEnd(csvOut, jsonOut) }

//nolint:revive
func Analyze(buf []byte, recordCount int) error { return def().Analyze(buf, recordCount) }
