// Package config reads the three environment variables spec.md §6 defines,
// in the same unadorned os.Getenv style
// internal/race/detector/sampler.go's SamplerConfig is constructed in — no
// configuration library appears anywhere in the reference corpus.
package config

import (
	"os"
	"strconv"
)

// Config holds the engine's optional environment-derived settings.
type Config struct {
	// AppName prefixes the per-kernel output subdirectory name. Directory
	// creation itself is out of scope (spec.md §1); this field is exposed
	// for a caller that wires it.
	AppName string

	// SampleRate is passed through to the instrumentation layer. spec.md
	// §6 is explicit that it "has no effect on this core" — it is parsed
	// and retained here purely so a caller that does forward it to the
	// GPU-side instrumentation has one place to read it from.
	SampleRate int

	// MaxKernelsMonitored is an upper bound on kernels before the process
	// is expected to self-terminate. 0 means unbounded.
	MaxKernelsMonitored int
}

// FromEnv reads APP_NAME, SAMPLE_RATE and MAX_NUM_KERNEL_MONITORED. Missing
// or unparsable integers default to 0 (unbounded / unset).
func FromEnv() Config {
	cfg := Config{AppName: os.Getenv("APP_NAME")}
	if v, err := strconv.Atoi(os.Getenv("SAMPLE_RATE")); err == nil {
		cfg.SampleRate = v
	}
	if v, err := strconv.Atoi(os.Getenv("MAX_NUM_KERNEL_MONITORED")); err == nil {
		cfg.MaxKernelsMonitored = v
	}
	return cfg
}

// LimitReached reports whether kernelsProcessed has reached the configured
// bound. Always false when MaxKernelsMonitored is 0 (unbounded).
func (c Config) LimitReached(kernelsProcessed uint64) bool {
	return c.MaxKernelsMonitored > 0 && kernelsProcessed >= uint64(c.MaxKernelsMonitored)
}
