// Package report serializes one kernel's PC-Dependency Table, Flags
// Registry and Sector Histogram to the CSV and JSON formats spec.md §6
// contracts.
//
// The exact node/edge shape (which fields are null vs populated, sort
// order, and the current-side-only flags lookup on edges) is grounded on
// original_source/src/tools/pc_dependency_analysis.cpp's
// kernel_trace_flush, read in full — see SPEC_FULL.md's SUPPLEMENTED
// section for the specific details the distilled spec.md compressed. The
// buffer-building-then-write shape follows
// internal/race/detector/report.go's Format/String methods.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/AccelProf/sanalyzer/internal/pcdep/stats"
)

// Kernel identifies the kernel launch a report describes.
type Kernel struct {
	ID     uint32
	Name   string
	Device uint32
	PC     uint64
}

// PCHex reproduces original_source's truncation of the 64-bit kernel entry
// PC to 32 bits before hex-formatting (hex_u32((uint32_t)kernel->kernel_pc)):
// the JSON's kernel.kernel_pc stays a full 64-bit integer, kernel_pc_hex is
// intentionally only the low 32 bits.
func (k Kernel) PCHex() string {
	return fmt.Sprintf("0x%x", uint32(k.PC))
}

func hex32(v uint32) string { return fmt.Sprintf("0x%x", v) }

// sortedDepKeys returns the keys of a current_pc-keyed table in ascending order.
func sortedDepKeys(t stats.DepTable) []uint32 {
	keys := make([]uint32, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func sortedInnerKeys(inner map[uint32]*stats.ScopeCounts) []uint32 {
	keys := make([]uint32, 0, len(inner))
	for k := range inner {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// WriteCSV writes the per-(current_pc, ancient_pc) edge table, sorted
// ascending on both keys, per spec.md §6's CSV schema.
func WriteCSV(w io.Writer, dep stats.DepTable, flags stats.FlagsRegistry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"current_pc_offset", "ancient_pc_offset", "flags", "intra_thread", "intra_warp", "intra_block", "intra_grid"}); err != nil {
		return err
	}

	for _, cur := range sortedDepKeys(dep) {
		inner := dep[cur]
		var f uint32
		if e, ok := flags[cur]; ok {
			f = e.Flags
		}
		for _, anc := range sortedInnerKeys(inner) {
			counts := inner[anc]
			row := []string{
				hex32(cur),
				hex32(anc),
				hex32(f),
				strconv.FormatUint(counts[stats.ScopeThread], 10),
				strconv.FormatUint(counts[stats.ScopeLaneWithinWarp], 10),
				strconv.FormatUint(counts[stats.ScopeWarpWithinBlock], 10),
				strconv.FormatUint(counts[stats.ScopeAcrossBlock], 10),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

type jsonKernel struct {
	KernelID    uint32 `json:"kernel_id"`
	KernelName  string `json:"kernel_name"`
	DeviceID    uint32 `json:"device_id"`
	KernelPC    uint64 `json:"kernel_pc"`
	KernelPCHex string `json:"kernel_pc_hex"`
}

type jsonNode struct {
	PC                  uint32            `json:"pc"`
	PCHex               string            `json:"pc_hex"`
	Flags               *string           `json:"flags"`
	FlagsHex            *string           `json:"flags_hex"`
	AccessSize          *uint32           `json:"access_size"`
	DistinctSectorCount map[string]uint64 `json:"distinct_sector_count"`
	ActiveLaneCount     map[string]uint64 `json:"active_lane_count"`
}

type jsonDist struct {
	IntraThread uint64 `json:"intra_thread"`
	IntraWarp   uint64 `json:"intra_warp"`
	IntraBlock  uint64 `json:"intra_block"`
	IntraGrid   uint64 `json:"intra_grid"`
}

type jsonEdge struct {
	CurrentPC         uint32  `json:"current_pc"`
	CurrentPCHex      string  `json:"current_pc_hex"`
	AncientPC         *uint32 `json:"ancient_pc"`
	AncientPCHex      *string `json:"ancient_pc_hex"`
	ColdMiss          bool    `json:"cold_miss"`
	CurrentFlags      *uint32 `json:"current_flags"`
	CurrentFlagsHex   *string `json:"current_flags_hex"`
	CurrentAccessSize *uint32 `json:"current_access_size"`
	Dist              jsonDist `json:"dist"`
}

type jsonDoc struct {
	Tool                         string     `json:"tool"`
	Kernel                       jsonKernel `json:"kernel"`
	ShadowMemoryGranularityBytes int        `json:"shadow_memory_granularity_bytes"`
	SampleStrideBytes            int        `json:"sample_stride_bytes"`
	Nodes                        []jsonNode `json:"nodes"`
	Edges                        []jsonEdge `json:"edges"`
}

func histogramFields(pc uint32, hist stats.HistogramTable) (map[string]uint64, map[string]uint64) {
	h, ok := hist[pc]
	if !ok {
		return nil, nil
	}
	sectors := make(map[string]uint64)
	for i := 0; i < 32; i++ {
		if h[i] != 0 {
			sectors[strconv.Itoa(i+1)] = h[i]
		}
	}
	lanes := make(map[string]uint64)
	for i := 0; i <= 32; i++ {
		if h[32+i] != 0 {
			lanes[strconv.Itoa(i)] = h[32+i]
		}
	}
	if len(sectors) == 0 {
		sectors = nil
	}
	if len(lanes) == 0 {
		lanes = nil
	}
	return sectors, lanes
}

// BuildDoc assembles the JSON document described in spec.md §6, resolving
// ambiguities per SPEC_FULL.md's SUPPLEMENTED section:
//   - nodes are the union of every current_pc and every non-cold ancient_pc,
//     sorted ascending;
//   - a node's flags/access_size are looked up by that PC in the Flags
//     Registry, which is keyed by current_pc only — a PC that only ever
//     appears as an ancient_pc gets null flags;
//   - an edge's current_flags/current_access_size are always looked up by
//     current_pc, never by ancient_pc.
func BuildDoc(kernel Kernel, dep stats.DepTable, flags stats.FlagsRegistry, hist stats.HistogramTable) []byte {
	nodeSet := make(map[uint32]struct{})
	for cur, inner := range dep {
		nodeSet[cur] = struct{}{}
		for anc := range inner {
			if anc != 0 {
				nodeSet[anc] = struct{}{}
			}
		}
	}
	nodePCs := make([]uint32, 0, len(nodeSet))
	for pc := range nodeSet {
		nodePCs = append(nodePCs, pc)
	}
	sort.Slice(nodePCs, func(i, j int) bool { return nodePCs[i] < nodePCs[j] })

	doc := jsonDoc{
		Tool: "pc_dependency_analysis",
		Kernel: jsonKernel{
			KernelID:    kernel.ID,
			KernelName:  kernel.Name,
			DeviceID:    kernel.Device,
			KernelPC:    kernel.PC,
			KernelPCHex: kernel.PCHex(),
		},
		ShadowMemoryGranularityBytes: 1,
		SampleStrideBytes:            4,
	}

	for _, pc := range nodePCs {
		node := jsonNode{PC: pc, PCHex: hex32(pc)}
		if e, ok := flags[pc]; ok {
			f := strconv.FormatUint(uint64(e.Flags), 10)
			fh := hex32(e.Flags)
			node.Flags = &f
			node.FlagsHex = &fh
			sz := e.AccessSize
			node.AccessSize = &sz
		}
		node.DistinctSectorCount, node.ActiveLaneCount = histogramFields(pc, hist)
		doc.Nodes = append(doc.Nodes, node)
	}

	for _, cur := range sortedDepKeys(dep) {
		inner := dep[cur]
		var curFlags *uint32
		var curFlagsHex *string
		var curSize *uint32
		if e, ok := flags[cur]; ok {
			f := e.Flags
			fh := hex32(e.Flags)
			curFlags = &f
			curFlagsHex = &fh
			sz := e.AccessSize
			curSize = &sz
		}
		for _, anc := range sortedInnerKeys(inner) {
			counts := inner[anc]
			coldMiss := anc == 0
			edge := jsonEdge{
				CurrentPC:         cur,
				CurrentPCHex:      hex32(cur),
				ColdMiss:          coldMiss,
				CurrentFlags:      curFlags,
				CurrentFlagsHex:   curFlagsHex,
				CurrentAccessSize: curSize,
				Dist: jsonDist{
					IntraThread: counts[stats.ScopeThread],
					IntraWarp:   counts[stats.ScopeLaneWithinWarp],
					IntraBlock:  counts[stats.ScopeWarpWithinBlock],
					IntraGrid:   counts[stats.ScopeAcrossBlock],
				},
			}
			if !coldMiss {
				a := anc
				ah := hex32(anc)
				edge.AncientPC = &a
				edge.AncientPCHex = &ah
			}
			doc.Edges = append(doc.Edges, edge)
		}
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		// jsonDoc contains no unmarshalable types (no channels, funcs,
		// cyclic pointers); a MarshalIndent failure here would be a
		// programming error, not a data-plane condition.
		panic(fmt.Sprintf("report: unexpected JSON marshal failure: %v", err))
	}
	return out
}

// WriteJSON writes the JSON document produced by BuildDoc to w.
func WriteJSON(w io.Writer, kernel Kernel, dep stats.DepTable, flags stats.FlagsRegistry, hist stats.HistogramTable) error {
	_, err := w.Write(BuildDoc(kernel, dep, flags, hist))
	return err
}
