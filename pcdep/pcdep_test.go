package pcdep_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/AccelProf/sanalyzer/pcdep"
)

const (
	headerSize = 8 + 8 + 4 + 4 + 4 + 4 + 4 + 4
	maxLanes   = 32
	recordSize = headerSize + maxLanes*8
)

// encodeGlobalRecord builds one packed trace record for a single-lane
// 4-byte global write, matching the wire layout internal/pcdep/trace
// decodes.
func encodeGlobalRecord(pc, blockID uint64, addr uint64) []byte {
	buf := make([]byte, recordSize)
	binary.LittleEndian.PutUint64(buf[0:], pc)
	binary.LittleEndian.PutUint64(buf[8:], blockID)
	binary.LittleEndian.PutUint32(buf[16:], 0)          // warp id
	binary.LittleEndian.PutUint32(buf[20:], 1)          // active mask: lane 0
	binary.LittleEndian.PutUint32(buf[24:], 4)          // access size
	binary.LittleEndian.PutUint32(buf[28:], 1<<1)       // FlagWrite
	binary.LittleEndian.PutUint32(buf[32:], 1)          // distinct sectors
	binary.LittleEndian.PutUint32(buf[36:], 0)          // MemoryGlobal
	binary.LittleEndian.PutUint64(buf[headerSize:], addr)
	return buf
}

// TestEngineEndToEnd exercises the full callback sequence a GPU sanitizer
// runtime would drive: allocate, launch a kernel, analyze one batch, end
// the kernel, and read back the CSV/JSON report.
func TestEngineEndToEnd(t *testing.T) {
	e := pcdep.NewEngine(pcdep.WithWorkers(2))
	defer e.Close()

	if err := e.OnMemAlloc(0x10000, 0x1000); err != nil {
		t.Fatalf("OnMemAlloc: %v", err)
	}
	if err := e.OnKernelLaunch("vector_add", 0, 0x400000); err != nil {
		t.Fatalf("OnKernelLaunch: %v", err)
	}

	batch := encodeGlobalRecord(0xAAAA, 0, 0x10000)
	if err := e.Analyze(batch, 1); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	var csvOut, jsonOut bytes.Buffer
	if err := e.OnKernelEnd(&csvOut, &jsonOut); err != nil {
		t.Fatalf("OnKernelEnd: %v", err)
	}

	if !bytes.Contains(csvOut.Bytes(), []byte("0xaaaa")) {
		t.Errorf("CSV output missing kernel's PC: %s", csvOut.String())
	}
	if !bytes.Contains(jsonOut.Bytes(), []byte("\"tool\": \"pc_dependency_analysis\"")) {
		t.Errorf("JSON output missing tool identifier: %s", jsonOut.String())
	}
	if e.Stats().ColdMisses != 1 {
		t.Errorf("ColdMisses = %d, want 1 (first touch of a fresh region)", e.Stats().ColdMisses)
	}
	if e.KernelsProcessed() != 1 {
		t.Errorf("KernelsProcessed = %d, want 1", e.KernelsProcessed())
	}
}

func TestGetInfoReportsAlgorithm(t *testing.T) {
	defer pcdep.Fini()
	info := pcdep.GetInfo()
	if info.Algorithm == "" {
		t.Errorf("GetInfo().Algorithm is empty")
	}
	if info.Version != pcdep.Version {
		t.Errorf("GetInfo().Version = %q, want %q", info.Version, pcdep.Version)
	}
}
