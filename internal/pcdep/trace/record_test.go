package trace

import (
	"encoding/binary"
	"testing"
)

func encodeRecord(buf []byte, r Record) {
	binary.LittleEndian.PutUint64(buf[0:], r.PC)
	binary.LittleEndian.PutUint64(buf[8:], r.BlockID)
	binary.LittleEndian.PutUint32(buf[16:], r.WarpID)
	binary.LittleEndian.PutUint32(buf[20:], r.ActiveMask)
	binary.LittleEndian.PutUint32(buf[24:], r.AccessSize)
	binary.LittleEndian.PutUint32(buf[28:], r.Flags)
	binary.LittleEndian.PutUint32(buf[32:], r.DistinctSectors)
	binary.LittleEndian.PutUint32(buf[36:], uint32(r.Type))
	for i, addr := range r.Addresses {
		binary.LittleEndian.PutUint64(buf[headerSize+i*8:], addr)
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	want := Record{
		PC: 0xAA, BlockID: 3, WarpID: 1, ActiveMask: 0x1,
		AccessSize: 4, Flags: FlagWrite | FlagGlobal, DistinctSectors: 1,
		Type: MemoryGlobal,
	}
	want.Addresses[0] = 0x1000

	buf := make([]byte, RecordSize)
	encodeRecord(buf, want)

	got, err := Decode(buf, 1, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1", len(got))
	}
	if got[0] != want {
		t.Errorf("got %+v, want %+v", got[0], want)
	}
}

func TestDecodeShortBuffer(t *testing.T) {
	buf := make([]byte, RecordSize-1)
	if _, err := Decode(buf, 1, nil); err == nil {
		t.Errorf("Decode with short buffer returned nil error")
	}
}

func TestDecodeUnknownMemoryTypeSkipped(t *testing.T) {
	buf := make([]byte, RecordSize*2)
	good := Record{PC: 1, Type: MemoryGlobal}
	bad := Record{PC: 2, Type: MemoryType(99)}
	encodeRecord(buf[0:], good)
	encodeRecord(buf[RecordSize:], bad)

	var flagged []uint32
	got, err := Decode(buf, 2, func(index int, tag uint32) {
		flagged = append(flagged, tag)
	})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 1 || got[0].PC != 1 {
		t.Fatalf("got %+v, want only the good record", got)
	}
	if len(flagged) != 1 || flagged[0] != 99 {
		t.Errorf("flagged = %v, want [99]", flagged)
	}
}

func TestActiveLaneCount(t *testing.T) {
	r := Record{ActiveMask: 0b1011}
	if got := r.ActiveLaneCount(); got != 3 {
		t.Errorf("ActiveLaneCount() = %d, want 3", got)
	}
	if !r.LaneActive(0) || r.LaneActive(2) || !r.LaneActive(3) {
		t.Errorf("LaneActive mismatch for mask %#b", r.ActiveMask)
	}
}
