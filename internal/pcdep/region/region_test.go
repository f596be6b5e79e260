package region

import (
	"errors"
	"testing"
)

func verifyFound(t *testing.T, idx *Index, addr uint64, want Region) {
	t.Helper()
	got, ok := idx.Find(addr)
	if !ok {
		t.Fatalf("Find(%#x) = not found, want %s", addr, want)
	}
	if got != want {
		t.Fatalf("Find(%#x) = %s, want %s", addr, got, want)
	}
}

func verifyNotFound(t *testing.T, idx *Index, addr uint64) {
	t.Helper()
	if got, ok := idx.Find(addr); ok {
		t.Fatalf("Find(%#x) = %s, want not found", addr, got)
	}
}

func TestInsertAndFind(t *testing.T) {
	idx := New()
	if _, err := idx.Insert(0x1000, 0x1000); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := idx.Insert(0x3000, 0x1000); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	verifyFound(t, idx, 0x1000, Region{0x1000, 0x2000})
	verifyFound(t, idx, 0x1fff, Region{0x1000, 0x2000})
	verifyNotFound(t, idx, 0x2000) // P5: never a region where addr == end
	verifyNotFound(t, idx, 0x2500)
	verifyFound(t, idx, 0x3000, Region{0x3000, 0x4000})
}

func TestInsertRejectsOverlap(t *testing.T) {
	idx := New()
	if _, err := idx.Insert(0x1000, 0x1000); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	tests := []struct {
		name  string
		start uint64
		size  uint64
	}{
		{"identical", 0x1000, 0x1000},
		{"overlaps start", 0x1500, 0x1000},
		{"overlaps end", 0x800, 0x900},
		{"contains existing", 0x800, 0x2000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := idx.Insert(tt.start, tt.size); !errors.Is(err, ErrOverlap) {
				t.Errorf("Insert(%#x, %#x) error = %v, want ErrOverlap", tt.start, tt.size, err)
			}
		})
	}
	if idx.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (rejected inserts must not mutate the index)", idx.Len())
	}
}

func TestRemove(t *testing.T) {
	idx := New()
	idx.Insert(0x1000, 0x1000)
	idx.Insert(0x3000, 0x1000)

	if _, err := idx.Remove(0x1000); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	verifyNotFound(t, idx, 0x1500)
	verifyFound(t, idx, 0x3500, Region{0x3000, 0x4000})

	if _, err := idx.Remove(0x9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("Remove(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestFindEmpty(t *testing.T) {
	idx := New()
	verifyNotFound(t, idx, 0)
	verifyNotFound(t, idx, 0xFFFFFFFF)
}

func TestAdjacentRegionsDoNotOverlap(t *testing.T) {
	idx := New()
	if _, err := idx.Insert(0x1000, 0x1000); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := idx.Insert(0x2000, 0x1000); err != nil {
		t.Fatalf("adjacent (closed-open, touching at boundary) Insert: %v", err)
	}
	verifyFound(t, idx, 0x1fff, Region{0x1000, 0x2000})
	verifyFound(t, idx, 0x2000, Region{0x2000, 0x3000})
}
