package chunker

import (
	"fmt"
	"testing"
)

func boundaries(cfg Config, items [][]byte) []int {
	s := NewSplitter(cfg)
	var out []int
	for i, it := range items {
		if s.Append(it) {
			out = append(out, i)
		}
	}
	return out
}

func testItems(n int) [][]byte {
	items := make([][]byte, n)
	for i := range items {
		items[i] = []byte(fmt.Sprintf("key-%06d/value-%06d", i, i*7))
	}
	return items
}

func TestDefaultConfigValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	bad := []Config{
		{Base: 0, Modulus: 7, Pattern: 1, MinChunkSize: 1, MaxChunkSize: 4},
		{Base: 2, Modulus: 1, Pattern: 1, MinChunkSize: 1, MaxChunkSize: 4},
		{Base: 2, Modulus: 7, Pattern: 1, MinChunkSize: 0, MaxChunkSize: 4},
		{Base: 2, Modulus: 7, Pattern: 1, MinChunkSize: 5, MaxChunkSize: 4},
	}
	for i, cfg := range bad {
		if err := cfg.Validate(); err == nil {
			t.Errorf("config %d should fail validation", i)
		}
	}
}

func TestBoundariesDeterministic(t *testing.T) {
	items := testItems(5000)
	cfg := DefaultConfig()

	a := boundaries(cfg, items)
	b := boundaries(cfg, items)
	if len(a) != len(b) {
		t.Fatalf("boundary counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("boundary %d differs: %d vs %d", i, a[i], b[i])
		}
	}
	if len(a) == 0 {
		t.Fatal("expected at least one boundary over 5000 items")
	}
}

func TestChunkSizeBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinChunkSize = 3
	cfg.MaxChunkSize = 10

	items := testItems(2000)
	prev := -1
	for _, b := range boundaries(cfg, items) {
		size := b - prev
		if size < cfg.MinChunkSize {
			t.Fatalf("chunk of %d items below minimum %d", size, cfg.MinChunkSize)
		}
		if size > cfg.MaxChunkSize {
			t.Fatalf("chunk of %d items above maximum %d", size, cfg.MaxChunkSize)
		}
		prev = b
	}
}

// A boundary decision may depend only on items since the previous boundary,
// so the boundary layout of a suffix that starts at a boundary must be
// independent of everything before it.
func TestBoundaryLocality(t *testing.T) {
	cfg := DefaultConfig()
	items := testItems(3000)

	bs := boundaries(cfg, items)
	if len(bs) < 2 {
		t.Skip("not enough boundaries to test locality")
	}
	cut := bs[len(bs)/2] + 1

	suffix := boundaries(cfg, items[cut:])
	var want []int
	for _, b := range bs {
		if b >= cut {
			want = append(want, b-cut)
		}
	}
	if len(suffix) != len(want) {
		t.Fatalf("suffix boundary count %d, want %d", len(suffix), len(want))
	}
	for i := range want {
		if suffix[i] != want[i] {
			t.Fatalf("suffix boundary %d at %d, want %d", i, suffix[i], want[i])
		}
	}
}

func TestMaxChunkForcesBoundary(t *testing.T) {
	cfg := Config{Base: 257, Modulus: 1_000_000_007, Pattern: ^uint64(0),
		MinChunkSize: 1, MaxChunkSize: 4}
	// Pattern that never matches: every boundary must come from the max
	// clamp.
	bs := boundaries(cfg, testItems(40))
	if len(bs) != 10 {
		t.Fatalf("expected 10 forced boundaries, got %d", len(bs))
	}
	for i, b := range bs {
		if b != i*4+3 {
			t.Fatalf("boundary %d at %d, want %d", i, b, i*4+3)
		}
	}
}
