package tree

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/zhangfengcdt/prollytree/internal/chunker"
	"github.com/zhangfengcdt/prollytree/internal/testutil"
	"github.com/zhangfengcdt/prollytree/pkg/node"
	"github.com/zhangfengcdt/prollytree/pkg/store"
)

func newTestTree(t *testing.T) *Tree {
	t.Helper()
	tr, err := New(store.NewMemoryStore(), chunker.DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tr
}

func testKV(i int) ([]byte, []byte) {
	return []byte(fmt.Sprintf("key-%05d", i)), []byte(fmt.Sprintf("value-%05d", i))
}

func insertRange(t *testing.T, tr *Tree, order []int) {
	t.Helper()
	for _, i := range order {
		k, v := testKV(i)
		if err := tr.Insert(k, v); err != nil {
			t.Fatalf("Insert %s: %v", k, err)
		}
	}
}

func shuffled(n int, seed int64) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	rand.New(rand.NewSource(seed)).Shuffle(n, func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	return order
}

func TestInsertGet(t *testing.T) {
	tr := newTestTree(t)
	insertRange(t, tr, shuffled(500, 1))

	for i := 0; i < 500; i++ {
		k, want := testKV(i)
		got, err := tr.Get(k)
		if err != nil {
			t.Fatalf("Get %s: %v", k, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get %s = %q, want %q", k, got, want)
		}
	}
	if _, err := tr.Get([]byte("missing")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("Get missing = %v, want ErrKeyNotFound", err)
	}
	size, err := tr.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != 500 {
		t.Fatalf("Size = %d, want 500", size)
	}
}

func TestInsertUpsert(t *testing.T) {
	tr := newTestTree(t)
	k := []byte("k")
	if err := tr.Insert(k, []byte("one")); err != nil {
		t.Fatal(err)
	}
	h1 := tr.RootHash()
	if err := tr.Insert(k, []byte("one")); err != nil {
		t.Fatal(err)
	}
	if tr.RootHash() != h1 {
		t.Fatal("inserting an identical pair changed the root hash")
	}
	if err := tr.Insert(k, []byte("two")); err != nil {
		t.Fatal(err)
	}
	got, err := tr.Get(k)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "two" {
		t.Fatalf("Get = %q, want %q", got, "two")
	}
}

func TestUpdateDeleteMissing(t *testing.T) {
	tr := newTestTree(t)
	if err := tr.Update([]byte("nope"), []byte("v")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("Update missing = %v, want ErrKeyNotFound", err)
	}
	if err := tr.Delete([]byte("nope")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("Delete missing = %v, want ErrKeyNotFound", err)
	}
	if err := tr.Insert(nil, []byte("v")); err == nil {
		t.Fatal("Insert with empty key succeeded")
	}
}

func TestDeleteToEmpty(t *testing.T) {
	tr := newTestTree(t)
	empty := tr.RootHash()
	insertRange(t, tr, shuffled(200, 2))
	for _, i := range shuffled(200, 3) {
		k, _ := testKV(i)
		if err := tr.Delete(k); err != nil {
			t.Fatalf("Delete %s: %v", k, err)
		}
	}
	if tr.RootHash() != empty {
		t.Fatal("deleting every key did not restore the empty root hash")
	}
	if tr.Depth() != 1 {
		t.Fatalf("Depth = %d, want 1", tr.Depth())
	}
}

func TestOrderIndependence(t *testing.T) {
	const n = 1000
	roots := make(map[string]bool)
	for seed := int64(0); seed < 4; seed++ {
		tr := newTestTree(t)
		insertRange(t, tr, shuffled(n, seed))
		roots[tr.RootHash().Hex()] = true
	}

	// Bulk build over the same content must land on the same root.
	entries := make([]node.Entry, n)
	for i := range entries {
		k, v := testKV(i)
		entries[i] = node.Entry{Key: k, Value: v}
	}
	bulk, err := NewFromSorted(store.NewMemoryStore(), chunker.DefaultConfig(), entries)
	if err != nil {
		t.Fatalf("NewFromSorted: %v", err)
	}
	roots[bulk.RootHash().Hex()] = true

	if len(roots) != 1 {
		t.Fatalf("same content produced %d distinct root hashes", len(roots))
	}
}

func TestHistoryIndependence(t *testing.T) {
	// Detours through extra keys and overwrites must not leave a trace in
	// the root hash.
	a := newTestTree(t)
	insertRange(t, a, shuffled(300, 7))

	b := newTestTree(t)
	insertRange(t, b, shuffled(300, 8))
	for i := 300; i < 400; i++ {
		k, v := testKV(i)
		if err := b.Insert(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for i := 300; i < 400; i++ {
		k, _ := testKV(i)
		if err := b.Delete(k); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 50; i++ {
		k, _ := testKV(i)
		if err := b.Insert(k, []byte("scratch")); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 50; i++ {
		k, v := testKV(i)
		if err := b.Insert(k, v); err != nil {
			t.Fatal(err)
		}
	}

	if a.RootHash() != b.RootHash() {
		t.Fatal("equal content reached through different histories hashed differently")
	}
}

func TestLoadSnapshot(t *testing.T) {
	st := store.NewMemoryStore()
	tr, err := New(st, chunker.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	for _, i := range shuffled(300, 11) {
		k, v := testKV(i)
		if err := tr.Insert(k, v); err != nil {
			t.Fatal(err)
		}
	}
	h := tr.RootHash()

	// Mutating the handle further must not disturb the loaded snapshot.
	if err := tr.Insert([]byte("zzz"), []byte("later")); err != nil {
		t.Fatal(err)
	}

	snap, err := Load(st, h, chunker.DefaultConfig())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.RootHash() != h {
		t.Fatal("loaded snapshot has a different root hash")
	}
	if ok, err := snap.Has([]byte("zzz")); err != nil || ok {
		t.Fatalf("Has(zzz) = %v, %v on old snapshot", ok, err)
	}
	k, want := testKV(42)
	got, err := snap.Get(k)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("Get %s = %q, want %q", k, got, want)
	}
}

func TestEntriesSorted(t *testing.T) {
	tr := newTestTree(t)
	insertRange(t, tr, shuffled(400, 13))
	entries, err := tr.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 400 {
		t.Fatalf("Entries returned %d, want 400", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if bytes.Compare(entries[i-1].Key, entries[i].Key) >= 0 {
			t.Fatalf("entries out of order at %d", i)
		}
	}
}

func TestStats(t *testing.T) {
	tr := newTestTree(t)
	insertRange(t, tr, shuffled(800, 17))
	s, err := tr.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if s.NumEntries != 800 {
		t.Fatalf("NumEntries = %d, want 800", s.NumEntries)
	}
	if s.Depth < 2 {
		t.Fatalf("Depth = %d, want a multi-level tree", s.Depth)
	}
	if s.NumLeaves < 2 {
		t.Fatalf("NumLeaves = %d, want several leaves", s.NumLeaves)
	}
	if _, err := tr.Format(); err != nil {
		t.Fatalf("Format: %v", err)
	}
}

func TestOrderIndependenceLarge(t *testing.T) {
	testutil.RequireLong(t)
	const n = 50000
	a := newTestTree(t)
	insertRange(t, a, shuffled(n, 100))
	b := newTestTree(t)
	insertRange(t, b, shuffled(n, 101))
	if a.RootHash() != b.RootHash() {
		t.Fatal("large trees with equal content hashed differently")
	}
	size, err := a.Size()
	if err != nil {
		t.Fatal(err)
	}
	if size != n {
		t.Fatalf("Size = %d, want %d", size, n)
	}
}
