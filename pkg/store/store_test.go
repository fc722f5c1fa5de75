package store

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/zhangfengcdt/prollytree/pkg/hash"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	badgerStore, err := New(Config{Backend: BackendBadger, Path: t.TempDir()})
	if err != nil {
		t.Fatalf("opening badger store: %v", err)
	}
	t.Cleanup(func() { _ = badgerStore.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"badger": badgerStore,
	}
}

func TestObjectRoundTrip(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			data := []byte("some node payload")
			h := hash.Sum(data)

			if _, err := st.Get(h); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get before Put: want ErrNotFound, got %v", err)
			}
			ok, err := st.Has(h)
			if err != nil || ok {
				t.Fatalf("Has before Put: got (%v, %v)", ok, err)
			}

			if err := st.Put(h, data); err != nil {
				t.Fatalf("Put: %v", err)
			}
			got, err := st.Get(h)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if !bytes.Equal(got, data) {
				t.Fatalf("Get returned %q, want %q", got, data)
			}
			ok, err = st.Has(h)
			if err != nil || !ok {
				t.Fatalf("Has after Put: got (%v, %v)", ok, err)
			}

			// Re-putting identical content is a no-op.
			if err := st.Put(h, data); err != nil {
				t.Fatalf("second Put: %v", err)
			}
		})
	}
}

func TestRefs(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := st.GetRef("branch/main"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("GetRef missing: want ErrNotFound, got %v", err)
			}

			if err := st.SetRef("branch/main", []byte("aaaa")); err != nil {
				t.Fatalf("SetRef: %v", err)
			}
			if err := st.SetRef("branch/feature", []byte("bbbb")); err != nil {
				t.Fatalf("SetRef: %v", err)
			}
			if err := st.SetRef("worktree/w1", []byte("cccc")); err != nil {
				t.Fatalf("SetRef: %v", err)
			}

			// Refs are mutable, last write wins.
			if err := st.SetRef("branch/main", []byte("dddd")); err != nil {
				t.Fatalf("SetRef overwrite: %v", err)
			}
			v, err := st.GetRef("branch/main")
			if err != nil || !bytes.Equal(v, []byte("dddd")) {
				t.Fatalf("GetRef after overwrite: got (%q, %v)", v, err)
			}

			branches, err := st.ListRefs("branch/")
			if err != nil {
				t.Fatalf("ListRefs: %v", err)
			}
			if len(branches) != 2 {
				t.Fatalf("ListRefs(branch/) returned %d refs, want 2", len(branches))
			}
			if !bytes.Equal(branches["branch/feature"], []byte("bbbb")) {
				t.Fatalf("unexpected branch list: %v", branches)
			}

			if err := st.DeleteRef("branch/feature"); err != nil {
				t.Fatalf("DeleteRef: %v", err)
			}
			if _, err := st.GetRef("branch/feature"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("GetRef after delete: want ErrNotFound, got %v", err)
			}
		})
	}
}

func TestBadgerPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	data := []byte("durable payload")
	h := hash.Sum(data)

	st, err := NewBadgerStore(Config{Backend: BackendBadger, Path: dir})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := st.Put(h, data); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := st.SetRef("branch/main", h[:]); err != nil {
		t.Fatalf("SetRef: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st, err = NewBadgerStore(Config{Backend: BackendBadger, Path: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()

	got, err := st.Get(h)
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("Get after reopen: got (%q, %v)", got, err)
	}
	ref, err := st.GetRef("branch/main")
	if err != nil || !bytes.Equal(ref, h[:]) {
		t.Fatalf("GetRef after reopen: got (%x, %v)", ref, err)
	}
}

func TestCompressionRoundTrip(t *testing.T) {
	st, err := NewBadgerStore(Config{
		Backend: BackendBadger, Path: t.TempDir(), Compression: true,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()

	// Highly compressible payload well above the compression threshold.
	data := bytes.Repeat([]byte("prolly tree node payload "), 4096)
	h := hash.Sum(data)
	if err := st.Put(h, data); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := st.Get(h)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("compressed payload did not round trip")
	}
}

func TestUnknownBackendRejected(t *testing.T) {
	if _, err := New(Config{Backend: Backend(42)}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
	if s := fmt.Sprintf("%s %s", BackendMemory, BackendBadger); s != "memory badger" {
		t.Fatalf("unexpected backend names: %s", s)
	}
}
