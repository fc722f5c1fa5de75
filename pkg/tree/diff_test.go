package tree

import (
	"bytes"
	"testing"
)

func TestDiffEqualTrees(t *testing.T) {
	a := newTestTree(t)
	insertRange(t, a, shuffled(300, 31))
	b := newTestTree(t)
	insertRange(t, b, shuffled(300, 32))

	d, err := Diff(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if len(d) != 0 {
		t.Fatalf("diff of equal trees has %d entries", len(d))
	}
}

func TestDiffChanges(t *testing.T) {
	a := newTestTree(t)
	insertRange(t, a, shuffled(500, 33))

	b := newTestTree(t)
	insertRange(t, b, shuffled(500, 34))
	if err := b.Delete([]byte("key-00007")); err != nil {
		t.Fatal(err)
	}
	if err := b.Insert([]byte("key-00100"), []byte("changed")); err != nil {
		t.Fatal(err)
	}
	if err := b.Insert([]byte("zzz-new"), []byte("fresh")); err != nil {
		t.Fatal(err)
	}

	d, err := Diff(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if len(d) != 3 {
		t.Fatalf("diff has %d entries, want 3: %+v", len(d), d)
	}

	if string(d[0].Key) != "key-00007" || d[0].Op != DiffRemoved {
		t.Fatalf("d[0] = %+v, want removal of key-00007", d[0])
	}
	if d[0].OldValue == nil || d[0].NewValue != nil {
		t.Fatalf("removal carries wrong values: %+v", d[0])
	}

	if string(d[1].Key) != "key-00100" || d[1].Op != DiffModified {
		t.Fatalf("d[1] = %+v, want modification of key-00100", d[1])
	}
	if string(d[1].OldValue) != "value-00100" || string(d[1].NewValue) != "changed" {
		t.Fatalf("modification carries wrong values: %+v", d[1])
	}

	if string(d[2].Key) != "zzz-new" || d[2].Op != DiffAdded {
		t.Fatalf("d[2] = %+v, want addition of zzz-new", d[2])
	}
	if d[2].OldValue != nil || string(d[2].NewValue) != "fresh" {
		t.Fatalf("addition carries wrong values: %+v", d[2])
	}
}

func TestDiffSymmetry(t *testing.T) {
	a := newTestTree(t)
	insertRange(t, a, shuffled(400, 35))
	b := newTestTree(t)
	for _, i := range shuffled(400, 36) {
		if i%7 == 0 {
			continue // dropped keys
		}
		k, v := testKV(i)
		if i%11 == 0 {
			v = []byte("rewritten")
		}
		if err := b.Insert(k, v); err != nil {
			t.Fatal(err)
		}
	}

	fwd, err := Diff(a, b)
	if err != nil {
		t.Fatal(err)
	}
	rev, err := Diff(b, a)
	if err != nil {
		t.Fatal(err)
	}
	if len(fwd) != len(rev) {
		t.Fatalf("forward diff has %d entries, reverse has %d", len(fwd), len(rev))
	}
	for i, f := range fwd {
		r := rev[i]
		if !bytes.Equal(f.Key, r.Key) {
			t.Fatalf("key mismatch at %d: %q vs %q", i, f.Key, r.Key)
		}
		switch f.Op {
		case DiffAdded:
			if r.Op != DiffRemoved || !bytes.Equal(f.NewValue, r.OldValue) {
				t.Fatalf("reverse of addition at %q is %+v", f.Key, r)
			}
		case DiffRemoved:
			if r.Op != DiffAdded || !bytes.Equal(f.OldValue, r.NewValue) {
				t.Fatalf("reverse of removal at %q is %+v", f.Key, r)
			}
		case DiffModified:
			if r.Op != DiffModified || !bytes.Equal(f.OldValue, r.NewValue) || !bytes.Equal(f.NewValue, r.OldValue) {
				t.Fatalf("reverse of modification at %q is %+v", f.Key, r)
			}
		}
	}
}

func TestDiffAgainstEmpty(t *testing.T) {
	empty := newTestTree(t)
	full := newTestTree(t)
	insertRange(t, full, shuffled(150, 37))

	d, err := Diff(empty, full)
	if err != nil {
		t.Fatal(err)
	}
	if len(d) != 150 {
		t.Fatalf("diff from empty has %d entries, want 150", len(d))
	}
	for _, e := range d {
		if e.Op != DiffAdded {
			t.Fatalf("diff from empty contains %v", e.Op)
		}
	}

	d, err = Diff(full, empty)
	if err != nil {
		t.Fatal(err)
	}
	if len(d) != 150 {
		t.Fatalf("diff to empty has %d entries, want 150", len(d))
	}
	for _, e := range d {
		if e.Op != DiffRemoved {
			t.Fatalf("diff to empty contains %v", e.Op)
		}
	}
}
