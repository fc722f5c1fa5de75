package prollytree

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/zhangfengcdt/prollytree/pkg/tree"
	"github.com/zhangfengcdt/prollytree/pkg/versioning"
)

func TestInMemoryLifecycle(t *testing.T) {
	db, err := New(Config{Author: "tester"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer db.Close()

	if err := db.Set([]byte("greeting"), []byte("hello")); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Commit("add greeting"); err != nil {
		t.Fatal(err)
	}
	got, err := db.Get([]byte("greeting"))
	if err != nil || string(got) != "hello" {
		t.Fatalf("Get = %q, %v", got, err)
	}

	proof, root, err := db.Prove([]byte("greeting"))
	if err != nil {
		t.Fatal(err)
	}
	if !proof.Verify(root, []byte("greeting"), []byte("hello")) {
		t.Fatal("proof did not verify")
	}

	if err := db.Delete([]byte("greeting")); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Get([]byte("greeting")); !errors.Is(err, tree.ErrKeyNotFound) {
		t.Fatalf("Get after delete = %v, want ErrKeyNotFound", err)
	}
}

func TestPersistentReopen(t *testing.T) {
	dir := t.TempDir()
	db, err := New(Config{Path: dir, Author: "tester"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := db.Set([]byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	c, err := db.Commit("persisted")
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err = New(Config{Path: dir, Author: "tester"})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	got, err := db.Get([]byte("k"))
	if err != nil || string(got) != "v" {
		t.Fatalf("Get after reopen = %q, %v", got, err)
	}
	cur, err := db.Main().CurrentCommit()
	if err != nil {
		t.Fatal(err)
	}
	if cur.ID != c.ID {
		t.Fatal("head moved across reopen")
	}
}

func TestWorktreeFlow(t *testing.T) {
	db, err := New(Config{Author: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if err := db.Set([]byte("k"), []byte("base")); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Commit("base"); err != nil {
		t.Fatal(err)
	}

	w, err := db.Worktrees().Add("", "feature", true)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Store().Insert([]byte("k"), []byte("feature")); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Store().Commit("feature change"); err != nil {
		t.Fatal(err)
	}

	if got, _ := db.Get([]byte("k")); string(got) != "base" {
		t.Fatalf("main sees %q before merge", got)
	}
	if _, err := db.Worktrees().MergeToMain(w.ID(), "", versioning.TakeSource); err != nil {
		t.Fatal(err)
	}
	if got, _ := db.Get([]byte("k")); string(got) != "feature" {
		t.Fatalf("main sees %q after merge", got)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("path: /tmp/data\nminimum_free_gb: 2\ncompression: true\nauthor: alice\nchunker:\n  pattern: 7\n  max_chunk_size: 4096\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Path != "/tmp/data" || cfg.MinimumFreeGB != 2 || !cfg.Compression || cfg.Author != "alice" {
		t.Fatalf("cfg = %+v", cfg)
	}
	cc := cfg.chunkerConfig()
	if cc.Pattern != 7 || cc.MaxChunkSize != 4096 {
		t.Fatalf("chunker cfg = %+v", cc)
	}
	if cc.Base == 0 || cc.MinChunkSize == 0 {
		t.Fatal("defaults not applied to unset fields")
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing config loaded")
	}
	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("nonsense_field: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(bad); err == nil {
		t.Fatal("unknown field accepted")
	}
}
