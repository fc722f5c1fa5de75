// Package prollytree is a content-addressed, versioned key-value engine.
// Data lives in Prolly Trees, so equal content always has an equal root
// hash, lookups come with Merkle proofs, and snapshots diff in time
// proportional to their difference. On top sits git-like versioning:
// commits, branches, three-way merges, and isolated worktrees.
package prollytree

import (
	"fmt"

	"github.com/zhangfengcdt/prollytree/pkg/hash"
	"github.com/zhangfengcdt/prollytree/pkg/logging"
	"github.com/zhangfengcdt/prollytree/pkg/store"
	"github.com/zhangfengcdt/prollytree/pkg/tree"
	"github.com/zhangfengcdt/prollytree/pkg/versioning"
	"github.com/zhangfengcdt/prollytree/pkg/worktree"
)

// DB is the top-level handle. It owns the object store and the worktree
// manager; day-to-day reads and writes go through the main worktree.
type DB struct {
	config Config
	st     store.Store
	mgr    *worktree.Manager
}

// New opens or creates a database. With an empty Path the store is
// in-memory and vanishes on Close.
func New(cfg Config) (*DB, error) {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}

	backend := store.BackendMemory
	if cfg.Path != "" {
		backend = store.BackendBadger
	}
	st, err := store.New(store.Config{
		Backend:       backend,
		Path:          cfg.Path,
		MinimumFreeGB: cfg.MinimumFreeGB,
		Compression:   cfg.Compression,
		Logger:        cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("prollytree: opening store: %w", err)
	}

	mgr, err := worktree.NewManager(st, worktree.Options{
		Author:  cfg.Author,
		Logger:  cfg.Logger,
		Chunker: cfg.chunkerConfig(),
	})
	if err != nil {
		st.Close()
		return nil, err
	}
	return &DB{config: cfg, st: st, mgr: mgr}, nil
}

// Close flushes and releases the underlying store.
func (db *DB) Close() error {
	return db.st.Close()
}

// Worktrees returns the worktree manager.
func (db *DB) Worktrees() *worktree.Manager {
	return db.mgr
}

// Main returns the versioned store of the main worktree.
func (db *DB) Main() *versioning.VersionedStore {
	return db.mgr.Main().Store()
}

// Convenience passthroughs to the main worktree.

// Get reads key from the main working tree.
func (db *DB) Get(key []byte) ([]byte, error) {
	return db.Main().Get(key)
}

// Set stages an upsert on the main working tree.
func (db *DB) Set(key, value []byte) error {
	return db.Main().Insert(key, value)
}

// Delete stages a removal on the main working tree.
func (db *DB) Delete(key []byte) error {
	return db.Main().Delete(key)
}

// Commit seals staged changes on the main worktree's branch.
func (db *DB) Commit(message string) (*versioning.Commit, error) {
	return db.Main().Commit(message)
}

// Prove builds a Merkle inclusion proof for key against the main working
// tree, returning the proof and the root it verifies against.
func (db *DB) Prove(key []byte) (*tree.Proof, hash.Hash, error) {
	return db.Main().Prove(key)
}
