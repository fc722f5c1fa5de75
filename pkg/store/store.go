// Package store provides the content-addressed object store shared by
// every tree snapshot and commit, plus a small mutable ref namespace for
// branch pointers and worktree records.
//
// Objects are immutable and keyed by their hash, so concurrent readers
// never need locks beyond what the backend requires. Refs are the only
// mutable state; each ref write is atomic (last-committer-wins per ref).
package store

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/zhangfengcdt/prollytree/pkg/hash"
)

// ErrNotFound reports a missing object or ref. It is an expected outcome,
// not a fault.
var ErrNotFound = errors.New("store: not found")

// Store is the capability interface over a storage backend. Get/Put/Has
// operate on immutable content-addressed payloads; the Ref methods manage
// the named mutable pointers.
type Store interface {
	Get(h hash.Hash) ([]byte, error)
	Put(h hash.Hash, data []byte) error
	Has(h hash.Hash) (bool, error)

	GetRef(name string) ([]byte, error)
	SetRef(name string, value []byte) error
	DeleteRef(name string) error
	ListRefs(prefix string) (map[string][]byte, error)

	Close() error
}

// Backend selects the storage implementation.
type Backend int

const (
	// BackendMemory keeps everything in process memory.
	BackendMemory Backend = iota
	// BackendBadger persists to a badger database on disk.
	BackendBadger
)

func (b Backend) String() string {
	switch b {
	case BackendMemory:
		return "memory"
	case BackendBadger:
		return "badger"
	default:
		return fmt.Sprintf("backend(%d)", int(b))
	}
}

// Config selects and parameterizes a backend at construction time.
type Config struct {
	Backend Backend
	// Path is the data directory for disk-backed stores.
	Path string
	// MinimumFreeGB aborts startup when the data directory's filesystem
	// has less free space than this. Zero disables the check.
	MinimumFreeGB uint
	// Compression enables xz compression of large object payloads.
	Compression bool
	// Logger is optional; a discarding logger is used if nil.
	Logger *slog.Logger
}

// New constructs the configured store.
func New(cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendBadger:
		return NewBadgerStore(cfg)
	default:
		return nil, fmt.Errorf("store: unknown backend %d", int(cfg.Backend))
	}
}
