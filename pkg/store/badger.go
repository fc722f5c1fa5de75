package store

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"github.com/dgraph-io/badger/v4"
	"github.com/ulikunitz/xz"

	"github.com/zhangfengcdt/prollytree/pkg/hash"
)

// Key prefixes separating the object and ref namespaces inside one badger
// database.
var (
	objPrefix = []byte("obj!")
	refPrefix = []byte("ref!")
)

// Object payload framing.
const (
	frameRaw = 0x00
	frameXZ  = 0x01

	// compressMin is the smallest payload worth running through xz.
	compressMin = 4096
)

// BadgerStore is the disk-backed store. Node payloads above compressMin
// are xz-compressed when compression is enabled in the config.
type BadgerStore struct {
	db       *badger.DB
	log      *slog.Logger
	compress bool
}

// NewBadgerStore opens (or creates) a badger database at cfg.Path after
// checking the free-space requirement.
func NewBadgerStore(cfg Config) (*BadgerStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store: badger backend requires a path")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if err := checkFreeSpace(cfg.Path, cfg.MinimumFreeGB, logger); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(cfg.Path)
	opts.Logger = nil
	opts.ValueLogFileSize = 1024 * 1024 * 100
	opts.SyncWrites = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: opening badger at %s: %w", cfg.Path, err)
	}

	logger.Info("opened badger store", "path", cfg.Path, "compression", cfg.Compression)
	return &BadgerStore{db: db, log: logger, compress: cfg.Compression}, nil
}

func objKey(h hash.Hash) []byte {
	return append(append([]byte{}, objPrefix...), h[:]...)
}

func refKey(name string) []byte {
	return append(append([]byte{}, refPrefix...), name...)
}

func (b *BadgerStore) Get(h hash.Hash) ([]byte, error) {
	var framed []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(objKey(h))
		if err != nil {
			return err
		}
		framed, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: reading object %s: %w", h.Short(), err)
	}
	return unframe(framed)
}

func (b *BadgerStore) Put(h hash.Hash, data []byte) error {
	framed, err := b.frame(data)
	if err != nil {
		return err
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(objKey(h), framed)
	})
	if err != nil {
		return fmt.Errorf("store: writing object %s: %w", h.Short(), err)
	}
	return nil
}

func (b *BadgerStore) Has(h hash.Hash) (bool, error) {
	var found bool
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(objKey(h))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("store: checking object %s: %w", h.Short(), err)
	}
	return found, nil
}

func (b *BadgerStore) GetRef(name string) ([]byte, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(refKey(name))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: reading ref %q: %w", name, err)
	}
	return value, nil
}

func (b *BadgerStore) SetRef(name string, value []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(refKey(name), value)
	})
	if err != nil {
		return fmt.Errorf("store: writing ref %q: %w", name, err)
	}
	return nil
}

func (b *BadgerStore) DeleteRef(name string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(refKey(name))
	})
	if err != nil {
		return fmt.Errorf("store: deleting ref %q: %w", name, err)
	}
	return nil
}

func (b *BadgerStore) ListRefs(prefix string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	seek := refKey(prefix)
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seek); it.ValidForPrefix(seek); it.Next() {
			item := it.Item()
			name := string(item.Key()[len(refPrefix):])
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out[name] = value
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: listing refs %q: %w", prefix, err)
	}
	return out, nil
}

// Close syncs, runs value-log GC and closes the database.
func (b *BadgerStore) Close() error {
	if err := b.db.Sync(); err != nil {
		b.log.Warn("badger sync on close failed", "error", err)
	}
	if err := b.db.Flatten(runtime.NumCPU()); err != nil {
		b.log.Warn("badger flatten on close failed", "error", err)
	}
	if err := b.db.RunValueLogGC(0.1); err != nil && err != badger.ErrNoRewrite {
		b.log.Warn("badger value log GC failed", "error", err)
	}
	return b.db.Close()
}

func (b *BadgerStore) frame(data []byte) ([]byte, error) {
	if !b.compress || len(data) < compressMin {
		return append([]byte{frameRaw}, data...), nil
	}
	var buf bytes.Buffer
	buf.WriteByte(frameXZ)
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("store: xz writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("store: xz compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("store: xz close: %w", err)
	}
	if buf.Len() >= len(data)+1 {
		// Compression did not pay off.
		return append([]byte{frameRaw}, data...), nil
	}
	return buf.Bytes(), nil
}

func unframe(framed []byte) ([]byte, error) {
	if len(framed) == 0 {
		return nil, fmt.Errorf("store: empty object frame")
	}
	switch framed[0] {
	case frameRaw:
		return framed[1:], nil
	case frameXZ:
		r, err := xz.NewReader(bytes.NewReader(framed[1:]))
		if err != nil {
			return nil, fmt.Errorf("store: xz reader: %w", err)
		}
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("store: xz decompress: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("store: unknown object frame 0x%02x", framed[0])
	}
}
