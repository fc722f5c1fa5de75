// Package tree implements the Prolly Tree: an ordered key-value map stored
// as a Merkle tree whose node boundaries are content-defined. Identical
// key/value content always produces an identical root hash, no matter in
// which order it was built, and every mutation rewrites only the node path
// from the affected chunk to the root.
package tree

import (
	"errors"
	"fmt"

	"github.com/zhangfengcdt/prollytree/internal/chunker"
	"github.com/zhangfengcdt/prollytree/pkg/hash"
	"github.com/zhangfengcdt/prollytree/pkg/node"
	"github.com/zhangfengcdt/prollytree/pkg/store"
)

// ErrKeyNotFound reports an operation on an absent key. It is an expected
// outcome, not a fault.
var ErrKeyNotFound = errors.New("tree: key not found")

// Tree is a handle on one immutable snapshot plus the mutation machinery
// that derives new snapshots from it. It is not safe for concurrent use;
// each worktree owns its own Tree.
type Tree struct {
	st       store.Store
	cfg      chunker.Config
	root     *node.Node
	rootHash hash.Hash
}

// New creates an empty tree backed by st.
func New(st store.Store, cfg chunker.Config) (*Tree, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &Tree{st: st, cfg: cfg}
	if err := t.setRoot(node.NewLeaf(nil)); err != nil {
		return nil, err
	}
	return t, nil
}

// Load opens the snapshot rooted at rootHash.
func Load(st store.Store, rootHash hash.Hash, cfg chunker.Config) (*Tree, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &Tree{st: st, cfg: cfg}
	root, err := t.getNode(rootHash)
	if err != nil {
		return nil, fmt.Errorf("tree: loading root %s: %w", rootHash.Short(), err)
	}
	t.root = root
	t.rootHash = rootHash
	return t, nil
}

// RootHash returns the Merkle commitment to the tree's entire content.
func (t *Tree) RootHash() hash.Hash {
	return t.rootHash
}

// Getter methods fetch through the store so shared subtrees are read once
// from wherever they live.

func (t *Tree) getNode(h hash.Hash) (*node.Node, error) {
	data, err := t.st.Get(h)
	if err != nil {
		return nil, fmt.Errorf("tree: fetching node %s: %w", h.Short(), err)
	}
	return node.DecodeVerified(data, h)
}

func (t *Tree) putNode(n *node.Node) (hash.Hash, error) {
	h := n.Hash()
	if err := t.st.Put(h, n.Encode()); err != nil {
		return hash.Zero, fmt.Errorf("tree: storing node %s: %w", h.Short(), err)
	}
	return h, nil
}

func (t *Tree) setRoot(root *node.Node) error {
	h, err := t.putNode(root)
	if err != nil {
		return err
	}
	t.root = root
	t.rootHash = h
	return nil
}

// Get returns the value stored under key, or ErrKeyNotFound.
func (t *Tree) Get(key []byte) ([]byte, error) {
	n := t.root
	for !n.IsLeaf() {
		idx, _ := n.Search(key)
		child, err := t.getNode(n.Children[idx].Hash)
		if err != nil {
			return nil, err
		}
		n = child
	}
	idx, found := n.Search(key)
	if !found {
		return nil, ErrKeyNotFound
	}
	return n.Entries[idx].Value, nil
}

// Has reports whether key is present.
func (t *Tree) Has(key []byte) (bool, error) {
	_, err := t.Get(key)
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Insert sets key to value, replacing any existing value.
func (t *Tree) Insert(key, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("tree: empty key")
	}
	return t.mutate(key, value, opInsert)
}

// Update replaces the value of an existing key. It fails with
// ErrKeyNotFound when the key is absent.
func (t *Tree) Update(key, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("tree: empty key")
	}
	return t.mutate(key, value, opUpdate)
}

// Delete removes key. It fails with ErrKeyNotFound when the key is absent.
func (t *Tree) Delete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("tree: empty key")
	}
	return t.mutate(key, nil, opDelete)
}

// Size returns the number of entries.
func (t *Tree) Size() (int, error) {
	count := 0
	err := t.walkEntries(func(node.Entry) error {
		count++
		return nil
	})
	return count, err
}

// Depth returns the number of node levels; the empty tree has depth 1.
func (t *Tree) Depth() int {
	return int(t.root.Level) + 1
}

// walkEntries visits every entry in key order.
func (t *Tree) walkEntries(visit func(node.Entry) error) error {
	return t.walkFrom(t.root, visit)
}

func (t *Tree) walkFrom(n *node.Node, visit func(node.Entry) error) error {
	if n.IsLeaf() {
		for _, e := range n.Entries {
			if err := visit(e); err != nil {
				return err
			}
		}
		return nil
	}
	for _, c := range n.Children {
		child, err := t.getNode(c.Hash)
		if err != nil {
			return err
		}
		if err := t.walkFrom(child, visit); err != nil {
			return err
		}
	}
	return nil
}

// Entries returns every entry in key order. Intended for small trees and
// tests; large callers should use walkEntries.
func (t *Tree) Entries() ([]node.Entry, error) {
	var out []node.Entry
	err := t.walkEntries(func(e node.Entry) error {
		out = append(out, e)
		return nil
	})
	return out, err
}
