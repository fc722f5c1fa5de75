// Package node defines the Merkle tree node: either a leaf owning an
// ordered run of key/value entries, or an internal node owning an ordered
// list of child references. A node's hash is a digest over its item
// digests, so changing any entry changes exactly the chain of node hashes
// from that leaf to the root.
package node

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/zhangfengcdt/prollytree/pkg/hash"
)

// Domain separation tags for the digest tree.
const (
	tagEntry    = 0x00
	tagNode     = 0x01
	tagChildRef = 0x03
)

// ErrCorruptedNode reports that a node read from storage does not hash to
// its own address. It is fatal: callers must abort the operation rather
// than continue with partial results.
var ErrCorruptedNode = errors.New("node: corrupted node, hash mismatch")

// Entry is one key/value pair in a leaf. Keys are unique and ordered
// within a snapshot; values are opaque.
type Entry struct {
	Key   []byte
	Value []byte
}

// ChildRef points an internal node at one child subtree. Key is the
// largest key contained in that subtree and directs navigation.
type ChildRef struct {
	Key  []byte
	Hash hash.Hash
}

// Node is one tree node. Level 0 nodes are leaves and use Entries;
// higher levels are internal and use Children.
type Node struct {
	Level    uint8
	Entries  []Entry
	Children []ChildRef
}

// NewLeaf builds a leaf from ordered entries.
func NewLeaf(entries []Entry) *Node {
	return &Node{Level: 0, Entries: entries}
}

// NewInternal builds an internal node at the given level from ordered
// child references.
func NewInternal(level uint8, children []ChildRef) *Node {
	return &Node{Level: level, Children: children}
}

// IsLeaf reports whether the node is at entry level.
func (n *Node) IsLeaf() bool {
	return n.Level == 0
}

// ItemCount returns the number of entries or child references.
func (n *Node) ItemCount() int {
	if n.IsLeaf() {
		return len(n.Entries)
	}
	return len(n.Children)
}

// LastKey returns the largest key covered by this node, or nil for an
// empty leaf.
func (n *Node) LastKey() []byte {
	if n.IsLeaf() {
		if len(n.Entries) == 0 {
			return nil
		}
		return n.Entries[len(n.Entries)-1].Key
	}
	return n.Children[len(n.Children)-1].Key
}

// EntryDigest is the leaf item digest: H(0x00 ‖ uvarint(len key) ‖ key ‖ value).
// The length prefix keeps (key, value) splits unambiguous.
func EntryDigest(key, value []byte) hash.Hash {
	var lenBuf [binary.MaxVarintLen64]byte
	nLen := binary.PutUvarint(lenBuf[:], uint64(len(key)))
	return hash.Sum([]byte{tagEntry}, lenBuf[:nLen], key, value)
}

// ChildDigest is the internal item digest: H(0x03 ‖ uvarint(len key) ‖ key ‖ childHash).
// Including the separator key makes navigation metadata tamper-evident.
func ChildDigest(key []byte, child hash.Hash) hash.Hash {
	var lenBuf [binary.MaxVarintLen64]byte
	nLen := binary.PutUvarint(lenBuf[:], uint64(len(key)))
	return hash.Sum([]byte{tagChildRef}, lenBuf[:nLen], key, child[:])
}

// ItemDigests returns the digest of every item in order.
func (n *Node) ItemDigests() []hash.Hash {
	out := make([]hash.Hash, 0, n.ItemCount())
	if n.IsLeaf() {
		for _, e := range n.Entries {
			out = append(out, EntryDigest(e.Key, e.Value))
		}
		return out
	}
	for _, c := range n.Children {
		out = append(out, ChildDigest(c.Key, c.Hash))
	}
	return out
}

// HashFromDigests recomputes a node hash from a level and an ordered item
// digest list. Proof verification uses this without access to the node.
func HashFromDigests(level uint8, digests []hash.Hash) hash.Hash {
	parts := make([][]byte, 0, len(digests)+1)
	parts = append(parts, []byte{tagNode, level})
	for i := range digests {
		parts = append(parts, digests[i][:])
	}
	return hash.Sum(parts...)
}

// Hash returns the node's content address: H(0x01 ‖ level ‖ item digests).
func (n *Node) Hash() hash.Hash {
	return HashFromDigests(n.Level, n.ItemDigests())
}

// EmptyRootHash is the defined root hash of a tree with zero entries.
func EmptyRootHash() hash.Hash {
	return NewLeaf(nil).Hash()
}

// Search locates key within the node. For leaves it returns the entry
// index and whether the key is present; for internal nodes it returns the
// index of the child whose subtree covers the key (the last child when the
// key exceeds every separator).
func (n *Node) Search(key []byte) (idx int, found bool) {
	if n.IsLeaf() {
		lo, hi := 0, len(n.Entries)
		for lo < hi {
			mid := (lo + hi) / 2
			switch bytes.Compare(n.Entries[mid].Key, key) {
			case -1:
				lo = mid + 1
			case 0:
				return mid, true
			default:
				hi = mid
			}
		}
		return lo, false
	}

	lo, hi := 0, len(n.Children)
	for lo < hi {
		mid := (lo + hi) / 2
		if bytes.Compare(n.Children[mid].Key, key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == len(n.Children) {
		lo = len(n.Children) - 1
	}
	return lo, false
}

func (n *Node) String() string {
	kind := "internal"
	if n.IsLeaf() {
		kind = "leaf"
	}
	return fmt.Sprintf("%s(level=%d items=%d hash=%s)",
		kind, n.Level, n.ItemCount(), n.Hash().Short())
}
