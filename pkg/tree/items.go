package tree

import (
	"github.com/zhangfengcdt/prollytree/pkg/hash"
	"github.com/zhangfengcdt/prollytree/pkg/node"
)

// item is the unit the chunker operates on: a leaf entry at level 0, a
// child reference above. The item digest doubles as the rolling-hash input
// so boundary decisions depend on full item content.
type item struct {
	key   []byte
	value []byte    // leaf levels
	child hash.Hash // internal levels
	leaf  bool
}

func (it item) digest() hash.Hash {
	if it.leaf {
		return node.EntryDigest(it.key, it.value)
	}
	return node.ChildDigest(it.key, it.child)
}

func entryItem(e node.Entry) item {
	return item{key: e.Key, value: e.Value, leaf: true}
}

func childItem(c node.ChildRef) item {
	return item{key: c.Key, child: c.Hash}
}

func nodeItems(n *node.Node) []item {
	out := make([]item, 0, n.ItemCount())
	if n.IsLeaf() {
		for _, e := range n.Entries {
			out = append(out, entryItem(e))
		}
		return out
	}
	for _, c := range n.Children {
		out = append(out, childItem(c))
	}
	return out
}

// nodeFromItems materializes a node at the given level from chunked items.
func nodeFromItems(level uint8, items []item) *node.Node {
	if level == 0 {
		entries := make([]node.Entry, len(items))
		for i, it := range items {
			entries[i] = node.Entry{Key: it.key, Value: it.value}
		}
		return node.NewLeaf(entries)
	}
	children := make([]node.ChildRef, len(items))
	for i, it := range items {
		children[i] = node.ChildRef{Key: it.key, Hash: it.child}
	}
	return node.NewInternal(level, children)
}
