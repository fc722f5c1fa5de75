package tree

import (
	"bytes"
	"fmt"

	"github.com/zhangfengcdt/prollytree/internal/chunker"
	"github.com/zhangfengcdt/prollytree/pkg/node"
	"github.com/zhangfengcdt/prollytree/pkg/store"
)

// chunkItems splits items into chunks at content-defined boundaries. A
// trailing run without a natural boundary still becomes a chunk.
func (t *Tree) chunkItems(items []item) [][]item {
	sp := chunker.NewSplitter(t.cfg)
	var chunks [][]item
	var current []item
	for _, it := range items {
		current = append(current, it)
		d := it.digest()
		if sp.Append(d[:]) {
			chunks = append(chunks, current)
			current = nil
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

// writeChunks persists one level's chunks and returns the child refs for
// the level above.
func (t *Tree) writeChunks(level uint8, chunks [][]item) ([]item, error) {
	refs := make([]item, 0, len(chunks))
	for _, ch := range chunks {
		n := nodeFromItems(level, ch)
		h, err := t.putNode(n)
		if err != nil {
			return nil, err
		}
		refs = append(refs, item{key: n.LastKey(), child: h})
	}
	return refs, nil
}

// buildUpward chunks items at the given level into nodes, then keeps
// building levels until a single root remains, and installs it.
func (t *Tree) buildUpward(level uint8, items []item) error {
	if len(items) == 0 {
		return t.setRoot(node.NewLeaf(nil))
	}
	for {
		chunks := t.chunkItems(items)
		if len(chunks) == 1 {
			root := nodeFromItems(level, chunks[0])
			return t.installRoot(root)
		}
		refs, err := t.writeChunks(level, chunks)
		if err != nil {
			return err
		}
		items = refs
		level++
	}
}

// installRoot collapses single-child internal chains so the root is
// canonical, then persists it.
func (t *Tree) installRoot(root *node.Node) error {
	for !root.IsLeaf() && len(root.Children) == 1 {
		child, err := t.getNode(root.Children[0].Hash)
		if err != nil {
			return err
		}
		root = child
	}
	return t.setRoot(root)
}

// NewFromSorted bulk-builds a tree from entries that are already sorted by
// key and free of duplicates.
func NewFromSorted(st store.Store, cfg chunker.Config, entries []node.Entry) (*Tree, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for i := 1; i < len(entries); i++ {
		if bytes.Compare(entries[i-1].Key, entries[i].Key) >= 0 {
			return nil, fmt.Errorf("tree: entries not strictly sorted at index %d", i)
		}
	}
	t := &Tree{st: st, cfg: cfg}
	items := make([]item, len(entries))
	for i, e := range entries {
		items[i] = entryItem(e)
	}
	if err := t.buildUpward(0, items); err != nil {
		return nil, err
	}
	return t, nil
}
