package tree

import (
	"bytes"

	"github.com/zhangfengcdt/prollytree/pkg/hash"
	"github.com/zhangfengcdt/prollytree/pkg/node"
)

// DiffOp classifies a single key's change between two snapshots.
type DiffOp int

const (
	DiffAdded DiffOp = iota
	DiffRemoved
	DiffModified
)

func (op DiffOp) String() string {
	switch op {
	case DiffAdded:
		return "added"
	case DiffRemoved:
		return "removed"
	case DiffModified:
		return "modified"
	}
	return "unknown"
}

// DiffEntry is one changed key. OldValue is set for removed and modified
// keys, NewValue for added and modified ones.
type DiffEntry struct {
	Key      []byte
	Op       DiffOp
	OldValue []byte
	NewValue []byte
}

// Diff returns the changes that turn from into to, in key order. Subtrees
// with equal hashes are skipped without loading their nodes, so the cost
// scales with the size of the change, not the size of the trees.
func Diff(from, to *Tree) ([]DiffEntry, error) {
	if from.rootHash == to.rootHash {
		return nil, nil
	}
	a, err := newDiffCursor(from)
	if err != nil {
		return nil, err
	}
	b, err := newDiffCursor(to)
	if err != nil {
		return nil, err
	}

	var out []DiffEntry
	for a.valid() && b.valid() {
		skipped, err := skipEqualSubtrees(a, b)
		if err != nil {
			return nil, err
		}
		if skipped {
			continue
		}
		ea, eb := a.entry(), b.entry()
		switch cmp := bytes.Compare(ea.Key, eb.Key); {
		case cmp < 0:
			out = append(out, DiffEntry{Key: ea.Key, Op: DiffRemoved, OldValue: ea.Value})
			err = a.advance()
		case cmp > 0:
			out = append(out, DiffEntry{Key: eb.Key, Op: DiffAdded, NewValue: eb.Value})
			err = b.advance()
		default:
			if !bytes.Equal(ea.Value, eb.Value) {
				out = append(out, DiffEntry{Key: ea.Key, Op: DiffModified, OldValue: ea.Value, NewValue: eb.Value})
			}
			if err = a.advance(); err == nil {
				err = b.advance()
			}
		}
		if err != nil {
			return nil, err
		}
	}
	for a.valid() {
		e := a.entry()
		out = append(out, DiffEntry{Key: e.Key, Op: DiffRemoved, OldValue: e.Value})
		if err := a.advance(); err != nil {
			return nil, err
		}
	}
	for b.valid() {
		e := b.entry()
		out = append(out, DiffEntry{Key: e.Key, Op: DiffAdded, NewValue: e.Value})
		if err := b.advance(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// skipEqualSubtrees advances both cursors past the largest pair of
// identical subtrees they currently stand at the start of. Identical
// hashes mean identical entry ranges, so skipping both sides leaves the
// diff unchanged.
func skipEqualSubtrees(a, b *diffCursor) (bool, error) {
	aStarts := a.subtreeStarts()
	if len(aStarts) == 0 {
		return false, nil
	}
	byHash := make(map[hash.Hash]int, len(aStarts))
	for _, i := range aStarts {
		byHash[a.stack[i].h] = i
	}
	for _, j := range b.subtreeStarts() {
		if i, ok := byHash[b.stack[j].h]; ok {
			if err := a.skipSubtree(i); err != nil {
				return false, err
			}
			if err := b.skipSubtree(j); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}

// cframe is a diff cursor stack frame: a node, its own address, and the
// current position within it.
type cframe struct {
	n   *node.Node
	h   hash.Hash
	idx int
}

// diffCursor streams one tree's entries in key order while exposing the
// subtree addresses above its current position.
type diffCursor struct {
	t     *Tree
	stack []cframe
}

func newDiffCursor(t *Tree) (*diffCursor, error) {
	c := &diffCursor{t: t}
	if err := c.pushLeftmost(t.rootHash); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *diffCursor) pushLeftmost(h hash.Hash) error {
	for {
		n, err := c.t.getNode(h)
		if err != nil {
			return err
		}
		c.stack = append(c.stack, cframe{n: n, h: h})
		if n.IsLeaf() {
			return nil
		}
		h = n.Children[0].Hash
	}
}

func (c *diffCursor) valid() bool {
	if len(c.stack) == 0 {
		return false
	}
	top := c.stack[len(c.stack)-1]
	return top.idx < len(top.n.Entries)
}

func (c *diffCursor) entry() node.Entry {
	top := c.stack[len(c.stack)-1]
	return top.n.Entries[top.idx]
}

func (c *diffCursor) advance() error {
	for len(c.stack) > 0 {
		top := &c.stack[len(c.stack)-1]
		top.idx++
		if top.idx < top.n.ItemCount() {
			if top.n.IsLeaf() {
				return nil
			}
			return c.pushLeftmost(top.n.Children[top.idx].Hash)
		}
		c.stack = c.stack[:len(c.stack)-1]
	}
	return nil
}

// subtreeStarts returns the stack indices of every frame whose subtree the
// cursor sits at the very first entry of, outermost first.
func (c *diffCursor) subtreeStarts() []int {
	var starts []int
	for i := len(c.stack) - 1; i >= 0; i-- {
		if c.stack[i].idx != 0 {
			break
		}
		starts = append(starts, i)
	}
	for l, r := 0, len(starts)-1; l < r; l, r = l+1, r-1 {
		starts[l], starts[r] = starts[r], starts[l]
	}
	return starts
}

// skipSubtree moves the cursor to the first entry after the subtree rooted
// at stack index i.
func (c *diffCursor) skipSubtree(i int) error {
	c.stack = c.stack[:i+1]
	c.stack[i].idx = c.stack[i].n.ItemCount() - 1
	return c.advance()
}
