package tree

import (
	"bytes"

	"github.com/zhangfengcdt/prollytree/internal/chunker"
	"github.com/zhangfengcdt/prollytree/pkg/node"
)

type mutationOp int

const (
	opInsert mutationOp = iota
	opUpdate
	opDelete
)

// frame is one step of a root-to-leaf descent: a node and the child index
// the descent took through it.
type frame struct {
	n   *node.Node
	idx int
}

// mutate applies a single-key edit and rebuilds the affected chunk span on
// every level. Because chunk boundaries depend only on the items since the
// previous boundary, rechunking stops as soon as it realigns with an old
// boundary, so the resulting tree is identical to one built from scratch
// over the new content.
func (t *Tree) mutate(key, value []byte, op mutationOp) error {
	var path []frame
	n := t.root
	for !n.IsLeaf() {
		idx, _ := n.Search(key)
		path = append(path, frame{n: n, idx: idx})
		child, err := t.getNode(n.Children[idx].Hash)
		if err != nil {
			return err
		}
		n = child
	}

	idx, found := n.Search(key)
	switch op {
	case opUpdate, opDelete:
		if !found {
			return ErrKeyNotFound
		}
	case opInsert:
		if found && bytes.Equal(n.Entries[idx].Value, value) {
			return nil
		}
	}

	pending := nodeItems(n)
	switch {
	case op == opDelete:
		pending = append(pending[:idx], pending[idx+1:]...)
	case found:
		pending[idx] = item{key: key, value: value, leaf: true}
	default:
		pending = append(pending, item{})
		copy(pending[idx+1:], pending[idx:])
		pending[idx] = item{key: key, value: value, leaf: true}
	}

	return t.rebuild(path, pending)
}

// rebuild replaces the leaf-level span covered by pending and propagates
// the change upward along path. extra tracks how many additional old nodes
// at the current level were already folded into pending by the level below.
func (t *Tree) rebuild(path []frame, pending []item) error {
	extra := 0
	for pi := len(path) - 1; pi >= 0; pi-- {
		parent := path[pi]
		level := parent.n.Level - 1

		cur := newLevelCursor(t, path[:pi+1])
		for i := 0; i < extra; i++ {
			if _, err := cur.next(); err != nil {
				return err
			}
		}

		chunks, consumed, err := t.rechunk(pending, cur)
		if err != nil {
			return err
		}
		refs, err := t.writeChunks(level, chunks)
		if err != nil {
			return err
		}

		// Splice the new refs into the item lists of every parent the
		// rechunk reached.
		concat := nodeItems(parent.n)
		for _, p := range cur.touched {
			concat = append(concat, nodeItems(p)...)
		}
		replacedEnd := parent.idx + 1 + extra + consumed
		next := make([]item, 0, parent.idx+len(refs)+len(concat)-replacedEnd)
		next = append(next, concat[:parent.idx]...)
		next = append(next, refs...)
		next = append(next, concat[replacedEnd:]...)

		pending = next
		extra = len(cur.touched)
	}

	var level uint8
	if len(path) > 0 {
		level = path[0].n.Level
	}
	return t.buildUpward(level, pending)
}

// rechunk chunks pending and, while the current chunk is still open past
// the end of pending, keeps pulling the next old node at this level from
// cur until a boundary lands exactly on an old node end. consumed is the
// number of old nodes pulled.
func (t *Tree) rechunk(pending []item, cur *levelCursor) (chunks [][]item, consumed int, err error) {
	sp := chunker.NewSplitter(t.cfg)
	var current []item
	feed := func(items []item) {
		for _, it := range items {
			current = append(current, it)
			d := it.digest()
			if sp.Append(d[:]) {
				chunks = append(chunks, current)
				current = nil
			}
		}
	}

	feed(pending)
	for len(current) > 0 {
		n, nerr := cur.next()
		if nerr != nil {
			return nil, 0, nerr
		}
		if n == nil {
			break
		}
		consumed++
		feed(nodeItems(n))
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks, consumed, nil
}

// levelCursor walks the nodes of one tree level in key order, starting
// just after the node the path descended into. touched collects every
// additional bottom-level parent the walk enters, in order.
type levelCursor struct {
	t         *Tree
	frames    []frame
	touched   []*node.Node
	exhausted bool
}

// newLevelCursor positions a cursor over the children of path's last
// frame. The path frames are copied so advancing never disturbs the
// caller's descent record.
func newLevelCursor(t *Tree, path []frame) *levelCursor {
	frames := make([]frame, len(path))
	copy(frames, path)
	return &levelCursor{t: t, frames: frames}
}

// next returns the following node at the cursor's level, or nil when the
// level is exhausted.
func (c *levelCursor) next() (*node.Node, error) {
	if c.exhausted {
		return nil, nil
	}
	for i := len(c.frames) - 1; i >= 0; i-- {
		c.frames[i].idx++
		if c.frames[i].idx >= len(c.frames[i].n.Children) {
			continue
		}
		for j := i; j < len(c.frames)-1; j++ {
			child, err := c.t.getNode(c.frames[j].n.Children[c.frames[j].idx].Hash)
			if err != nil {
				return nil, err
			}
			c.frames[j+1] = frame{n: child, idx: 0}
		}
		if i < len(c.frames)-1 {
			c.touched = append(c.touched, c.frames[len(c.frames)-1].n)
		}
		bottom := c.frames[len(c.frames)-1]
		return c.t.getNode(bottom.n.Children[bottom.idx].Hash)
	}
	c.exhausted = true
	return nil, nil
}
