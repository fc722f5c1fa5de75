package tree

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/zhangfengcdt/prollytree/pkg/hash"
	"github.com/zhangfengcdt/prollytree/pkg/node"
)

// Stats summarizes the shape of a tree snapshot.
type Stats struct {
	NumEntries   int
	NumLeaves    int
	NumInternal  int
	Depth        int
	TotalBytes   int // encoded size of all nodes
	AvgLeafItems float64
}

func (s Stats) String() string {
	return fmt.Sprintf("entries=%d leaves=%d internal=%d depth=%d size=%s avg_leaf_items=%.1f",
		s.NumEntries, s.NumLeaves, s.NumInternal, s.Depth,
		humanize.IBytes(uint64(s.TotalBytes)), s.AvgLeafItems)
}

// Stats walks every node of the snapshot and aggregates shape figures.
func (t *Tree) Stats() (Stats, error) {
	s := Stats{Depth: t.Depth()}
	err := t.walkNodes(t.root, func(n *node.Node) error {
		s.TotalBytes += len(n.Encode())
		if n.IsLeaf() {
			s.NumLeaves++
			s.NumEntries += len(n.Entries)
		} else {
			s.NumInternal++
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	if s.NumLeaves > 0 {
		s.AvgLeafItems = float64(s.NumEntries) / float64(s.NumLeaves)
	}
	return s, nil
}

func (t *Tree) walkNodes(n *node.Node, visit func(*node.Node) error) error {
	if err := visit(n); err != nil {
		return err
	}
	if n.IsLeaf() {
		return nil
	}
	for _, c := range n.Children {
		child, err := t.getNode(c.Hash)
		if err != nil {
			return err
		}
		if err := t.walkNodes(child, visit); err != nil {
			return err
		}
	}
	return nil
}

// Format renders the tree structure for debugging, one node per line,
// indented by level.
func (t *Tree) Format() (string, error) {
	var sb strings.Builder
	if err := t.format(&sb, t.root, t.rootHash, 0); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (t *Tree) format(sb *strings.Builder, n *node.Node, h hash.Hash, indent int) error {
	pad := strings.Repeat("  ", indent)
	if n.IsLeaf() {
		fmt.Fprintf(sb, "%sleaf %x [%d entries]\n", pad, h[:4], len(n.Entries))
		return nil
	}
	fmt.Fprintf(sb, "%snode %x level=%d [%d children]\n", pad, h[:4], n.Level, len(n.Children))
	for _, c := range n.Children {
		child, err := t.getNode(c.Hash)
		if err != nil {
			return err
		}
		if err := t.format(sb, child, c.Hash, indent+1); err != nil {
			return err
		}
	}
	return nil
}
