package tree

import (
	"github.com/zhangfengcdt/prollytree/pkg/hash"
	"github.com/zhangfengcdt/prollytree/pkg/node"
)

// ProofStep is one level of a Merkle proof, leaf level first. Digests are
// the item digests of the node on the path, with the path item included at
// Index so the verifier can substitute its own recomputation.
type ProofStep struct {
	Index   int
	Key     []byte // separator key, internal levels only
	Digests []hash.Hash
}

// Proof shows that a key/value pair is part of the tree whose root hash
// the verifier already trusts. Verification needs no store access.
type Proof struct {
	Steps []ProofStep
}

// Prove builds an inclusion proof for key, or fails with ErrKeyNotFound.
func (t *Tree) Prove(key []byte) (*Proof, error) {
	var rev []ProofStep
	n := t.root
	for !n.IsLeaf() {
		idx, _ := n.Search(key)
		rev = append(rev, ProofStep{
			Index:   idx,
			Key:     n.Children[idx].Key,
			Digests: n.ItemDigests(),
		})
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
	rev = append(rev, ProofStep{Index: idx, Digests: n.ItemDigests()})

	steps := make([]ProofStep, len(rev))
	for i, s := range rev {
		steps[len(rev)-1-i] = s
	}
	return &Proof{Steps: steps}, nil
}

// Verify recomputes the root commitment from the claimed key/value pair
// and the proof's sibling digests, and compares it against root. Any
// altered key, value, or digest changes the recomputed root.
func (p *Proof) Verify(root hash.Hash, key, value []byte) bool {
	if len(p.Steps) == 0 {
		return false
	}
	d := node.EntryDigest(key, value)
	var nh hash.Hash
	for i, step := range p.Steps {
		if step.Index < 0 || step.Index >= len(step.Digests) {
			return false
		}
		if i > 0 {
			d = node.ChildDigest(step.Key, nh)
		}
		digests := make([]hash.Hash, len(step.Digests))
		copy(digests, step.Digests)
		digests[step.Index] = d
		nh = node.HashFromDigests(uint8(i), digests)
	}
	return nh == root
}
