package versioning

import (
	"bytes"
	"fmt"
	"time"

	"github.com/zhangfengcdt/prollytree/pkg/hash"
	"github.com/zhangfengcdt/prollytree/pkg/tree"
)

// ConflictResolution selects which side wins when both branches changed
// the same key in different ways.
type ConflictResolution int

const (
	// IgnoreAll keeps the destination's version of every conflicting key.
	IgnoreAll ConflictResolution = iota
	// TakeSource takes the source's version of every conflicting key.
	TakeSource
	// TakeDestination keeps the destination's version, same outcome as
	// IgnoreAll.
	TakeDestination
)

func (r ConflictResolution) String() string {
	switch r {
	case IgnoreAll:
		return "ignore-all"
	case TakeSource:
		return "take-source"
	case TakeDestination:
		return "take-destination"
	}
	return "unknown"
}

// Conflict is a key both sides changed since the common ancestor, with
// incompatible results. A nil value means the key is absent on that side.
type Conflict struct {
	Key         []byte
	Base        []byte
	Source      []byte
	Destination []byte
}

// Merge merges sourceRev into the current branch and returns the merge
// commit, using message as the commit message. An empty message gets a
// default. When the current head already contains the source the merge is
// a no-op. A source that strictly extends the head still gets a merge
// commit, so history records every merge explicitly. Conflicts are
// settled by res.
func (vs *VersionedStore) Merge(sourceRev, message string, res ConflictResolution) (*Commit, error) {
	if vs.HasUncommitted() {
		return nil, ErrUncommittedChanges
	}
	srcID, err := vs.Resolve(sourceRev)
	if err != nil {
		return nil, err
	}
	if srcID == vs.head {
		return nil, fmt.Errorf("%w: cannot merge %s into itself", ErrInvalidMergeTarget, sourceRev)
	}

	anc, err := vs.isAncestor(srcID, vs.head)
	if err != nil {
		return nil, err
	}
	if anc {
		vs.log.Debug("merge is a no-op, source already merged", "source", srcID.Short())
		return vs.CurrentCommit()
	}
	baseID, err := vs.commonAncestor(vs.head, srcID)
	if err != nil {
		return nil, err
	}
	merged, conflicts, err := vs.merge3(baseID, vs.head, srcID, res, true)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		vs.log.Debug("resolved merge conflicts", "count", len(conflicts), "resolution", res.String())
	}

	if message == "" {
		message = fmt.Sprintf("Merge %s into %s", sourceRev, vs.branch)
	}
	c := &Commit{
		Root:      merged.RootHash(),
		Parents:   []hash.Hash{vs.head, srcID},
		Author:    vs.author,
		Committer: vs.author,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	if err := writeCommit(vs.st, c); err != nil {
		return nil, err
	}
	if err := vs.st.SetRef(branchRefPrefix+vs.branch, c.ID[:]); err != nil {
		return nil, err
	}
	if err := vs.loadBranch(vs.branch); err != nil {
		return nil, err
	}
	return c, nil
}

// TryMerge reports whether sourceRev would merge cleanly into the current
// branch, plus the conflicts it would hit. It writes nothing and leaves
// the store untouched.
func (vs *VersionedStore) TryMerge(sourceRev string) (bool, []Conflict, error) {
	srcID, err := vs.Resolve(sourceRev)
	if err != nil {
		return false, nil, err
	}
	if srcID == vs.head {
		return false, nil, fmt.Errorf("%w: cannot merge %s into itself", ErrInvalidMergeTarget, sourceRev)
	}
	if anc, err := vs.isAncestor(srcID, vs.head); err != nil {
		return false, nil, err
	} else if anc {
		return true, nil, nil
	}
	if anc, err := vs.isAncestor(vs.head, srcID); err != nil {
		return false, nil, err
	} else if anc {
		return true, nil, nil
	}
	baseID, err := vs.commonAncestor(vs.head, srcID)
	if err != nil {
		return false, nil, err
	}
	_, conflicts, err := vs.merge3(baseID, vs.head, srcID, IgnoreAll, false)
	if err != nil {
		return false, nil, err
	}
	return len(conflicts) == 0, conflicts, nil
}

// merge3 performs the three-way merge. With build set it returns the
// merged tree; otherwise it only collects conflicts.
func (vs *VersionedStore) merge3(baseID, destID, srcID hash.Hash, res ConflictResolution, build bool) (*tree.Tree, []Conflict, error) {
	baseT, err := vs.treeAt(baseID)
	if err != nil {
		return nil, nil, err
	}
	destT, err := vs.treeAt(destID)
	if err != nil {
		return nil, nil, err
	}
	srcT, err := vs.treeAt(srcID)
	if err != nil {
		return nil, nil, err
	}

	destDiff, err := tree.Diff(baseT, destT)
	if err != nil {
		return nil, nil, err
	}
	srcDiff, err := tree.Diff(baseT, srcT)
	if err != nil {
		return nil, nil, err
	}

	destByKey := make(map[string]tree.DiffEntry, len(destDiff))
	for _, d := range destDiff {
		destByKey[string(d.Key)] = d
	}

	var merged *tree.Tree
	if build {
		merged = destT
	}
	var conflicts []Conflict
	for _, s := range srcDiff {
		d, both := destByKey[string(s.Key)]
		if both && (d.Op == tree.DiffRemoved) == (s.Op == tree.DiffRemoved) && bytes.Equal(d.NewValue, s.NewValue) {
			// Both sides arrived at the same result.
			continue
		}
		if both {
			conflicts = append(conflicts, Conflict{
				Key:         s.Key,
				Base:        s.OldValue,
				Source:      s.NewValue,
				Destination: d.NewValue,
			})
			if res != TakeSource {
				continue
			}
		}
		if !build {
			continue
		}
		if s.Op == tree.DiffRemoved || (both && s.NewValue == nil) {
			if err := deleteIfPresent(merged, s.Key); err != nil {
				return nil, nil, err
			}
		} else if err := merged.Insert(s.Key, s.NewValue); err != nil {
			return nil, nil, err
		}
	}
	return merged, conflicts, nil
}

func deleteIfPresent(t *tree.Tree, key []byte) error {
	ok, err := t.Has(key)
	if err != nil || !ok {
		return err
	}
	return t.Delete(key)
}

// isAncestor reports whether anc is reachable from desc along parent
// edges. Every commit is its own ancestor.
func (vs *VersionedStore) isAncestor(anc, desc hash.Hash) (bool, error) {
	seen := make(map[hash.Hash]bool)
	queue := []hash.Hash{desc}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == anc {
			return true, nil
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		c, err := readCommit(vs.st, cur)
		if err != nil {
			return false, err
		}
		queue = append(queue, c.Parents...)
	}
	return false, nil
}

// commonAncestor finds the nearest commit reachable from both a and b by
// breadth-first walking b's history against a's ancestor set.
func (vs *VersionedStore) commonAncestor(a, b hash.Hash) (hash.Hash, error) {
	ancestors := make(map[hash.Hash]bool)
	queue := []hash.Hash{a}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if ancestors[cur] {
			continue
		}
		ancestors[cur] = true
		c, err := readCommit(vs.st, cur)
		if err != nil {
			return hash.Zero, err
		}
		queue = append(queue, c.Parents...)
	}

	seen := make(map[hash.Hash]bool)
	queue = []hash.Hash{b}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if ancestors[cur] {
			return cur, nil
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		c, err := readCommit(vs.st, cur)
		if err != nil {
			return hash.Zero, err
		}
		queue = append(queue, c.Parents...)
	}
	return hash.Zero, ErrNoCommonAncestor
}
