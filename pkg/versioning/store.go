// Package versioning layers git-like history on top of Prolly Trees:
// content-addressed commits, named branches, staged mutations, diffs
// between any two revisions, and three-way merges.
package versioning

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/zhangfengcdt/prollytree/internal/chunker"
	"github.com/zhangfengcdt/prollytree/pkg/hash"
	"github.com/zhangfengcdt/prollytree/pkg/store"
	"github.com/zhangfengcdt/prollytree/pkg/tree"
)

const (
	branchRefPrefix = "branch/"
	headRef         = "HEAD"

	// DefaultBranch is the branch a fresh store starts on.
	DefaultBranch = "main"
)

// BranchRef returns the ref name under which a branch head is stored.
func BranchRef(name string) string {
	return branchRefPrefix + name
}

// StagedOp is one uncommitted change in the working tree.
type StagedOp struct {
	Key    []byte
	Value  []byte // nil for deletions
	Delete bool
	// Existed reports whether the key was present when first staged,
	// distinguishing an addition from a change.
	Existed bool
}

// Options configures a VersionedStore. Zero values fall back to sensible
// defaults.
type Options struct {
	Author  string
	Logger  *slog.Logger
	Chunker chunker.Config

	// Branch checks out a specific branch instead of the one recorded in
	// the head ref. The branch must already exist.
	Branch string
	// HeadRef overrides the ref under which the checked-out branch name
	// is persisted. Defaults to "HEAD". Separate handles on the same
	// store, such as worktrees, use distinct head refs.
	HeadRef string
}

// VersionedStore is a Prolly Tree with history. Reads and staged writes go
// through the working tree; Commit seals the working tree into a new
// commit on the current branch. Not safe for concurrent use.
type VersionedStore struct {
	st      store.Store
	cfg     chunker.Config
	log     *slog.Logger
	author  string
	headRef string
	branch  string
	head    hash.Hash
	working *tree.Tree
	staged  map[string]StagedOp
}

// Open attaches to the history in st, bootstrapping an empty repository
// with a genesis commit on main when none exists yet.
func Open(st store.Store, opts Options) (*VersionedStore, error) {
	cfg := opts.Chunker
	if cfg == (chunker.Config{}) {
		cfg = chunker.DefaultConfig()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	author := opts.Author
	if author == "" {
		author = "anonymous"
	}
	head := opts.HeadRef
	if head == "" {
		head = headRef
	}
	vs := &VersionedStore{
		st:      st,
		cfg:     cfg,
		log:     log,
		author:  author,
		headRef: head,
		staged:  make(map[string]StagedOp),
	}

	if _, err := st.GetRef(branchRefPrefix + DefaultBranch); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if err := vs.bootstrap(); err != nil {
			return nil, err
		}
		if opts.Branch != "" && opts.Branch != DefaultBranch {
			return nil, fmt.Errorf("%w: %s", ErrBranchNotFound, opts.Branch)
		}
		return vs, nil
	}

	branch := opts.Branch
	if branch == "" {
		branch = DefaultBranch
		if b, err := st.GetRef(vs.headRef); err == nil && len(b) > 0 {
			branch = string(b)
		}
	}
	if err := vs.loadBranch(branch); err != nil {
		return nil, err
	}
	if err := st.SetRef(vs.headRef, []byte(branch)); err != nil {
		return nil, err
	}
	return vs, nil
}

func (vs *VersionedStore) bootstrap() error {
	t, err := tree.New(vs.st, vs.cfg)
	if err != nil {
		return err
	}
	genesis := &Commit{
		Root:      t.RootHash(),
		Author:    vs.author,
		Committer: vs.author,
		Message:   "initial commit",
		Timestamp: time.Now().UTC(),
	}
	if err := writeCommit(vs.st, genesis); err != nil {
		return err
	}
	if err := vs.st.SetRef(branchRefPrefix+DefaultBranch, genesis.ID[:]); err != nil {
		return err
	}
	if err := vs.st.SetRef(vs.headRef, []byte(DefaultBranch)); err != nil {
		return err
	}
	vs.branch = DefaultBranch
	vs.head = genesis.ID
	vs.working = t
	vs.log.Debug("bootstrapped repository", "commit", genesis.ID.Short())
	return nil
}

func (vs *VersionedStore) loadBranch(branch string) error {
	id, err := vs.branchHead(branch)
	if err != nil {
		return err
	}
	c, err := readCommit(vs.st, id)
	if err != nil {
		return err
	}
	t, err := tree.Load(vs.st, c.Root, vs.cfg)
	if err != nil {
		return err
	}
	vs.branch = branch
	vs.head = id
	vs.working = t
	vs.staged = make(map[string]StagedOp)
	return nil
}

func (vs *VersionedStore) branchHead(branch string) (hash.Hash, error) {
	b, err := vs.st.GetRef(branchRefPrefix + branch)
	if errors.Is(err, store.ErrNotFound) {
		return hash.Zero, fmt.Errorf("%w: %s", ErrBranchNotFound, branch)
	}
	if err != nil {
		return hash.Zero, err
	}
	return hash.FromBytes(b)
}

// CurrentBranch returns the checked-out branch name.
func (vs *VersionedStore) CurrentBranch() string {
	return vs.branch
}

// CurrentCommit returns the commit the current branch points at. Staged
// changes are not part of it.
func (vs *VersionedStore) CurrentCommit() (*Commit, error) {
	return readCommit(vs.st, vs.head)
}

// Get reads a key from the working tree, staged changes included.
func (vs *VersionedStore) Get(key []byte) ([]byte, error) {
	return vs.working.Get(key)
}

// Has reports whether key exists in the working tree.
func (vs *VersionedStore) Has(key []byte) (bool, error) {
	return vs.working.Has(key)
}

// RootHash returns the working tree's Merkle root.
func (vs *VersionedStore) RootHash() hash.Hash {
	return vs.working.RootHash()
}

// Prove builds a Merkle inclusion proof for key against the working tree.
// Verify it with tree.Proof.Verify and the returned root.
func (vs *VersionedStore) Prove(key []byte) (*tree.Proof, hash.Hash, error) {
	p, err := vs.working.Prove(key)
	if err != nil {
		return nil, hash.Zero, err
	}
	return p, vs.working.RootHash(), nil
}

// Insert stages an upsert of key.
func (vs *VersionedStore) Insert(key, value []byte) error {
	existed, err := vs.working.Has(key)
	if err != nil {
		return err
	}
	before := vs.working.RootHash()
	if err := vs.working.Insert(key, value); err != nil {
		return err
	}
	if vs.working.RootHash() != before {
		vs.stageSet(key, value, existed)
	}
	return nil
}

// Update stages a change to an existing key.
func (vs *VersionedStore) Update(key, value []byte) error {
	before := vs.working.RootHash()
	if err := vs.working.Update(key, value); err != nil {
		return err
	}
	if vs.working.RootHash() != before {
		vs.stageSet(key, value, true)
	}
	return nil
}

// Restaging a key keeps the kind its first staging recorded, so a key
// added and then edited still reads as an addition.
func (vs *VersionedStore) stageSet(key, value []byte, existed bool) {
	if prev, ok := vs.staged[string(key)]; ok && !prev.Delete {
		existed = prev.Existed
	}
	vs.staged[string(key)] = StagedOp{
		Key:     append([]byte(nil), key...),
		Value:   append([]byte(nil), value...),
		Existed: existed,
	}
}

// Delete stages a removal of key.
func (vs *VersionedStore) Delete(key []byte) error {
	if err := vs.working.Delete(key); err != nil {
		return err
	}
	vs.staged[string(key)] = StagedOp{Key: append([]byte(nil), key...), Delete: true, Existed: true}
	return nil
}

// Status returns the staged operations sorted by key.
func (vs *VersionedStore) Status() []StagedOp {
	ops := make([]StagedOp, 0, len(vs.staged))
	for _, op := range vs.staged {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool {
		return bytes.Compare(ops[i].Key, ops[j].Key) < 0
	})
	return ops
}

// HasUncommitted reports whether any staged change is pending.
func (vs *VersionedStore) HasUncommitted() bool {
	return len(vs.staged) > 0
}

// Commit seals the staged changes into a new commit on the current branch
// and returns it. With nothing staged it fails with ErrNothingToCommit.
func (vs *VersionedStore) Commit(message string) (*Commit, error) {
	if len(vs.staged) == 0 {
		return nil, ErrNothingToCommit
	}
	c := &Commit{
		Root:      vs.working.RootHash(),
		Parents:   []hash.Hash{vs.head},
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
	vs.head = c.ID
	vs.staged = make(map[string]StagedOp)
	vs.log.Debug("committed", "branch", vs.branch, "commit", c.ID.Short(), "message", message)
	return c, nil
}

func validBranchName(name string) error {
	if name == "" || strings.ContainsAny(name, "/ \t\n") {
		return fmt.Errorf("versioning: invalid branch name %q", name)
	}
	return nil
}

// CreateBranch creates a branch at the current commit and switches to it,
// carrying any staged changes along.
func (vs *VersionedStore) CreateBranch(name string) error {
	if err := validBranchName(name); err != nil {
		return err
	}
	if _, err := vs.st.GetRef(branchRefPrefix + name); err == nil {
		return fmt.Errorf("%w: %s", ErrBranchExists, name)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if err := vs.st.SetRef(branchRefPrefix+name, vs.head[:]); err != nil {
		return err
	}
	vs.branch = name
	if err := vs.st.SetRef(vs.headRef, []byte(name)); err != nil {
		return err
	}
	vs.log.Debug("created branch", "branch", name, "at", vs.head.Short())
	return nil
}

// Checkout switches to an existing branch. It refuses to discard staged
// changes.
func (vs *VersionedStore) Checkout(name string) error {
	if name == vs.branch {
		return nil
	}
	if len(vs.staged) > 0 {
		return ErrUncommittedChanges
	}
	if err := vs.loadBranch(name); err != nil {
		return err
	}
	return vs.st.SetRef(vs.headRef, []byte(name))
}

// DeleteBranch removes a branch ref. The checked-out branch cannot be
// deleted.
func (vs *VersionedStore) DeleteBranch(name string) error {
	if name == vs.branch {
		return fmt.Errorf("versioning: cannot delete the current branch %q", name)
	}
	if _, err := vs.st.GetRef(branchRefPrefix + name); errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrBranchNotFound, name)
	} else if err != nil {
		return err
	}
	return vs.st.DeleteRef(branchRefPrefix + name)
}

// ListBranches returns all branch names in sorted order.
func (vs *VersionedStore) ListBranches() ([]string, error) {
	refs, err := vs.st.ListRefs(branchRefPrefix)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(refs))
	for name := range refs {
		names = append(names, strings.TrimPrefix(name, branchRefPrefix))
	}
	sort.Strings(names)
	return names, nil
}

// Log returns the commits reachable from the current head, newest first.
func (vs *VersionedStore) Log() ([]*Commit, error) {
	return vs.logFrom(vs.head)
}

func (vs *VersionedStore) logFrom(id hash.Hash) ([]*Commit, error) {
	seen := make(map[hash.Hash]bool)
	queue := []hash.Hash{id}
	var out []*Commit
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		c, err := readCommit(vs.st, cur)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
		queue = append(queue, c.Parents...)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID.Compare(out[j].ID) > 0
	})
	return out, nil
}

// Resolve turns a revision string into a commit ID. It accepts a branch
// name, a full commit hash, or an unambiguous hash prefix.
func (vs *VersionedStore) Resolve(rev string) (hash.Hash, error) {
	if id, err := vs.branchHead(rev); err == nil {
		return id, nil
	}
	if len(rev) == hash.Size*2 {
		id, err := hash.FromHex(rev)
		if err == nil {
			if ok, herr := vs.st.Has(id); herr == nil && ok {
				return id, nil
			}
		}
	}
	if len(rev) >= 4 && len(rev) < hash.Size*2 {
		return vs.resolvePrefix(rev)
	}
	return hash.Zero, fmt.Errorf("%w: %s", ErrRefNotFound, rev)
}

// resolvePrefix scans every commit reachable from any branch for a unique
// hex-prefix match.
func (vs *VersionedStore) resolvePrefix(prefix string) (hash.Hash, error) {
	branches, err := vs.ListBranches()
	if err != nil {
		return hash.Zero, err
	}
	var match hash.Hash
	found := false
	seen := make(map[hash.Hash]bool)
	for _, b := range branches {
		head, err := vs.branchHead(b)
		if err != nil {
			return hash.Zero, err
		}
		queue := []hash.Hash{head}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			if seen[cur] {
				continue
			}
			seen[cur] = true
			if strings.HasPrefix(cur.Hex(), prefix) {
				if found && match != cur {
					return hash.Zero, fmt.Errorf("%w: %s", ErrAmbiguousRef, prefix)
				}
				match = cur
				found = true
			}
			c, err := readCommit(vs.st, cur)
			if err != nil {
				return hash.Zero, err
			}
			queue = append(queue, c.Parents...)
		}
	}
	if !found {
		return hash.Zero, fmt.Errorf("%w: %s", ErrRefNotFound, prefix)
	}
	return match, nil
}

// treeAt loads the tree snapshot a commit points at.
func (vs *VersionedStore) treeAt(id hash.Hash) (*tree.Tree, error) {
	c, err := readCommit(vs.st, id)
	if err != nil {
		return nil, err
	}
	return tree.Load(vs.st, c.Root, vs.cfg)
}

// Diff returns the changes between two revisions, each a branch name or
// commit hash.
func (vs *VersionedStore) Diff(fromRev, toRev string) ([]tree.DiffEntry, error) {
	fromID, err := vs.Resolve(fromRev)
	if err != nil {
		return nil, err
	}
	toID, err := vs.Resolve(toRev)
	if err != nil {
		return nil, err
	}
	from, err := vs.treeAt(fromID)
	if err != nil {
		return nil, err
	}
	to, err := vs.treeAt(toID)
	if err != nil {
		return nil, err
	}
	return tree.Diff(from, to)
}

// GetCommitsForKey returns the commits on the current history, newest
// first, in which key was added, changed, or removed.
func (vs *VersionedStore) GetCommitsForKey(key []byte) ([]*Commit, error) {
	log, err := vs.Log()
	if err != nil {
		return nil, err
	}
	var out []*Commit
	for _, c := range log {
		changed, err := vs.commitChangedKey(c, key)
		if err != nil {
			return nil, err
		}
		if changed {
			out = append(out, c)
		}
	}
	return out, nil
}

func (vs *VersionedStore) commitChangedKey(c *Commit, key []byte) (bool, error) {
	cur, err := tree.Load(vs.st, c.Root, vs.cfg)
	if err != nil {
		return false, err
	}
	curVal, curErr := cur.Get(key)
	if curErr != nil && !errors.Is(curErr, tree.ErrKeyNotFound) {
		return false, curErr
	}
	curHas := curErr == nil

	if len(c.Parents) == 0 {
		return curHas, nil
	}
	parent, err := vs.treeAt(c.Parents[0])
	if err != nil {
		return false, err
	}
	prevVal, prevErr := parent.Get(key)
	if prevErr != nil && !errors.Is(prevErr, tree.ErrKeyNotFound) {
		return false, prevErr
	}
	prevHas := prevErr == nil

	if curHas != prevHas {
		return true, nil
	}
	return curHas && !bytes.Equal(curVal, prevVal), nil
}
