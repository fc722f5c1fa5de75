// Package worktree gives each line of work its own isolated checkout of a
// shared versioned store, the way git worktrees do. Every worktree owns
// exactly one branch; advisory locks protect a worktree from concurrent
// removal or merging.
package worktree

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/zhangfengcdt/prollytree/internal/chunker"
	"github.com/zhangfengcdt/prollytree/pkg/store"
	"github.com/zhangfengcdt/prollytree/pkg/versioning"
)

const (
	// MainID is the identifier of the implicit primary worktree.
	MainID = "main"

	recordPrefix = "worktree/"
	headPrefix   = "worktree-head/"
	lockPrefix   = "worktree-lock/"
)

var (
	ErrWorktreeNotFound = errors.New("worktree: not found")
	ErrBranchInUse      = errors.New("worktree: branch already checked out")
	ErrAlreadyLocked    = errors.New("worktree: already locked")
	ErrWorktreeLocked   = errors.New("worktree: locked")
	ErrNotLocked        = errors.New("worktree: not locked")
	ErrRemoveMain       = errors.New("worktree: cannot remove the main worktree")
)

// Worktree is one checkout. Store returns the versioned store bound to
// the worktree's branch; the handle itself is not safe for concurrent
// use, same as the store it wraps.
type Worktree struct {
	id         string
	path       string
	branch     string
	locked     bool
	lockReason string
	vs         *versioning.VersionedStore
}

func (w *Worktree) ID() string     { return w.id }
func (w *Worktree) Path() string   { return w.path }
func (w *Worktree) Branch() string { return w.branch }

// Locked returns the lock state and the reason it was taken.
func (w *Worktree) Locked() (bool, string) { return w.locked, w.lockReason }

// Store returns the versioned store checked out on this worktree's
// branch.
func (w *Worktree) Store() *versioning.VersionedStore { return w.vs }

// Options configures a Manager.
type Options struct {
	Author  string
	Logger  *slog.Logger
	Chunker chunker.Config
}

// Manager owns every worktree of one repository. All bookkeeping methods
// are safe for concurrent use; working with an individual worktree's
// store is single-threaded per worktree.
type Manager struct {
	mu        sync.Mutex
	st        store.Store
	opts      Options
	log       *slog.Logger
	worktrees map[string]*Worktree
}

// NewManager opens the repository in st, bootstrapping it when empty, and
// restores any persisted worktree records.
func NewManager(st store.Store, opts Options) (*Manager, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{
		st:        st,
		opts:      opts,
		log:       log,
		worktrees: make(map[string]*Worktree),
	}

	mainVS, err := versioning.Open(st, versioning.Options{
		Author:  opts.Author,
		Logger:  log,
		Chunker: opts.Chunker,
		Branch:  versioning.DefaultBranch,
		HeadRef: headPrefix + MainID,
	})
	if err != nil {
		return nil, err
	}
	m.worktrees[MainID] = &Worktree{id: MainID, branch: versioning.DefaultBranch, vs: mainVS}

	records, err := st.ListRefs(recordPrefix)
	if err != nil {
		return nil, err
	}
	for ref, rec := range records {
		id := strings.TrimPrefix(ref, recordPrefix)
		branch, path := decodeRecord(rec)
		vs, err := versioning.Open(st, versioning.Options{
			Author:  opts.Author,
			Logger:  log,
			Chunker: opts.Chunker,
			Branch:  branch,
			HeadRef: headPrefix + id,
		})
		if err != nil {
			return nil, fmt.Errorf("worktree: restoring %s: %w", id, err)
		}
		m.worktrees[id] = &Worktree{id: id, path: path, branch: branch, vs: vs}
	}

	// Locks survive reopening, like git's worktree locks.
	for id, w := range m.worktrees {
		reason, err := st.GetRef(lockPrefix + id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		w.locked = true
		w.lockReason = string(reason)
	}
	return m, nil
}

// Main returns the primary worktree.
func (m *Manager) Main() *Worktree {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.worktrees[MainID]
}

// Get returns the worktree with the given id.
func (m *Manager) Get(id string) (*Worktree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.worktrees[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorktreeNotFound, id)
	}
	return w, nil
}

// List returns every worktree sorted by id, main first.
func (m *Manager) List() []*Worktree {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Worktree, 0, len(m.worktrees))
	for _, w := range m.worktrees {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if (out[i].id == MainID) != (out[j].id == MainID) {
			return out[i].id == MainID
		}
		return out[i].id < out[j].id
	})
	return out
}

// Add creates a worktree at path checked out on the named branch. With
// createBranch set the branch is created at main's head and must not
// exist yet; without it the branch must already exist. A branch already
// checked out by another worktree is rejected. The path is a label kept
// in the worktree record; nothing is written to the filesystem.
func (m *Manager) Add(path, branch string, createBranch bool) (*Worktree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range m.worktrees {
		if w.branch == branch {
			return nil, fmt.Errorf("%w: %s by worktree %s", ErrBranchInUse, branch, w.id)
		}
	}

	_, err := m.st.GetRef(versioning.BranchRef(branch))
	switch {
	case errors.Is(err, store.ErrNotFound):
		if !createBranch {
			return nil, fmt.Errorf("%w: %s", versioning.ErrBranchNotFound, branch)
		}
		head, err := m.worktrees[MainID].vs.CurrentCommit()
		if err != nil {
			return nil, err
		}
		if err := m.st.SetRef(versioning.BranchRef(branch), head.ID[:]); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case createBranch:
		return nil, fmt.Errorf("%w: %s", versioning.ErrBranchExists, branch)
	}

	id := uuid.NewString()
	vs, err := versioning.Open(m.st, versioning.Options{
		Author:  m.opts.Author,
		Logger:  m.log,
		Chunker: m.opts.Chunker,
		Branch:  branch,
		HeadRef: headPrefix + id,
	})
	if err != nil {
		return nil, err
	}
	if err := m.st.SetRef(recordPrefix+id, encodeRecord(branch, path)); err != nil {
		return nil, err
	}
	w := &Worktree{id: id, path: path, branch: branch, vs: vs}
	m.worktrees[id] = w
	m.log.Debug("added worktree", "id", id, "branch", branch, "path", path)
	return w, nil
}

// Worktree records hold the branch and the path label, newline separated.
// Branch names cannot contain newlines.
func encodeRecord(branch, path string) []byte {
	return []byte(branch + "\n" + path)
}

func decodeRecord(data []byte) (branch, path string) {
	s := string(data)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

// Remove deletes a worktree record. The main worktree and locked
// worktrees cannot be removed. The branch itself stays.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == MainID {
		return ErrRemoveMain
	}
	w, ok := m.worktrees[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrWorktreeNotFound, id)
	}
	if w.locked {
		return fmt.Errorf("%w: %s (%s)", ErrWorktreeLocked, id, w.lockReason)
	}
	if err := m.st.DeleteRef(recordPrefix + id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	delete(m.worktrees, id)
	m.log.Debug("removed worktree", "id", id)
	return nil
}

// Lock takes the advisory lock on a worktree. Locking an already locked
// worktree fails with ErrAlreadyLocked.
func (m *Manager) Lock(id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.worktrees[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrWorktreeNotFound, id)
	}
	if w.locked {
		return fmt.Errorf("%w: %s (%s)", ErrAlreadyLocked, id, w.lockReason)
	}
	if err := m.st.SetRef(lockPrefix+id, []byte(reason)); err != nil {
		return err
	}
	w.locked = true
	w.lockReason = reason
	return nil
}

// Unlock releases the advisory lock.
func (m *Manager) Unlock(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.worktrees[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrWorktreeNotFound, id)
	}
	if !w.locked {
		return fmt.Errorf("%w: %s", ErrNotLocked, id)
	}
	if err := m.st.DeleteRef(lockPrefix + id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	w.locked = false
	w.lockReason = ""
	return nil
}

// IsLocked reports whether a worktree is locked, and the reason.
func (m *Manager) IsLocked(id string) (bool, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.worktrees[id]
	if !ok {
		return false, "", fmt.Errorf("%w: %s", ErrWorktreeNotFound, id)
	}
	return w.locked, w.lockReason, nil
}

// MergeToMain merges a worktree's branch into main. The source worktree
// is locked for the duration of the merge.
func (m *Manager) MergeToMain(id, message string, res versioning.ConflictResolution) (*versioning.Commit, error) {
	return m.MergeBranch(id, MainID, message, res)
}

// MergeBranch merges the source worktree's branch into the target
// worktree's branch, using message for the merge commit. An empty message
// gets a default. The source is locked for the duration; a locked source
// or target rejects the merge.
func (m *Manager) MergeBranch(id, targetID, message string, res versioning.ConflictResolution) (*versioning.Commit, error) {
	m.mu.Lock()
	w, ok := m.worktrees[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrWorktreeNotFound, id)
	}
	target, ok := m.worktrees[targetID]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrWorktreeNotFound, targetID)
	}
	if id == targetID {
		m.mu.Unlock()
		return nil, fmt.Errorf("worktree: cannot merge %s into itself", id)
	}
	if w.locked {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s (%s)", ErrWorktreeLocked, id, w.lockReason)
	}
	if target.locked {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s (%s)", ErrWorktreeLocked, targetID, target.lockReason)
	}
	w.locked = true
	w.lockReason = "merging into " + target.branch
	m.mu.Unlock()

	c, err := target.vs.Merge(w.branch, message, res)

	m.mu.Lock()
	w.locked = false
	w.lockReason = ""
	m.mu.Unlock()
	return c, err
}
