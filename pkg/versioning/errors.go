package versioning

import "errors"

var (
	ErrBranchExists       = errors.New("versioning: branch already exists")
	ErrBranchNotFound     = errors.New("versioning: branch not found")
	ErrRefNotFound        = errors.New("versioning: ref not found")
	ErrAmbiguousRef       = errors.New("versioning: ref prefix matches multiple commits")
	ErrNothingToCommit    = errors.New("versioning: nothing to commit")
	ErrUncommittedChanges = errors.New("versioning: uncommitted changes")
	ErrNoCommonAncestor   = errors.New("versioning: commits share no common ancestor")
	ErrInvalidMergeTarget = errors.New("versioning: invalid merge target")
)
