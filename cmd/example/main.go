package main

import (
	"fmt"
	"log"

	"github.com/zhangfengcdt/prollytree"
	"github.com/zhangfengcdt/prollytree/pkg/versioning"
)

func main() {
	fmt.Println("prollytree example: versioned key-value storage with merges")

	db, err := prollytree.New(prollytree.Config{Author: "example"})
	if err != nil {
		log.Fatalf("Failed to open database: %s", err)
	}
	defer db.Close()

	// Write some data on main and commit it.
	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("user:%d", i)
		if err := db.Set([]byte(key), []byte(fmt.Sprintf("name-%d", i))); err != nil {
			log.Fatalf("Set: %s", err)
		}
	}
	base, err := db.Commit("seed users")
	if err != nil {
		log.Fatalf("Commit: %s", err)
	}
	fmt.Printf("committed %s on %s\n", base.ID.Short(), db.Main().CurrentBranch())

	// Every entry carries a verifiable Merkle proof.
	proof, root, err := db.Prove([]byte("user:3"))
	if err != nil {
		log.Fatalf("Prove: %s", err)
	}
	fmt.Printf("proof for user:3 verifies: %v\n", proof.Verify(root, []byte("user:3"), []byte("name-3")))

	// Do divergent work in an isolated worktree.
	w, err := db.Worktrees().Add("/tmp/rename-users", "rename-users", true)
	if err != nil {
		log.Fatalf("Add worktree: %s", err)
	}
	if err := w.Store().Insert([]byte("user:3"), []byte("renamed-3")); err != nil {
		log.Fatalf("Insert: %s", err)
	}
	if _, err := w.Store().Commit("rename user 3"); err != nil {
		log.Fatalf("Commit: %s", err)
	}

	// Meanwhile main moves on too.
	if err := db.Set([]byte("user:10"), []byte("name-10")); err != nil {
		log.Fatalf("Set: %s", err)
	}
	if _, err := db.Commit("add user 10"); err != nil {
		log.Fatalf("Commit: %s", err)
	}

	// Check the merge before doing it, then merge.
	ok, conflicts, err := db.Main().TryMerge(w.Branch())
	if err != nil {
		log.Fatalf("TryMerge: %s", err)
	}
	fmt.Printf("merge is clean: %v (%d conflicts)\n", ok, len(conflicts))

	merge, err := db.Worktrees().MergeToMain(w.ID(), "Merge user renames", versioning.IgnoreAll)
	if err != nil {
		log.Fatalf("MergeToMain: %s", err)
	}
	fmt.Printf("merge commit %s\n", merge.ID.Short())

	renamed, err := db.Get([]byte("user:3"))
	if err != nil {
		log.Fatalf("Get: %s", err)
	}
	fmt.Printf("user:3 is now %q\n", renamed)

	// Show what changed between the seed commit and the current head.
	entries, err := db.Main().Diff(base.ID.Hex(), db.Main().CurrentBranch())
	if err != nil {
		log.Fatalf("Diff: %s", err)
	}
	fmt.Println("changes since the seed commit:")
	for _, e := range entries {
		fmt.Printf("  %s %s\n", e.Op, e.Key)
	}
}
