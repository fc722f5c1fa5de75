package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/zhangfengcdt/prollytree"
	"github.com/zhangfengcdt/prollytree/pkg/tree"
	"github.com/zhangfengcdt/prollytree/pkg/versioning"
)

func usage() {
	fmt.Println("Usage: prolly [-data <dir>] [-config <file>] <command> [arguments]")
	fmt.Println("Commands:")
	fmt.Println("  get <key>")
	fmt.Println("  set <key> <value>")
	fmt.Println("  delete <key>")
	fmt.Println("  commit <message>")
	fmt.Println("  status")
	fmt.Println("  log")
	fmt.Println("  branch [name]           list branches, or create one and switch to it")
	fmt.Println("  branch -d <name>        delete a branch")
	fmt.Println("  checkout <name>")
	fmt.Println("  merge [-take-source] [-m <message>] <revision>")
	fmt.Println("  diff <from> <to>")
	fmt.Println("  prove <key>")
	fmt.Println("  worktree list")
	fmt.Println("  worktree add <path> <branch>")
	fmt.Println("  worktree remove|lock|unlock <id> ...")
	fmt.Println("  worktree merge <id> [message]")
	os.Exit(1)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func main() {
	dataDir := flag.String("data", "", "data directory (empty for in-memory)")
	configPath := flag.String("config", "", "YAML config file")
	author := flag.String("author", "", "commit author")
	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		usage()
	}

	conf := prollytree.Config{Path: *dataDir, Author: *author}
	if *configPath != "" {
		loaded, err := prollytree.LoadConfig(*configPath)
		if err != nil {
			fatal("Error loading config: %v", err)
		}
		conf = loaded
		if *dataDir != "" {
			conf.Path = *dataDir
		}
		if *author != "" {
			conf.Author = *author
		}
	}

	db, err := prollytree.New(conf)
	if err != nil {
		fatal("Error opening database: %v", err)
	}
	defer db.Close()

	switch args[0] {
	case "get":
		if len(args) < 2 {
			usage()
		}
		v, err := db.Get([]byte(args[1]))
		if err != nil {
			fatal("Error: %v", err)
		}
		fmt.Println(string(v))

	case "set":
		if len(args) < 3 {
			usage()
		}
		if err := db.Set([]byte(args[1]), []byte(args[2])); err != nil {
			fatal("Error: %v", err)
		}

	case "delete":
		if len(args) < 2 {
			usage()
		}
		if err := db.Delete([]byte(args[1])); err != nil {
			fatal("Error: %v", err)
		}

	case "commit":
		if len(args) < 2 {
			usage()
		}
		c, err := db.Commit(args[1])
		if err != nil {
			fatal("Error: %v", err)
		}
		fmt.Printf("[%s %s] %s\n", db.Main().CurrentBranch(), c.ID.Short(), c.Message)

	case "status":
		vs := db.Main()
		fmt.Printf("On branch %s\n", vs.CurrentBranch())
		ops := vs.Status()
		if len(ops) == 0 {
			fmt.Println("nothing to commit, working tree clean")
			break
		}
		for _, op := range ops {
			switch {
			case op.Delete:
				fmt.Printf("  deleted:  %s\n", op.Key)
			case op.Existed:
				fmt.Printf("  modified: %s\n", op.Key)
			default:
				fmt.Printf("  new:      %s\n", op.Key)
			}
		}

	case "log":
		commits, err := db.Main().Log()
		if err != nil {
			fatal("Error: %v", err)
		}
		for _, c := range commits {
			fmt.Printf("commit %s\n", c.ID.Hex())
			if c.IsMerge() {
				fmt.Printf("Merge: %s %s\n", c.Parents[0].Short(), c.Parents[1].Short())
			}
			fmt.Printf("Author: %s\nDate:   %s\n\n    %s\n\n", c.Author, c.Timestamp.Format("Mon Jan 2 15:04:05 2006"), c.Message)
		}

	case "branch":
		branchCmd(db, args[1:])

	case "checkout":
		if len(args) < 2 {
			usage()
		}
		if err := db.Main().Checkout(args[1]); err != nil {
			fatal("Error: %v", err)
		}
		fmt.Printf("Switched to branch %s\n", args[1])

	case "merge":
		mergeCmd := flag.NewFlagSet("merge", flag.ExitOnError)
		takeSource := mergeCmd.Bool("take-source", false, "resolve conflicts in favor of the source")
		message := mergeCmd.String("m", "", "merge commit message")
		mergeCmd.Parse(args[1:])
		if mergeCmd.NArg() < 1 {
			usage()
		}
		res := versioning.IgnoreAll
		if *takeSource {
			res = versioning.TakeSource
		}
		c, err := db.Main().Merge(mergeCmd.Arg(0), *message, res)
		if err != nil {
			fatal("Error: %v", err)
		}
		fmt.Printf("Merged %s, now at %s\n", mergeCmd.Arg(0), c.ID.Short())

	case "diff":
		if len(args) < 3 {
			usage()
		}
		entries, err := db.Main().Diff(args[1], args[2])
		if err != nil {
			fatal("Error: %v", err)
		}
		for _, e := range entries {
			switch e.Op {
			case tree.DiffAdded:
				fmt.Printf("+ %s = %s\n", e.Key, e.NewValue)
			case tree.DiffRemoved:
				fmt.Printf("- %s\n", e.Key)
			case tree.DiffModified:
				fmt.Printf("~ %s = %s (was %s)\n", e.Key, e.NewValue, e.OldValue)
			}
		}

	case "prove":
		if len(args) < 2 {
			usage()
		}
		proof, root, err := db.Prove([]byte(args[1]))
		if err != nil {
			fatal("Error: %v", err)
		}
		fmt.Printf("root:   %s\nlevels: %d\n", root.Hex(), len(proof.Steps))
		v, err := db.Get([]byte(args[1]))
		if err != nil {
			fatal("Error: %v", err)
		}
		fmt.Printf("verify: %v\n", proof.Verify(root, []byte(args[1]), v))

	case "worktree":
		worktreeCmd(db, args[1:])

	default:
		usage()
	}
}

func branchCmd(db *prollytree.DB, args []string) {
	vs := db.Main()
	if len(args) == 0 {
		branches, err := vs.ListBranches()
		if err != nil {
			fatal("Error: %v", err)
		}
		for _, b := range branches {
			marker := "  "
			if b == vs.CurrentBranch() {
				marker = "* "
			}
			fmt.Println(marker + b)
		}
		return
	}
	if args[0] == "-d" {
		if len(args) < 2 {
			usage()
		}
		if err := vs.DeleteBranch(args[1]); err != nil {
			fatal("Error: %v", err)
		}
		fmt.Printf("Deleted branch %s\n", args[1])
		return
	}
	if err := vs.CreateBranch(args[0]); err != nil {
		fatal("Error: %v", err)
	}
	fmt.Printf("Switched to new branch %s\n", args[0])
}

func worktreeCmd(db *prollytree.DB, args []string) {
	mgr := db.Worktrees()
	if len(args) == 0 {
		usage()
	}
	switch args[0] {
	case "list":
		for _, w := range mgr.List() {
			line := fmt.Sprintf("%s  %s", w.ID(), w.Branch())
			if w.Path() != "" {
				line += "  " + w.Path()
			}
			if locked, reason := w.Locked(); locked {
				line += fmt.Sprintf("  (locked: %s)", reason)
			}
			fmt.Println(line)
		}
	case "add":
		if len(args) < 3 {
			usage()
		}
		w, err := mgr.Add(args[1], args[2], false)
		if errors.Is(err, versioning.ErrBranchNotFound) {
			w, err = mgr.Add(args[1], args[2], true)
		}
		if err != nil {
			fatal("Error: %v", err)
		}
		fmt.Printf("Added worktree %s on branch %s\n", w.ID(), w.Branch())
	case "remove":
		if len(args) < 2 {
			usage()
		}
		if err := mgr.Remove(args[1]); err != nil {
			fatal("Error: %v", err)
		}
	case "lock":
		if len(args) < 3 {
			usage()
		}
		if err := mgr.Lock(args[1], args[2]); err != nil {
			fatal("Error: %v", err)
		}
	case "unlock":
		if len(args) < 2 {
			usage()
		}
		if err := mgr.Unlock(args[1]); err != nil {
			fatal("Error: %v", err)
		}
	case "merge":
		if len(args) < 2 {
			usage()
		}
		message := ""
		if len(args) > 2 {
			message = args[2]
		}
		c, err := mgr.MergeToMain(args[1], message, versioning.IgnoreAll)
		if err != nil {
			fatal("Error: %v", err)
		}
		fmt.Printf("Merged worktree %s into main, now at %s\n", args[1], c.ID.Short())
	default:
		usage()
	}
}
