// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package git_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/dispatch/lib/git"
)

// initRepo creates a git repository with one commit and returns its
// path.
func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run(t, dir, "git", "init", "-q", "-b", "main")
	run(t, dir, "git", "config", "user.email", "test@example.com")
	run(t, dir, "git", "config", "user.name", "test")
	if err := os.WriteFile(filepath.Join(dir, "README"), []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	run(t, dir, "git", "add", "README")
	run(t, dir, "git", "commit", "-q", "-m", "initial")
	return dir
}

func run(t *testing.T, dir string, name string, args ...string) {
	t.Helper()
	command := exec.Command(name, args...)
	command.Dir = dir
	if output, err := command.CombinedOutput(); err != nil {
		t.Fatalf("%s %s: %v (%s)", name, strings.Join(args, " "), err, output)
	}
}

func TestResolveRoot(t *testing.T) {
	dir := initRepo(t)

	sub := filepath.Join(dir, "a", "b")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	root, err := git.ResolveRoot(context.Background(), sub)
	if err != nil {
		t.Fatalf("ResolveRoot: %v", err)
	}
	// Resolve symlinks on both sides: macOS tempdirs live under /var
	// which links to /private/var.
	wantResolved, _ := filepath.EvalSymlinks(dir)
	gotResolved, _ := filepath.EvalSymlinks(root)
	if gotResolved != wantResolved {
		t.Errorf("ResolveRoot = %q, want %q", root, dir)
	}
}

func TestResolveCommit(t *testing.T) {
	dir := initRepo(t)
	repo := git.NewRepository(dir)
	ctx := context.Background()

	head, err := repo.Head(ctx)
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if len(head) != 40 {
		t.Fatalf("Head = %q, want a full hash", head)
	}

	fromBranch, err := repo.ResolveCommit(ctx, "main")
	if err != nil {
		t.Fatalf("ResolveCommit(main): %v", err)
	}
	if fromBranch != head {
		t.Errorf("ResolveCommit(main) = %q, want %q", fromBranch, head)
	}

	if _, err := repo.ResolveCommit(ctx, "no-such-ref"); err == nil {
		t.Error("ResolveCommit of unknown reference succeeded")
	}
}

func TestCurrentBranch(t *testing.T) {
	dir := initRepo(t)
	branch, err := git.NewRepository(dir).CurrentBranch(context.Background())
	if err != nil {
		t.Fatalf("CurrentBranch: %v", err)
	}
	if branch != "main" {
		t.Errorf("CurrentBranch = %q, want main", branch)
	}
}

func TestAddWorktree(t *testing.T) {
	dir := initRepo(t)
	repo := git.NewRepository(dir)
	ctx := context.Background()

	worktree := filepath.Join(t.TempDir(), "wt")
	if err := repo.AddWorktree(ctx, worktree, "ticket/demo", "main"); err != nil {
		t.Fatalf("AddWorktree: %v", err)
	}

	branch, err := git.NewRepository(worktree).CurrentBranch(ctx)
	if err != nil {
		t.Fatalf("CurrentBranch in worktree: %v", err)
	}
	if branch != "ticket/demo" {
		t.Errorf("worktree branch = %q, want ticket/demo", branch)
	}

	if _, err := os.Stat(filepath.Join(worktree, "README")); err != nil {
		t.Errorf("worktree missing checked-out file: %v", err)
	}
}

func TestRunReportsStderr(t *testing.T) {
	dir := initRepo(t)
	_, err := git.NewRepository(dir).Run(context.Background(), "rev-parse", "--verify", "bogus^{commit}")
	if err == nil {
		t.Fatal("expected error for bogus reference")
	}
	if !strings.Contains(err.Error(), "stderr") {
		t.Errorf("error %q does not carry stderr diagnostics", err)
	}
}
