// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package git provides typed access to the git CLI for the repository
// operations dispatch performs: resolving references to commits,
// reading worktree state, and creating ticket worktrees. All commands
// target a specific directory via the -C flag, which is automatically
// injected by all Repository methods, analogous to how lib/tmux
// injects -S for its server socket.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Repository represents a git repository (or worktree) at a specific
// directory. All operations target this directory via "git -C <dir>".
// There is no default directory; callers must always specify which
// repository they mean.
type Repository struct {
	dir string
}

// NewRepository returns a Repository targeting the given directory.
func NewRepository(dir string) *Repository {
	return &Repository{dir: dir}
}

// Dir returns the repository directory.
func (r *Repository) Dir() string {
	return r.dir
}

// Run executes a git command targeting this repository and returns
// stdout. Stderr is captured separately and included in error messages
// on failure.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	fullArgs := append([]string{"-C", r.dir}, args...)
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", fullArgs...)
	// Avoid background lock contention with concurrently-running
	// worktree operations.
	command.Env = append(os.Environ(), "GIT_OPTIONAL_LOCKS=0")
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("git %s in %s: %w (stderr: %s)",
			strings.Join(args, " "), r.dir, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// ResolveRoot returns the top-level directory of the working tree
// containing dir.
func ResolveRoot(ctx context.Context, dir string) (string, error) {
	output, err := NewRepository(dir).Run(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// ResolveCommit resolves a branch, tag, or commit reference to a full
// commit hash. Fails when the reference does not name a commit.
func (r *Repository) ResolveCommit(ctx context.Context, reference string) (string, error) {
	output, err := r.Run(ctx, "rev-parse", "--verify", reference+"^{commit}")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// Head returns the commit hash the repository's HEAD points at.
func (r *Repository) Head(ctx context.Context) (string, error) {
	output, err := r.Run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// CurrentBranch returns the short name of the checked-out branch, or
// "HEAD" when detached.
func (r *Repository) CurrentBranch(ctx context.Context) (string, error) {
	output, err := r.Run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// AddWorktree creates a new worktree at path, checked out on a fresh
// branch rooted at base (a commit hash or reference).
func (r *Repository) AddWorktree(ctx context.Context, path, branch, base string) error {
	_, err := r.Run(ctx, "worktree", "add", path, "-b", branch, base)
	return err
}
