// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package worktree_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/dispatch/lib/clock"
	"github.com/bureau-foundation/dispatch/lib/config"
	"github.com/bureau-foundation/dispatch/lib/git"
	"github.com/bureau-foundation/dispatch/lib/ticket"
	"github.com/bureau-foundation/dispatch/lib/worktree"
)

// newFixture creates a git repository with one commit, a config
// rooted inside it, and a ticket stub for each given slug.
func newFixture(t *testing.T, slugs ...string) *config.Config {
	t.Helper()
	repoRoot := t.TempDir()
	run(t, repoRoot, "git", "init", "-q", "-b", "main")
	run(t, repoRoot, "git", "config", "user.email", "test@example.com")
	run(t, repoRoot, "git", "config", "user.name", "test")
	if err := os.WriteFile(filepath.Join(repoRoot, "README"), []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	run(t, repoRoot, "git", "add", "README")
	run(t, repoRoot, "git", "commit", "-q", "-m", "initial")

	cfg := config.Default(repoRoot)
	cfg.FillDerived()
	if err := cfg.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	for _, slug := range slugs {
		writeStub(t, cfg, slug)
	}
	return cfg
}

func writeStub(t *testing.T, cfg *config.Config, slug string) {
	t.Helper()
	content := "---\ntitle: " + slug + "\nstatus: \n---\n\nBody.\n"
	if err := os.WriteFile(cfg.TicketPath(slug), []byte(content), 0o644); err != nil {
		t.Fatalf("writing ticket stub: %v", err)
	}
}

func run(t *testing.T, dir string, name string, args ...string) {
	t.Helper()
	command := exec.Command(name, args...)
	command.Dir = dir
	if output, err := command.CombinedOutput(); err != nil {
		t.Fatalf("%s %s: %v (%s)", name, strings.Join(args, " "), err, output)
	}
}

func TestProvisionFromBranch(t *testing.T) {
	cfg := newFixture(t, "demo")
	p := worktree.NewProvisioner(cfg, clock.Real())
	ctx := context.Background()

	if err := p.Provision(ctx, "demo", worktree.Options{Base: "main"}); err != nil {
		t.Fatalf("Provision: %v", err)
	}

	destination := cfg.WorktreePath("demo")
	branch, err := git.NewRepository(destination).CurrentBranch(ctx)
	if err != nil {
		t.Fatalf("CurrentBranch: %v", err)
	}
	if branch != "ticket/demo" {
		t.Errorf("worktree branch = %q, want ticket/demo", branch)
	}
	if _, err := os.Stat(filepath.Join(destination, "README")); err != nil {
		t.Errorf("worktree missing checked-out file: %v", err)
	}

	tk, err := ticket.Load(cfg.TicketPath("demo"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tk.Status() != ticket.StatusOpen {
		t.Errorf("status = %q, want open", tk.Status())
	}

	journal, err := os.ReadFile(cfg.JournalPath("demo"))
	if err != nil {
		t.Fatalf("reading journal: %v", err)
	}
	if !strings.Contains(string(journal), `"event":"provision"`) {
		t.Errorf("journal missing provision record: %s", journal)
	}
}

func TestProvisionInstallsTicketLink(t *testing.T) {
	cfg := newFixture(t, "demo")
	p := worktree.NewProvisioner(cfg, clock.Real())

	if err := p.Provision(context.Background(), "demo", worktree.Options{Base: "main"}); err != nil {
		t.Fatalf("Provision: %v", err)
	}

	link := filepath.Join(cfg.WorktreePath("demo"), cfg.TicketFolder)
	resolved, err := filepath.EvalSymlinks(link)
	if err != nil {
		t.Fatalf("resolving ticket link: %v", err)
	}
	want, _ := filepath.EvalSymlinks(cfg.TicketsDir)
	if resolved != want {
		t.Errorf("ticket link resolves to %q, want %q", resolved, want)
	}

	// A file visible through the link is the same file as in
	// TicketsDir.
	if _, err := os.Stat(filepath.Join(link, "demo.md")); err != nil {
		t.Errorf("ticket not visible through link: %v", err)
	}
}

func TestProvisionExistingWorktree(t *testing.T) {
	cfg := newFixture(t, "demo")
	p := worktree.NewProvisioner(cfg, clock.Real())
	ctx := context.Background()

	if err := p.Provision(ctx, "demo", worktree.Options{Base: "main"}); err != nil {
		t.Fatalf("first Provision: %v", err)
	}
	first, err := git.NewRepository(cfg.WorktreePath("demo")).Head(ctx)
	if err != nil {
		t.Fatalf("Head: %v", err)
	}

	err = p.Provision(ctx, "demo", worktree.Options{Base: "main"})
	if !errors.Is(err, worktree.ErrExists) {
		t.Fatalf("second Provision = %v, want ErrExists", err)
	}

	// The first worktree is untouched.
	after, err := git.NewRepository(cfg.WorktreePath("demo")).Head(ctx)
	if err != nil {
		t.Fatalf("Head after rejection: %v", err)
	}
	if after != first {
		t.Errorf("worktree HEAD changed from %q to %q", first, after)
	}
}

func TestProvisionOptionValidation(t *testing.T) {
	cfg := newFixture(t, "demo")
	p := worktree.NewProvisioner(cfg, clock.Real())
	ctx := context.Background()

	cases := []struct {
		name string
		opts worktree.Options
	}{
		{"neither base nor inherit", worktree.Options{}},
		{"both base and inherit", worktree.Options{Base: "main", InheritFrom: "other"}},
		{"copies without inherit", worktree.Options{Base: "main", Copies: []string{"a"}}},
		{"empty copy source", worktree.Options{InheritFrom: "other", Copies: []string{":dst"}}},
	}
	for _, tc := range cases {
		err := p.Provision(ctx, "demo", tc.opts)
		if !errors.Is(err, worktree.ErrInvalidRequest) {
			t.Errorf("%s: Provision = %v, want ErrInvalidRequest", tc.name, err)
		}
	}

	if err := p.Provision(ctx, "Bad Slug", worktree.Options{Base: "main"}); !errors.Is(err, ticket.ErrInvalidSlug) {
		t.Errorf("bad slug: Provision = %v, want ErrInvalidSlug", err)
	}
	if _, err := os.Stat(cfg.WorktreePath("demo")); !os.IsNotExist(err) {
		t.Error("rejected requests created a worktree")
	}
}

func TestProvisionUnknownBase(t *testing.T) {
	cfg := newFixture(t, "demo")
	p := worktree.NewProvisioner(cfg, clock.Real())

	err := p.Provision(context.Background(), "demo", worktree.Options{Base: "no-such-ref"})
	if !errors.Is(err, worktree.ErrBaseNotFound) {
		t.Fatalf("Provision = %v, want ErrBaseNotFound", err)
	}
}

func TestProvisionMissingTicket(t *testing.T) {
	cfg := newFixture(t)
	p := worktree.NewProvisioner(cfg, clock.Real())

	err := p.Provision(context.Background(), "demo", worktree.Options{Base: "main"})
	if !errors.Is(err, ticket.ErrNotFound) {
		t.Fatalf("Provision = %v, want ErrNotFound", err)
	}
}

func TestProvisionInheritWithCopies(t *testing.T) {
	cfg := newFixture(t, "parent", "child")
	p := worktree.NewProvisioner(cfg, clock.Real())
	ctx := context.Background()

	if err := p.Provision(ctx, "parent", worktree.Options{Base: "main"}); err != nil {
		t.Fatalf("provisioning parent: %v", err)
	}

	// An untracked file in the parent worktree, reachable only via
	// copy.
	notes := filepath.Join(cfg.WorktreePath("parent"), "notes.txt")
	if err := os.WriteFile(notes, []byte("scratch\n"), 0o644); err != nil {
		t.Fatalf("writing notes: %v", err)
	}

	opts := worktree.Options{
		InheritFrom: "parent",
		Copies:      []string{"notes.txt", "README:docs/README"},
	}
	if err := p.Provision(ctx, "child", opts); err != nil {
		t.Fatalf("provisioning child: %v", err)
	}

	childTree := cfg.WorktreePath("child")
	data, err := os.ReadFile(filepath.Join(childTree, "notes.txt"))
	if err != nil {
		t.Fatalf("copied file missing: %v", err)
	}
	if string(data) != "scratch\n" {
		t.Errorf("copied content = %q", data)
	}
	if _, err := os.Stat(filepath.Join(childTree, "docs", "README")); err != nil {
		t.Errorf("renamed copy missing: %v", err)
	}

	// Child HEAD matches parent HEAD.
	parentHead, _ := git.NewRepository(cfg.WorktreePath("parent")).Head(ctx)
	childHead, _ := git.NewRepository(childTree).Head(ctx)
	if childHead != parentHead {
		t.Errorf("child HEAD = %q, want parent HEAD %q", childHead, parentHead)
	}
}

func TestProvisionInheritSourceMissing(t *testing.T) {
	cfg := newFixture(t, "child")
	p := worktree.NewProvisioner(cfg, clock.Real())

	err := p.Provision(context.Background(), "child", worktree.Options{InheritFrom: "parent"})
	if !errors.Is(err, worktree.ErrSourceMissing) {
		t.Fatalf("Provision = %v, want ErrSourceMissing", err)
	}
}

func TestProvisionCopySourceMissing(t *testing.T) {
	cfg := newFixture(t, "parent", "child")
	p := worktree.NewProvisioner(cfg, clock.Real())
	ctx := context.Background()

	if err := p.Provision(ctx, "parent", worktree.Options{Base: "main"}); err != nil {
		t.Fatalf("provisioning parent: %v", err)
	}

	opts := worktree.Options{InheritFrom: "parent", Copies: []string{"no-such-file"}}
	err := p.Provision(ctx, "child", opts)
	if !errors.Is(err, worktree.ErrCopySourceMissing) {
		t.Fatalf("Provision = %v, want ErrCopySourceMissing", err)
	}
}

func TestProvisionBaseSlugWinsOverRef(t *testing.T) {
	cfg := newFixture(t, "parent", "child")
	p := worktree.NewProvisioner(cfg, clock.Real())
	ctx := context.Background()

	if err := p.Provision(ctx, "parent", worktree.Options{Base: "main"}); err != nil {
		t.Fatalf("provisioning parent: %v", err)
	}

	// Advance the parent worktree's branch past main. A later
	// provision naming "parent" as base must start from the parent
	// worktree HEAD, not from any same-named ref in the repository.
	parentTree := cfg.WorktreePath("parent")
	if err := os.WriteFile(filepath.Join(parentTree, "extra"), []byte("x\n"), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	run(t, parentTree, "git", "add", "extra")
	run(t, parentTree, "git", "commit", "-q", "-m", "parent work")

	if err := p.Provision(ctx, "child", worktree.Options{Base: "parent"}); err != nil {
		t.Fatalf("provisioning child: %v", err)
	}

	parentHead, _ := git.NewRepository(parentTree).Head(ctx)
	childHead, _ := git.NewRepository(cfg.WorktreePath("child")).Head(ctx)
	if childHead != parentHead {
		t.Errorf("child HEAD = %q, want parent worktree HEAD %q", childHead, parentHead)
	}
}

func TestProvisionHookRunsInWorktree(t *testing.T) {
	cfg := newFixture(t, "demo")
	cfg.Hooks.Provision = "pwd > hook_ran.txt"
	p := worktree.NewProvisioner(cfg, clock.Real())

	if err := p.Provision(context.Background(), "demo", worktree.Options{Base: "main"}); err != nil {
		t.Fatalf("Provision: %v", err)
	}

	marker := filepath.Join(cfg.WorktreePath("demo"), "hook_ran.txt")
	data, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("hook did not run: %v", err)
	}
	got, _ := filepath.EvalSymlinks(strings.TrimSpace(string(data)))
	want, _ := filepath.EvalSymlinks(cfg.WorktreePath("demo"))
	if got != want {
		t.Errorf("hook ran in %q, want %q", got, want)
	}
}

func TestProvisionHookFailure(t *testing.T) {
	cfg := newFixture(t, "demo")
	cfg.Hooks.Provision = "exit 3"
	p := worktree.NewProvisioner(cfg, clock.Real())

	err := p.Provision(context.Background(), "demo", worktree.Options{Base: "main"})
	if err == nil {
		t.Fatal("Provision succeeded despite failing hook")
	}

	// The worktree survives the hook failure; only the hook error
	// propagates.
	if _, statErr := os.Stat(cfg.WorktreePath("demo")); statErr != nil {
		t.Errorf("worktree missing after hook failure: %v", statErr)
	}
}

func TestEnsureLink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	if err := os.MkdirAll(target, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	link := filepath.Join(dir, "nested", "link")

	if err := worktree.EnsureLink(link, target); err != nil {
		t.Fatalf("EnsureLink: %v", err)
	}
	// Identical link is a no-op.
	if err := worktree.EnsureLink(link, target); err != nil {
		t.Fatalf("EnsureLink repeat: %v", err)
	}

	// A different target conflicts.
	other := filepath.Join(dir, "other")
	if err := os.MkdirAll(other, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := worktree.EnsureLink(link, other); !errors.Is(err, worktree.ErrLinkConflict) {
		t.Errorf("EnsureLink with new target = %v, want ErrLinkConflict", err)
	}

	// A plain directory at the link path conflicts.
	occupied := filepath.Join(dir, "occupied")
	if err := os.MkdirAll(occupied, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := worktree.EnsureLink(occupied, target); !errors.Is(err, worktree.ErrLinkConflict) {
		t.Errorf("EnsureLink over directory = %v, want ErrLinkConflict", err)
	}
}
