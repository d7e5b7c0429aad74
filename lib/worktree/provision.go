// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package worktree provisions the isolated git working tree a ticket's
// agent runs in.
//
// Each ticket gets exactly one worktree, at a path derived from the
// slug, checked out on a fresh branch "ticket/<slug>". The base commit
// comes from an explicit reference (branch, tag, commit, or another
// provisioned slug, whose worktree HEAD is used) or is inherited from
// another slug's worktree, optionally with file copies out of that
// tree. Provisioning is deliberately not idempotent: an existing
// worktree is an error, and deletion is out of scope.
package worktree

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/dispatch/lib/clock"
	"github.com/bureau-foundation/dispatch/lib/config"
	"github.com/bureau-foundation/dispatch/lib/git"
	"github.com/bureau-foundation/dispatch/lib/hook"
	"github.com/bureau-foundation/dispatch/lib/journal"
	"github.com/bureau-foundation/dispatch/lib/ticket"
)

// ErrInvalidRequest is returned for a provisioning request that is
// structurally wrong before any mutation: neither or both of base and
// inherit-from supplied, copies without an inherit source, or a
// malformed copy spec.
var ErrInvalidRequest = errors.New("invalid provision request")

// ErrExists is returned when the destination worktree path is already
// present. There is no implicit reuse.
var ErrExists = errors.New("worktree already exists")

// ErrSourceMissing is returned when the inherit-from slug has no
// worktree.
var ErrSourceMissing = errors.New("inherit source worktree missing")

// ErrBaseNotFound is returned when the explicit base reference cannot
// be resolved to a commit.
var ErrBaseNotFound = errors.New("base reference not found")

// ErrCopySourceMissing is returned when a requested copy's source path
// does not exist in the inherited worktree.
var ErrCopySourceMissing = errors.New("copy source missing")

// ErrLinkConflict is returned when the shared-tickets symlink path is
// occupied by something other than the expected link.
var ErrLinkConflict = errors.New("ticket folder path conflict")

// Options selects the base for a new worktree. Exactly one of Base or
// InheritFrom must be set. Copies are source-relative paths
// ("src" or "src:dst") taken from the inherited worktree.
type Options struct {
	Base        string
	InheritFrom string
	Copies      []string
}

// Provisioner creates ticket worktrees.
type Provisioner struct {
	cfg   *config.Config
	repo  *git.Repository
	clock clock.Clock
}

// NewProvisioner returns a Provisioner for the configured repository.
func NewProvisioner(cfg *config.Config, clk clock.Clock) *Provisioner {
	return &Provisioner{
		cfg:   cfg,
		repo:  git.NewRepository(cfg.RepoRoot),
		clock: clk,
	}
}

// Provision creates the worktree and branch for slug, installs the
// shared-tickets symlink, applies copies, marks the ticket open,
// journals the provision event, and runs the provisioning hook.
//
// Validation failures (bad slug, bad options, existing worktree,
// unresolvable base) reject the request before any mutation. A hook
// failure propagates after the worktree has been created; the worktree
// and branch are not rolled back.
func (p *Provisioner) Provision(ctx context.Context, slug string, opts Options) error {
	if err := ticket.ValidateSlug(slug); err != nil {
		return err
	}
	if (opts.Base == "") == (opts.InheritFrom == "") {
		return fmt.Errorf("%w: exactly one of --base or --inherit-from is required", ErrInvalidRequest)
	}
	if len(opts.Copies) > 0 && opts.InheritFrom == "" {
		return fmt.Errorf("%w: --copy requires --inherit-from to define the source worktree", ErrInvalidRequest)
	}
	copies, err := parseCopies(opts.Copies)
	if err != nil {
		return err
	}

	ticketPath := p.cfg.TicketPath(slug)
	stub, err := ticket.Load(ticketPath)
	if err != nil {
		return err
	}

	destination := p.cfg.WorktreePath(slug)
	if _, err := os.Stat(destination); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, destination)
	}

	base, sourceWorktree, err := p.resolveBase(ctx, opts)
	if err != nil {
		return err
	}

	branch := p.cfg.BranchName(slug)
	if err := p.repo.AddWorktree(ctx, destination, branch, base); err != nil {
		return err
	}

	if err := EnsureLink(filepath.Join(destination, p.cfg.TicketFolder), p.cfg.TicketsDir); err != nil {
		return err
	}

	for _, copy := range copies {
		if err := applyCopy(sourceWorktree, destination, copy); err != nil {
			return err
		}
	}

	stub.SetStatus(ticket.StatusOpen)
	if err := stub.Save(); err != nil {
		return err
	}
	body := fmt.Sprintf("branch=%s worktree=%s", branch, destination)
	if err := journal.Append(p.cfg.JournalPath(slug), journal.EventProvision, nil, body, p.clock.Now()); err != nil {
		return err
	}

	return hook.Run(ctx, "provision", p.cfg.Hooks.Provision, destination)
}

// resolveBase turns the Options into a concrete commit. For inherit,
// the source worktree's HEAD is used and the worktree path is returned
// for copies. For an explicit base that names a provisioned slug, that
// slug's worktree HEAD wins over treating the name as a literal
// reference.
func (p *Provisioner) resolveBase(ctx context.Context, opts Options) (commit, sourceWorktree string, err error) {
	if opts.InheritFrom != "" {
		if err := ticket.ValidateSlug(opts.InheritFrom); err != nil {
			return "", "", err
		}
		source := p.cfg.WorktreePath(opts.InheritFrom)
		if _, err := os.Stat(source); err != nil {
			return "", "", fmt.Errorf("%w: %s", ErrSourceMissing, source)
		}
		head, err := git.NewRepository(source).Head(ctx)
		if err != nil {
			return "", "", err
		}
		return head, source, nil
	}

	if ticket.ValidSlug(opts.Base) {
		if source := p.cfg.WorktreePath(opts.Base); dirExists(source) {
			head, err := git.NewRepository(source).Head(ctx)
			if err != nil {
				return "", "", err
			}
			return head, "", nil
		}
	}
	commit, err = p.repo.ResolveCommit(ctx, opts.Base)
	if err != nil {
		return "", "", fmt.Errorf("%w: %q", ErrBaseNotFound, opts.Base)
	}
	return commit, "", nil
}

// copySpec is one parsed copy request.
type copySpec struct {
	source      string
	destination string
}

// parseCopies splits "src[:dst]" specs, defaulting dst to src.
func parseCopies(specs []string) ([]copySpec, error) {
	var copies []copySpec
	for _, spec := range specs {
		source, destination, found := strings.Cut(spec, ":")
		if !found {
			destination = source
		}
		if source == "" || destination == "" {
			return nil, fmt.Errorf("%w: malformed copy spec %q", ErrInvalidRequest, spec)
		}
		copies = append(copies, copySpec{source: source, destination: destination})
	}
	return copies, nil
}

// applyCopy copies one file or directory from the inherited worktree
// into the new one, preserving attributes.
func applyCopy(sourceWorktree, destination string, copy copySpec) error {
	sourcePath := filepath.Join(sourceWorktree, copy.source)
	if _, err := os.Stat(sourcePath); err != nil {
		return fmt.Errorf("%w: %s", ErrCopySourceMissing, sourcePath)
	}
	destinationPath := filepath.Join(destination, copy.destination)
	if err := os.MkdirAll(filepath.Dir(destinationPath), 0o755); err != nil {
		return fmt.Errorf("creating copy destination: %w", err)
	}
	cmd := exec.Command("cp", "-a", sourcePath, destinationPath)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("copying %s: %w (%s)",
			copy.source, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// EnsureLink installs a symlink at link pointing to target. An
// existing identical link is a no-op; anything else occupying the path
// is ErrLinkConflict. Parent directories are created as needed.
func EnsureLink(link, target string) error {
	if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
		return fmt.Errorf("creating link parent: %w", err)
	}

	info, err := os.Lstat(link)
	if err == nil {
		if info.Mode()&os.ModeSymlink == 0 {
			return fmt.Errorf("%w: %s exists and is not a symlink", ErrLinkConflict, link)
		}
		current, resolveErr := filepath.EvalSymlinks(link)
		expected, expectedErr := filepath.EvalSymlinks(target)
		if resolveErr != nil || expectedErr != nil || current != expected {
			return fmt.Errorf("%w: %s points elsewhere", ErrLinkConflict, link)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("inspecting %s: %w", link, err)
	}

	if err := os.Symlink(target, link); err != nil {
		return fmt.Errorf("creating symlink %s: %w", link, err)
	}
	return nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
