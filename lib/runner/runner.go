// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package runner supervises a single agent run for a ticket.
//
// A run occupies one tmux window, named after the ticket slug, in
// which the agent executes with the ticket's worktree as working
// directory. The runner bumps the turn counter, journals start and
// final records, polls the window until it exits or the time budget
// runs out, and fires the lifecycle hooks. One window per slug is an
// invariant: a second run for a slug whose window is still alive is
// rejected before any state changes.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/dispatch/lib/clock"
	"github.com/bureau-foundation/dispatch/lib/config"
	"github.com/bureau-foundation/dispatch/lib/hook"
	"github.com/bureau-foundation/dispatch/lib/journal"
	"github.com/bureau-foundation/dispatch/lib/ticket"
	"github.com/bureau-foundation/dispatch/lib/tmux"
	"github.com/bureau-foundation/dispatch/lib/worktree"
)

// ErrWorktreeMissing is returned when the slug has no provisioned
// worktree.
var ErrWorktreeMissing = errors.New("worktree missing")

// ErrWindowActive is returned when a tmux window for the slug is
// already running. The existing run is left alone.
var ErrWindowActive = errors.New("window already active")

// ErrRunTimeout is returned when the run exceeded its time budget and
// the window was killed. The ticket status has already been persisted
// as stopped when this is returned.
var ErrRunTimeout = errors.New("run exceeded timeout")

// runDirName is the per-worktree directory holding run artifacts: the
// agent's last-message file and the teed event streams.
const runDirName = ".dispatch"

// Runner executes agent runs inside tmux windows.
type Runner struct {
	cfg    *config.Config
	server *tmux.Server
	clock  clock.Clock
	logger *slog.Logger
}

// New returns a Runner that launches windows on the given server.
func New(cfg *config.Config, server *tmux.Server, clk clock.Clock, logger *slog.Logger) *Runner {
	return &Runner{cfg: cfg, server: server, clock: clk, logger: logger}
}

// Run executes one agent run for slug and blocks until the window
// exits or is killed for exceeding the time budget.
//
// Preconditions (worktree present, no live window) are checked before
// any mutation; a rejected run leaves the ticket untouched. After the
// window launches, the run always terminates in a persisted status:
// done on normal exit, stopped on timeout (with ErrRunTimeout
// returned after persisting). A start or before-run hook failure
// aborts the launch and leaves the ticket active with no final
// record, so the interrupted run stays visible to the operator.
func (r *Runner) Run(ctx context.Context, slug, message string) error {
	if err := ticket.ValidateSlug(slug); err != nil {
		return err
	}
	worktreePath := r.cfg.WorktreePath(slug)
	if _, err := os.Stat(worktreePath); err != nil {
		return fmt.Errorf("%w: %s", ErrWorktreeMissing, worktreePath)
	}
	if r.server.HasWindow(r.cfg.Session, slug) {
		return fmt.Errorf("%w: %s", ErrWindowActive, slug)
	}

	if err := worktree.EnsureLink(filepath.Join(worktreePath, r.cfg.TicketFolder), r.cfg.TicketsDir); err != nil {
		return err
	}

	tk, err := ticket.Load(r.cfg.TicketPath(slug))
	if err != nil {
		return err
	}
	turn := tk.BumpTurn()
	tk.SetStatus(ticket.StatusActive)
	if err := tk.Save(); err != nil {
		return err
	}
	if err := journal.Append(r.cfg.JournalPath(slug), journal.EventStart, journal.Turn(turn), message, r.clock.Now()); err != nil {
		return err
	}

	if err := hook.Run(ctx, "start", r.cfg.Hooks.Start, worktreePath); err != nil {
		return err
	}
	if err := hook.Run(ctx, "before_run", r.cfg.Hooks.BeforeRun, worktreePath); err != nil {
		return err
	}

	runDir := filepath.Join(worktreePath, runDirName)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("creating run directory: %w", err)
	}
	lastMessage := filepath.Join(runDir, "last_message.txt")
	// Stale output from a previous turn must not leak into this
	// run's final record.
	if err := os.Remove(lastMessage); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clearing last message: %w", err)
	}
	events := filepath.Join(runDir, "events."+r.clock.Now().UTC().Format("2006-01-02T150405Z")+".jsonl")

	prompt := buildPrompt(slug, worktreePath, r.cfg.BranchName(slug), r.cfg.TicketFolder, message)
	command := fmt.Sprintf(
		"%s exec --json -c approval_policy=never -s danger-full-access --output-last-message %s %s | tee %s",
		r.cfg.Agent, shellQuote(lastMessage), shellQuote(prompt), shellQuote(events))

	r.logger.Info("launching agent window",
		slog.String("slug", slug),
		slog.Int("turn", turn),
		slog.String("events", events))
	if err := r.server.NewWindow(r.cfg.Session, slug, "bash", "-lc", "cd "+shellQuote(worktreePath)+" && "+command); err != nil {
		return err
	}

	timedOut, err := r.waitForExit(slug)
	if err != nil {
		return err
	}

	body := ""
	if data, err := os.ReadFile(lastMessage); err == nil {
		body = strings.TrimSpace(string(data))
	}
	if err := journal.Append(r.cfg.JournalPath(slug), journal.EventFinal, journal.Turn(turn), body, r.clock.Now()); err != nil {
		return err
	}
	status := ticket.StatusDone
	if timedOut {
		status = ticket.StatusStopped
	}
	tk.SetStatus(status)
	if err := tk.Save(); err != nil {
		return err
	}

	if err := hook.Run(ctx, "after_run", r.cfg.Hooks.AfterRun, worktreePath); err != nil {
		return err
	}
	if timedOut {
		return fmt.Errorf("%w: %s after %v", ErrRunTimeout, slug, r.cfg.RunTimeout)
	}
	return nil
}

// waitForExit polls the slug's window at the configured interval until
// it disappears. When the run timeout is positive and elapsed time
// exceeds it, the window is killed and timedOut is true.
func (r *Runner) waitForExit(slug string) (timedOut bool, err error) {
	start := r.clock.Now()
	for r.server.HasWindow(r.cfg.Session, slug) {
		if r.cfg.RunTimeout > 0 && r.clock.Now().Sub(start) > r.cfg.RunTimeout {
			if err := r.server.KillWindow(r.cfg.Session, slug); err != nil {
				return true, err
			}
			return true, nil
		}
		r.clock.Sleep(r.cfg.PollInterval)
	}
	return false, nil
}

// buildPrompt renders the deterministic prompt handed to the agent.
// The agent finds its ticket file and journal through the
// shared-tickets symlink inside its worktree.
func buildPrompt(slug, worktreePath, branch, ticketFolder, message string) string {
	lines := []string{
		"You have been assigned a ticket.",
		"",
		"- TICKET_SLUG: " + slug,
		"- WORKTREE: " + worktreePath,
		"- BRANCH: " + branch,
		"",
		"Do this:",
		fmt.Sprintf("- Read %s/%s.md and the .log.jsonl", ticketFolder, slug),
		"- Execute the plan and commit deliverables",
		"- Finish with a concise final message; dispatch records it",
	}
	if message != "" {
		lines = append(lines, "\nTicket owner message:\n"+message)
	}
	return strings.Join(lines, "\n")
}

// shellQuote wraps s in single quotes for safe interpolation into a
// bash command line.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
