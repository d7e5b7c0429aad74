// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatcher is the composition root for ticket operations.
//
// A Dispatcher owns the queue, the tmux server handle, and the run
// supervisor, and implements the operations the CLI exposes: enqueue
// a run (start), drain the queue (serve), abort, await, and the read
// projections (info, list, doctor). All state lives on the filesystem;
// the dispatcher itself is stateless between calls.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/dispatch/lib/clock"
	"github.com/bureau-foundation/dispatch/lib/config"
	"github.com/bureau-foundation/dispatch/lib/journal"
	"github.com/bureau-foundation/dispatch/lib/queue"
	"github.com/bureau-foundation/dispatch/lib/ticket"
	"github.com/bureau-foundation/dispatch/lib/tmux"
	"github.com/bureau-foundation/dispatch/lib/worktree"
)

// ErrAwaitTimeout is returned by Await when the ticket is still
// active at the deadline.
var ErrAwaitTimeout = errors.New("timeout waiting for ticket to leave active")

// awaitPollInterval is how often Await re-reads the ticket status.
const awaitPollInterval = 2 * time.Second

// Runner supervises one agent run. Satisfied by *runner.Runner; tests
// substitute a recorder.
type Runner interface {
	Run(ctx context.Context, slug, message string) error
}

// Dispatcher implements the ticket operations.
type Dispatcher struct {
	cfg    *config.Config
	queue  queue.Queue
	server *tmux.Server
	runner Runner
	clock  clock.Clock
	logger *slog.Logger
}

// New assembles a Dispatcher, creates the state directories, and
// installs the repository-root tickets symlink so ticket files are
// reachable at the same relative path from the repository and from
// every worktree.
func New(cfg *config.Config, q queue.Queue, server *tmux.Server, r Runner, clk clock.Clock, logger *slog.Logger) (*Dispatcher, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}
	if err := worktree.EnsureLink(filepath.Join(cfg.RepoRoot, cfg.TicketFolder), cfg.TicketsDir); err != nil {
		return nil, err
	}
	return &Dispatcher{
		cfg:    cfg,
		queue:  q,
		server: server,
		runner: r,
		clock:  clk,
		logger: logger,
	}, nil
}

// Start enqueues a run for slug. The ticket and worktree must exist;
// the run itself happens later, when a drain loop picks the job up.
func (d *Dispatcher) Start(slug, message string) (string, error) {
	if err := ticket.ValidateSlug(slug); err != nil {
		return "", err
	}
	if _, err := ticket.Load(d.cfg.TicketPath(slug)); err != nil {
		return "", err
	}
	if _, err := os.Stat(d.cfg.WorktreePath(slug)); err != nil {
		return "", fmt.Errorf("worktree missing for %s: provision it first", slug)
	}
	return d.queue.Enqueue(slug, message)
}

// Serve drains the queue. Each pass processes all pending jobs in
// arrival order, one at a time; a job failure is logged and the loop
// moves on. With once set, Serve returns after the first pass (or
// immediately if the queue is empty); otherwise it polls until the
// context is cancelled.
//
// Running two Serve loops against the same queue directory is
// unsupported: one drainer per queue is what keeps a worktree from
// hosting two concurrent runs.
func (d *Dispatcher) Serve(ctx context.Context, once bool) error {
	if err := d.server.EnsureSession(d.cfg.Session); err != nil {
		return err
	}
	for {
		ids, err := d.queue.Pending()
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			d.processJob(ctx, id)
		}
		if once {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.clock.After(d.cfg.PollInterval):
		}
	}
}

// processJob handles one queue entry: malformed payloads and invalid
// slugs are quarantined, run failures are logged, and the job file is
// removed after every attempt so it can never run twice.
func (d *Dispatcher) processJob(ctx context.Context, id string) {
	payload, err := d.queue.Read(id)
	if err != nil {
		d.logger.Error("unreadable job", slog.String("job", id), slog.Any("error", err))
		if err := d.queue.Quarantine(id); err != nil {
			d.logger.Error("quarantine failed", slog.String("job", id), slog.Any("error", err))
		}
		return
	}
	job, err := queue.Decode(payload)
	if err != nil {
		d.logger.Error("invalid job payload", slog.String("job", id), slog.Any("error", err))
		if err := d.queue.Quarantine(id); err != nil {
			d.logger.Error("quarantine failed", slog.String("job", id), slog.Any("error", err))
		}
		return
	}
	if err := ticket.ValidateSlug(job.Slug); err != nil {
		d.logger.Error("invalid slug in job", slog.String("job", id), slog.String("slug", job.Slug))
		if err := d.queue.Quarantine(id); err != nil {
			d.logger.Error("quarantine failed", slog.String("job", id), slog.Any("error", err))
		}
		return
	}

	if err := d.runner.Run(ctx, job.Slug, job.Message); err != nil {
		d.logger.Error("run failed", slog.String("slug", job.Slug), slog.Any("error", err))
	}
	if err := d.queue.Remove(id); err != nil {
		d.logger.Error("removing job", slog.String("job", id), slog.Any("error", err))
	}
}

// Abort kills the slug's window if one is running, then always
// journals an abort record at the ticket's current turn and forces
// status stopped. Nothing to kill is not an error. Returns whether a
// window was killed.
func (d *Dispatcher) Abort(slug string) (killed bool, err error) {
	if err := ticket.ValidateSlug(slug); err != nil {
		return false, err
	}
	if d.server.HasWindow(d.cfg.Session, slug) {
		if err := d.server.KillWindow(d.cfg.Session, slug); err != nil {
			return false, err
		}
		killed = true
	}
	tk, err := ticket.Load(d.cfg.TicketPath(slug))
	if err != nil {
		return killed, err
	}
	turn := tk.TurnCounter()
	if err := journal.Append(d.cfg.JournalPath(slug), journal.EventAbort, journal.Turn(turn), "", d.clock.Now()); err != nil {
		return killed, err
	}
	tk.SetStatus(ticket.StatusStopped)
	if err := tk.Save(); err != nil {
		return killed, err
	}
	return killed, nil
}

// Await polls the ticket's persisted status until it is no longer
// active, returning the settled status. At the deadline it fails with
// ErrAwaitTimeout.
func (d *Dispatcher) Await(ctx context.Context, slug string, timeout time.Duration) (string, error) {
	if err := ticket.ValidateSlug(slug); err != nil {
		return "", err
	}
	deadline := d.clock.Now().Add(timeout)
	for {
		tk, err := ticket.Load(d.cfg.TicketPath(slug))
		if err != nil {
			return "", err
		}
		if status := tk.Status(); status != ticket.StatusActive {
			return status, nil
		}
		if !d.clock.Now().Before(deadline) {
			return "", fmt.Errorf("%w: %s", ErrAwaitTimeout, slug)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-d.clock.After(awaitPollInterval):
		}
	}
}

// Info is the read projection for one ticket.
type Info struct {
	Slug        string
	Branch      string
	Worktree    string
	TicketPath  string
	JournalPath string
	Ticket      *ticket.Ticket
}

// Field resolves a projection column: the synthetic slug, branch, and
// worktree columns, or any front-matter key. Unknown keys resolve to
// the empty string.
func (i *Info) Field(key string) string {
	switch key {
	case "slug":
		return i.Slug
	case "branch":
		return i.Branch
	case "worktree":
		return i.Worktree
	default:
		return i.Ticket.Get(key)
	}
}

// Info loads the projection for one slug.
func (d *Dispatcher) Info(slug string) (*Info, error) {
	if err := ticket.ValidateSlug(slug); err != nil {
		return nil, err
	}
	tk, err := ticket.Load(d.cfg.TicketPath(slug))
	if err != nil {
		return nil, err
	}
	return &Info{
		Slug:        slug,
		Branch:      d.cfg.BranchName(slug),
		Worktree:    d.cfg.WorktreePath(slug),
		TicketPath:  d.cfg.TicketPath(slug),
		JournalPath: d.cfg.JournalPath(slug),
		Ticket:      tk,
	}, nil
}

// List returns projections for all tickets, sorted by slug. A
// non-empty status keeps only exact matches.
func (d *Dispatcher) List(status string) ([]*Info, error) {
	slugs, err := ticket.List(d.cfg.TicketsDir)
	if err != nil {
		return nil, err
	}
	var infos []*Info
	for _, slug := range slugs {
		info, err := d.Info(slug)
		if err != nil {
			return nil, err
		}
		if status != "" && info.Ticket.Status() != status {
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Windows returns the names of the live agent windows, one per
// running slug. An absent session or server yields an empty set.
func (d *Dispatcher) Windows() map[string]bool {
	windows := make(map[string]bool)
	names, err := d.server.ListWindows(d.cfg.Session)
	if err != nil {
		return windows
	}
	for _, name := range names {
		windows[name] = true
	}
	return windows
}

// Diagnosis is the read-only doctor report for one slug.
type Diagnosis struct {
	Slug            string
	WorktreePath    string
	WorktreePresent bool
	TicketPath      string
	TicketPresent   bool
	Session         string
	SessionPresent  bool
	WindowPresent   bool
	RepoLink        string
	RepoLinkTarget  string
}

// Doctor inspects the slug's state without mutating anything.
func (d *Dispatcher) Doctor(slug string) (*Diagnosis, error) {
	if err := ticket.ValidateSlug(slug); err != nil {
		return nil, err
	}
	diag := &Diagnosis{
		Slug:         slug,
		WorktreePath: d.cfg.WorktreePath(slug),
		TicketPath:   d.cfg.TicketPath(slug),
		Session:      d.cfg.Session,
		RepoLink:     filepath.Join(d.cfg.RepoRoot, d.cfg.TicketFolder),
	}
	if _, err := os.Stat(diag.WorktreePath); err == nil {
		diag.WorktreePresent = true
	}
	if _, err := os.Stat(diag.TicketPath); err == nil {
		diag.TicketPresent = true
	}
	diag.SessionPresent = d.server.HasSession(d.cfg.Session)
	if diag.SessionPresent {
		diag.WindowPresent = d.server.HasWindow(d.cfg.Session, slug)
	}
	if target, err := os.Readlink(diag.RepoLink); err == nil {
		diag.RepoLinkTarget = target
	}
	return diag, nil
}
