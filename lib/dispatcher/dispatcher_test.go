// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatcher_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/dispatch/lib/clock"
	"github.com/bureau-foundation/dispatch/lib/config"
	"github.com/bureau-foundation/dispatch/lib/dispatcher"
	"github.com/bureau-foundation/dispatch/lib/journal"
	"github.com/bureau-foundation/dispatch/lib/queue"
	"github.com/bureau-foundation/dispatch/lib/ticket"
	"github.com/bureau-foundation/dispatch/lib/tmux"
)

// runRecorder is a dispatcher.Runner that records invocations instead
// of launching windows.
type runRecorder struct {
	slugs    []string
	messages []string
	fail     map[string]error
}

func (r *runRecorder) Run(_ context.Context, slug, message string) error {
	r.slugs = append(r.slugs, slug)
	r.messages = append(r.messages, message)
	return r.fail[slug]
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// deadServer returns a Server whose socket has no tmux behind it.
// Session and window probes report absent; kill operations are benign.
func deadServer(t *testing.T) *tmux.Server {
	t.Helper()
	return tmux.NewServer(filepath.Join(t.TempDir(), "none.sock"), "/dev/null")
}

func newConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default(t.TempDir())
	cfg.FillDerived()
	return cfg
}

func writeTicket(t *testing.T, cfg *config.Config, slug, status string, turn int) {
	t.Helper()
	content := "---\ntitle: " + slug + "\nstatus: " + status + "\n"
	if turn > 0 {
		content += "turn_counter: " + strconv.Itoa(turn) + "\n"
	}
	content += "---\n\nBody.\n"
	if err := os.WriteFile(cfg.TicketPath(slug), []byte(content), 0o644); err != nil {
		t.Fatalf("writing ticket: %v", err)
	}
}

func TestNewInstallsRepoLink(t *testing.T) {
	cfg := newConfig(t)
	_, err := dispatcher.New(cfg, queue.NewMemory(), deadServer(t), &runRecorder{}, clock.Real(), discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	link := filepath.Join(cfg.RepoRoot, cfg.TicketFolder)
	resolved, err := filepath.EvalSymlinks(link)
	if err != nil {
		t.Fatalf("repo tickets link missing: %v", err)
	}
	want, _ := filepath.EvalSymlinks(cfg.TicketsDir)
	if resolved != want {
		t.Errorf("repo link resolves to %q, want %q", resolved, want)
	}
}

func TestStartEnqueues(t *testing.T) {
	cfg := newConfig(t)
	q := queue.NewMemory()
	d, err := dispatcher.New(cfg, q, deadServer(t), &runRecorder{}, clock.Real(), discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	writeTicket(t, cfg, "demo", "open", 0)
	if err := os.MkdirAll(cfg.WorktreePath("demo"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	id, err := d.Start("demo", "go")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	pending, _ := q.Pending()
	if len(pending) != 1 || pending[0] != id {
		t.Errorf("Pending = %v, want [%s]", pending, id)
	}
}

func TestStartRejections(t *testing.T) {
	cfg := newConfig(t)
	d, err := dispatcher.New(cfg, queue.NewMemory(), deadServer(t), &runRecorder{}, clock.Real(), discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := d.Start("Bad Slug", ""); !errors.Is(err, ticket.ErrInvalidSlug) {
		t.Errorf("Start with bad slug = %v, want ErrInvalidSlug", err)
	}
	if _, err := d.Start("demo", ""); !errors.Is(err, ticket.ErrNotFound) {
		t.Errorf("Start without ticket = %v, want ErrNotFound", err)
	}

	// Ticket present but no worktree.
	writeTicket(t, cfg, "demo", "open", 0)
	if _, err := d.Start("demo", ""); err == nil {
		t.Error("Start without worktree succeeded")
	}
}

func TestServeDrainsInOrder(t *testing.T) {
	cfg := newConfig(t)
	q := queue.NewMemory()
	recorder := &runRecorder{}
	server := tmux.NewTestServer(t)
	d, err := dispatcher.New(cfg, q, server, recorder, clock.Real(), discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for _, slug := range []string{"first", "second", "third"} {
		if _, err := q.Enqueue(slug, "msg-"+slug); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	if err := d.Serve(context.Background(), true); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	if got := strings.Join(recorder.slugs, ","); got != "first,second,third" {
		t.Errorf("runs = %s, want arrival order", got)
	}
	if recorder.messages[0] != "msg-first" {
		t.Errorf("message = %q, want msg-first", recorder.messages[0])
	}
	pending, _ := q.Pending()
	if len(pending) != 0 {
		t.Errorf("queue not empty after drain: %v", pending)
	}
	if !server.HasSession(cfg.Session) {
		t.Error("Serve did not create the session")
	}
}

func TestServeQuarantinesBadJobs(t *testing.T) {
	cfg := newConfig(t)
	q := queue.NewMemory()
	recorder := &runRecorder{}
	d, err := dispatcher.New(cfg, q, tmux.NewTestServer(t), recorder, clock.Real(), discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	q.EnqueueRaw("broken", []byte("{not json"))
	q.EnqueueRaw("badslug", []byte(`{"slug":"Not A Slug","message":"","ts":"t"}`))
	if _, err := q.Enqueue("good", ""); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if err := d.Serve(context.Background(), true); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	if got := strings.Join(recorder.slugs, ","); got != "good" {
		t.Errorf("runs = %q, want only the valid job", got)
	}
	if quarantined := q.Quarantined(); len(quarantined) != 2 {
		t.Errorf("quarantined = %v, want 2 entries", quarantined)
	}
	pending, _ := q.Pending()
	if len(pending) != 0 {
		t.Errorf("queue not empty after drain: %v", pending)
	}
}

func TestServeContinuesAfterRunFailure(t *testing.T) {
	cfg := newConfig(t)
	q := queue.NewMemory()
	recorder := &runRecorder{fail: map[string]error{"first": errors.New("boom")}}
	d, err := dispatcher.New(cfg, q, tmux.NewTestServer(t), recorder, clock.Real(), discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	q.Enqueue("first", "")
	q.Enqueue("second", "")

	if err := d.Serve(context.Background(), true); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	if got := strings.Join(recorder.slugs, ","); got != "first,second" {
		t.Errorf("runs = %s, want both despite first failing", got)
	}
	pending, _ := q.Pending()
	if len(pending) != 0 {
		t.Errorf("failed job not removed: %v", pending)
	}
	if len(q.Quarantined()) != 0 {
		t.Errorf("run failure must not quarantine: %v", q.Quarantined())
	}
}

func TestAbortWithoutWindow(t *testing.T) {
	cfg := newConfig(t)
	d, err := dispatcher.New(cfg, queue.NewMemory(), deadServer(t), &runRecorder{}, clock.Real(), discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	writeTicket(t, cfg, "demo", "active", 2)

	killed, err := d.Abort("demo")
	if err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if killed {
		t.Error("Abort reported a kill with no window present")
	}

	tk, err := ticket.Load(cfg.TicketPath("demo"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tk.Status() != ticket.StatusStopped {
		t.Errorf("status = %q, want stopped", tk.Status())
	}

	data, err := os.ReadFile(cfg.JournalPath("demo"))
	if err != nil {
		t.Fatalf("reading journal: %v", err)
	}
	record, err := journal.Decode([]byte(strings.TrimSpace(string(data))))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if record.Event != journal.EventAbort {
		t.Errorf("event = %q, want abort", record.Event)
	}
	if record.Turn == nil || *record.Turn != 2 {
		t.Errorf("turn = %v, want 2", record.Turn)
	}
}

func TestAbortKillsWindow(t *testing.T) {
	cfg := newConfig(t)
	server := tmux.NewTestServer(t)
	d, err := dispatcher.New(cfg, queue.NewMemory(), server, &runRecorder{}, clock.Real(), discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	writeTicket(t, cfg, "demo", "active", 1)
	if err := server.EnsureSession(cfg.Session); err != nil {
		t.Fatalf("EnsureSession: %v", err)
	}
	if err := server.NewWindow(cfg.Session, "demo", "sleep", "60"); err != nil {
		t.Fatalf("NewWindow: %v", err)
	}

	killed, err := d.Abort("demo")
	if err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if !killed {
		t.Error("Abort did not report the kill")
	}
	if server.HasWindow(cfg.Session, "demo") {
		t.Error("window survived Abort")
	}
}

func TestAwaitSettled(t *testing.T) {
	cfg := newConfig(t)
	d, err := dispatcher.New(cfg, queue.NewMemory(), deadServer(t), &runRecorder{}, clock.Real(), discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	writeTicket(t, cfg, "demo", "done", 1)

	status, err := d.Await(context.Background(), "demo", time.Second)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if status != ticket.StatusDone {
		t.Errorf("Await = %q, want done", status)
	}
}

func TestAwaitObservesTransition(t *testing.T) {
	cfg := newConfig(t)
	clk := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	d, err := dispatcher.New(cfg, queue.NewMemory(), deadServer(t), &runRecorder{}, clk, discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	writeTicket(t, cfg, "demo", "active", 1)

	type result struct {
		status string
		err    error
	}
	results := make(chan result, 1)
	go func() {
		status, err := d.Await(context.Background(), "demo", time.Minute)
		results <- result{status, err}
	}()

	// First poll sees active and sleeps. Flip the status, then let
	// the sleep fire.
	clk.WaitForWaiters(1)
	writeTicket(t, cfg, "demo", "done", 1)
	clk.Advance(2 * time.Second)

	r := <-results
	if r.err != nil {
		t.Fatalf("Await: %v", r.err)
	}
	if r.status != ticket.StatusDone {
		t.Errorf("Await = %q, want done", r.status)
	}
}

func TestAwaitTimeout(t *testing.T) {
	cfg := newConfig(t)
	clk := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	d, err := dispatcher.New(cfg, queue.NewMemory(), deadServer(t), &runRecorder{}, clk, discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	writeTicket(t, cfg, "demo", "active", 1)

	errs := make(chan error, 1)
	go func() {
		_, err := d.Await(context.Background(), "demo", 3*time.Second)
		errs <- err
	}()

	clk.WaitForWaiters(1)
	clk.Advance(2 * time.Second)
	clk.WaitForWaiters(1)
	clk.Advance(2 * time.Second)

	if err := <-errs; !errors.Is(err, dispatcher.ErrAwaitTimeout) {
		t.Fatalf("Await = %v, want ErrAwaitTimeout", err)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	cfg := newConfig(t)
	d, err := dispatcher.New(cfg, queue.NewMemory(), deadServer(t), &runRecorder{}, clock.Real(), discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	writeTicket(t, cfg, "alpha", "open", 0)
	writeTicket(t, cfg, "beta", "done", 1)
	writeTicket(t, cfg, "gamma", "open", 0)

	all, err := d.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].Slug != "alpha" || all[2].Slug != "gamma" {
		t.Errorf("List(\"\") = %v, want all three sorted", slugsOf(all))
	}

	open, err := d.List("open")
	if err != nil {
		t.Fatalf("List(open): %v", err)
	}
	if got := strings.Join(slugsOf(open), ","); got != "alpha,gamma" {
		t.Errorf("List(open) = %s, want alpha,gamma", got)
	}
}

func slugsOf(infos []*dispatcher.Info) []string {
	var slugs []string
	for _, info := range infos {
		slugs = append(slugs, info.Slug)
	}
	return slugs
}

func TestInfoFields(t *testing.T) {
	cfg := newConfig(t)
	d, err := dispatcher.New(cfg, queue.NewMemory(), deadServer(t), &runRecorder{}, clock.Real(), discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	writeTicket(t, cfg, "demo", "open", 0)

	info, err := d.Info("demo")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Field("slug") != "demo" {
		t.Errorf("slug field = %q", info.Field("slug"))
	}
	if info.Field("branch") != "ticket/demo" {
		t.Errorf("branch field = %q", info.Field("branch"))
	}
	if info.Field("status") != "open" {
		t.Errorf("status field = %q", info.Field("status"))
	}
	if info.Field("no-such-key") != "" {
		t.Errorf("unknown field = %q, want empty", info.Field("no-such-key"))
	}
}

func TestDoctorReadsState(t *testing.T) {
	cfg := newConfig(t)
	d, err := dispatcher.New(cfg, queue.NewMemory(), deadServer(t), &runRecorder{}, clock.Real(), discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	writeTicket(t, cfg, "demo", "open", 0)

	diag, err := d.Doctor("demo")
	if err != nil {
		t.Fatalf("Doctor: %v", err)
	}
	if !diag.TicketPresent {
		t.Error("ticket reported missing")
	}
	if diag.WorktreePresent {
		t.Error("worktree reported present")
	}
	if diag.SessionPresent || diag.WindowPresent {
		t.Error("session/window reported present with no tmux server")
	}
	if diag.RepoLinkTarget != cfg.TicketsDir {
		t.Errorf("repo link target = %q, want %q", diag.RepoLinkTarget, cfg.TicketsDir)
	}
}
