// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the dispatch
// binary.
//
// Configuration is assembled from three layers, each overriding the
// previous one:
//
//  1. Built-in defaults rooted at <repo>/.dispatch
//  2. An optional YAML file named by DISPATCH_CONFIG
//  3. Enumerated DISPATCH_* environment variables
//
// The result is an explicit Config value constructed once at startup
// and passed into each component; there are no ambient globals and no
// re-reads of the environment after Load returns.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Hooks holds the optional lifecycle hook commands. Each is an opaque
// shell command string executed with the target worktree as working
// directory; empty means the hook point is skipped.
type Hooks struct {
	// Provision runs after a worktree has been provisioned.
	Provision string `yaml:"provision"`

	// Start runs at the beginning of a run, after the start record
	// is journaled.
	Start string `yaml:"start"`

	// BeforeRun runs immediately before the agent window is created.
	BeforeRun string `yaml:"before_run"`

	// AfterRun runs once the run's final status has been persisted,
	// whether the run completed or timed out.
	AfterRun string `yaml:"after_run"`
}

// Config is the master configuration for dispatch.
type Config struct {
	// RepoRoot is the repository this dispatch instance manages.
	// Resolved by the caller (git rev-parse --show-toplevel), never
	// read from file or environment.
	RepoRoot string `yaml:"-"`

	// Root is the base directory for dispatch state. Default:
	// <repo>/.dispatch.
	Root string `yaml:"root"`

	// TicketsDir holds one <slug>.md ticket file and one
	// <slug>.log.jsonl journal per ticket. Default: <root>/tickets.
	TicketsDir string `yaml:"tickets_dir"`

	// WorktreesDir holds one git worktree per provisioned ticket.
	// Default: <root>/worktrees.
	WorktreesDir string `yaml:"worktrees_dir"`

	// QueueDir holds one file per pending run request. Default:
	// <root>/queue.
	QueueDir string `yaml:"queue_dir"`

	// TicketFolder is the relative path, inside the repository and
	// inside every worktree, at which TicketsDir is exposed via a
	// symlink. Agents read and write ticket files through this path.
	TicketFolder string `yaml:"ticket_folder"`

	// Session is the tmux session that hosts agent windows.
	Session string `yaml:"session"`

	// SocketPath is the Unix socket of the dedicated tmux server.
	// Dispatch never uses the user's personal tmux server. Default:
	// <root>/tmux.sock.
	SocketPath string `yaml:"socket_path"`

	// PollInterval is how long the drain loop sleeps when the queue
	// is empty, and the interval of the supervisor's window liveness
	// poll.
	PollInterval time.Duration `yaml:"poll_interval"`

	// RunTimeout is the elapsed-time budget for a single run. Zero
	// disables timeout enforcement.
	RunTimeout time.Duration `yaml:"run_timeout"`

	// Agent is the agent executable launched inside the window.
	Agent string `yaml:"agent"`

	// Hooks are the optional lifecycle hook commands.
	Hooks Hooks `yaml:"hooks"`
}

// Default returns the default configuration for a repository.
func Default(repoRoot string) *Config {
	root := filepath.Join(repoRoot, ".dispatch")
	return &Config{
		RepoRoot:     repoRoot,
		Root:         root,
		TicketFolder: filepath.Join("shared", "tickets"),
		Session:      "tickets",
		PollInterval: 500 * time.Millisecond,
		RunTimeout:   10 * time.Hour,
		Agent:        "codex",
	}
}

// Load assembles the configuration for a repository: defaults, then
// the optional YAML file named by DISPATCH_CONFIG, then DISPATCH_*
// environment overrides. Derived paths (tickets, worktrees, queue,
// socket) are filled from Root last, so overriding Root moves all of
// them together.
func Load(repoRoot string) (*Config, error) {
	cfg := Default(repoRoot)

	if path := os.Getenv("DISPATCH_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvironment(); err != nil {
		return nil, err
	}
	cfg.FillDerived()
	return cfg, nil
}

// applyEnvironment applies the enumerated DISPATCH_* overrides.
func (c *Config) applyEnvironment() error {
	if v := os.Getenv("DISPATCH_ROOT"); v != "" {
		c.Root = v
	}
	if v := os.Getenv("DISPATCH_TICKETS_DIR"); v != "" {
		c.TicketsDir = v
	}
	if v := os.Getenv("DISPATCH_WORKTREES_DIR"); v != "" {
		c.WorktreesDir = v
	}
	if v := os.Getenv("DISPATCH_QUEUE_DIR"); v != "" {
		c.QueueDir = v
	}
	if v := os.Getenv("DISPATCH_TICKET_FOLDER"); v != "" {
		c.TicketFolder = v
	}
	if v := os.Getenv("DISPATCH_TMUX_SESSION"); v != "" {
		c.Session = v
	}
	if v := os.Getenv("DISPATCH_TMUX_SOCKET"); v != "" {
		c.SocketPath = v
	}
	if v := os.Getenv("DISPATCH_AGENT"); v != "" {
		c.Agent = v
	}
	if v := os.Getenv("DISPATCH_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("DISPATCH_POLL_INTERVAL: %w", err)
		}
		c.PollInterval = d
	}
	if v := os.Getenv("DISPATCH_RUN_TIMEOUT"); v != "" {
		d, err := parseTimeout(v)
		if err != nil {
			return fmt.Errorf("DISPATCH_RUN_TIMEOUT: %w", err)
		}
		c.RunTimeout = d
	}
	if v, ok := os.LookupEnv("DISPATCH_HOOK_PROVISION"); ok {
		c.Hooks.Provision = v
	}
	if v, ok := os.LookupEnv("DISPATCH_HOOK_START"); ok {
		c.Hooks.Start = v
	}
	if v, ok := os.LookupEnv("DISPATCH_HOOK_BEFORE_RUN"); ok {
		c.Hooks.BeforeRun = v
	}
	if v, ok := os.LookupEnv("DISPATCH_HOOK_AFTER_RUN"); ok {
		c.Hooks.AfterRun = v
	}
	return nil
}

// parseTimeout accepts a Go duration string or a bare "0" (timeout
// disabled).
func parseTimeout(v string) (time.Duration, error) {
	if strings.TrimSpace(v) == "0" {
		return 0, nil
	}
	return time.ParseDuration(v)
}

// FillDerived computes paths that default relative to Root when not
// set explicitly.
func (c *Config) FillDerived() {
	if c.TicketsDir == "" {
		c.TicketsDir = filepath.Join(c.Root, "tickets")
	}
	if c.WorktreesDir == "" {
		c.WorktreesDir = filepath.Join(c.Root, "worktrees")
	}
	if c.QueueDir == "" {
		c.QueueDir = filepath.Join(c.Root, "queue")
	}
	if c.SocketPath == "" {
		c.SocketPath = filepath.Join(c.Root, "tmux.sock")
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.RepoRoot == "" {
		return fmt.Errorf("repository root is required")
	}
	if c.Root == "" {
		return fmt.Errorf("root is required")
	}
	if c.Session == "" {
		return fmt.Errorf("session is required")
	}
	if c.Agent == "" {
		return fmt.Errorf("agent is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %v", c.PollInterval)
	}
	if c.RunTimeout < 0 {
		return fmt.Errorf("run_timeout must be >= 0, got %v", c.RunTimeout)
	}
	if filepath.IsAbs(c.TicketFolder) {
		return fmt.Errorf("ticket_folder must be a relative path, got %s", c.TicketFolder)
	}
	return nil
}

// EnsureDirs creates the state directories if they don't exist.
func (c *Config) EnsureDirs() error {
	for _, path := range []string{c.Root, c.TicketsDir, c.WorktreesDir, c.QueueDir} {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}

// TicketPath returns the ticket file for a slug.
func (c *Config) TicketPath(slug string) string {
	return filepath.Join(c.TicketsDir, slug+".md")
}

// JournalPath returns the append-only journal file for a slug.
func (c *Config) JournalPath(slug string) string {
	return filepath.Join(c.TicketsDir, slug+".log.jsonl")
}

// WorktreePath returns the worktree directory for a slug.
func (c *Config) WorktreePath(slug string) string {
	return filepath.Join(c.WorktreesDir, slug)
}

// BranchName returns the git branch a slug's worktree is checked out
// on.
func (c *Config) BranchName(slug string) string {
	return "ticket/" + slug
}
