// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/dispatch/cmd/dispatch/cli"
	"github.com/bureau-foundation/dispatch/lib/clock"
	"github.com/bureau-foundation/dispatch/lib/config"
	"github.com/bureau-foundation/dispatch/lib/dispatcher"
	"github.com/bureau-foundation/dispatch/lib/git"
	"github.com/bureau-foundation/dispatch/lib/queue"
	"github.com/bureau-foundation/dispatch/lib/runner"
	"github.com/bureau-foundation/dispatch/lib/tmux"
	"github.com/bureau-foundation/dispatch/lib/worktree"
)

// environment is the per-invocation context shared by every command:
// resolved configuration, the wall clock, and a scoped logger.
type environment struct {
	cfg    *config.Config
	clock  clock.Clock
	logger *slog.Logger
}

// loadEnvironment resolves the enclosing git repository and loads
// configuration for it. Commands call this from Run, never during
// tree construction.
func loadEnvironment(command string) (*environment, error) {
	repoRoot, err := git.ResolveRoot(context.Background(), ".")
	if err != nil {
		return nil, fmt.Errorf("dispatch must run inside a git repository: %w", err)
	}
	cfg, err := config.Load(repoRoot)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &environment{
		cfg:    cfg,
		clock:  clock.Real(),
		logger: cli.NewCommandLogger().With("command", command),
	}, nil
}

// server returns the handle to the dedicated tmux server. The user's
// personal tmux configuration is never loaded.
func (e *environment) server() *tmux.Server {
	return tmux.NewServer(e.cfg.SocketPath, "/dev/null")
}

// dispatcher wires the full orchestrator: directory queue, tmux
// server, and run supervisor.
func (e *environment) dispatcher() (*dispatcher.Dispatcher, error) {
	q, err := queue.NewDir(e.cfg.QueueDir, e.clock)
	if err != nil {
		return nil, err
	}
	server := e.server()
	r := runner.New(e.cfg, server, e.clock, e.logger)
	return dispatcher.New(e.cfg, q, server, r, e.clock, e.logger)
}

// provisioner builds the worktree provisioner.
func (e *environment) provisioner() *worktree.Provisioner {
	return worktree.NewProvisioner(e.cfg, e.clock)
}
