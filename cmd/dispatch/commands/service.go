// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/dispatch/cmd/dispatch/cli"
)

func serviceCommand() *cli.Command {
	var once bool

	return &cli.Command{
		Name:    "service",
		Summary: "Drain the run queue",
		Description: `Process queued run requests one at a time, launching each agent in a
tmux window on the dedicated dispatch server. Runs until interrupted,
or with --once until the queue is empty.

Run exactly one service per queue: a single drainer is what keeps a
worktree from hosting two concurrent agent runs.`,
		Usage: "dispatch service [--once]",
		Examples: []cli.Example{
			{
				Description: "Drain continuously",
				Command:     "dispatch service",
			},
			{
				Description: "Drain the current backlog and exit",
				Command:     "dispatch service --once",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("service", pflag.ContinueOnError)
			flagSet.BoolVar(&once, "once", false, "exit after the queue is empty")
			return flagSet
		},
		Run: func(args []string) error {
			env, err := loadEnvironment("service")
			if err != nil {
				return err
			}
			d, err := env.dispatcher()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			env.logger.Info("draining queue",
				"queue", env.cfg.QueueDir,
				"session", env.cfg.Session,
				"once", once)
			err = d.Serve(ctx, once)
			if errors.Is(err, context.Canceled) {
				env.logger.Info("service stopped")
				return nil
			}
			return err
		},
	}
}
