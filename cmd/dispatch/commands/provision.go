// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/dispatch/cmd/dispatch/cli"
	"github.com/bureau-foundation/dispatch/lib/worktree"
)

// provisionCommand builds the provision command under the given name;
// "new" is registered as an alias with identical behavior.
func provisionCommand(name string) *cli.Command {
	var base string
	var inheritFrom string
	var copies []string

	return &cli.Command{
		Name:    name,
		Summary: "Provision a worktree and branch for a ticket",
		Description: `Create the git worktree and ticket/<slug> branch for a ticket, install
the shared-tickets symlink inside it, and mark the ticket open.

The base commit comes from exactly one of --base (a branch, tag,
commit, or the slug of another provisioned ticket) or --inherit-from
(another slug, whose worktree HEAD is used; --copy takes untracked
files from that worktree).`,
		Usage: "dispatch " + name + " <slug> (--base <ref> | --inherit-from <slug>) [--copy src[:dst]]...",
		Examples: []cli.Example{
			{
				Description: "Provision from the main branch",
				Command:     "dispatch " + name + " --base main feature-x",
			},
			{
				Description: "Continue from another ticket's tree, carrying its notes",
				Command:     "dispatch " + name + " --inherit-from feature-x --copy notes.txt feature-x-part2",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
			flagSet.StringVar(&base, "base", "", "base reference (branch, tag, commit, or provisioned slug)")
			flagSet.StringVar(&inheritFrom, "inherit-from", "", "slug whose worktree HEAD becomes the base")
			flagSet.StringArrayVar(&copies, "copy", nil, "file to copy from the inherited worktree (src or src:dst, repeatable)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one slug argument, got %d", len(args))
			}
			slug := args[0]

			env, err := loadEnvironment(name)
			if err != nil {
				return err
			}
			if err := env.cfg.EnsureDirs(); err != nil {
				return err
			}
			opts := worktree.Options{
				Base:        base,
				InheritFrom: inheritFrom,
				Copies:      copies,
			}
			if err := env.provisioner().Provision(context.Background(), slug, opts); err != nil {
				return err
			}
			fmt.Printf("Provisioned %s -> %s (branch %s)\n",
				slug, env.cfg.WorktreePath(slug), env.cfg.BranchName(slug))
			return nil
		},
	}
}
