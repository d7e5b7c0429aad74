// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/bureau-foundation/dispatch/cmd/dispatch/cli"
	"github.com/bureau-foundation/dispatch/lib/version"
)

// Root builds and returns the complete dispatch CLI command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "dispatch",
		Description: `Dispatch: ticket and worktree orchestration.

Assign work to autonomous agents as tickets, each bound to its own
git worktree and executed inside a dedicated tmux window.`,
		Subcommands: []*cli.Command{
			provisionCommand("provision"),
			provisionCommand("new"),
			startCommand(),
			serviceCommand(),
			abortCommand("abort"),
			abortCommand("stop"),
			infoCommand(),
			listCommand(),
			awaitCommand(),
			doctorCommand(),
			watchCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("dispatch %s\n", version.Full())
					return nil
				},
			},
		},
	}
}
