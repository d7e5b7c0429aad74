// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/bureau-foundation/dispatch/cmd/dispatch/cli"
)

func doctorCommand() *cli.Command {
	return &cli.Command{
		Name:    "doctor",
		Summary: "Print diagnostics for a ticket",
		Description: `Report the presence of the ticket file, worktree, tmux session and
window, and the repository tickets symlink. Read-only: nothing is
created or repaired.`,
		Usage: "dispatch doctor <slug>",
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one slug argument, got %d", len(args))
			}
			env, err := loadEnvironment("doctor")
			if err != nil {
				return err
			}
			d, err := env.dispatcher()
			if err != nil {
				return err
			}
			diag, err := d.Doctor(args[0])
			if err != nil {
				return err
			}

			fmt.Printf("slug: %s\n", diag.Slug)
			fmt.Printf("worktree: %s (%s)\n", diag.WorktreePath, presence(diag.WorktreePresent))
			fmt.Printf("ticket: %s (%s)\n", diag.TicketPath, presence(diag.TicketPresent))
			if diag.SessionPresent {
				window := "absent"
				if diag.WindowPresent {
					window = "present"
				}
				fmt.Printf("tmux session %s: window %s\n", diag.Session, window)
			} else {
				fmt.Printf("tmux session %s: missing\n", diag.Session)
			}
			if diag.RepoLinkTarget != "" {
				fmt.Printf("repo tickets link: %s -> %s\n", diag.RepoLink, diag.RepoLinkTarget)
			} else {
				fmt.Printf("repo tickets link: missing (%s)\n", diag.RepoLink)
			}
			if !diag.TicketPresent {
				// The report is the output; a missing ticket still
				// signals failure through the exit code.
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}

func presence(present bool) string {
	if present {
		return "present"
	}
	return "missing"
}
