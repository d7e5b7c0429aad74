// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/bureau-foundation/dispatch/cmd/dispatch/cli"
)

// abortCommand builds the abort command under the given name; "stop"
// is registered as an alias.
func abortCommand(name string) *cli.Command {
	return &cli.Command{
		Name:    name,
		Summary: "Kill a ticket's agent window and mark it stopped",
		Description: `Kill the ticket's tmux window if one is running, append an abort
record to the journal, and force the ticket status to stopped. Having
nothing to kill is not an error.`,
		Usage: "dispatch " + name + " <slug>",
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one slug argument, got %d", len(args))
			}
			env, err := loadEnvironment(name)
			if err != nil {
				return err
			}
			d, err := env.dispatcher()
			if err != nil {
				return err
			}
			killed, err := d.Abort(args[0])
			if err != nil {
				return err
			}
			if killed {
				fmt.Printf("Killed tmux window %s\n", args[0])
			}
			fmt.Printf("Stopped %s\n", args[0])
			return nil
		},
	}
}
