// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/dispatch/cmd/dispatch/cli"
)

func startCommand() *cli.Command {
	var message string

	return &cli.Command{
		Name:    "start",
		Summary: "Enqueue an agent run for a ticket",
		Description: `Queue a run request for a provisioned ticket. The run itself is
executed by a drain loop ("dispatch service") running elsewhere.`,
		Usage: "dispatch start <slug> [--message <text>]",
		Examples: []cli.Example{
			{
				Description: "Queue a run with instructions for the agent",
				Command:     `dispatch start --message "implement X" feature-x`,
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("start", pflag.ContinueOnError)
			flagSet.StringVar(&message, "message", "", "message recorded on the start event and shown to the agent")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one slug argument, got %d", len(args))
			}
			env, err := loadEnvironment("start")
			if err != nil {
				return err
			}
			d, err := env.dispatcher()
			if err != nil {
				return err
			}
			id, err := d.Start(args[0], message)
			if err != nil {
				return err
			}
			fmt.Printf("Queued %s: %s\n", args[0], id)
			fmt.Println("Run 'dispatch service' in another shell to drain the queue.")
			return nil
		},
	}
}
