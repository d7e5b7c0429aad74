// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/dispatch/cmd/dispatch/cli"
)

func awaitCommand() *cli.Command {
	var timeout time.Duration

	return &cli.Command{
		Name:    "await",
		Summary: "Wait for a ticket to leave the active status",
		Usage:   "dispatch await <slug> [--timeout <duration>]",
		Examples: []cli.Example{
			{
				Description: "Block until the current run settles, up to ten minutes",
				Command:     "dispatch await --timeout 10m feature-x",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("await", pflag.ContinueOnError)
			flagSet.DurationVar(&timeout, "timeout", time.Minute, "how long to wait before failing")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one slug argument, got %d", len(args))
			}
			env, err := loadEnvironment("await")
			if err != nil {
				return err
			}
			d, err := env.dispatcher()
			if err != nil {
				return err
			}
			status, err := d.Await(context.Background(), args[0], timeout)
			if err != nil {
				return err
			}
			fmt.Printf("status=%s\n", status)
			return nil
		},
	}
}
