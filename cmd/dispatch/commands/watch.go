// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/dispatch/cmd/dispatch/cli"
	"github.com/bureau-foundation/dispatch/lib/ticketui"
)

func watchCommand() *cli.Command {
	var interval time.Duration

	return &cli.Command{
		Name:    "watch",
		Summary: "Live terminal view of all tickets",
		Description: `Show a self-refreshing table of every ticket: status, owner, turn
counter, and whether an agent window is currently running. Press q to
quit, r to refresh immediately.`,
		Usage: "dispatch watch [--interval <duration>]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("watch", pflag.ContinueOnError)
			flagSet.DurationVar(&interval, "interval", 2*time.Second, "refresh interval")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			env, err := loadEnvironment("watch")
			if err != nil {
				return err
			}
			d, err := env.dispatcher()
			if err != nil {
				return err
			}
			return ticketui.Run(&ticketui.DispatcherSource{Dispatcher: d}, interval)
		},
	}
}
