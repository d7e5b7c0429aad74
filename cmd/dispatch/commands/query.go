// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/dispatch/cmd/dispatch/cli"
)

// infoDefaultFields are the columns printed when --fields is not given.
var infoDefaultFields = []string{"slug", "status", "owner", "branch", "worktree"}

// listDefaultFields are the list columns when --fields is not given.
var listDefaultFields = []string{"slug", "status", "owner"}

func infoCommand() *cli.Command {
	var fields string

	return &cli.Command{
		Name:    "info",
		Summary: "Print a ticket's metadata",
		Usage:   "dispatch info <slug> [--fields slug,status,...]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("info", pflag.ContinueOnError)
			flagSet.StringVar(&fields, "fields", "", "comma-separated fields to print (front-matter keys plus slug, branch, worktree)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one slug argument, got %d", len(args))
			}
			env, err := loadEnvironment("info")
			if err != nil {
				return err
			}
			d, err := env.dispatcher()
			if err != nil {
				return err
			}
			info, err := d.Info(args[0])
			if err != nil {
				return err
			}
			for _, key := range splitFields(fields, infoDefaultFields) {
				fmt.Printf("%s: %s\n", key, info.Field(key))
			}
			fmt.Printf("ticket: %s\n", info.TicketPath)
			fmt.Printf("log: %s\n", info.JournalPath)
			return nil
		},
	}
}

func listCommand() *cli.Command {
	var status string
	var fields string

	return &cli.Command{
		Name:    "list",
		Summary: "List tickets",
		Usage:   "dispatch list [--status <status>] [--fields slug,status,...]",
		Examples: []cli.Example{
			{
				Description: "All open tickets",
				Command:     "dispatch list --status open",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			flagSet.StringVar(&status, "status", "", "only tickets with exactly this status")
			flagSet.StringVar(&fields, "fields", "", "comma-separated columns")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			env, err := loadEnvironment("list")
			if err != nil {
				return err
			}
			d, err := env.dispatcher()
			if err != nil {
				return err
			}
			infos, err := d.List(status)
			if err != nil {
				return err
			}

			columns := splitFields(fields, listDefaultFields)
			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, strings.Join(columns, "\t"))
			for _, info := range infos {
				values := make([]string, 0, len(columns))
				for _, column := range columns {
					values = append(values, info.Field(column))
				}
				fmt.Fprintln(tw, strings.Join(values, "\t"))
			}
			return tw.Flush()
		},
	}
}

// splitFields parses a comma-separated --fields value, falling back to
// defaults when empty.
func splitFields(fields string, defaults []string) []string {
	if strings.TrimSpace(fields) == "" {
		return defaults
	}
	var out []string
	for _, field := range strings.Split(fields, ",") {
		if field = strings.TrimSpace(field); field != "" {
			out = append(out, field)
		}
	}
	if len(out) == 0 {
		return defaults
	}
	return out
}
