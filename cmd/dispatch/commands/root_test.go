// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"testing"

	"github.com/bureau-foundation/dispatch/cmd/dispatch/cli"
)

// TestRootTreeShape validates the production command tree: unique
// names, a summary on every command, and exactly one of Run or
// Subcommands per node. Help output and suggestion lookup both depend
// on these properties.
func TestRootTreeShape(t *testing.T) {
	root := Root()

	seen := map[string]bool{}
	for _, sub := range root.Subcommands {
		if seen[sub.Name] {
			t.Errorf("duplicate command name %q", sub.Name)
		}
		seen[sub.Name] = true
		if sub.Summary == "" {
			t.Errorf("command %q has no summary", sub.Name)
		}
		if sub.Run == nil && len(sub.Subcommands) == 0 {
			t.Errorf("command %q has neither Run nor subcommands", sub.Name)
		}
	}

	for _, want := range []string{
		"provision", "new", "start", "service", "abort", "stop",
		"info", "list", "await", "doctor", "watch", "version",
	} {
		if !seen[want] {
			t.Errorf("command tree missing %q", want)
		}
	}
}

// TestAliasesShareBehavior checks that the alias commands are built by
// the same constructors as their primaries, so they can't drift.
func TestAliasesShareBehavior(t *testing.T) {
	newCommand := provisionCommand("new")
	if newCommand.Name != "new" {
		t.Errorf("provisionCommand(new).Name = %q", newCommand.Name)
	}
	if newCommand.Run == nil {
		t.Error("alias has no Run")
	}
	stopCommand := abortCommand("stop")
	if stopCommand.Name != "stop" || stopCommand.Run == nil {
		t.Error("stop alias misbuilt")
	}
}

// TestTreeConstructionIsPure ensures building the tree twice yields
// independent flag state; Root must be safe to call for help output
// without touching the filesystem.
func TestTreeConstructionIsPure(t *testing.T) {
	first := Root()
	second := Root()
	if first == second {
		t.Fatal("Root returned a shared instance")
	}
	var findList func(c *cli.Command) *cli.Command
	findList = func(c *cli.Command) *cli.Command {
		for _, sub := range c.Subcommands {
			if sub.Name == "list" {
				return sub
			}
		}
		return nil
	}
	if findList(first) == findList(second) {
		t.Error("subcommands shared between trees")
	}
}
