// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/bureau-foundation/dispatch/cmd/dispatch/commands"
	"github.com/bureau-foundation/dispatch/lib/process"
)

func main() {
	if err := run(); err != nil {
		// Commands that print their own output return an ExitError
		// with the desired exit code. Don't print a redundant
		// "error:" line for those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		process.Fatal(err)
	}
}

func run() error {
	return commands.Root().Execute(os.Args[1:])
}
