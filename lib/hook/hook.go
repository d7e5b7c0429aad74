// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package hook runs lifecycle hook commands. A hook is an opaque shell
// command string configured by the operator and executed with a
// specific working directory (the target worktree). Hooks communicate
// only through their exit status: non-zero exit fails the step that
// invoked the hook.
package hook

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Run executes the hook command with dir as working directory. The
// name identifies the hook point in error messages. A nil return means
// the hook exited zero (or was empty, which is a no-op).
func Run(ctx context.Context, name, command, dir string) error {
	if command == "" {
		return nil
	}
	cmd := exec.CommandContext(ctx, "bash", "-lc", command)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("hook %s (%q) failed: %w (%s)",
			name, command, err, strings.TrimSpace(string(output)))
	}
	return nil
}
