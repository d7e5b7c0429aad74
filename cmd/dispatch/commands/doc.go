// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the complete dispatch CLI command tree.
//
// Each command resolves the repository root for the current working
// directory, loads configuration from the environment, and assembles
// the dispatcher it needs. Construction happens inside Run so that
// tree building (for help output and suggestion lookup) never touches
// the filesystem.
package commands
