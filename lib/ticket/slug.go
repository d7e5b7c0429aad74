// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ticket

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidSlug is returned for identifiers that do not match the
// slug grammar.
var ErrInvalidSlug = errors.New("invalid slug")

// slugPattern is the grammar for ticket identifiers. Slugs name
// tickets, worktrees, branches, queue files, and tmux windows, so the
// character set is restricted to what is safe in all of those
// namespaces.
var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,63}$`)

// ValidateSlug returns an error wrapping ErrInvalidSlug unless slug
// matches the slug grammar.
func ValidateSlug(slug string) error {
	if !slugPattern.MatchString(slug) {
		return fmt.Errorf("%w: %q", ErrInvalidSlug, slug)
	}
	return nil
}

// ValidSlug reports whether slug matches the slug grammar.
func ValidSlug(slug string) bool {
	return slugPattern.MatchString(slug)
}
