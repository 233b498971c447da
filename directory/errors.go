// Copyright 2026 The Veil Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import "errors"

var (
	// ErrInvalidPseudonym indicates a pseudonym that does not match
	// the required "anon" + four digits format. Nothing is persisted.
	ErrInvalidPseudonym = errors.New("pseudonym must be \"anon\" followed by exactly four digits")

	// ErrPseudonymTaken indicates that another member of the same
	// community already holds the pseudonym.
	ErrPseudonymTaken = errors.New("pseudonym already taken in this community")

	// ErrNoHandle indicates that the member has no handle in the
	// community, or that a pseudonym resolves to no owner.
	ErrNoHandle = errors.New("no handle found")

	// ErrNoChannel indicates that the community has no designated
	// relay channel.
	ErrNoChannel = errors.New("no relay channel configured")

	// ErrAlreadyAdmin indicates a grant for a member who is already
	// on the admin roster.
	ErrAlreadyAdmin = errors.New("member is already an admin")

	// ErrNotAdmin indicates a revoke for a member who is not on the
	// admin roster.
	ErrNotAdmin = errors.New("member is not an admin")
)
