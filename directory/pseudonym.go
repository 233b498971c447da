// Copyright 2026 The Veil Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import "regexp"

// Pseudonym is a validated anonymous handle name: the literal prefix
// "anon" followed by exactly four decimal digits, e.g. "anon0042". The
// zero value is not a valid pseudonym; construct one with
// ParsePseudonym or FindPseudonym.
type Pseudonym string

var (
	pseudonymExact = regexp.MustCompile(`^anon[0-9]{4}$`)

	// Plain substring scan: "canon1234" and "anon12345" both contain
	// a mention of anon1234.
	pseudonymScan = regexp.MustCompile(`anon[0-9]{4}`)
)

// ParsePseudonym validates raw against the pseudonym format. Returns
// ErrInvalidPseudonym on any deviation, including case differences and
// surrounding whitespace.
func ParsePseudonym(raw string) (Pseudonym, error) {
	if !pseudonymExact.MatchString(raw) {
		return "", ErrInvalidPseudonym
	}
	return Pseudonym(raw), nil
}

// FindPseudonym returns the first pseudonym-shaped substring of text,
// or false if none occurs. The match is a raw substring, not a word:
// a pseudonym embedded in a longer token still counts as a mention.
// Used to detect handle mentions in relayed payloads.
func FindPseudonym(text string) (Pseudonym, bool) {
	match := pseudonymScan.FindString(text)
	if match == "" {
		return "", false
	}
	return Pseudonym(match), true
}

func (p Pseudonym) String() string { return string(p) }

// IsZero reports whether the pseudonym is the zero value.
func (p Pseudonym) IsZero() bool { return p == "" }
