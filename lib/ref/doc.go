// Copyright 2026 The Veil Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides strongly typed, immutable Matrix identifier
// values: user IDs, room IDs, room aliases, event IDs, event types,
// and server names.
//
// Identifiers arrive as raw strings from configuration, command-line
// flags, and Matrix API responses. They are parsed into ref types at
// the boundary and passed around as validated values from then on.
// All constructors validate their inputs and return errors for
// malformed identifiers; once constructed, a ref is immutable.
//
// The zero value of every ref type is invalid and reports true from
// IsZero. JSON marshaling uses the canonical Matrix string form via
// encoding.TextMarshaler.
package ref
