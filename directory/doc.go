// Copyright 2026 The Veil Authors
// SPDX-License-Identifier: Apache-2.0

// Package directory is the persistence layer for pseudonymous handles,
// relay channel designations, and the admin roster. All state lives in
// a single SQLite database accessed through a connection pool; the
// package holds no authoritative in-memory copy of any entity, so every
// decision reads the store.
//
// Uniqueness is enforced by the database, not by read-then-write
// application logic: claiming a pseudonym races against the
// UNIQUE(community_id, pseudonym) constraint, and granting admin races
// against the admins primary key. Callers distinguish outcomes with the
// package's sentinel errors (ErrPseudonymTaken, ErrAlreadyAdmin, and so
// on) via errors.Is.
package directory
