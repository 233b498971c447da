// Copyright 2026 The Veil Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging wraps the Matrix client-server API for Veil's
// relay and command handling needs.
//
// The package provides two core types. [Client] is an unauthenticated
// Matrix client that handles registration (token-authenticated via
// MSC3231 UIAA flow) and login, returning authenticated
// [DirectSession] values. Client holds the homeserver URL and HTTP
// transport, shared across all sessions derived from it.
//
// [DirectSession] wraps a Client with an access token for
// authenticated operations: room management (create, join, leave,
// invite), messaging (send events, redact events), state events
// (get/set individual events, full room state), incremental sync with
// long-polling, room alias resolution, profile access, and identity
// verification (WhoAmI). The [Session] interface covers the subset of
// those operations that the relay engine and command handlers use, so
// tests can substitute fakes.
//
// The access token lives in mmap-backed secret.Buffer memory, locked
// against swap and excluded from core dumps; callers must call
// Session.Close to release the protected memory.
//
// All API errors are returned as [*MatrixError] with the standard
// Matrix error code (M_FORBIDDEN, M_NOT_FOUND, etc.) and HTTP status
// code. [IsMatrixError] tests for a specific error code. Request URLs
// are built by string concatenation rather than url.URL to avoid
// double-encoding of path segments that contain URL-encoded
// characters (such as room aliases with slashes).
package messaging
