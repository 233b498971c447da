// Copyright 2026 The Veil Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the shared runtime plumbing for the Veil
// bot and its CLI tooling: Matrix session persistence (session file
// load/save with guarded-memory access tokens), the /sync long-poll
// loop with exponential backoff, invite acceptance, and a CBOR
// request-response protocol over a Unix socket for the local admin
// interface.
//
// The socket protocol is deliberately minimal: one request and one
// response per connection, CBOR-encoded, routed by an "action" field.
// Filesystem permissions on the socket path are the access control.
package service
