// Copyright 2026 The Veil Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay contains the bot's message-handling logic: the
// anonymizing relay engine, the privilege resolver, the chat command
// router, and private-reply delivery. The package talks to Matrix only
// through the messaging.Session interface and to storage through
// narrow interfaces satisfied by *directory.Store, so every decision
// path is testable with in-memory fakes.
//
// The central invariant is non-attribution: no room message, private
// reply, or error text produced here may contain a member ID, display
// name, or any other stored attribute of a handle owner. Member IDs
// appear only on the DM path (the recipient necessarily learns a DM
// was sent to them) and in logs.
package relay
