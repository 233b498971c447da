// Copyright 2026 The Veil Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the standard CBOR encoding configuration.
//
// Veil uses two serialization formats with a clear boundary:
//
//   - JSON for external interfaces: the Matrix Client-Server API and
//     CLI output.
//   - CBOR for internal protocols: the admin socket between veil-bot
//     and veil-admin.
//
// This package holds the shared CBOR encoding and decoding modes so
// that every package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding
// (RFC 8949 §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces
// identical bytes.
//
// Buffer-oriented:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Stream-oriented (sockets):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// Socket protocol types carry `json` tags only: fxamacker/cbor reads
// json tags as fallback when cbor tags are absent, so a single tag
// controls field naming and omitempty for both formats. Never put
// both `cbor` and `json` tags on the same field.
package codec
