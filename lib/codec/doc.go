// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Loom's standard CBOR encoding configuration.
//
// Loom uses two serialization formats with a clear boundary:
//
//   - JSON for the wire: the Matrix Client-Server API speaks JSON, so
//     everything in messaging/ marshals with encoding/json.
//   - CBOR for local state: checkpoint files (sync cursor plus room
//     snapshots) and the sealed session file's plaintext payload.
//
// This package provides the shared CBOR encoding and decoding modes so
// that every Loom package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes, which keeps checkpoint checksums stable across rewrites of
// unchanged state.
//
// For buffer-oriented operations (checkpoint payloads, session files):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations:
//
//	encoder := codec.NewEncoder(w)
//	decoder := codec.NewDecoder(r)
//
// # Struct Tag Rules
//
// The struct tag on a type documents its serialization format:
//
//   - `cbor` tag: this type is ONLY ever serialized as CBOR, never as
//     JSON. Examples: checkpoint envelopes, sealed session payloads.
//   - `json` tag: this type may be serialized as BOTH JSON and CBOR.
//     fxamacker/cbor v2 reads `json` tags as fallback when `cbor`
//     tags are absent, so a single `json` tag controls field naming
//     and omitempty for both formats. Examples: messaging event types
//     that are also embedded in checkpoint room snapshots.
//
// Never use both `cbor` and `json` tags on the same field. The tag
// choice documents the contract, and doubling up obscures whether a
// type participates in JSON serialization.
package codec
