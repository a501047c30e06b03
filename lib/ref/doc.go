// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides strongly typed, immutable identifier values for
// the Matrix entities Loom works with: rooms, room aliases, users, and
// events.
//
// Identifiers arrive from the homeserver as strings inside JSON
// responses and are parsed into these types at the boundary. All
// constructors validate the structural format (sigil prefix, ':server'
// suffix where the identifier form requires one) and return errors for
// malformed input. Once constructed, a ref is immutable.
//
// JSON marshaling uses the canonical Matrix string form via
// encoding.TextMarshaler, so these types can be used directly as map
// keys and struct fields in wire types.
package ref
