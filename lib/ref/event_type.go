// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package ref

// EventType identifies a Matrix state, timeline, or ephemeral event
// type (e.g., "m.room.member", "m.typing").
//
// EventType is a named string type, not a struct wrapper: event types
// are opaque identifiers that need no parsing or validation. Servers
// may introduce new types at any time and clients must pass them
// through. The type exists purely for compile-time safety — preventing
// accidental use of a state key where an event type is expected (or
// vice versa).
type EventType string

// String returns the event type string (e.g., "m.room.message").
func (t EventType) String() string { return string(t) }
