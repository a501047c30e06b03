// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

// RoomID is a validated Matrix room ID (e.g., "!abc123:example.org").
//
// Room IDs are server-assigned opaque identifiers returned by room
// creation, alias resolution, and /sync responses. They always start
// with '!' and contain a ':' separating the opaque local part from the
// server name. Loom never constructs room IDs itself — they are parsed
// into this type at the wire boundary.
//
// RoomID is an immutable value type. The zero value is not valid;
// use IsZero to check.
type RoomID struct {
	id string
}

// ParseRoomID validates and wraps a raw Matrix room ID string.
// Returns an error if the string is empty, doesn't start with '!',
// or is missing the ':server' suffix.
func ParseRoomID(raw string) (RoomID, error) {
	if raw == "" {
		return RoomID{}, fmt.Errorf("empty room ID")
	}
	if raw[0] != '!' {
		return RoomID{}, fmt.Errorf("room ID must start with '!': %q", raw)
	}

	colonIndex := strings.IndexByte(raw[1:], ':')
	if colonIndex < 0 {
		return RoomID{}, fmt.Errorf("room ID missing ':server' suffix: %q", raw)
	}
	if colonIndex == 0 {
		return RoomID{}, fmt.Errorf("room ID has empty local part: %q", raw)
	}

	serverPart := raw[1+colonIndex+1:]
	if serverPart == "" {
		return RoomID{}, fmt.Errorf("room ID has empty server name: %q", raw)
	}

	return RoomID{id: raw}, nil
}

// MustParseRoomID is like ParseRoomID but panics on error. Use in
// tests and static initialization where the input is known-valid.
func MustParseRoomID(raw string) RoomID {
	r, err := ParseRoomID(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseRoomID(%q): %v", raw, err))
	}
	return r
}

// String returns the full room ID string (e.g., "!abc123:example.org").
func (r RoomID) String() string { return r.id }

// IsZero reports whether the RoomID is the zero value (uninitialized).
func (r RoomID) IsZero() bool { return r.id == "" }

// MarshalText implements encoding.TextMarshaler. Room IDs appear as
// JSON map keys in /sync responses, which requires text marshaling.
func (r RoomID) MarshalText() ([]byte, error) {
	if r.id == "" {
		return []byte{}, nil
	}
	return []byte(r.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, validating the
// room ID format. An empty input produces the zero value.
func (r *RoomID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*r = RoomID{}
		return nil
	}
	parsed, err := ParseRoomID(string(data))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
