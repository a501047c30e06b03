// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"encoding/json"

	"github.com/loomchat/loom/lib/ref"
)

// SyncFilter configures what events a sync loop receives from /sync.
// It does not marshal to the Matrix filter schema directly; use
// InlineFilter to build the wire form.
//
// A nil *SyncFilter means "all events" (state, timeline, and
// ephemeral, across all joined rooms). This is the common case for a
// full client mirror.
type SyncFilter struct {
	// Rooms restricts the sync to these rooms. Empty means all
	// joined rooms.
	Rooms []ref.RoomID

	// TimelineTypes restricts timeline events to these Matrix event
	// types (e.g., "m.room.message"). Empty means all timeline types.
	TimelineTypes []string

	// TimelineLimit caps the number of timeline events per room per
	// /sync response. Zero means no explicit limit (server default).
	TimelineLimit int

	// ExcludeEphemeral suppresses the ephemeral section (typing
	// notifications, read receipts) from the /sync response.
	ExcludeEphemeral bool

	// ExcludePresence suppresses presence events. Loom does not
	// project presence, so sync loops set this by default.
	ExcludePresence bool
}

// InlineFilter constructs the inline JSON filter string for the /sync
// filter query parameter. Returns the empty string for a nil filter,
// which makes the server apply no filtering.
func (f *SyncFilter) InlineFilter() string {
	if f == nil {
		return ""
	}

	roomFilter := map[string]any{}

	if len(f.Rooms) > 0 {
		rooms := make([]string, len(f.Rooms))
		for index, roomID := range f.Rooms {
			rooms[index] = roomID.String()
		}
		roomFilter["rooms"] = rooms
	}

	if len(f.TimelineTypes) > 0 {
		timeline := map[string]any{"types": f.TimelineTypes}
		if f.TimelineLimit > 0 {
			timeline["limit"] = f.TimelineLimit
		}
		roomFilter["timeline"] = timeline
	} else if f.TimelineLimit > 0 {
		roomFilter["timeline"] = map[string]any{"limit": f.TimelineLimit}
	}

	if f.ExcludeEphemeral {
		roomFilter["ephemeral"] = map[string]any{"types": []string{}}
	}

	filter := map[string]any{}
	if len(roomFilter) > 0 {
		filter["room"] = roomFilter
	}
	if f.ExcludePresence {
		filter["presence"] = map[string]any{"types": []string{}}
	}
	if len(filter) == 0 {
		return ""
	}

	// Marshaling maps of JSON-safe values cannot fail.
	encoded, err := json.Marshal(filter)
	if err != nil {
		panic("messaging: encoding sync filter: " + err.Error())
	}
	return string(encoded)
}
