// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/loomchat/loom/lib/ref"
	"github.com/loomchat/loom/messaging"
)

// stateSlot identifies one cell of room state: Matrix state events
// replace each other per (event type, state key) pair.
type stateSlot struct {
	Type     ref.EventType
	StateKey string
}

// TimelineEntry is one timeline event with its local sequence number.
// Seq is assigned by the Room in arrival order and is strictly
// increasing within a room; it has no meaning across rooms or across
// process restarts.
type TimelineEntry struct {
	Seq   uint64
	Event messaging.Event
}

// Room is the local projection of a single Matrix room: current
// state, an ordered timeline, and the latest ephemeral events. All
// methods are safe for concurrent use. Accessors return copies, so
// callers can hold results without racing against later feeds.
type Room struct {
	id ref.RoomID

	mu        sync.RWMutex
	state     map[stateSlot]messaging.Event
	timeline  []TimelineEntry
	seen      map[ref.EventID]struct{}
	nextSeq   uint64
	ephemeral []messaging.EphemeralEvent
}

// NewRoom returns an empty projection for roomID.
func NewRoom(roomID ref.RoomID) *Room {
	return &Room{
		id:    roomID,
		state: make(map[stateSlot]messaging.Event),
		seen:  make(map[ref.EventID]struct{}),
	}
}

// ID returns the room's ID.
func (r *Room) ID() ref.RoomID {
	return r.id
}

// FeedState folds one state event into the room. Feeding the same
// event twice is a no-op: the slot is only rewritten when the event
// ID differs from the one already occupying it. This makes hydration
// and sync application safe to interleave.
func (r *Room) FeedState(event messaging.Event) error {
	if err := validateStateEvent(event); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feedStateLocked(event)
	return nil
}

// FeedTimeline appends one timeline event and assigns it the next
// sequence number. Events already in the timeline (by event ID) are
// ignored, so replaying an overlapping sync window cannot duplicate
// entries. State events in the timeline should additionally be fed
// to FeedState; applySync does both.
func (r *Room) FeedTimeline(event messaging.Event) error {
	if err := validateEvent(event); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feedTimelineLocked(event)
	return nil
}

// SetEphemeral replaces the room's ephemeral events. Ephemeral data
// (typing, receipts) is a snapshot, not a log: each sync delivery
// supersedes the previous one entirely.
func (r *Room) SetEphemeral(events []messaging.EphemeralEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ephemeral = slices.Clone(events)
}

// applySync folds one room's worth of sync delta under a single
// lock: state events first, then timeline (timeline state events
// also update state), then ephemeral replacement. All events are
// validated before anything is applied, so a malformed delta leaves
// the room untouched. Returns the timeline entries this delta
// actually appended (duplicates excluded).
func (r *Room) applySync(state, timeline []messaging.Event, ephemeral []messaging.EphemeralEvent) ([]TimelineEntry, error) {
	for _, event := range state {
		if err := validateStateEvent(event); err != nil {
			return nil, err
		}
	}
	for _, event := range timeline {
		if err := validateEvent(event); err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	before := len(r.timeline)
	for _, event := range state {
		r.feedStateLocked(event)
	}
	for _, event := range timeline {
		if event.IsState() {
			r.feedStateLocked(event)
		}
		r.feedTimelineLocked(event)
	}
	if ephemeral != nil {
		r.ephemeral = slices.Clone(ephemeral)
	}
	return slices.Clone(r.timeline[before:]), nil
}

func (r *Room) feedStateLocked(event messaging.Event) {
	slot := stateSlot{Type: event.Type, StateKey: *event.StateKey}
	if existing, ok := r.state[slot]; ok && existing.EventID == event.EventID {
		return
	}
	r.state[slot] = event
}

func (r *Room) feedTimelineLocked(event messaging.Event) {
	if _, ok := r.seen[event.EventID]; ok {
		return
	}
	r.seen[event.EventID] = struct{}{}
	r.nextSeq++
	r.timeline = append(r.timeline, TimelineEntry{Seq: r.nextSeq, Event: event})
}

func validateEvent(event messaging.Event) error {
	if event.EventID.IsZero() {
		return fmt.Errorf("mirror: event missing event_id (type %q)", event.Type)
	}
	if event.Type == "" {
		return fmt.Errorf("mirror: event %s missing type", event.EventID)
	}
	return nil
}

func validateStateEvent(event messaging.Event) error {
	if err := validateEvent(event); err != nil {
		return err
	}
	if !event.IsState() {
		return fmt.Errorf("mirror: event %s (%s) has no state_key", event.EventID, event.Type)
	}
	return nil
}

// State returns a copy of all current state events, sorted by event
// type then state key for deterministic iteration.
func (r *Room) State() []messaging.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	events := make([]messaging.Event, 0, len(r.state))
	for _, event := range r.state {
		events = append(events, event)
	}
	slices.SortFunc(events, func(a, b messaging.Event) int {
		if c := strings.Compare(a.Type.String(), b.Type.String()); c != 0 {
			return c
		}
		return strings.Compare(*a.StateKey, *b.StateKey)
	})
	return events
}

// StateEvent returns the current event occupying the (eventType,
// stateKey) slot, if any.
func (r *Room) StateEvent(eventType ref.EventType, stateKey string) (messaging.Event, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	event, ok := r.state[stateSlot{Type: eventType, StateKey: stateKey}]
	return event, ok
}

// Membership returns the membership value ("join", "invite", ...)
// for userID, or "" if the room has no member event for them.
func (r *Room) Membership(userID ref.UserID) string {
	event, ok := r.StateEvent("m.room.member", userID.String())
	if !ok {
		return ""
	}
	var content MemberContent
	if err := json.Unmarshal(event.Content, &content); err != nil {
		return ""
	}
	return content.Membership
}

// Members returns the user IDs currently joined to the room, sorted.
func (r *Room) Members() []ref.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var members []ref.UserID
	for slot, event := range r.state {
		if slot.Type != "m.room.member" {
			continue
		}
		var content MemberContent
		if err := json.Unmarshal(event.Content, &content); err != nil {
			continue
		}
		if content.Membership != MembershipJoin {
			continue
		}
		userID, err := ref.ParseUserID(slot.StateKey)
		if err != nil {
			continue
		}
		members = append(members, userID)
	}
	slices.SortFunc(members, func(a, b ref.UserID) int {
		return strings.Compare(a.String(), b.String())
	})
	return members
}

// CanonicalAlias returns the room's canonical alias, or the zero
// alias if none is set.
func (r *Room) CanonicalAlias() ref.RoomAlias {
	content, ok := r.canonicalAliasContent()
	if !ok || content.Alias == "" {
		return ref.RoomAlias{}
	}
	alias, err := ref.ParseRoomAlias(content.Alias)
	if err != nil {
		return ref.RoomAlias{}
	}
	return alias
}

// Aliases returns the canonical alias followed by the alternative
// aliases, skipping any that fail validation.
func (r *Room) Aliases() []ref.RoomAlias {
	content, ok := r.canonicalAliasContent()
	if !ok {
		return nil
	}
	var aliases []ref.RoomAlias
	if content.Alias != "" {
		if alias, err := ref.ParseRoomAlias(content.Alias); err == nil {
			aliases = append(aliases, alias)
		}
	}
	for _, raw := range content.AltAliases {
		if alias, err := ref.ParseRoomAlias(raw); err == nil {
			aliases = append(aliases, alias)
		}
	}
	return aliases
}

func (r *Room) canonicalAliasContent() (CanonicalAliasContent, bool) {
	event, ok := r.StateEvent("m.room.canonical_alias", "")
	if !ok {
		return CanonicalAliasContent{}, false
	}
	var content CanonicalAliasContent
	if err := json.Unmarshal(event.Content, &content); err != nil {
		return CanonicalAliasContent{}, false
	}
	return content, true
}

// Name returns the room's display name from m.room.name, or "".
func (r *Room) Name() string {
	event, ok := r.StateEvent("m.room.name", "")
	if !ok {
		return ""
	}
	var content NameContent
	if err := json.Unmarshal(event.Content, &content); err != nil {
		return ""
	}
	return content.Name
}

// Topic returns the room's topic from m.room.topic, or "".
func (r *Room) Topic() string {
	event, ok := r.StateEvent("m.room.topic", "")
	if !ok {
		return ""
	}
	var content TopicContent
	if err := json.Unmarshal(event.Content, &content); err != nil {
		return ""
	}
	return content.Topic
}

// Timeline returns a copy of the full timeline in arrival order.
func (r *Room) Timeline() []TimelineEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.timeline)
}

// TimelineAfter returns the timeline entries with Seq > after. Used
// by consumers that track their own read position.
func (r *Room) TimelineAfter(after uint64) []TimelineEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	// Seq values are assigned 1, 2, 3, ... so the first entry with
	// Seq > after sits at index after - (firstSeq - 1) in a timeline
	// that is never truncated. A search keeps this correct if
	// truncation is ever added.
	index, _ := slices.BinarySearchFunc(r.timeline, after, func(entry TimelineEntry, target uint64) int {
		switch {
		case entry.Seq <= target:
			return -1
		default:
			return 1
		}
	})
	if index >= len(r.timeline) {
		return nil
	}
	return slices.Clone(r.timeline[index:])
}

// Ephemeral returns a copy of the latest ephemeral events.
func (r *Room) Ephemeral() []messaging.EphemeralEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.ephemeral)
}

// TypingUsers returns the users currently typing, from the latest
// m.typing ephemeral event. Nil when no typing notification has been
// received.
func (r *Room) TypingUsers() []ref.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.ephemeral) - 1; i >= 0; i-- {
		if r.ephemeral[i].Type != "m.typing" {
			continue
		}
		var content TypingContent
		if err := json.Unmarshal(r.ephemeral[i].Content, &content); err != nil {
			return nil
		}
		return slices.Clone(content.UserIDs)
	}
	return nil
}
