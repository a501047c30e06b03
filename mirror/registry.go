// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/loomchat/loom/lib/ref"
)

// Registry maps room IDs to Room projections. It is the single
// authority on Room identity: for a given room ID every caller sees
// the same *Room, so feeds from the Syncer and reads from consumers
// always converge on one projection.
//
// Rooms enter the registry two ways: the Syncer creates them when a
// sync response first mentions them (already carrying full state),
// and Get creates-and-hydrates them on demand for rooms the sync
// stream has not covered yet.
type Registry struct {
	transport Transport
	logger    *slog.Logger

	mu    sync.Mutex
	rooms map[ref.RoomID]*roomEntry
}

// roomEntry pairs a Room with its hydration state. hydrateMu
// serializes hydration attempts so concurrent Gets for an unknown
// room issue exactly one RoomState fetch.
type roomEntry struct {
	room      *Room
	hydrateMu sync.Mutex
	hydrated  bool
}

// NewRegistry returns an empty registry. transport is used for
// on-demand hydration; logger may be nil for slog.Default().
func NewRegistry(transport Transport, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		transport: transport,
		logger:    logger,
		rooms:     make(map[ref.RoomID]*roomEntry),
	}
}

// GetOrCreate returns the Room for roomID, creating an empty
// projection if none exists. created reports whether this call
// created it. No network traffic: the returned room may be
// unhydrated.
func (r *Registry) GetOrCreate(roomID ref.RoomID) (room *Room, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.entryLocked(roomID, &created)
	return entry.room, created
}

// Get returns the Room for roomID, hydrating it from the homeserver
// if it has not been hydrated yet. Concurrent calls for the same
// room share one state fetch. A failed hydration returns the error
// and leaves the room unhydrated, so a later Get retries.
func (r *Registry) Get(ctx context.Context, roomID ref.RoomID) (*Room, error) {
	r.mu.Lock()
	entry := r.entryLocked(roomID, nil)
	r.mu.Unlock()

	entry.hydrateMu.Lock()
	defer entry.hydrateMu.Unlock()
	if entry.hydrated {
		return entry.room, nil
	}

	events, err := r.transport.RoomState(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("mirror: hydrating %s: %w", roomID, err)
	}
	for _, event := range events {
		if err := entry.room.FeedState(event); err != nil {
			return nil, fmt.Errorf("mirror: hydrating %s: %w", roomID, err)
		}
	}
	entry.hydrated = true
	r.logger.Debug("hydrated room state",
		"room_id", roomID,
		"state_events", len(events),
	)
	return entry.room, nil
}

// entryLocked returns the entry for roomID, creating one if absent.
// Caller holds r.mu. created, when non-nil, receives whether the
// entry was created by this call.
func (r *Registry) entryLocked(roomID ref.RoomID, created *bool) *roomEntry {
	if entry, ok := r.rooms[roomID]; ok {
		return entry
	}
	entry := &roomEntry{room: NewRoom(roomID)}
	r.rooms[roomID] = entry
	if created != nil {
		*created = true
	}
	return entry
}

// markHydrated records that roomID's projection already carries full
// state. The Syncer calls this for rooms it creates from a sync join
// section, which arrives with the room's current state included.
func (r *Registry) markHydrated(roomID ref.RoomID) {
	r.mu.Lock()
	entry, ok := r.rooms[roomID]
	r.mu.Unlock()
	if !ok {
		return
	}
	entry.hydrateMu.Lock()
	entry.hydrated = true
	entry.hydrateMu.Unlock()
}

// Lookup returns the Room for roomID without creating or hydrating.
func (r *Registry) Lookup(roomID ref.RoomID) (*Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.rooms[roomID]
	if !ok {
		return nil, false
	}
	return entry.room, true
}

// LookupByAlias returns the first room whose canonical or
// alternative aliases include alias. This scans local projections
// only; resolving unknown aliases is the transport's job.
func (r *Registry) LookupByAlias(alias ref.RoomAlias) (*Room, bool) {
	for _, room := range r.List() {
		if slices.Contains(room.Aliases(), alias) {
			return room, true
		}
	}
	return nil, false
}

// List returns all known rooms sorted by room ID.
func (r *Registry) List() []*Room {
	r.mu.Lock()
	rooms := make([]*Room, 0, len(r.rooms))
	for _, entry := range r.rooms {
		rooms = append(rooms, entry.room)
	}
	r.mu.Unlock()
	slices.SortFunc(rooms, func(a, b *Room) int {
		return strings.Compare(a.ID().String(), b.ID().String())
	})
	return rooms
}

// Len returns the number of known rooms.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
