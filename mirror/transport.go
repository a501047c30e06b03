// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"context"

	"github.com/loomchat/loom/lib/ref"
	"github.com/loomchat/loom/messaging"
)

// Transport is the slice of homeserver API the mirror needs: the
// /sync long-poll and on-demand full room state for hydration.
// messaging.Session satisfies it in production; tests substitute a
// scripted fake.
type Transport interface {
	// Sync performs one /sync request. The call blocks for up to the
	// long-poll timeout in options, or until ctx is cancelled.
	Sync(ctx context.Context, options messaging.SyncOptions) (*messaging.SyncResponse, error)

	// RoomState fetches the full current state of a room.
	RoomState(ctx context.Context, roomID ref.RoomID) ([]messaging.Event, error)
}

// sessionTransport adapts messaging.Session's GetRoomState name to
// the Transport interface.
type sessionTransport struct {
	session *messaging.Session
}

// NewSessionTransport wraps a messaging session as a Transport.
func NewSessionTransport(session *messaging.Session) Transport {
	return &sessionTransport{session: session}
}

func (t *sessionTransport) Sync(ctx context.Context, options messaging.SyncOptions) (*messaging.SyncResponse, error) {
	return t.session.Sync(ctx, options)
}

func (t *sessionTransport) RoomState(ctx context.Context, roomID ref.RoomID) ([]messaging.Event, error) {
	return t.session.GetRoomState(ctx, roomID)
}
