// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"encoding/json"

	"github.com/loomchat/loom/lib/ref"
)

// AuthResponse is returned by Login.
type AuthResponse struct {
	UserID      ref.UserID `json:"user_id"`
	AccessToken string     `json:"access_token"`
	DeviceID    string     `json:"device_id"`
}

// LoginRequest is the request body for password login.
type LoginRequest struct {
	Type                     string `json:"type"`
	User                     string `json:"user"`
	Password                 string `json:"password"`
	DeviceID                 string `json:"device_id,omitempty"`
	InitialDeviceDisplayName string `json:"initial_device_display_name,omitempty"`
}

// CreateRoomRequest holds parameters for creating a Matrix room.
type CreateRoomRequest struct {
	Name         string       `json:"name,omitempty"`
	Topic        string       `json:"topic,omitempty"`
	Alias        string       `json:"room_alias_name,omitempty"` // local alias without # or :server
	RoomVersion  string       `json:"room_version,omitempty"`    // e.g. "11"; empty uses server default
	Visibility   string       `json:"visibility,omitempty"`      // "public" or "private"
	Preset       string       `json:"preset,omitempty"`          // "private_chat", "public_chat", "trusted_private_chat"
	Invite       []ref.UserID `json:"invite,omitempty"`
	InitialState []StateEvent `json:"initial_state,omitempty"`
}

// CreateRoomResponse is returned by CreateRoom.
type CreateRoomResponse struct {
	RoomID ref.RoomID `json:"room_id"`
}

// StateEvent represents a Matrix state event for room creation or
// state setting.
type StateEvent struct {
	Type     string `json:"type"`
	StateKey string `json:"state_key"`
	Content  any    `json:"content"`
}

// MessageContent is the content body of a Matrix message event
// (m.room.message). Threads are first-class: set RelatesTo to send
// messages within a thread.
type MessageContent struct {
	MsgType   string     `json:"msgtype"`
	Body      string     `json:"body"`
	Mentions  *Mentions  `json:"m.mentions,omitempty"`
	RelatesTo *RelatesTo `json:"m.relates_to,omitempty"`
}

// Mentions identifies users referenced in a message, per the Matrix
// m.mentions format.
type Mentions struct {
	UserIDs []ref.UserID `json:"user_ids,omitempty"`
}

// RelatesTo expresses relationships between events.
// For threads, RelType is "m.thread" and EventID is the thread root.
type RelatesTo struct {
	RelType       string      `json:"rel_type"`
	EventID       ref.EventID `json:"event_id"`
	IsFallingBack bool        `json:"is_falling_back,omitempty"`
	InReplyTo     *InReplyTo  `json:"m.in_reply_to,omitempty"`
}

// InReplyTo references a specific event being replied to within a thread.
type InReplyTo struct {
	EventID ref.EventID `json:"event_id"`
}

// NewTextMessage creates a plain text message with no thread context.
func NewTextMessage(body string) MessageContent {
	return MessageContent{
		MsgType: "m.text",
		Body:    body,
	}
}

// NewThreadReply creates a message that replies within an existing
// thread. threadRootID is the event ID of the thread's root message.
func NewThreadReply(threadRootID ref.EventID, body string) MessageContent {
	return MessageContent{
		MsgType: "m.text",
		Body:    body,
		RelatesTo: &RelatesTo{
			RelType:       "m.thread",
			EventID:       threadRootID,
			IsFallingBack: true,
			InReplyTo: &InReplyTo{
				EventID: threadRootID,
			},
		},
	}
}

// Event represents a Matrix event from the server. Content is kept as
// raw JSON — the mirror package decodes it through its content
// registry, and unknown event types carry their payload through
// untouched.
type Event struct {
	EventID        ref.EventID     `json:"event_id"`
	Type           ref.EventType   `json:"type"`
	Sender         ref.UserID      `json:"sender"`
	OriginServerTS int64           `json:"origin_server_ts"`
	Content        json.RawMessage `json:"content"`
	RoomID         ref.RoomID      `json:"room_id,omitempty"`
	StateKey       *string         `json:"state_key,omitempty"`
	Unsigned       *EventUnsigned  `json:"unsigned,omitempty"`
}

// IsState reports whether the event is a state event. Per the Matrix
// spec, an event is a state event exactly when state_key is present —
// including the empty string.
func (e *Event) IsState() bool {
	return e.StateKey != nil
}

// EventUnsigned holds optional unsigned data attached to events.
type EventUnsigned struct {
	Age           int64  `json:"age,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// EphemeralEvent is a non-persistent room event from the /sync
// ephemeral section (m.typing, m.receipt). Ephemeral events have no
// event ID or sender at the top level — the content carries everything.
type EphemeralEvent struct {
	Type    ref.EventType   `json:"type"`
	Content json.RawMessage `json:"content"`
}

// SyncOptions controls the behavior of the /sync endpoint.
type SyncOptions struct {
	Since      string // next_batch token from previous sync; empty for initial sync
	Timeout    int    // long-poll timeout in milliseconds; 0 for immediate return
	SetTimeout bool   // if true, send the timeout parameter (needed to distinguish "not set" from "0")
	Filter     string // filter ID or inline JSON filter
}

// SyncResponse is the top-level response from /sync.
type SyncResponse struct {
	NextBatch string       `json:"next_batch"`
	Rooms     RoomsSection `json:"rooms"`
}

// RoomsSection contains per-room sync data grouped by membership
// state. Map keys are room IDs; encoding/json uses ref.RoomID's
// TextUnmarshaler for automatic validation at deserialization.
type RoomsSection struct {
	Join   map[ref.RoomID]JoinedRoom  `json:"join,omitempty"`
	Invite map[ref.RoomID]InvitedRoom `json:"invite,omitempty"`
	Leave  map[ref.RoomID]LeftRoom    `json:"leave,omitempty"`
}

// JoinedRoom contains sync data for a room the user has joined.
type JoinedRoom struct {
	State     StateSection     `json:"state"`
	Timeline  TimelineSection  `json:"timeline"`
	Ephemeral EphemeralSection `json:"ephemeral"`
}

// InvitedRoom contains sync data for a room the user was invited to.
// InviteState carries the stripped state events (room name, creator,
// the invite membership event) available before joining.
type InvitedRoom struct {
	InviteState StateSection `json:"invite_state"`
}

// LeftRoom contains sync data for a room the user has left.
type LeftRoom struct {
	State    StateSection    `json:"state"`
	Timeline TimelineSection `json:"timeline"`
}

// TimelineSection contains timeline events from a sync response.
type TimelineSection struct {
	Events    []Event `json:"events"`
	PrevBatch string  `json:"prev_batch"`
	Limited   bool    `json:"limited"`
}

// StateSection contains state events from a sync response.
type StateSection struct {
	Events []Event `json:"events"`
}

// EphemeralSection contains ephemeral events from a sync response.
type EphemeralSection struct {
	Events []EphemeralEvent `json:"events"`
}

// InviteRequest holds the user ID to invite to a room.
type InviteRequest struct {
	UserID ref.UserID `json:"user_id"`
}

// SendEventResponse is returned by SendMessage, SendEvent, and
// SendStateEvent.
type SendEventResponse struct {
	EventID ref.EventID `json:"event_id"`
}

// WhoAmIResponse is returned by WhoAmI.
type WhoAmIResponse struct {
	UserID   ref.UserID `json:"user_id"`
	DeviceID string     `json:"device_id,omitempty"`
}

// ResolveAliasResponse is returned by ResolveAlias.
type ResolveAliasResponse struct {
	RoomID  ref.RoomID `json:"room_id"`
	Servers []string   `json:"servers"`
}

// JoinedRoomsResponse is returned by JoinedRooms.
type JoinedRoomsResponse struct {
	JoinedRooms []ref.RoomID `json:"joined_rooms"`
}

// RoomMember represents a member of a Matrix room.
type RoomMember struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Membership  string `json:"membership"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// RoomMembersResponse is returned by the /members endpoint.
type RoomMembersResponse struct {
	Chunk []RoomMemberEvent `json:"chunk"`
}

// RoomMemberEvent is a member state event from the /members endpoint.
type RoomMemberEvent struct {
	Type     string            `json:"type"`
	StateKey string            `json:"state_key"`
	Sender   ref.UserID        `json:"sender"`
	Content  RoomMemberContent `json:"content"`
}

// RoomMemberContent is the content of a m.room.member state event.
type RoomMemberContent struct {
	Membership  string `json:"membership"`
	DisplayName string `json:"displayname,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// ServerVersionsResponse is returned by Client.ServerVersions.
type ServerVersionsResponse struct {
	Versions         []string        `json:"versions"`
	UnstableFeatures map[string]bool `json:"unstable_features,omitempty"`
}
