// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/loomchat/loom/lib/ref"
	"github.com/loomchat/loom/messaging"
)

// DecodeFunc decodes raw event content into a typed value. The
// returned value should be a pointer to a content struct.
type DecodeFunc func(raw json.RawMessage) (any, error)

// Opaque is returned by ContentRegistry.Decode for event types with
// no registered decoder. The raw content stays available so callers
// can still inspect it.
type Opaque struct {
	Type ref.EventType
	Raw  json.RawMessage
}

// ContentRegistry maps event types to content decoders. It is safe
// for concurrent use; registration typically happens once at startup
// and lookups happen on every decoded event.
type ContentRegistry struct {
	mu       sync.RWMutex
	decoders map[ref.EventType]DecodeFunc
}

// NewContentRegistry returns a registry pre-loaded with decoders for
// the standard room event types: m.room.member, m.room.message,
// m.room.name, m.room.topic, m.room.create, m.room.canonical_alias,
// and the ephemeral m.typing and m.receipt.
func NewContentRegistry() *ContentRegistry {
	r := &ContentRegistry{decoders: make(map[ref.EventType]DecodeFunc)}
	r.Register("m.room.member", decodeInto[MemberContent])
	r.Register("m.room.message", decodeInto[messaging.MessageContent])
	r.Register("m.room.name", decodeInto[NameContent])
	r.Register("m.room.topic", decodeInto[TopicContent])
	r.Register("m.room.create", decodeInto[CreateContent])
	r.Register("m.room.canonical_alias", decodeInto[CanonicalAliasContent])
	r.Register("m.typing", decodeInto[TypingContent])
	r.Register("m.receipt", decodeInto[ReceiptContent])
	return r
}

// Register installs a decoder for eventType, replacing any existing
// one. Panics on an empty event type or nil decoder: both indicate a
// programming error at startup, not a runtime condition.
func (r *ContentRegistry) Register(eventType ref.EventType, decode DecodeFunc) {
	if eventType == "" {
		panic("mirror: Register called with empty event type")
	}
	if decode == nil {
		panic("mirror: Register called with nil decoder")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[eventType] = decode
}

// Decode decodes the content of event. Events with a registered
// decoder return the typed value; everything else returns Opaque
// carrying the raw content. An error means the content did not match
// the registered shape, which callers should treat as a malformed
// event rather than a fatal condition.
func (r *ContentRegistry) Decode(event messaging.Event) (any, error) {
	r.mu.RLock()
	decode, ok := r.decoders[event.Type]
	r.mu.RUnlock()
	if !ok {
		return Opaque{Type: event.Type, Raw: event.Content}, nil
	}
	value, err := decode(event.Content)
	if err != nil {
		return nil, fmt.Errorf("mirror: decoding %s content: %w", event.Type, err)
	}
	return value, nil
}

// DecodeEphemeral decodes an ephemeral event the same way Decode
// decodes room events.
func (r *ContentRegistry) DecodeEphemeral(event messaging.EphemeralEvent) (any, error) {
	return r.Decode(messaging.Event{Type: event.Type, Content: event.Content})
}

// decodeInto is the generic decoder used for all built-in content
// types: strict field matching is deliberately not enforced, so
// servers can add fields without breaking older clients.
func decodeInto[T any](raw json.RawMessage) (any, error) {
	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, err
	}
	return &value, nil
}

// Membership values from m.room.member content.
const (
	MembershipJoin   = "join"
	MembershipInvite = "invite"
	MembershipLeave  = "leave"
	MembershipBan    = "ban"
	MembershipKnock  = "knock"
)

// MemberContent is the content of an m.room.member state event.
type MemberContent struct {
	Membership  string `json:"membership"`
	DisplayName string `json:"displayname,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// NameContent is the content of an m.room.name state event.
type NameContent struct {
	Name string `json:"name"`
}

// TopicContent is the content of an m.room.topic state event.
type TopicContent struct {
	Topic string `json:"topic"`
}

// CreateContent is the content of the m.room.create state event.
type CreateContent struct {
	Creator     ref.UserID `json:"creator,omitempty"`
	RoomVersion string     `json:"room_version,omitempty"`
	Federate    *bool      `json:"m.federate,omitempty"`
}

// CanonicalAliasContent is the content of an m.room.canonical_alias
// state event.
type CanonicalAliasContent struct {
	Alias      string   `json:"alias,omitempty"`
	AltAliases []string `json:"alt_aliases,omitempty"`
}

// TypingContent is the content of an m.typing ephemeral event. The
// user list is a full replacement: users absent from the list have
// stopped typing.
type TypingContent struct {
	UserIDs []ref.UserID `json:"user_ids"`
}

// ReceiptContent is the content of an m.receipt ephemeral event,
// keyed by event ID, then receipt type ("m.read"), then user ID.
type ReceiptContent map[string]map[string]map[string]Receipt

// Receipt is a single read receipt entry.
type Receipt struct {
	TS int64 `json:"ts,omitempty"`
}
