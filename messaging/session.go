// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/loomchat/loom/lib/ref"
	"github.com/loomchat/loom/lib/secret"
)

// Session is an authenticated Matrix session. It wraps a Client with
// an access token for making authenticated API calls. Sessions are
// lightweight and safe for concurrent use.
//
// The access token is stored in a secret.Buffer (mmap-backed, locked
// against swap, excluded from core dumps). The caller must call Close
// when the Session is no longer needed.
type Session struct {
	client      *Client
	accessToken *secret.Buffer
	userID      ref.UserID
	deviceID    string

	// transactionCounter generates unique transaction IDs for
	// idempotent sends.
	transactionCounter atomic.Int64
}

// UserID returns the fully-qualified Matrix user ID (e.g., "@alice:loom.chat").
func (s *Session) UserID() ref.UserID {
	return s.userID
}

// DeviceID returns the device ID for this session. Empty for sessions
// created with SessionFromToken.
func (s *Session) DeviceID() string {
	return s.deviceID
}

// AccessToken returns the access token as a heap string. This creates
// a brief copy from the mmap-backed buffer — use only at API
// boundaries that require a string (such as sealing it to disk).
func (s *Session) AccessToken() string {
	return s.accessToken.String()
}

// AccessTokenBuffer returns the token's backing buffer without
// copying. The Session retains ownership; callers must not Close it.
func (s *Session) AccessTokenBuffer() *secret.Buffer {
	return s.accessToken
}

// CloseIdleConnections closes idle HTTP connections in the underlying
// transport's connection pool. Call this after a sync error to force
// the next request to establish a fresh TCP connection.
func (s *Session) CloseIdleConnections() {
	s.client.CloseIdleConnections()
}

// Close releases the access token memory (zeros, unlocks, unmaps).
// Idempotent — safe to call multiple times.
func (s *Session) Close() error {
	if s.accessToken != nil {
		return s.accessToken.Close()
	}
	return nil
}

// WhoAmI validates the access token and returns the user ID.
// Useful for checking whether a stored token is still valid.
func (s *Session) WhoAmI(ctx context.Context) (ref.UserID, error) {
	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/account/whoami", s.accessToken, nil)
	if err != nil {
		return ref.UserID{}, fmt.Errorf("messaging: whoami failed: %w", err)
	}

	var response WhoAmIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.UserID{}, fmt.Errorf("messaging: parsing whoami response: %w: %v", ErrMalformedResponse, err)
	}
	return response.UserID, nil
}

// Sync performs an incremental sync with the homeserver.
// For initial sync, leave options.Since empty.
// For long-polling, set options.Timeout to the desired wait in
// milliseconds (and SetTimeout to true).
//
// A 2xx response whose body cannot be decoded, or that is missing the
// next_batch token, returns an error wrapping ErrMalformedResponse.
func (s *Session) Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error) {
	query := url.Values{}
	if options.Since != "" {
		query.Set("since", options.Since)
	}
	if options.SetTimeout {
		query.Set("timeout", strconv.Itoa(options.Timeout))
	}
	if options.Filter != "" {
		query.Set("filter", options.Filter)
	}

	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/sync", s.accessToken, nil, query)
	if err != nil {
		return nil, fmt.Errorf("messaging: sync failed: %w", err)
	}

	var response SyncResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: parsing sync response: %w: %v", ErrMalformedResponse, err)
	}
	if response.NextBatch == "" {
		return nil, fmt.Errorf("messaging: sync response missing next_batch: %w", ErrMalformedResponse)
	}
	return &response, nil
}

// GetRoomState fetches all current state events from a room.
// Returns the full event objects including type, state_key, sender, etc.
func (s *Session) GetRoomState(ctx context.Context, roomID ref.RoomID) ([]Event, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/state", url.PathEscape(roomID.String()))

	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: get room state for %q failed: %w", roomID, err)
	}

	var events []Event
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("messaging: parsing room state response: %w: %v", ErrMalformedResponse, err)
	}
	return events, nil
}

// GetStateEvent fetches a specific state event's content from a room.
// Returns the raw JSON content — the caller is responsible for
// unmarshaling into the appropriate type.
//
// If the state event does not exist, returns a *MatrixError with code
// M_NOT_FOUND.
func (s *Session) GetStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string) (json.RawMessage, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/state/%s/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(eventType.String()),
		url.PathEscape(stateKey),
	)

	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: get state event %s/%s in %q failed: %w", eventType, stateKey, roomID, err)
	}
	return json.RawMessage(body), nil
}

// ResolveAlias resolves a room alias (e.g., "#general:loom.chat") to a
// room ID.
func (s *Session) ResolveAlias(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error) {
	path := "/_matrix/client/v3/directory/room/" + url.PathEscape(alias.String())
	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil)
	if err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: resolve alias %q failed: %w", alias, err)
	}

	var response ResolveAliasResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: parsing resolve alias response: %w: %v", ErrMalformedResponse, err)
	}
	return response.RoomID, nil
}

// CreateRoom creates a new Matrix room.
func (s *Session) CreateRoom(ctx context.Context, request CreateRoomRequest) (*CreateRoomResponse, error) {
	body, err := s.client.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/createRoom", s.accessToken, request)
	if err != nil {
		return nil, fmt.Errorf("messaging: create room failed: %w", err)
	}

	var response CreateRoomResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: parsing createRoom response: %w: %v", ErrMalformedResponse, err)
	}

	s.client.logger.Info("created room",
		"room_id", response.RoomID,
		"alias", request.Alias,
		"name", request.Name,
	)
	return &response, nil
}

// JoinRoom joins a room by ID. Returns the room ID. To join by alias,
// resolve with ResolveAlias first.
func (s *Session) JoinRoom(ctx context.Context, roomID ref.RoomID) (ref.RoomID, error) {
	path := "/_matrix/client/v3/join/" + url.PathEscape(roomID.String())
	body, err := s.client.doRequest(ctx, http.MethodPost, path, s.accessToken, struct{}{})
	if err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: join room %s failed: %w", roomID, err)
	}

	var response struct {
		RoomID ref.RoomID `json:"room_id"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: parsing join response: %w: %v", ErrMalformedResponse, err)
	}
	return response.RoomID, nil
}

// LeaveRoom leaves a room by ID.
func (s *Session) LeaveRoom(ctx context.Context, roomID ref.RoomID) error {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/leave", url.PathEscape(roomID.String()))
	if _, err := s.client.doRequest(ctx, http.MethodPost, path, s.accessToken, struct{}{}); err != nil {
		return fmt.Errorf("messaging: leave room %q failed: %w", roomID, err)
	}
	return nil
}

// JoinedRooms returns the list of room IDs the user has joined.
func (s *Session) JoinedRooms(ctx context.Context) ([]ref.RoomID, error) {
	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/joined_rooms", s.accessToken, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: joined rooms failed: %w", err)
	}

	var response JoinedRoomsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: parsing joined rooms response: %w: %v", ErrMalformedResponse, err)
	}
	return response.JoinedRooms, nil
}

// InviteUser invites a user to a room.
func (s *Session) InviteUser(ctx context.Context, roomID ref.RoomID, userID ref.UserID) error {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/invite", url.PathEscape(roomID.String()))
	if _, err := s.client.doRequest(ctx, http.MethodPost, path, s.accessToken, InviteRequest{UserID: userID}); err != nil {
		return fmt.Errorf("messaging: invite %q to %q failed: %w", userID, roomID, err)
	}
	return nil
}

// GetRoomMembers returns the members of a room.
func (s *Session) GetRoomMembers(ctx context.Context, roomID ref.RoomID) ([]RoomMember, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/members", url.PathEscape(roomID.String()))
	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: get room members for %q failed: %w", roomID, err)
	}

	var response RoomMembersResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: parsing room members response: %w: %v", ErrMalformedResponse, err)
	}

	members := make([]RoomMember, len(response.Chunk))
	for index, event := range response.Chunk {
		members[index] = RoomMember{
			UserID:      event.StateKey,
			DisplayName: event.Content.DisplayName,
			Membership:  event.Content.Membership,
			AvatarURL:   event.Content.AvatarURL,
		}
	}
	return members, nil
}

// SendMessage sends a message to a room. Returns the event ID of the
// sent message.
func (s *Session) SendMessage(ctx context.Context, roomID ref.RoomID, content MessageContent) (ref.EventID, error) {
	return s.SendEvent(ctx, roomID, "m.room.message", content)
}

// SendEvent sends an event of any type to a room.
// Uses Matrix's idempotent PUT with a transaction ID.
// Returns the event ID.
func (s *Session) SendEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, content any) (ref.EventID, error) {
	transactionID := s.nextTransactionID()
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/%s/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(eventType.String()),
		url.PathEscape(transactionID),
	)

	body, err := s.client.doRequest(ctx, http.MethodPut, path, s.accessToken, content)
	if err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: send event to %q failed: %w", roomID, err)
	}

	var response SendEventResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: parsing send response: %w: %v", ErrMalformedResponse, err)
	}
	return response.EventID, nil
}

// SendStateEvent sends a state event to a room.
// State events use PUT with the event type and state key in the path.
// Returns the event ID.
func (s *Session) SendStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string, content any) (ref.EventID, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/state/%s/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(eventType.String()),
		url.PathEscape(stateKey),
	)

	body, err := s.client.doRequest(ctx, http.MethodPut, path, s.accessToken, content)
	if err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: send state event to %q failed: %w", roomID, err)
	}

	var response SendEventResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: parsing send state response: %w: %v", ErrMalformedResponse, err)
	}
	return response.EventID, nil
}

// nextTransactionID generates a unique transaction ID for idempotent
// event sending. Format: "loom-<timestamp_ms>-<counter>" to ensure
// uniqueness across restarts.
func (s *Session) nextTransactionID() string {
	counter := s.transactionCounter.Add(1)
	return fmt.Sprintf("loom-%d-%d", time.Now().UnixMilli(), counter)
}
