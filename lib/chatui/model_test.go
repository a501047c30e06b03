// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"encoding/json"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/loomchat/loom/lib/ref"
	"github.com/loomchat/loom/messaging"
	"github.com/loomchat/loom/mirror"
)

func newTestModel(t *testing.T) (Model, *mirror.Registry) {
	t.Helper()
	registry := mirror.NewRegistry(nil, nil)
	model := New(Config{
		Registry:   registry,
		Content:    mirror.NewContentRegistry(),
		SelfUserID: ref.MustParseUserID("@me:loom.chat"),
	})
	return model, registry
}

func feedRoom(t *testing.T, registry *mirror.Registry, roomID, name string) *mirror.Room {
	t.Helper()
	room, _ := registry.GetOrCreate(ref.MustParseRoomID(roomID))
	stateKey := ""
	event := messaging.Event{
		EventID:  ref.MustParseEventID("$name" + roomID),
		Type:     "m.room.name",
		Sender:   ref.MustParseUserID("@alice:loom.chat"),
		StateKey: &stateKey,
		Content:  json.RawMessage(`{"name":"` + name + `"}`),
	}
	if err := room.FeedState(event); err != nil {
		t.Fatalf("FeedState: %v", err)
	}
	return room
}

func feedMessage(t *testing.T, room *mirror.Room, eventID, body string) {
	t.Helper()
	event := messaging.Event{
		EventID: ref.MustParseEventID(eventID),
		Type:    "m.room.message",
		Sender:  ref.MustParseUserID("@alice:loom.chat"),
		Content: json.RawMessage(`{"msgtype":"m.text","body":"` + body + `"}`),
	}
	if err := room.FeedTimeline(event); err != nil {
		t.Fatalf("FeedTimeline: %v", err)
	}
}

func resize(model Model) Model {
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return updated.(Model)
}

func TestView_ShowsRoomsAndMessages(t *testing.T) {
	model, registry := newTestModel(t)
	room := feedRoom(t, registry, "!a:loom.chat", "Ops")
	feedMessage(t, room, "$m1", "deploy finished")

	model = resize(model)
	view := model.View()
	if !strings.Contains(view, "Ops") {
		t.Error("view does not list the room name")
	}
	if !strings.Contains(view, "deploy finished") {
		t.Error("view does not show the message body")
	}
	if !strings.Contains(view, "@alice:loom.chat") {
		t.Error("view does not show the sender")
	}
}

func TestUpdate_RoomNavigation(t *testing.T) {
	model, registry := newTestModel(t)
	feedRoom(t, registry, "!a:loom.chat", "Alpha")
	feedRoom(t, registry, "!b:loom.chat", "Beta")
	model = resize(model)

	if got := model.currentRoom().Name(); got != "Alpha" {
		t.Fatalf("initial room = %q, want Alpha", got)
	}

	updated, _ := model.Update(tea.KeyMsg{Type: tea.KeyDown})
	model = updated.(Model)
	if got := model.currentRoom().Name(); got != "Beta" {
		t.Errorf("after down: room = %q, want Beta", got)
	}

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyUp})
	model = updated.(Model)
	if got := model.currentRoom().Name(); got != "Alpha" {
		t.Errorf("after up: room = %q, want Alpha", got)
	}
}

func TestUpdate_UpdateMsgPicksUpNewRooms(t *testing.T) {
	model, registry := newTestModel(t)
	model = resize(model)
	if model.currentRoom() != nil {
		t.Fatal("expected no rooms initially")
	}

	feedRoom(t, registry, "!a:loom.chat", "Fresh")
	updated, _ := model.Update(UpdateMsg{})
	model = updated.(Model)
	if got := model.currentRoom(); got == nil || got.Name() != "Fresh" {
		t.Errorf("after UpdateMsg: room = %v, want Fresh", got)
	}
}

func TestUpdate_QuitFromRoomList(t *testing.T) {
	model, registry := newTestModel(t)
	feedRoom(t, registry, "!a:loom.chat", "Alpha")
	model = resize(model)

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if msg := cmd(); msg == nil {
		t.Fatal("quit command returned nil msg")
	}
}

func TestComposeFocusRouting(t *testing.T) {
	model, registry := newTestModel(t)
	feedRoom(t, registry, "!a:loom.chat", "Alpha")
	model = resize(model)

	// Without a session the view is read-only: compose must not
	// activate.
	updated, _ := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'i'}})
	model = updated.(Model)
	if model.focus == FocusCompose {
		t.Error("compose focused without a session")
	}
}

func TestRenderEntry_StateAnnotations(t *testing.T) {
	model, registry := newTestModel(t)
	room := feedRoom(t, registry, "!a:loom.chat", "Alpha")
	stateKey := "@bob:loom.chat"
	join := messaging.Event{
		EventID:  ref.MustParseEventID("$j1"),
		Type:     "m.room.member",
		Sender:   ref.MustParseUserID("@bob:loom.chat"),
		StateKey: &stateKey,
		Content:  json.RawMessage(`{"membership":"join"}`),
	}
	if err := room.FeedTimeline(join); err != nil {
		t.Fatalf("FeedTimeline: %v", err)
	}
	model = resize(model)

	view := model.View()
	if !strings.Contains(view, `@bob:loom.chat is now "join"`) {
		t.Errorf("membership annotation missing from view:\n%s", view)
	}
}
