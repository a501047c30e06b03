// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"encoding/json"
	"testing"

	"github.com/loomchat/loom/lib/ref"
	"github.com/loomchat/loom/messaging"
)

var testRoomID = ref.MustParseRoomID("!room1:loom.chat")

// stateEvent builds a state event for tests. stateKey may be "" for
// singleton state like m.room.name.
func stateEvent(eventID string, eventType ref.EventType, stateKey, content string) messaging.Event {
	key := stateKey
	return messaging.Event{
		EventID:  ref.MustParseEventID(eventID),
		Type:     eventType,
		Sender:   ref.MustParseUserID("@alice:loom.chat"),
		StateKey: &key,
		Content:  json.RawMessage(content),
	}
}

func timelineEvent(eventID string, sender, body string) messaging.Event {
	return messaging.Event{
		EventID: ref.MustParseEventID(eventID),
		Type:    "m.room.message",
		Sender:  ref.MustParseUserID(sender),
		Content: json.RawMessage(`{"msgtype":"m.text","body":"` + body + `"}`),
	}
}

func TestFeedState_UpsertBySlot(t *testing.T) {
	room := NewRoom(testRoomID)

	if err := room.FeedState(stateEvent("$n1", "m.room.name", "", `{"name":"First"}`)); err != nil {
		t.Fatalf("FeedState: %v", err)
	}
	if got := room.Name(); got != "First" {
		t.Fatalf("Name = %q, want %q", got, "First")
	}

	// A newer event in the same slot replaces the old one.
	if err := room.FeedState(stateEvent("$n2", "m.room.name", "", `{"name":"Second"}`)); err != nil {
		t.Fatalf("FeedState: %v", err)
	}
	if got := room.Name(); got != "Second" {
		t.Errorf("Name = %q, want %q", got, "Second")
	}

	// Different slots coexist.
	if err := room.FeedState(stateEvent("$t1", "m.room.topic", "", `{"topic":"things"}`)); err != nil {
		t.Fatalf("FeedState: %v", err)
	}
	if got := len(room.State()); got != 2 {
		t.Errorf("len(State) = %d, want 2", got)
	}
}

func TestFeedState_IdempotentByEventID(t *testing.T) {
	room := NewRoom(testRoomID)
	if err := room.FeedState(stateEvent("$n1", "m.room.name", "", `{"name":"Original"}`)); err != nil {
		t.Fatalf("FeedState: %v", err)
	}

	// Same event ID with different content (as happens when a sync
	// window and a hydration fetch overlap): the slot must not change.
	if err := room.FeedState(stateEvent("$n1", "m.room.name", "", `{"name":"Mutated"}`)); err != nil {
		t.Fatalf("FeedState: %v", err)
	}
	if got := room.Name(); got != "Original" {
		t.Errorf("Name = %q, want %q", got, "Original")
	}
}

func TestFeedState_RejectsInvalid(t *testing.T) {
	room := NewRoom(testRoomID)

	noStateKey := timelineEvent("$m1", "@alice:loom.chat", "hi")
	if err := room.FeedState(noStateKey); err == nil {
		t.Error("expected error for event without state_key")
	}

	noID := stateEvent("$n1", "m.room.name", "", `{"name":"x"}`)
	noID.EventID = ref.EventID{}
	if err := room.FeedState(noID); err == nil {
		t.Error("expected error for event without event_id")
	}
}

func TestFeedTimeline_SequenceAndDedup(t *testing.T) {
	room := NewRoom(testRoomID)
	for _, id := range []string{"$m1", "$m2", "$m1", "$m3"} {
		if err := room.FeedTimeline(timelineEvent(id, "@alice:loom.chat", "hi")); err != nil {
			t.Fatalf("FeedTimeline(%s): %v", id, err)
		}
	}

	timeline := room.Timeline()
	if len(timeline) != 3 {
		t.Fatalf("len(Timeline) = %d, want 3 (duplicate dropped)", len(timeline))
	}
	for i, entry := range timeline {
		if entry.Seq != uint64(i+1) {
			t.Errorf("entry %d: Seq = %d, want %d", i, entry.Seq, i+1)
		}
	}
	if timeline[2].Event.EventID.String() != "$m3" {
		t.Errorf("last event = %s, want $m3", timeline[2].Event.EventID)
	}
}

func TestTimelineAfter(t *testing.T) {
	room := NewRoom(testRoomID)
	for _, id := range []string{"$m1", "$m2", "$m3"} {
		if err := room.FeedTimeline(timelineEvent(id, "@alice:loom.chat", "hi")); err != nil {
			t.Fatalf("FeedTimeline: %v", err)
		}
	}

	after := room.TimelineAfter(1)
	if len(after) != 2 || after[0].Seq != 2 {
		t.Errorf("TimelineAfter(1) = %+v, want entries 2 and 3", after)
	}
	if got := room.TimelineAfter(3); got != nil {
		t.Errorf("TimelineAfter(3) = %+v, want nil", got)
	}
	if got := room.TimelineAfter(0); len(got) != 3 {
		t.Errorf("TimelineAfter(0) returned %d entries, want 3", len(got))
	}
}

func TestApplySync_TimelineStateEventsUpdateState(t *testing.T) {
	room := NewRoom(testRoomID)

	state := []messaging.Event{
		stateEvent("$n1", "m.room.name", "", `{"name":"Before"}`),
	}
	timeline := []messaging.Event{
		timelineEvent("$m1", "@alice:loom.chat", "hi"),
		stateEvent("$n2", "m.room.name", "", `{"name":"After"}`),
	}
	appended, err := room.applySync(state, timeline, nil)
	if err != nil {
		t.Fatalf("applySync: %v", err)
	}
	if len(appended) != 2 {
		t.Errorf("applySync appended %d entries, want 2", len(appended))
	}

	if got := room.Name(); got != "After" {
		t.Errorf("Name = %q, want %q (timeline state event must update state)", got, "After")
	}
	if got := len(room.Timeline()); got != 2 {
		t.Errorf("len(Timeline) = %d, want 2 (state event also appears in timeline)", got)
	}
}

func TestApplySync_MalformedDeltaLeavesRoomUntouched(t *testing.T) {
	room := NewRoom(testRoomID)
	if err := room.FeedState(stateEvent("$n1", "m.room.name", "", `{"name":"Kept"}`)); err != nil {
		t.Fatalf("FeedState: %v", err)
	}

	bad := timelineEvent("$m1", "@alice:loom.chat", "hi")
	bad.EventID = ref.EventID{}
	_, err := room.applySync(
		[]messaging.Event{stateEvent("$n2", "m.room.name", "", `{"name":"Lost"}`)},
		[]messaging.Event{bad},
		nil,
	)
	if err == nil {
		t.Fatal("expected error for malformed delta")
	}
	if got := room.Name(); got != "Kept" {
		t.Errorf("Name = %q, want %q (nothing from a malformed delta may apply)", got, "Kept")
	}
	if got := len(room.Timeline()); got != 0 {
		t.Errorf("len(Timeline) = %d, want 0", got)
	}
}

func TestMembershipAndMembers(t *testing.T) {
	room := NewRoom(testRoomID)
	feeds := []messaging.Event{
		stateEvent("$mb1", "m.room.member", "@alice:loom.chat", `{"membership":"join","displayname":"Alice"}`),
		stateEvent("$mb2", "m.room.member", "@bob:loom.chat", `{"membership":"join"}`),
		stateEvent("$mb3", "m.room.member", "@carol:loom.chat", `{"membership":"leave"}`),
	}
	for _, event := range feeds {
		if err := room.FeedState(event); err != nil {
			t.Fatalf("FeedState: %v", err)
		}
	}

	if got := room.Membership(ref.MustParseUserID("@carol:loom.chat")); got != MembershipLeave {
		t.Errorf("Membership(carol) = %q, want %q", got, MembershipLeave)
	}
	if got := room.Membership(ref.MustParseUserID("@dave:loom.chat")); got != "" {
		t.Errorf("Membership(dave) = %q, want empty", got)
	}

	members := room.Members()
	if len(members) != 2 {
		t.Fatalf("len(Members) = %d, want 2", len(members))
	}
	if members[0].String() != "@alice:loom.chat" || members[1].String() != "@bob:loom.chat" {
		t.Errorf("Members = %v, want alice then bob", members)
	}
}

func TestAliases(t *testing.T) {
	room := NewRoom(testRoomID)
	event := stateEvent("$ca1", "m.room.canonical_alias", "",
		`{"alias":"#ops:loom.chat","alt_aliases":["#operations:loom.chat","not-an-alias"]}`)
	if err := room.FeedState(event); err != nil {
		t.Fatalf("FeedState: %v", err)
	}

	if got := room.CanonicalAlias().String(); got != "#ops:loom.chat" {
		t.Errorf("CanonicalAlias = %q", got)
	}
	aliases := room.Aliases()
	if len(aliases) != 2 {
		t.Fatalf("len(Aliases) = %d, want 2 (invalid alias skipped)", len(aliases))
	}
	if aliases[1].String() != "#operations:loom.chat" {
		t.Errorf("Aliases[1] = %q", aliases[1])
	}
}

func TestEphemeral_ReplacedWholesale(t *testing.T) {
	room := NewRoom(testRoomID)
	room.SetEphemeral([]messaging.EphemeralEvent{
		{Type: "m.typing", Content: json.RawMessage(`{"user_ids":["@alice:loom.chat"]}`)},
		{Type: "m.receipt", Content: json.RawMessage(`{}`)},
	})

	typing := room.TypingUsers()
	if len(typing) != 1 || typing[0].String() != "@alice:loom.chat" {
		t.Fatalf("TypingUsers = %v, want [@alice:loom.chat]", typing)
	}

	// The next delivery replaces everything: nobody typing now.
	room.SetEphemeral([]messaging.EphemeralEvent{
		{Type: "m.typing", Content: json.RawMessage(`{"user_ids":[]}`)},
	})
	if got := room.TypingUsers(); len(got) != 0 {
		t.Errorf("TypingUsers = %v, want empty after replacement", got)
	}
	if got := len(room.Ephemeral()); got != 1 {
		t.Errorf("len(Ephemeral) = %d, want 1", got)
	}
}

func TestAccessorsReturnCopies(t *testing.T) {
	room := NewRoom(testRoomID)
	if err := room.FeedTimeline(timelineEvent("$m1", "@alice:loom.chat", "hi")); err != nil {
		t.Fatalf("FeedTimeline: %v", err)
	}

	timeline := room.Timeline()
	timeline[0].Event.Content = json.RawMessage(`{"tampered":true}`)
	if string(room.Timeline()[0].Event.Content) == `{"tampered":true}` {
		t.Error("mutating a Timeline result leaked into the room")
	}
}
