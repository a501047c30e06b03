// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"

	"github.com/loomchat/loom/lib/ref"
)

// sampleEnvelope is a representative local state record using cbor
// struct tags (the convention for purely-local types).
type sampleEnvelope struct {
	Cursor string `cbor:"cursor"`
	Server string `cbor:"server,omitempty"`
	Rooms  int    `cbor:"rooms"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := sampleEnvelope{
		Cursor: "s72594_4483_1934",
		Server: "loom.chat",
		Rooms:  42,
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("Marshal produced empty output")
	}

	var decoded sampleEnvelope
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	envelope := sampleEnvelope{
		Cursor: "s1_2_3",
		Server: "example.org",
		Rooms:  7,
	}

	first, err := Marshal(envelope)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	second, err := Marshal(envelope)
	if err != nil {
		t.Fatalf("second Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("deterministic encoding violated: %x != %x", first, second)
	}
}

// Identifier types with unexported fields must round-trip through
// their text form, not collapse to empty CBOR maps.
func TestRefTypesRoundtripAsText(t *testing.T) {
	type record struct {
		Room   ref.RoomID  `cbor:"room"`
		Sender ref.UserID  `cbor:"sender"`
		Event  ref.EventID `cbor:"event"`
	}

	original := record{
		Room:   ref.MustParseRoomID("!abc123:loom.chat"),
		Sender: ref.MustParseUserID("@alice:loom.chat"),
		Event:  ref.MustParseEventID("$deadbeef"),
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded record
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Room != original.Room || decoded.Sender != original.Sender || decoded.Event != original.Event {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestStreamRoundtrip(t *testing.T) {
	envelopes := []sampleEnvelope{
		{Cursor: "s1_0_0", Server: "a.example", Rooms: 1},
		{Cursor: "s2_0_0", Server: "b.example", Rooms: 2},
		{Cursor: "s3_0_0", Rooms: 0},
	}

	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for _, envelope := range envelopes {
		if err := encoder.Encode(envelope); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for index, want := range envelopes {
		var got sampleEnvelope
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode %d: %v", index, err)
		}
		if got != want {
			t.Errorf("stream item %d: got %+v, want %+v", index, got, want)
		}
	}
}
