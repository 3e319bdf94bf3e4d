// Copyright 2026 The AI Moderator Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"encoding/json"
	"testing"
)

func TestParseRoomID(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		room, err := ParseRoomID("!abc123:example.org")
		if err != nil {
			t.Fatalf("ParseRoomID failed: %v", err)
		}
		if room.String() != "!abc123:example.org" {
			t.Errorf("unexpected string form: %s", room)
		}
		if room.IsZero() {
			t.Error("parsed room ID should not be zero")
		}
	})

	t.Run("invalid", func(t *testing.T) {
		invalid := []string{
			"",
			"abc123:example.org",
			"!abc123",
			"!:example.org",
			"!abc123:",
			"@abc123:example.org",
		}
		for _, raw := range invalid {
			if _, err := ParseRoomID(raw); err == nil {
				t.Errorf("ParseRoomID(%q) should fail", raw)
			}
		}
	})

	t.Run("zero value", func(t *testing.T) {
		var room RoomID
		if !room.IsZero() {
			t.Error("zero value should report IsZero")
		}
	})
}

func TestParseUserID(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		user, err := ParseUserID("@alice:example.org")
		if err != nil {
			t.Fatalf("ParseUserID failed: %v", err)
		}
		if user.Localpart() != "alice" {
			t.Errorf("unexpected localpart: %s", user.Localpart())
		}
		if user.Server() != "example.org" {
			t.Errorf("unexpected server: %s", user.Server())
		}
	})

	t.Run("invalid", func(t *testing.T) {
		invalid := []string{"", "alice", "@alice", "@:example.org", "@alice:"}
		for _, raw := range invalid {
			if _, err := ParseUserID(raw); err == nil {
				t.Errorf("ParseUserID(%q) should fail", raw)
			}
		}
	})
}

func TestParseEventID(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		// Both room v4+ hash form and legacy :server form are accepted.
		for _, raw := range []string{"$abc123xyz", "$legacy:example.org"} {
			event, err := ParseEventID(raw)
			if err != nil {
				t.Fatalf("ParseEventID(%q) failed: %v", raw, err)
			}
			if event.String() != raw {
				t.Errorf("unexpected string form: %s", event)
			}
		}
	})

	t.Run("invalid", func(t *testing.T) {
		for _, raw := range []string{"", "$", "abc123"} {
			if _, err := ParseEventID(raw); err == nil {
				t.Errorf("ParseEventID(%q) should fail", raw)
			}
		}
	})
}

func TestTextRoundTrip(t *testing.T) {
	type payload struct {
		Room  RoomID  `json:"room"`
		User  UserID  `json:"user"`
		Event EventID `json:"event"`
	}
	original := payload{
		Room:  MustParseRoomID("!room:example.org"),
		User:  MustParseUserID("@bob:example.org"),
		Event: MustParseEventID("$event1"),
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded payload
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded != original {
		t.Errorf("round trip mismatch: %+v != %+v", decoded, original)
	}
}

func TestUnmarshalRejectsInvalid(t *testing.T) {
	var user UserID
	if err := json.Unmarshal([]byte(`"not-a-user-id"`), &user); err == nil {
		t.Error("unmarshal of invalid user ID should fail")
	}

	var room RoomID
	if err := json.Unmarshal([]byte(`"not-a-room-id"`), &room); err == nil {
		t.Error("unmarshal of invalid room ID should fail")
	}
}

func TestMapKeys(t *testing.T) {
	// Refs are comparable value types and serve directly as map keys.
	seen := map[RoomID]bool{}
	room := MustParseRoomID("!room:example.org")
	seen[room] = true
	if !seen[MustParseRoomID("!room:example.org")] {
		t.Error("equal room IDs should hash to the same key")
	}
}
