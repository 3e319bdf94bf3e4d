// Copyright 2026 The AI Moderator Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"encoding/json"
	"testing"

	"github.com/williamkray/maubot-aimoderator/lib/ref"
)

func TestPowerLevelDefaults(t *testing.T) {
	t.Run("absent thresholds fall back to 50", func(t *testing.T) {
		var levels PowerLevels
		if err := json.Unmarshal([]byte(`{"users":{"@admin:example.org":100}}`), &levels); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got := levels.RedactLevel(); got != 50 {
			t.Errorf("RedactLevel = %d, want 50", got)
		}
		if got := levels.StateLevel(); got != 50 {
			t.Errorf("StateLevel = %d, want 50", got)
		}
	})

	t.Run("explicit zero thresholds are honored", func(t *testing.T) {
		var levels PowerLevels
		if err := json.Unmarshal([]byte(`{"redact":0,"state_default":0}`), &levels); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got := levels.RedactLevel(); got != 0 {
			t.Errorf("RedactLevel = %d, want 0", got)
		}
		if got := levels.StateLevel(); got != 0 {
			t.Errorf("StateLevel = %d, want 0", got)
		}
	})

	t.Run("user level falls back to users_default", func(t *testing.T) {
		levels := PowerLevels{
			Users:        map[string]int{"@admin:example.org": 100},
			UsersDefault: 10,
		}
		if got := levels.UserLevel(ref.MustParseUserID("@admin:example.org")); got != 100 {
			t.Errorf("listed user level = %d, want 100", got)
		}
		if got := levels.UserLevel(ref.MustParseUserID("@guest:example.org")); got != 10 {
			t.Errorf("unlisted user level = %d, want 10", got)
		}
	})
}
