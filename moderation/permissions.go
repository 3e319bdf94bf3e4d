// Copyright 2026 The AI Moderator Authors
// SPDX-License-Identifier: Apache-2.0

package moderation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/williamkray/maubot-aimoderator/lib/ref"
	"github.com/williamkray/maubot-aimoderator/messaging"
)

// Capability names a privileged room action gated by a power-level
// threshold from m.room.power_levels.
type Capability string

const (
	// CapRedact is the ability to redact other users' events.
	CapRedact Capability = "redact"
	// CapState is the ability to send state events.
	CapState Capability = "state"
)

// basicModerationLevel is the floor used when no specific capability is
// requested: below this the moderator is assumed unable to do anything
// useful.
const basicModerationLevel = 50

// CapabilityStatus reports one capability's threshold against the
// moderator's actual level.
type CapabilityStatus struct {
	Granted  bool
	Required int
	Actual   int
}

// PrivilegeSnapshot is a point-in-time read of a room's power levels.
// Snapshots are never cached: privileges change at the server's whim,
// so every decision re-fetches.
type PrivilegeSnapshot struct {
	Levels messaging.PowerLevels
}

// UserLevel returns the effective power level of a user in the
// snapshot's room.
func (s *PrivilegeSnapshot) UserLevel(userID ref.UserID) int {
	return s.Levels.UserLevel(userID)
}

// PermissionModel resolves room privileges for the moderator and the
// users it watches.
type PermissionModel struct {
	transport Transport
	logger    *slog.Logger
}

// NewPermissionModel creates a PermissionModel. A nil logger falls back
// to slog.Default().
func NewPermissionModel(transport Transport, logger *slog.Logger) *PermissionModel {
	if logger == nil {
		logger = slog.Default()
	}
	return &PermissionModel{transport: transport, logger: logger}
}

// Snapshot fetches the room's current power levels, first confirming
// the moderator is actually joined. Returns ErrNotAMember when the
// moderator's membership lookup 404s or shows a non-join membership,
// and ErrStateUnavailable when the power-level state cannot be fetched
// or parsed.
func (m *PermissionModel) Snapshot(ctx context.Context, roomID ref.RoomID) (*PrivilegeSnapshot, error) {
	self := m.transport.UserID()

	memberRaw, err := m.transport.GetStateEvent(ctx, roomID, "m.room.member", self.String())
	if err != nil {
		if messaging.IsMatrixError(err, messaging.ErrCodeNotFound) {
			return nil, fmt.Errorf("moderation: %q in %q: %w", self, roomID, ErrNotAMember)
		}
		return nil, fmt.Errorf("moderation: membership lookup in %q: %w: %w", roomID, ErrStateUnavailable, err)
	}
	var member messaging.MemberContent
	if err := json.Unmarshal(memberRaw, &member); err != nil {
		return nil, fmt.Errorf("moderation: membership content in %q: %w: %w", roomID, ErrStateUnavailable, err)
	}
	if member.Membership != "join" {
		return nil, fmt.Errorf("moderation: membership %q in %q: %w", member.Membership, roomID, ErrNotAMember)
	}

	levelsRaw, err := m.transport.GetStateEvent(ctx, roomID, "m.room.power_levels", "")
	if err != nil {
		return nil, fmt.Errorf("moderation: power levels in %q: %w: %w", roomID, ErrStateUnavailable, err)
	}
	var levels messaging.PowerLevels
	if err := json.Unmarshal(levelsRaw, &levels); err != nil {
		return nil, fmt.Errorf("moderation: power level content in %q: %w: %w", roomID, ErrStateUnavailable, err)
	}

	return &PrivilegeSnapshot{Levels: levels}, nil
}

// CheckCapabilities reports whether the moderator holds every requested
// capability in the room. With no capabilities requested it applies the
// basic floor check instead. All internal failures are folded into a
// (false, reason, nil) result rather than propagated, so callers can
// treat the answer as a plain yes/no.
func (m *PermissionModel) CheckCapabilities(ctx context.Context, roomID ref.RoomID, caps ...Capability) (bool, string, map[Capability]CapabilityStatus) {
	snapshot, err := m.Snapshot(ctx, roomID)
	if err != nil {
		m.logger.Warn("capability check could not read room state",
			"room_id", roomID,
			"error", err,
		)
		return false, err.Error(), nil
	}

	actual := snapshot.UserLevel(m.transport.UserID())

	if len(caps) == 0 {
		if actual >= basicModerationLevel {
			return true, "", nil
		}
		return false, fmt.Sprintf("power level %d is below the moderation floor of %d", actual, basicModerationLevel), nil
	}

	detail := make(map[Capability]CapabilityStatus, len(caps))
	var missing []string
	for _, capability := range caps {
		required := m.requiredLevel(&snapshot.Levels, capability)
		status := CapabilityStatus{
			Granted:  actual >= required,
			Required: required,
			Actual:   actual,
		}
		detail[capability] = status
		if !status.Granted {
			missing = append(missing, fmt.Sprintf("%s (need %d, have %d)", capability, required, actual))
		}
	}

	if len(missing) > 0 {
		return false, "missing capabilities: " + strings.Join(missing, "; "), detail
	}
	return true, "", detail
}

func (m *PermissionModel) requiredLevel(levels *messaging.PowerLevels, capability Capability) int {
	switch capability {
	case CapState:
		return levels.StateLevel()
	default:
		return levels.RedactLevel()
	}
}
