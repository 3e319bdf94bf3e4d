// Copyright 2026 The AI Moderator Authors
// SPDX-License-Identifier: Apache-2.0

package moderation

import (
	"errors"
	"fmt"
)

// Sentinel errors for the moderation taxonomy. All are wrapped with
// context at the point of failure; match with errors.Is.
var (
	// ErrNotAMember indicates the moderator is not joined to the room
	// it was asked to evaluate.
	ErrNotAMember = errors.New("moderator is not a member of the room")

	// ErrStateUnavailable indicates room state needed for a privilege
	// decision could not be fetched or parsed.
	ErrStateUnavailable = errors.New("room state unavailable")

	// ErrScoringUnavailable indicates the classifier call failed hard
	// (non-2xx response or transport error, including timeout).
	ErrScoringUnavailable = errors.New("scoring unavailable")

	// ErrMediaFetchFailed indicates attached media could not be
	// downloaded for scoring.
	ErrMediaFetchFailed = errors.New("media fetch failed")

	// ErrEnforcementFailed indicates a redaction call failed after the
	// capability for it was confirmed.
	ErrEnforcementFailed = errors.New("enforcement failed")
)

// CapabilityError reports that the moderator's power level is below
// what a privileged action requires. It is surfaced to the room on the
// enforcement path (a human should fix the moderator's power level)
// and only logged on the filtering path.
type CapabilityError struct {
	Capability Capability
	Required   int
	Actual     int
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("moderation: missing %s capability: need power level %d, have %d",
		e.Capability, e.Required, e.Actual)
}
