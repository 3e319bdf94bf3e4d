// Copyright 2026 The AI Moderator Authors
// SPDX-License-Identifier: Apache-2.0

package moderation

import (
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/williamkray/maubot-aimoderator/lib/ref"
)

// JoinKey identifies one (room, user) pair for notice deduplication.
type JoinKey struct {
	Room ref.RoomID
	User ref.UserID
}

// JoinNoticeTracker remembers which (room, user) pairs have already
// been greeted, so the privacy notice goes out at most once per pair
// per process lifetime. Membership events repeat on profile changes
// and the sync pump dispatches them concurrently, so the first-seen
// test must be atomic.
type JoinNoticeTracker struct {
	seen *xsync.MapOf[JoinKey, struct{}]
}

// NewJoinNoticeTracker creates an empty tracker.
func NewJoinNoticeTracker() *JoinNoticeTracker {
	return &JoinNoticeTracker{seen: xsync.NewMapOf[JoinKey, struct{}]()}
}

// ShouldNotify records the pair and reports whether this is its first
// appearance. Returns true exactly once per (room, user) pair across
// any number of concurrent calls.
func (t *JoinNoticeTracker) ShouldNotify(room ref.RoomID, user ref.UserID) bool {
	_, loaded := t.seen.LoadOrStore(JoinKey{Room: room, User: user}, struct{}{})
	return !loaded
}
