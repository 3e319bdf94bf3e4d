// Copyright 2026 The AI Moderator Authors
// SPDX-License-Identifier: Apache-2.0

package moderation

import (
	"context"
	"encoding/json"

	"github.com/williamkray/maubot-aimoderator/lib/ref"
)

// Transport is the slice of the Matrix session the decision engine
// needs. *messaging.Session satisfies it; tests substitute fakes.
type Transport interface {
	// UserID returns the moderator's own user ID.
	UserID() ref.UserID

	// GetStateEvent fetches a state event's content from a room.
	GetStateEvent(ctx context.Context, roomID ref.RoomID, eventType, stateKey string) (json.RawMessage, error)

	// RedactEvent removes an event, recording reason.
	RedactEvent(ctx context.Context, roomID ref.RoomID, eventID ref.EventID, reason string) (ref.EventID, error)

	// SendNotice sends an HTML-formatted m.notice to the room.
	SendNotice(ctx context.Context, roomID ref.RoomID, html string) (ref.EventID, error)

	// SendReply sends a plain-text reply to an existing event.
	SendReply(ctx context.Context, roomID ref.RoomID, inReplyTo ref.EventID, body string) (ref.EventID, error)

	// DownloadMedia fetches the bytes behind an mxc:// content URI.
	DownloadMedia(ctx context.Context, mxcURI string) ([]byte, error)

	// MarkRead posts a read receipt for the event.
	MarkRead(ctx context.Context, roomID ref.RoomID, eventID ref.EventID) error
}
