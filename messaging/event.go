// Copyright 2026 The AI Moderator Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"github.com/williamkray/maubot-aimoderator/lib/ref"
)

// MediaRef points at an uploaded media item attached to a message.
type MediaRef struct {
	// URL is the mxc:// content URI.
	URL string
	// MimeType is the declared content type from the event's file info.
	// Empty when the sender did not include one.
	MimeType string
}

// MessageEvent is a normalized view of an m.room.message or m.sticker
// timeline event, carrying just the fields moderation decisions read.
type MessageEvent struct {
	RoomID  ref.RoomID
	Sender  ref.UserID
	EventID ref.EventID
	// MsgType is the msgtype from the event content. Stickers, which
	// have no msgtype of their own, are normalized to "m.sticker".
	MsgType string
	Body    string
	Media   *MediaRef
}

// IsMedia reports whether the event carries downloadable media.
func (m *MessageEvent) IsMedia() bool {
	return m.Media != nil
}

// ParseMessageEvent converts a raw timeline event into a MessageEvent.
// Returns nil for events that are not messages or stickers, and for
// malformed message events with no usable msgtype.
func ParseMessageEvent(roomID ref.RoomID, event Event) *MessageEvent {
	message := &MessageEvent{
		RoomID:  roomID,
		Sender:  event.Sender,
		EventID: event.EventID,
	}

	switch event.Type {
	case "m.room.message":
		msgtype, _ := event.Content["msgtype"].(string)
		if msgtype == "" {
			return nil
		}
		message.MsgType = msgtype
	case "m.sticker":
		message.MsgType = "m.sticker"
	default:
		return nil
	}

	message.Body, _ = event.Content["body"].(string)

	if mxcURL, ok := event.Content["url"].(string); ok && mxcURL != "" {
		media := &MediaRef{URL: mxcURL}
		if info, ok := event.Content["info"].(map[string]any); ok {
			media.MimeType, _ = info["mimetype"].(string)
		}
		message.Media = media
	}

	return message
}
