// Copyright 2026 The AI Moderator Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"github.com/williamkray/maubot-aimoderator/lib/ref"
)

// AuthResponse is returned by Login.
type AuthResponse struct {
	UserID      ref.UserID `json:"user_id"`
	AccessToken string     `json:"access_token"`
	DeviceID    string     `json:"device_id"`
}

// LoginRequest is the request body for password login.
type LoginRequest struct {
	Type                     string `json:"type"`
	User                     string `json:"user"`
	Password                 string `json:"password"`
	InitialDeviceDisplayName string `json:"initial_device_display_name,omitempty"`
}

// MessageContent is the content body of an outgoing m.room.message
// event. Notices carry HTML via Format/FormattedBody; replies reference
// the original event via RelatesTo.
type MessageContent struct {
	MsgType       string     `json:"msgtype"`
	Body          string     `json:"body"`
	Format        string     `json:"format,omitempty"`
	FormattedBody string     `json:"formatted_body,omitempty"`
	RelatesTo     *RelatesTo `json:"m.relates_to,omitempty"`
}

// RelatesTo expresses relationships between events. For replies only
// InReplyTo is set.
type RelatesTo struct {
	InReplyTo *InReplyTo `json:"m.in_reply_to,omitempty"`
}

// InReplyTo references the event being replied to.
type InReplyTo struct {
	EventID ref.EventID `json:"event_id"`
}

// RedactRequest is the request body for event redaction.
type RedactRequest struct {
	Reason string `json:"reason,omitempty"`
}

// PowerLevels is the content of an m.room.power_levels state event.
// Fields that carry a Matrix-spec default when absent are pointers so
// that "absent" and "zero" stay distinguishable.
type PowerLevels struct {
	Users        map[string]int `json:"users,omitempty"`
	UsersDefault int            `json:"users_default"`
	Redact       *int           `json:"redact,omitempty"`
	StateDefault *int           `json:"state_default,omitempty"`
}

// Matrix-spec defaults for power-level thresholds absent from the
// state event content.
const (
	defaultRedactLevel = 50
	defaultStateLevel  = 50
)

// UserLevel returns the effective power level of a user: their entry
// in the users map, or users_default when absent.
func (p *PowerLevels) UserLevel(userID ref.UserID) int {
	if level, ok := p.Users[userID.String()]; ok {
		return level
	}
	return p.UsersDefault
}

// RedactLevel returns the minimum power level required to redact other
// users' events (50 when the state event omits it).
func (p *PowerLevels) RedactLevel() int {
	if p.Redact != nil {
		return *p.Redact
	}
	return defaultRedactLevel
}

// StateLevel returns the minimum power level required to send state
// events (50 when the state event omits it).
func (p *PowerLevels) StateLevel() int {
	if p.StateDefault != nil {
		return *p.StateDefault
	}
	return defaultStateLevel
}

// MemberContent is the content of an m.room.member state event.
type MemberContent struct {
	Membership  string `json:"membership"`
	DisplayName string `json:"displayname,omitempty"`
}

// Event represents a Matrix event from the server.
type Event struct {
	EventID        ref.EventID    `json:"event_id"`
	Type           string         `json:"type"`
	Sender         ref.UserID     `json:"sender"`
	OriginServerTS int64          `json:"origin_server_ts"`
	Content        map[string]any `json:"content"`
	RoomID         ref.RoomID     `json:"room_id,omitempty"`
	StateKey       *string        `json:"state_key,omitempty"`
	Unsigned       *EventUnsigned `json:"unsigned,omitempty"`
}

// EventUnsigned holds optional unsigned data attached to events.
type EventUnsigned struct {
	Age           int64          `json:"age,omitempty"`
	TransactionID string         `json:"transaction_id,omitempty"`
	PrevContent   map[string]any `json:"prev_content,omitempty"`
}

// SyncOptions controls the behavior of the /sync endpoint.
type SyncOptions struct {
	Since      string // next_batch token from previous sync; empty for initial sync
	Timeout    int    // long-poll timeout in milliseconds; 0 for immediate return
	SetTimeout bool   // if true, send the timeout parameter (needed to distinguish "not set" from "0")
	Filter     string // filter ID or inline JSON filter
}

// SyncResponse is the top-level response from /sync.
type SyncResponse struct {
	NextBatch string       `json:"next_batch"`
	Rooms     RoomsSection `json:"rooms"`
}

// RoomsSection contains per-room sync data grouped by membership state.
// Map keys are room IDs; encoding/json uses ref.RoomID's TextUnmarshaler
// for automatic validation at deserialization.
type RoomsSection struct {
	Join map[ref.RoomID]JoinedRoom `json:"join,omitempty"`
}

// JoinedRoom contains sync data for a room the moderator has joined.
type JoinedRoom struct {
	Timeline TimelineSection `json:"timeline"`
	State    StateSection    `json:"state"`
}

// TimelineSection contains timeline events from a sync response.
type TimelineSection struct {
	Events    []Event `json:"events"`
	PrevBatch string  `json:"prev_batch"`
	Limited   bool    `json:"limited"`
}

// StateSection contains state events from a sync response.
type StateSection struct {
	Events []Event `json:"events"`
}

// SendEventResponse is returned by redaction and send endpoints.
type SendEventResponse struct {
	EventID ref.EventID `json:"event_id"`
}
