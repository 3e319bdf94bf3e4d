// Copyright 2026 The AI Moderator Authors
// SPDX-License-Identifier: Apache-2.0

package moderation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/williamkray/maubot-aimoderator/lib/ref"
	"github.com/williamkray/maubot-aimoderator/messaging"
)

// fakeTransport implements Transport for tests. Function fields
// override individual operations; unset fields use permissive
// defaults. Call records are guarded for concurrent pipeline tests.
type fakeTransport struct {
	userID ref.UserID

	getState      func(roomID ref.RoomID, eventType, stateKey string) (json.RawMessage, error)
	downloadMedia func(mxcURI string) ([]byte, error)
	redactErr     error
	replyErr      error
	noticeErr     error
	markReadErr   error

	mu         sync.Mutex
	redactions []redactCall
	replies    []replyCall
	notices    []string
	readMarks  []ref.EventID
}

type redactCall struct {
	EventID ref.EventID
	Reason  string
}

type replyCall struct {
	InReplyTo ref.EventID
	Body      string
}

func (f *fakeTransport) UserID() ref.UserID { return f.userID }

func (f *fakeTransport) GetStateEvent(ctx context.Context, roomID ref.RoomID, eventType, stateKey string) (json.RawMessage, error) {
	if f.getState != nil {
		return f.getState(roomID, eventType, stateKey)
	}
	switch eventType {
	case "m.room.member":
		return json.RawMessage(`{"membership":"join"}`), nil
	case "m.room.power_levels":
		return json.RawMessage(fmt.Sprintf(`{"users":{%q:100},"users_default":0}`, f.userID)), nil
	}
	return nil, &messaging.MatrixError{Code: messaging.ErrCodeNotFound, Message: "no state", StatusCode: 404}
}

func (f *fakeTransport) RedactEvent(ctx context.Context, roomID ref.RoomID, eventID ref.EventID, reason string) (ref.EventID, error) {
	if f.redactErr != nil {
		return ref.EventID{}, f.redactErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redactions = append(f.redactions, redactCall{EventID: eventID, Reason: reason})
	return ref.MustParseEventID("$redaction:example.org"), nil
}

func (f *fakeTransport) SendNotice(ctx context.Context, roomID ref.RoomID, html string) (ref.EventID, error) {
	if f.noticeErr != nil {
		return ref.EventID{}, f.noticeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, html)
	return ref.MustParseEventID("$notice:example.org"), nil
}

func (f *fakeTransport) SendReply(ctx context.Context, roomID ref.RoomID, inReplyTo ref.EventID, body string) (ref.EventID, error) {
	if f.replyErr != nil {
		return ref.EventID{}, f.replyErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, replyCall{InReplyTo: inReplyTo, Body: body})
	return ref.MustParseEventID("$reply:example.org"), nil
}

func (f *fakeTransport) DownloadMedia(ctx context.Context, mxcURI string) ([]byte, error) {
	if f.downloadMedia != nil {
		return f.downloadMedia(mxcURI)
	}
	return []byte("media-bytes"), nil
}

func (f *fakeTransport) MarkRead(ctx context.Context, roomID ref.RoomID, eventID ref.EventID) error {
	if f.markReadErr != nil {
		return f.markReadErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readMarks = append(f.readMarks, eventID)
	return nil
}

func (f *fakeTransport) redactCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.redactions)
}

// stateJSON builds a getState override serving the given membership
// for the moderator and the given power-level content for the room.
func stateJSON(membership string, levels string) func(ref.RoomID, string, string) (json.RawMessage, error) {
	return func(_ ref.RoomID, eventType, _ string) (json.RawMessage, error) {
		switch eventType {
		case "m.room.member":
			if membership == "" {
				return nil, &messaging.MatrixError{Code: messaging.ErrCodeNotFound, Message: "not found", StatusCode: 404}
			}
			return json.RawMessage(fmt.Sprintf(`{"membership":%q}`, membership)), nil
		case "m.room.power_levels":
			if levels == "" {
				return nil, &messaging.MatrixError{Code: messaging.ErrCodeNotFound, Message: "not found", StatusCode: 404}
			}
			return json.RawMessage(levels), nil
		}
		return nil, &messaging.MatrixError{Code: messaging.ErrCodeNotFound, Message: "not found", StatusCode: 404}
	}
}
