// Copyright 2026 The AI Moderator Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/williamkray/maubot-aimoderator/lib/ref"
)

// Session is an authenticated Matrix session.
// It wraps a Client with an access token for making authenticated API
// calls. Sessions are lightweight and safe for concurrent use.
type Session struct {
	client      *Client
	accessToken string
	userID      ref.UserID

	// transactionCounter generates unique transaction IDs for idempotent sends.
	transactionCounter atomic.Int64
}

// UserID returns the fully-qualified Matrix user ID (e.g., "@moderator:example.org").
func (s *Session) UserID() ref.UserID {
	return s.userID
}

// CloseIdleConnections closes idle HTTP connections in the underlying
// transport's connection pool. Call this after a sync error to force
// the next request to establish a fresh TCP connection.
func (s *Session) CloseIdleConnections() {
	s.client.CloseIdleConnections()
}

// WhoAmI validates the access token and returns the user ID.
// Useful for checking whether a configured token is still valid.
func (s *Session) WhoAmI(ctx context.Context) (ref.UserID, error) {
	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/account/whoami", s.accessToken, nil)
	if err != nil {
		return ref.UserID{}, fmt.Errorf("messaging: whoami failed: %w", err)
	}

	var response struct {
		UserID ref.UserID `json:"user_id"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.UserID{}, fmt.Errorf("messaging: failed to parse whoami response: %w", err)
	}
	return response.UserID, nil
}

// GetStateEvent fetches a specific state event's content from a room.
// Returns the raw JSON content — the caller is responsible for
// unmarshaling into the appropriate type (e.g., PowerLevels).
//
// If the state event does not exist, returns a *MatrixError with code M_NOT_FOUND.
func (s *Session) GetStateEvent(ctx context.Context, roomID ref.RoomID, eventType, stateKey string) (json.RawMessage, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/state/%s/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(eventType),
		url.PathEscape(stateKey),
	)

	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: get state event %s/%s in %q failed: %w", eventType, stateKey, roomID, err)
	}
	return json.RawMessage(body), nil
}

// SendMessage sends an m.room.message event to a room.
// Uses Matrix's idempotent PUT with a transaction ID.
// Returns the event ID of the sent message.
func (s *Session) SendMessage(ctx context.Context, roomID ref.RoomID, content MessageContent) (ref.EventID, error) {
	transactionID := s.nextTransactionID()
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/m.room.message/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(transactionID),
	)

	body, err := s.client.doRequest(ctx, http.MethodPut, path, s.accessToken, content)
	if err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: send message to %q failed: %w", roomID, err)
	}

	var response SendEventResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: failed to parse send response: %w", err)
	}
	return response.EventID, nil
}

// SendNotice sends an m.notice message with HTML formatting. The plain
// body carries the tag-stripped text for clients that don't render
// HTML.
func (s *Session) SendNotice(ctx context.Context, roomID ref.RoomID, html string) (ref.EventID, error) {
	return s.SendMessage(ctx, roomID, MessageContent{
		MsgType:       "m.notice",
		Body:          stripHTMLTags(html),
		Format:        "org.matrix.custom.html",
		FormattedBody: html,
	})
}

// SendReply sends a plain text message as a reply to an existing event.
func (s *Session) SendReply(ctx context.Context, roomID ref.RoomID, inReplyTo ref.EventID, body string) (ref.EventID, error) {
	return s.SendMessage(ctx, roomID, MessageContent{
		MsgType: "m.text",
		Body:    body,
		RelatesTo: &RelatesTo{
			InReplyTo: &InReplyTo{EventID: inReplyTo},
		},
	})
}

// RedactEvent removes a previously sent event from the room timeline.
// The reason is recorded in the redaction event and shown by clients.
// Returns the event ID of the redaction event.
func (s *Session) RedactEvent(ctx context.Context, roomID ref.RoomID, eventID ref.EventID, reason string) (ref.EventID, error) {
	transactionID := s.nextTransactionID()
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/redact/%s/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(eventID.String()),
		url.PathEscape(transactionID),
	)

	body, err := s.client.doRequest(ctx, http.MethodPut, path, s.accessToken, RedactRequest{Reason: reason})
	if err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: redact %s in %q failed: %w", eventID, roomID, err)
	}

	var response SendEventResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: failed to parse redact response: %w", err)
	}
	return response.EventID, nil
}

// MarkRead posts a read receipt for the given event.
func (s *Session) MarkRead(ctx context.Context, roomID ref.RoomID, eventID ref.EventID) error {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/receipt/m.read/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(eventID.String()),
	)

	if _, err := s.client.doRequest(ctx, http.MethodPost, path, s.accessToken, struct{}{}); err != nil {
		return fmt.Errorf("messaging: mark read %s in %q failed: %w", eventID, roomID, err)
	}
	return nil
}

// DownloadMedia fetches the raw bytes behind an mxc:// content URI via
// the authenticated media endpoint.
func (s *Session) DownloadMedia(ctx context.Context, mxcURI string) ([]byte, error) {
	server, mediaID, err := parseMXC(mxcURI)
	if err != nil {
		return nil, fmt.Errorf("messaging: %w", err)
	}

	path := fmt.Sprintf("/_matrix/client/v1/media/download/%s/%s",
		url.PathEscape(server),
		url.PathEscape(mediaID),
	)

	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: download media %q failed: %w", mxcURI, err)
	}
	return body, nil
}

// Sync performs an incremental sync with the homeserver.
// For initial sync, leave options.Since empty.
// For long-polling, set options.Timeout to the desired wait in milliseconds.
func (s *Session) Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error) {
	query := url.Values{}
	if options.Since != "" {
		query.Set("since", options.Since)
	}
	if options.SetTimeout {
		query.Set("timeout", strconv.Itoa(options.Timeout))
	}
	if options.Filter != "" {
		query.Set("filter", options.Filter)
	}

	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/sync", s.accessToken, nil, query)
	if err != nil {
		return nil, fmt.Errorf("messaging: sync failed: %w", err)
	}

	var response SyncResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse sync response: %w", err)
	}
	return &response, nil
}

// nextTransactionID generates a unique transaction ID for idempotent event sending.
// Format: "aimod-<timestamp_ms>-<counter>" to ensure uniqueness across restarts.
func (s *Session) nextTransactionID() string {
	counter := s.transactionCounter.Add(1)
	return fmt.Sprintf("aimod-%d-%d", time.Now().UnixMilli(), counter)
}

// parseMXC splits an mxc://server/mediaID content URI into its parts.
func parseMXC(mxcURI string) (server, mediaID string, err error) {
	rest, ok := strings.CutPrefix(mxcURI, "mxc://")
	if !ok {
		return "", "", fmt.Errorf("content URI %q does not start with mxc://", mxcURI)
	}
	server, mediaID, ok = strings.Cut(rest, "/")
	if !ok || server == "" || mediaID == "" {
		return "", "", fmt.Errorf("content URI %q is missing server or media ID", mxcURI)
	}
	return server, mediaID, nil
}

// stripHTMLTags removes HTML tags for the plain-text fallback body of
// formatted messages. Not a sanitizer — only used on our own notice
// markup.
func stripHTMLTags(html string) string {
	var plain strings.Builder
	inTag := false
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			plain.WriteRune(r)
		}
	}
	return plain.String()
}
