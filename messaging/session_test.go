// Copyright 2026 The AI Moderator Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/williamkray/maubot-aimoderator/lib/ref"
)

func newTestSession(t *testing.T, handler http.HandlerFunc) *Session {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{HomeserverURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	session, err := client.SessionFromToken(ref.MustParseUserID("@mod:example.org"), "syt_test_token")
	if err != nil {
		t.Fatalf("SessionFromToken: %v", err)
	}
	return session
}

func TestGetStateEvent(t *testing.T) {
	roomID := ref.MustParseRoomID("!room:example.org")

	t.Run("success", func(t *testing.T) {
		session := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				t.Errorf("method = %q, want GET", r.Method)
			}
			if !strings.Contains(r.URL.Path, "/state/m.room.power_levels/") {
				t.Errorf("unexpected path %q", r.URL.Path)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer syt_test_token" {
				t.Errorf("Authorization = %q", got)
			}
			io.WriteString(w, `{"users":{"@mod:example.org":100},"users_default":0}`)
		})

		raw, err := session.GetStateEvent(context.Background(), roomID, "m.room.power_levels", "")
		if err != nil {
			t.Fatalf("GetStateEvent: %v", err)
		}
		var levels PowerLevels
		if err := json.Unmarshal(raw, &levels); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got := levels.UserLevel(ref.MustParseUserID("@mod:example.org")); got != 100 {
			t.Errorf("UserLevel = %d, want 100", got)
		}
	})

	t.Run("not found surfaces matrix error", func(t *testing.T) {
		session := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"errcode":"M_NOT_FOUND","error":"Event not found."}`)
		})

		_, err := session.GetStateEvent(context.Background(), roomID, "m.room.member", "@gone:example.org")
		if !IsMatrixError(err, ErrCodeNotFound) {
			t.Fatalf("expected M_NOT_FOUND, got %v", err)
		}
		var matrixErr *MatrixError
		if !errors.As(err, &matrixErr) || matrixErr.StatusCode != http.StatusNotFound {
			t.Errorf("expected status 404 in error, got %v", err)
		}
	})
}

func TestRedactEvent(t *testing.T) {
	var gotPath, gotReason string
	session := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %q, want PUT", r.Method)
		}
		gotPath = r.URL.Path
		var body RedactRequest
		json.NewDecoder(r.Body).Decode(&body)
		gotReason = body.Reason
		io.WriteString(w, `{"event_id":"$redaction:example.org"}`)
	})

	redaction, err := session.RedactEvent(context.Background(),
		ref.MustParseRoomID("!room:example.org"),
		ref.MustParseEventID("$target:example.org"),
		"spam",
	)
	if err != nil {
		t.Fatalf("RedactEvent: %v", err)
	}
	if redaction.String() != "$redaction:example.org" {
		t.Errorf("redaction event = %q", redaction)
	}
	if gotReason != "spam" {
		t.Errorf("reason = %q, want spam", gotReason)
	}
	if !strings.Contains(gotPath, "/redact/") || !strings.Contains(gotPath, "aimod-") {
		t.Errorf("path %q missing redact segment or transaction ID", gotPath)
	}
}

func TestSendReply(t *testing.T) {
	var gotContent MessageContent
	session := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotContent)
		io.WriteString(w, `{"event_id":"$reply:example.org"}`)
	})

	_, err := session.SendReply(context.Background(),
		ref.MustParseRoomID("!room:example.org"),
		ref.MustParseEventID("$original:example.org"),
		"cannot redact",
	)
	if err != nil {
		t.Fatalf("SendReply: %v", err)
	}
	if gotContent.MsgType != "m.text" || gotContent.Body != "cannot redact" {
		t.Errorf("content = %+v", gotContent)
	}
	if gotContent.RelatesTo == nil || gotContent.RelatesTo.InReplyTo == nil {
		t.Fatal("reply relation missing")
	}
	if got := gotContent.RelatesTo.InReplyTo.EventID.String(); got != "$original:example.org" {
		t.Errorf("in_reply_to = %q", got)
	}
}

func TestSendNotice(t *testing.T) {
	var gotContent MessageContent
	session := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotContent)
		io.WriteString(w, `{"event_id":"$notice:example.org"}`)
	})

	_, err := session.SendNotice(context.Background(),
		ref.MustParseRoomID("!room:example.org"),
		"<em>room is moderated</em>",
	)
	if err != nil {
		t.Fatalf("SendNotice: %v", err)
	}
	if gotContent.MsgType != "m.notice" {
		t.Errorf("msgtype = %q, want m.notice", gotContent.MsgType)
	}
	if gotContent.Format != "org.matrix.custom.html" {
		t.Errorf("format = %q", gotContent.Format)
	}
	if gotContent.FormattedBody != "<em>room is moderated</em>" {
		t.Errorf("formatted_body = %q", gotContent.FormattedBody)
	}
	if gotContent.Body != "room is moderated" {
		t.Errorf("plain body = %q, want tags stripped", gotContent.Body)
	}
}

func TestMarkRead(t *testing.T) {
	var gotPath string
	session := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		gotPath = r.URL.Path
		io.WriteString(w, `{}`)
	})

	err := session.MarkRead(context.Background(),
		ref.MustParseRoomID("!room:example.org"),
		ref.MustParseEventID("$seen:example.org"),
	)
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if !strings.Contains(gotPath, "/receipt/m.read/") {
		t.Errorf("path = %q", gotPath)
	}
}

func TestDownloadMedia(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		session := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
			want := "/_matrix/client/v1/media/download/example.org/abc123"
			if r.URL.Path != want {
				t.Errorf("path = %q, want %q", r.URL.Path, want)
			}
			w.Write([]byte{0x89, 'P', 'N', 'G'})
		})

		data, err := session.DownloadMedia(context.Background(), "mxc://example.org/abc123")
		if err != nil {
			t.Fatalf("DownloadMedia: %v", err)
		}
		if len(data) != 4 || data[1] != 'P' {
			t.Errorf("unexpected payload %v", data)
		}
	})

	t.Run("rejects malformed URI", func(t *testing.T) {
		session := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request expected for a malformed URI")
		})
		for _, uri := range []string{"https://example.org/abc", "mxc://example.org", "mxc:///abc"} {
			if _, err := session.DownloadMedia(context.Background(), uri); err == nil {
				t.Errorf("DownloadMedia(%q) succeeded, want error", uri)
			}
		}
	})
}

func TestWhoAmI(t *testing.T) {
	session := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"user_id":"@mod:example.org"}`)
	})

	userID, err := session.WhoAmI(context.Background())
	if err != nil {
		t.Fatalf("WhoAmI: %v", err)
	}
	if userID.String() != "@mod:example.org" {
		t.Errorf("user_id = %q", userID)
	}
}

func TestTransactionIDsAreUnique(t *testing.T) {
	session := &Session{}
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := session.nextTransactionID()
		if seen[id] {
			t.Fatalf("duplicate transaction ID %q", id)
		}
		seen[id] = true
	}
}
