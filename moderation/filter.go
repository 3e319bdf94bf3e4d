// Copyright 2026 The AI Moderator Authors
// SPDX-License-Identifier: Apache-2.0

package moderation

import (
	"slices"

	"github.com/williamkray/maubot-aimoderator/lib/config"
	"github.com/williamkray/maubot-aimoderator/messaging"
)

// Allowed reports whether the message passes the type allow-lists.
// The message kind check is fail-closed: a kind absent from the
// allow-list is rejected. The media type check applies only to images
// and is fail-open: an image with no declared media type passes, since
// senders' clients often omit it.
func Allowed(message *messaging.MessageEvent, cfg *config.Config) bool {
	if !slices.Contains(cfg.MsgtypeAllowlist(), message.MsgType) {
		return false
	}
	if message.MsgType == "m.image" && message.Media != nil && message.Media.MimeType != "" {
		return slices.Contains(cfg.MimetypeAllowlist(), message.Media.MimeType)
	}
	return true
}
