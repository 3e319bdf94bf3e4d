// Copyright 2026 The AI Moderator Authors
// SPDX-License-Identifier: Apache-2.0

// Package moderation implements the content-moderation decision engine:
// privilege resolution against room power levels (PermissionModel),
// message-kind allow-listing (FilterPolicy), LLM risk scoring with
// bounded retry and refusal detection (ContentScorer), at-most-once
// join notices (JoinNoticeTracker), and the per-event orchestration
// that ties them together (Pipeline).
//
// The engine is fail-open: a classifier or homeserver outage degrades
// to "take no action" rather than blocking chat. The Pipeline is safe
// for concurrent invocation across distinct events; the join tracker
// is the only shared mutable state.
package moderation
