// Copyright 2026 The AI Moderator Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides strongly typed, immutable references for the
// Matrix identifiers the moderator works with: rooms, users, and
// events.
//
// All constructors validate their inputs and return errors for invalid
// identifiers. Once constructed, a ref is immutable. The zero value of
// every type is invalid; use IsZero to check. Refs are comparable and
// safe to use directly as map keys.
//
// JSON marshaling uses the canonical Matrix string form via
// encoding.TextMarshaler, so sync responses and state events parse
// straight into validated refs at the deserialization boundary.
package ref
