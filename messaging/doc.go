// Copyright 2026 The AI Moderator Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging implements the slice of the Matrix client-server
// API the moderator needs: reading room state (power levels,
// membership), redacting events, sending notices and replies,
// downloading media, posting read receipts, and long-polling /sync.
//
// The entry points are Client (homeserver URL + HTTP transport) and
// Session (an access-token-authenticated view over a Client). Pump
// turns the /sync stream into per-event handler callbacks, one
// goroutine per event.
//
// All server errors surface as *MatrixError carrying the Matrix error
// code and HTTP status; match them with errors.As or the IsMatrixError
// helper.
package messaging
