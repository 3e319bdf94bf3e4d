// Copyright 2026 The AI Moderator Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides HTTP I/O utilities shared by the Matrix
// transport and the classifier client.
//
// Response helpers bound all body reads at MaxResponseSize to prevent
// unbounded memory allocation from a misbehaving server. These are for
// API responses and media downloads the moderator inspects in memory —
// not for streaming transfers.
package netutil

import (
	"io"
)

// MaxResponseSize is the bound on response body reads: 64 MB. This
// exists solely to prevent a pathological response from exhausting
// system memory. Legitimate API responses and room media are orders of
// magnitude smaller.
const MaxResponseSize int64 = 64 << 20

// ReadResponse reads an HTTP response body up to MaxResponseSize bytes.
// Use instead of io.ReadAll when reading response bodies.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}
