// Copyright 2026 The AI Moderator Authors
// SPDX-License-Identifier: Apache-2.0

package moderation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aimod_events_processed",
		Help: "Message events processed, by terminal outcome.",
	}, []string{"outcome"})

	scorerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aimod_scorer_calls",
		Help: "Classifier API calls, by result.",
	}, []string{"result"})

	enforcementActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aimod_enforcement_actions",
		Help: "Enforcement actions taken against messages.",
	}, []string{"action"})

	joinNoticesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aimod_join_notices_sent",
		Help: "Privacy disclosure notices sent on first-seen joins.",
	})
)

// scorerCalls result label values.
const (
	scoreResultOK         = "ok"
	scoreResultRefusal    = "refusal"
	scoreResultParseError = "parse_error"
	scoreResultHTTPError  = "http_error"
	scoreResultTimeout    = "timeout"
)

// enforcementActions action label values.
const (
	actionRedact = "redact"
	actionReply  = "reply"
	actionFilter = "filter"
)
