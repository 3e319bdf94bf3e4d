// Copyright 2026 The AI Moderator Authors
// SPDX-License-Identifier: Apache-2.0

package moderation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/williamkray/maubot-aimoderator/lib/config"
	"github.com/williamkray/maubot-aimoderator/lib/ref"
	"github.com/williamkray/maubot-aimoderator/messaging"
)

// Outcome is the terminal state of one message's trip through the
// pipeline.
type Outcome string

const (
	// OutcomeIgnored: privileged sender, disabled media moderation, or
	// scoring unavailable. No action taken.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeFiltered: message kind rejected by the allow-list.
	OutcomeFiltered Outcome = "filtered"
	// OutcomeClean: scored below the threshold.
	OutcomeClean Outcome = "clean"
	// OutcomeRedacted: scored at or above the threshold and deleted.
	OutcomeRedacted Outcome = "redacted"
	// OutcomeFlagged: scored at or above the threshold but the deletion
	// call failed. Best effort, not retried.
	OutcomeFlagged Outcome = "flagged"
	// OutcomeUnenforceable: scored at or above the threshold but the
	// moderator lacks the redact capability; an explanatory reply was
	// sent instead.
	OutcomeUnenforceable Outcome = "unenforceable"
	// OutcomeAbandoned: an unexpected state-read failure propagated to
	// the caller before a decision was reached.
	OutcomeAbandoned Outcome = "abandoned"
)

// defaultJoinNotice is the privacy disclosure sent on first-seen joins
// when no custom text is configured. %s is the classifier endpoint.
const defaultJoinNotice = `<em>IMPORTANT: this room is under moderation by machine-learning. All messages may be sent for analysis to %s. This conversation is not as private as you may think!</em>`

// Scorer is the classifier contract the pipeline consumes. A (nil,
// nil) result means "no verdict, take no action".
type Scorer interface {
	Score(ctx context.Context, message *messaging.MessageEvent) (*RiskAssessment, error)
}

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	// Config is consulted live per event; privilege-sensitive values
	// are never snapshotted at startup.
	Config *config.Config
	// Transport is the Matrix session slice used for state reads and
	// enforcement.
	Transport Transport
	// Scorer produces risk assessments. Required.
	Scorer Scorer
	// Permissions resolves room privileges. If nil, a PermissionModel
	// over Transport is created.
	Permissions *PermissionModel
	// Tracker deduplicates join notices. If nil, a fresh tracker is
	// created.
	Tracker *JoinNoticeTracker
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Pipeline orchestrates moderation for inbound events. Safe for
// concurrent invocation across distinct events.
type Pipeline struct {
	cfg         *config.Config
	transport   Transport
	scorer      Scorer
	permissions *PermissionModel
	tracker     *JoinNoticeTracker
	logger      *slog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(pipelineConfig PipelineConfig) (*Pipeline, error) {
	if pipelineConfig.Config == nil {
		return nil, fmt.Errorf("moderation: pipeline requires a config")
	}
	if pipelineConfig.Transport == nil {
		return nil, fmt.Errorf("moderation: pipeline requires a transport")
	}
	if pipelineConfig.Scorer == nil {
		return nil, fmt.Errorf("moderation: pipeline requires a scorer")
	}
	logger := pipelineConfig.Logger
	if logger == nil {
		logger = slog.Default()
	}
	permissions := pipelineConfig.Permissions
	if permissions == nil {
		permissions = NewPermissionModel(pipelineConfig.Transport, logger)
	}
	tracker := pipelineConfig.Tracker
	if tracker == nil {
		tracker = NewJoinNoticeTracker()
	}
	return &Pipeline{
		cfg:         pipelineConfig.Config,
		transport:   pipelineConfig.Transport,
		scorer:      pipelineConfig.Scorer,
		permissions: permissions,
		tracker:     tracker,
		logger:      logger,
	}, nil
}

// HandleMessage runs one message through the decision pipeline and
// returns its terminal outcome. Expected failures (classifier outage,
// missing capabilities, failed redactions) are handled internally per
// the fail-open policy; only unexpected state-read failures propagate,
// and the caller is responsible for isolating them per event.
func (p *Pipeline) HandleMessage(ctx context.Context, message *messaging.MessageEvent) (Outcome, error) {
	// Privileged senders skip kind filtering entirely. Privilege is
	// re-evaluated before scoring, so a level change between the two
	// reads is honored.
	privileged, err := p.senderPrivileged(ctx, message.RoomID, message.Sender)
	if err != nil {
		return p.finish(message, OutcomeAbandoned), err
	}

	if !privileged && p.cfg.EnableMsgtypeFilter && !Allowed(message, p.cfg) {
		return p.filterMessage(ctx, message)
	}

	if message.IsMedia() && !p.cfg.ModerateFiles {
		return p.finish(message, OutcomeIgnored), nil
	}

	privileged, err = p.senderPrivileged(ctx, message.RoomID, message.Sender)
	if err != nil {
		return p.finish(message, OutcomeAbandoned), err
	}
	if privileged {
		return p.finish(message, OutcomeIgnored), nil
	}

	if err := p.transport.MarkRead(ctx, message.RoomID, message.EventID); err != nil {
		return p.finish(message, OutcomeAbandoned), err
	}

	// Capability numbers are computed eagerly so the enforcement path
	// has them ready for the explanatory reply.
	canRedact, denialReason, detail := p.permissions.CheckCapabilities(ctx, message.RoomID, CapRedact)

	assessment, err := p.scorer.Score(ctx, message)
	if err != nil {
		p.logger.Error("scoring failed, taking no action",
			"room_id", message.RoomID,
			"event_id", message.EventID,
			"error", err,
		)
		return p.finish(message, OutcomeIgnored), nil
	}
	if assessment == nil {
		return p.finish(message, OutcomeIgnored), nil
	}

	if assessment.Max < p.cfg.Threshold {
		return p.finish(message, OutcomeClean), nil
	}

	if canRedact {
		return p.redactFlagged(ctx, message, assessment), nil
	}
	return p.replyFlagged(ctx, message, assessment, denialReason, detail), nil
}

// HandleJoin sends the privacy disclosure notice the first time a
// (room, user) pair is seen. The tracker records the pair even when
// notices are disabled, so enabling them later does not re-greet
// existing members seen since startup.
func (p *Pipeline) HandleJoin(ctx context.Context, roomID ref.RoomID, userID ref.UserID) {
	if !p.tracker.ShouldNotify(roomID, userID) {
		return
	}
	if !p.cfg.EnableJoinNotice {
		return
	}

	notice := p.cfg.CustomNoticeText
	if notice == "" {
		notice = fmt.Sprintf(defaultJoinNotice, p.cfg.APIEndpoint)
	}

	if _, err := p.transport.SendNotice(ctx, roomID, notice); err != nil {
		p.logger.Error("could not send join notice",
			"room_id", roomID,
			"user_id", userID,
			"error", err,
		)
		return
	}
	joinNoticesSent.Inc()
	p.logger.Info("sent join notice",
		"room_id", roomID,
		"user_id", userID,
	)
}

// senderPrivileged reports whether the sender bypasses moderation:
// admin-listed, the moderator itself, or holding a room power level at
// or above the uncensor threshold. The power-level read is fresh on
// every call.
func (p *Pipeline) senderPrivileged(ctx context.Context, roomID ref.RoomID, sender ref.UserID) (bool, error) {
	if sender == p.transport.UserID() {
		return true, nil
	}
	if p.cfg.IsAdmin(sender) {
		return true, nil
	}

	snapshot, err := p.permissions.Snapshot(ctx, roomID)
	if err != nil {
		return false, err
	}
	return snapshot.UserLevel(sender) >= p.cfg.UncensorLevel, nil
}

// filterMessage handles a message whose kind failed the allow-list:
// delete it when the moderator can, otherwise log and leave it. Never
// scored either way.
func (p *Pipeline) filterMessage(ctx context.Context, message *messaging.MessageEvent) (Outcome, error) {
	reason := "Disallowed message type: " + message.MsgType
	if message.MsgType == "m.image" && message.Media != nil && message.Media.MimeType != "" {
		reason += fmt.Sprintf(" (%s)", message.Media.MimeType)
	}

	canRedact, denialReason, _ := p.permissions.CheckCapabilities(ctx, message.RoomID, CapRedact)
	if !canRedact {
		p.logger.Warn("cannot delete disallowed message",
			"room_id", message.RoomID,
			"event_id", message.EventID,
			"reason", reason,
			"denied", denialReason,
		)
		return p.finish(message, OutcomeFiltered), nil
	}

	if _, err := p.transport.RedactEvent(ctx, message.RoomID, message.EventID, reason); err != nil {
		p.logger.Error("could not delete disallowed message",
			"room_id", message.RoomID,
			"event_id", message.EventID,
			"error", fmt.Errorf("%w: %w", ErrEnforcementFailed, err),
		)
		return p.finish(message, OutcomeFiltered), nil
	}

	enforcementActions.WithLabelValues(actionFilter).Inc()
	p.logger.Info("deleted disallowed message",
		"room_id", message.RoomID,
		"event_id", message.EventID,
		"sender", message.Sender,
		"reason", reason,
	)
	return p.finish(message, OutcomeFiltered), nil
}

// redactFlagged deletes a message that scored at or above the
// threshold. Deletion is best effort: a failed call is logged, not
// retried.
func (p *Pipeline) redactFlagged(ctx context.Context, message *messaging.MessageEvent, assessment *RiskAssessment) Outcome {
	if _, err := p.transport.RedactEvent(ctx, message.RoomID, message.EventID, assessment.Comment); err != nil {
		p.logger.Error("could not delete flagged message",
			"room_id", message.RoomID,
			"event_id", message.EventID,
			"score", assessment.Max,
			"error", fmt.Errorf("%w: %w", ErrEnforcementFailed, err),
		)
		return p.finish(message, OutcomeFlagged)
	}

	enforcementActions.WithLabelValues(actionRedact).Inc()
	p.logger.Info("deleted flagged message",
		"room_id", message.RoomID,
		"event_id", message.EventID,
		"sender", message.Sender,
		"score", assessment.Max,
		"comment", assessment.Comment,
	)
	return p.finish(message, OutcomeRedacted)
}

// replyFlagged tells the room a flagged message could not be deleted.
// An under-privileged moderator is a configuration problem a human
// should fix, so it is surfaced rather than silently dropped.
func (p *Pipeline) replyFlagged(ctx context.Context, message *messaging.MessageEvent, assessment *RiskAssessment, denialReason string, detail map[Capability]CapabilityStatus) Outcome {
	var reply string
	if status, ok := detail[CapRedact]; ok {
		capErr := &CapabilityError{Capability: CapRedact, Required: status.Required, Actual: status.Actual}
		p.logger.Warn("flagged message left in place", "error", capErr, "event_id", message.EventID)
		reply = fmt.Sprintf(
			"I would have redacted this message (%s), but I need a power level of %d or higher to do so (currently %d).",
			assessment.Comment, status.Required, status.Actual,
		)
	} else {
		// Capability check itself failed; no numbers to report.
		p.logger.Warn("flagged message left in place",
			"event_id", message.EventID,
			"denied", denialReason,
		)
		reply = fmt.Sprintf(
			"I would have redacted this message (%s), but I could not verify my permissions.",
			assessment.Comment,
		)
	}

	if _, err := p.transport.SendReply(ctx, message.RoomID, message.EventID, reply); err != nil {
		p.logger.Error("could not send enforcement reply",
			"room_id", message.RoomID,
			"event_id", message.EventID,
			"error", err,
		)
	} else {
		enforcementActions.WithLabelValues(actionReply).Inc()
	}
	return p.finish(message, OutcomeUnenforceable)
}

// finish records the terminal outcome metric for one message.
func (p *Pipeline) finish(message *messaging.MessageEvent, outcome Outcome) Outcome {
	eventsProcessed.WithLabelValues(string(outcome)).Inc()
	p.logger.Debug("message processed",
		"room_id", message.RoomID,
		"event_id", message.EventID,
		"outcome", outcome,
	)
	return outcome
}
