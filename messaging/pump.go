// Copyright 2026 The AI Moderator Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/williamkray/maubot-aimoderator/lib/ref"
)

const (
	// longPollTimeout is how long the server holds a sync request open
	// waiting for new events (milliseconds).
	longPollTimeout = 30_000

	// retryTimeout is how long to wait before retrying after a sync error.
	retryTimeout = 1 * time.Second

	// maxSyncRetries is how many consecutive sync failures to tolerate
	// before giving up.
	maxSyncRetries = 5
)

// syncFilter restricts the sync stream to the event types the pump
// dispatches and strips presence and account data entirely.
const syncFilter = `{"room":{"timeline":{"types":["m.room.message","m.sticker","m.room.member"]},"ephemeral":{"types":[]},"account_data":{"types":[]}},"presence":{"types":[]},"account_data":{"types":[]}}`

// MessageHandler is called once per message or sticker timeline event.
type MessageHandler func(ctx context.Context, message *MessageEvent)

// JoinHandler is called once per membership event announcing a join.
// Membership events repeat on profile changes, so the handler must
// tolerate duplicate (room, user) pairs.
type JoinHandler func(ctx context.Context, roomID ref.RoomID, userID ref.UserID)

// Pump long-polls /sync and dispatches timeline events to handlers.
// Each event is handled on its own goroutine so a slow decision on one
// message never stalls the stream.
type Pump struct {
	session   *Session
	logger    *slog.Logger
	onMessage MessageHandler
	onJoin    JoinHandler

	// handlers tracks in-flight event goroutines for drain on shutdown.
	handlers sync.WaitGroup
}

// PumpConfig configures a Pump.
type PumpConfig struct {
	Session *Session
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
	// OnMessage receives message and sticker events. Required.
	OnMessage MessageHandler
	// OnJoin receives membership joins. Optional.
	OnJoin JoinHandler
}

// NewPump creates a Pump. It does not start syncing; call Run.
func NewPump(config PumpConfig) (*Pump, error) {
	if config.Session == nil {
		return nil, fmt.Errorf("messaging: pump requires a session")
	}
	if config.OnMessage == nil {
		return nil, fmt.Errorf("messaging: pump requires a message handler")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pump{
		session:   config.Session,
		logger:    logger,
		onMessage: config.OnMessage,
		onJoin:    config.OnJoin,
	}, nil
}

// Run syncs until ctx is canceled or maxSyncRetries consecutive sync
// calls fail. The initial sync uses timeout=0 purely to anchor the
// stream position; its backlog events are discarded so the moderator
// never acts on history from before it started.
func (p *Pump) Run(ctx context.Context) error {
	defer p.handlers.Wait()

	initial, err := p.session.Sync(ctx, SyncOptions{
		Timeout:    0,
		SetTimeout: true,
		Filter:     syncFilter,
	})
	if err != nil {
		return fmt.Errorf("messaging: initial sync failed: %w", err)
	}
	since := initial.NextBatch

	p.logger.Info("sync pump started", "since", since)

	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		response, err := p.session.Sync(ctx, SyncOptions{
			Since:      since,
			Timeout:    longPollTimeout,
			SetTimeout: true,
			Filter:     syncFilter,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			if failures >= maxSyncRetries {
				return fmt.Errorf("messaging: sync failed %d times in a row: %w", failures, err)
			}
			p.logger.Warn("sync failed, retrying",
				"error", err,
				"consecutive_failures", failures,
			)
			// Drop pooled connections so the retry doesn't reuse a
			// poisoned one.
			p.session.CloseIdleConnections()
			select {
			case <-time.After(retryTimeout):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		failures = 0

		for roomID, room := range response.Rooms.Join {
			for _, event := range room.Timeline.Events {
				p.dispatch(ctx, roomID, event)
			}
		}

		since = response.NextBatch
	}
}

// dispatch routes one timeline event to the appropriate handler on its
// own goroutine.
func (p *Pump) dispatch(ctx context.Context, roomID ref.RoomID, event Event) {
	switch event.Type {
	case "m.room.message", "m.sticker":
		message := ParseMessageEvent(roomID, event)
		if message == nil {
			return
		}
		p.spawn(ctx, roomID, event.EventID, func(ctx context.Context) {
			p.onMessage(ctx, message)
		})

	case "m.room.member":
		if p.onJoin == nil {
			return
		}
		membership, _ := event.Content["membership"].(string)
		if membership != "join" || event.StateKey == nil {
			return
		}
		joined, err := ref.ParseUserID(*event.StateKey)
		if err != nil {
			p.logger.Warn("member event with invalid state key",
				"room_id", roomID,
				"state_key", *event.StateKey,
			)
			return
		}
		p.spawn(ctx, roomID, event.EventID, func(ctx context.Context) {
			p.onJoin(ctx, roomID, joined)
		})
	}
}

// spawn runs fn on a tracked goroutine with panic recovery. A handler
// panic must not take down the sync loop.
func (p *Pump) spawn(ctx context.Context, roomID ref.RoomID, eventID ref.EventID, fn func(ctx context.Context)) {
	p.handlers.Add(1)
	go func() {
		defer p.handlers.Done()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("event handler panicked",
					"room_id", roomID,
					"event_id", eventID,
					"panic", r,
					"stack", string(debug.Stack()),
				)
			}
		}()
		fn(ctx)
	}()
}
