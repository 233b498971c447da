// Copyright 2026 The Veil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/veil-im/veil/directory"
	"github.com/veil-im/veil/lib/clock"
	"github.com/veil-im/veil/lib/ref"
	"github.com/veil-im/veil/lib/service"
	"github.com/veil-im/veil/messaging"
	"github.com/veil-im/veil/relay"
)

// botService is the core service state: the Matrix session, the
// directory store, and the two processing paths (relay engine for
// trigger messages, router for commands).
type botService struct {
	session   messaging.Session
	store     *directory.Store
	engine    *relay.Engine
	router    *relay.Router
	notifier  *relay.Notifier
	clock     clock.Clock
	logger    *slog.Logger
	startedAt time.Time
}

// handleSync processes one incremental /sync response: accept new
// invites, then feed every timeline message through the dispatch
// chain. Handler errors are logged per event — one poisoned message
// must not take the loop down or starve the rest of the batch.
func (s *botService) handleSync(ctx context.Context, response *messaging.SyncResponse) {
	if len(response.Rooms.Invite) > 0 {
		service.AcceptInvites(ctx, s.session, response.Rooms.Invite, s.logger)
	}

	for roomID, joined := range response.Rooms.Join {
		for _, event := range joined.Timeline.Events {
			if event.Type != messaging.EventTypeMessage {
				continue
			}
			s.handleEvent(ctx, roomID, event)
		}
	}
}

// handleEvent routes one message event: commands first (the command
// prefix is unambiguous), then the relay engine. Most messages are
// neither and fall through both. Store and platform failures are
// logged and answered with a generic private reply — the engine and
// router only return errors for messages that were addressed to the
// bot, so the sender is always waiting on one.
func (s *botService) handleEvent(ctx context.Context, room ref.RoomID, event messaging.Event) {
	reply, handled, err := s.router.Dispatch(ctx, room, event)
	if err != nil {
		s.logger.Error("command failed",
			"room", room,
			"sender", event.Sender,
			"error", err,
		)
		s.replyTransientError(ctx, event.Sender)
		return
	}
	if handled {
		s.deliver(ctx, room, event.Sender, reply)
		return
	}

	outcome, err := s.engine.HandleMessage(ctx, room, event)
	if err != nil {
		s.logger.Error("relay failed",
			"room", room,
			"error", err,
		)
		s.replyTransientError(ctx, event.Sender)
		return
	}
	if outcome != relay.OutcomeNotTriggered {
		s.logger.Debug("relay handled", "room", room, "outcome", outcome)
	}
}

// replyTransientError tells the sender their message failed without
// exposing the underlying error. Best-effort, like all DM replies.
func (s *botService) replyTransientError(ctx context.Context, sender ref.UserID) {
	notice := messaging.NewNotice("Something went wrong while processing your message. Please try again.")
	if err := s.notifier.SendDM(ctx, sender, notice); err != nil {
		s.logger.Error("transient error reply failed", "sender", sender, "error", err)
	}
}

// deliver sends a command reply: room replies as a notice in the
// invoking room, everything else as a DM to the sender. Delivery is
// best-effort — the command already ran.
func (s *botService) deliver(ctx context.Context, room ref.RoomID, sender ref.UserID, reply relay.Reply) {
	if reply.Text == "" {
		return
	}
	if reply.Room {
		if _, err := s.session.SendMessage(ctx, room, messaging.NewNotice(reply.Text)); err != nil {
			s.logger.Error("room reply failed", "room", room, "error", err)
		}
		return
	}
	if err := s.notifier.SendDM(ctx, sender, messaging.NewNotice(reply.Text)); err != nil {
		s.logger.Error("command reply failed", "sender", sender, "error", err)
	}
}
