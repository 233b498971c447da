// Copyright 2026 The Veil Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/veil-im/veil/lib/ref"
	"github.com/veil-im/veil/messaging"
)

// Notifier delivers private replies over per-user DM rooms. Rooms are
// created on first use and reused for the lifetime of the process; on
// restart the bot simply opens fresh DM rooms.
type Notifier struct {
	session messaging.Session
	logger  *slog.Logger

	mu    sync.Mutex
	rooms map[ref.UserID]ref.RoomID
}

// NewNotifier returns a notifier over the given session.
func NewNotifier(session messaging.Session, logger *slog.Logger) *Notifier {
	return &Notifier{
		session: session,
		logger:  logger,
		rooms:   make(map[ref.UserID]ref.RoomID),
	}
}

// SendDM delivers content to user in a direct room, creating the room
// if the user has none yet. An M_FORBIDDEN from room creation or
// invite propagates to the caller as a *messaging.MatrixError: it
// means the user refuses DMs from the bot and callers may want to fall
// back to another channel.
func (n *Notifier) SendDM(ctx context.Context, user ref.UserID, content messaging.MessageContent) error {
	room, err := n.directRoom(ctx, user)
	if err != nil {
		return err
	}

	if _, err := n.session.SendMessage(ctx, room, content); err != nil {
		return fmt.Errorf("relay: sending DM: %w", err)
	}
	return nil
}

// directRoom returns the cached DM room for user, creating one when
// absent. The cache holds the lock across room creation so that two
// concurrent first-time DMs to the same user produce one room.
func (n *Notifier) directRoom(ctx context.Context, user ref.UserID) (ref.RoomID, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if room, ok := n.rooms[user]; ok {
		return room, nil
	}

	response, err := n.session.CreateRoom(ctx, messaging.CreateRoomRequest{
		Preset:   "trusted_private_chat",
		Invite:   []string{user.String()},
		IsDirect: true,
	})
	if err != nil {
		return ref.RoomID{}, fmt.Errorf("relay: creating DM room: %w", err)
	}

	n.rooms[user] = response.RoomID
	n.logger.Info("DM room created", "room", response.RoomID)
	return response.RoomID, nil
}
