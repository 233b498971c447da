// Copyright 2026 The Veil Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"fmt"

	"github.com/veil-im/veil/lib/ref"
	"github.com/veil-im/veil/messaging"
)

// ResolveCommunity returns the community a room belongs to: the parent
// space named by the room's m.space.parent state event, or the room
// itself when it has no parent (a single-room community). When a room
// declares several parents, a canonical parent wins; otherwise the
// first parent in state order is used.
//
// The parent room ID lives in the event's state key, so the room's
// full state is scanned rather than fetching a single state event.
func ResolveCommunity(ctx context.Context, session messaging.Session, room ref.RoomID) (ref.RoomID, error) {
	state, err := session.GetRoomState(ctx, room)
	if err != nil {
		return ref.RoomID{}, fmt.Errorf("relay: resolving community of %s: %w", room, err)
	}

	var first ref.RoomID
	for _, event := range state {
		if event.Type != messaging.EventTypeSpaceParent || event.StateKey == nil {
			continue
		}
		parent, err := ref.ParseRoomID(*event.StateKey)
		if err != nil {
			// A malformed state key is another user's mistake,
			// not ours to fail on.
			continue
		}
		if canonical, ok := event.Content["canonical"].(bool); ok && canonical {
			return parent, nil
		}
		if first.IsZero() {
			first = parent
		}
	}

	if !first.IsZero() {
		return first, nil
	}
	return room, nil
}
