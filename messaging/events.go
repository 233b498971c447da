// Copyright 2026 The Veil Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import "github.com/veil-im/veil/lib/ref"

// Matrix event types the bot reads and writes. Typed constants so that
// a renamed event type is caught at compile time rather than silently
// matching nothing in a sync filter.
const (
	// EventTypeMessage is a room timeline message (m.room.message).
	EventTypeMessage ref.EventType = "m.room.message"

	// EventTypeMember is a room membership state event.
	EventTypeMember ref.EventType = "m.room.member"

	// EventTypePowerLevels is the room's power-level assignments.
	EventTypePowerLevels ref.EventType = "m.room.power_levels"

	// EventTypeSpaceParent declares the room's parent space. The
	// state key is the parent room ID.
	EventTypeSpaceParent ref.EventType = "m.space.parent"

	// EventTypeSpaceChild declares a child room of a space. The
	// state key is the child room ID.
	EventTypeSpaceChild ref.EventType = "m.space.child"
)

// Message types carried in the msgtype field of m.room.message
// content.
const (
	// MsgTypeText is an ordinary user-visible text message.
	MsgTypeText = "m.text"

	// MsgTypeNotice is an automated message. Bots send notices and
	// ignore inbound ones, which breaks reply loops between bots.
	MsgTypeNotice = "m.notice"
)
