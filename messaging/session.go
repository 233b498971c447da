// Copyright 2026 The Veil Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"

	"github.com/veil-im/veil/lib/ref"
)

// Session is the interface for the Matrix operations the relay engine
// and command handlers perform. The production implementation is
// *DirectSession; tests substitute fakes.
//
// Operator-only methods (AccessToken, DeviceID, SetDisplayName,
// LeaveRoom) are not part of this interface. Code that needs them
// should type-assert to *DirectSession.
type Session interface {
	// UserID returns the fully-qualified Matrix user ID
	// (e.g., "@veil:veil.local").
	UserID() ref.UserID

	// Close releases any resources held by the session. Idempotent.
	Close() error

	// WhoAmI validates the session and returns the user ID.
	WhoAmI(ctx context.Context) (ref.UserID, error)

	// ResolveAlias resolves a room alias to a room ID.
	ResolveAlias(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error)

	// GetStateEvent fetches a specific state event's content from a room.
	// Returns the raw JSON content for the caller to unmarshal.
	GetStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string) (json.RawMessage, error)

	// GetRoomState fetches all current state events from a room.
	GetRoomState(ctx context.Context, roomID ref.RoomID) ([]Event, error)

	// SendStateEvent sends a state event to a room. Returns the event ID.
	SendStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string, content any) (ref.EventID, error)

	// SendEvent sends an event of any type to a room. Returns the event ID.
	SendEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, content any) (ref.EventID, error)

	// SendMessage sends a message to a room. Returns the event ID.
	SendMessage(ctx context.Context, roomID ref.RoomID, content MessageContent) (ref.EventID, error)

	// RedactEvent removes the content of an event. Returns the event ID
	// of the redaction event.
	RedactEvent(ctx context.Context, roomID ref.RoomID, eventID ref.EventID, reason string) (ref.EventID, error)

	// CreateRoom creates a new Matrix room.
	CreateRoom(ctx context.Context, request CreateRoomRequest) (*CreateRoomResponse, error)

	// InviteUser invites a user to a room.
	InviteUser(ctx context.Context, roomID ref.RoomID, userID ref.UserID) error

	// JoinRoom joins a room by room ID. Returns the room ID. To join
	// by alias, resolve with ResolveAlias first.
	JoinRoom(ctx context.Context, roomID ref.RoomID) (ref.RoomID, error)

	// JoinedRooms returns the list of room IDs the user has joined.
	JoinedRooms(ctx context.Context) ([]ref.RoomID, error)

	// GetRoomMembers returns the members of a room.
	GetRoomMembers(ctx context.Context, roomID ref.RoomID) ([]RoomMember, error)

	// GetDisplayName fetches a user's display name.
	GetDisplayName(ctx context.Context, userID ref.UserID) (string, error)

	// Sync performs an incremental sync with the homeserver.
	Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error)
}

// Compile-time check: *DirectSession implements Session.
var _ Session = (*DirectSession)(nil)
