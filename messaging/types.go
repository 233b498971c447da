// Copyright 2026 The Veil Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"github.com/veil-im/veil/lib/ref"
	"github.com/veil-im/veil/lib/secret"
)

// RegisterRequest holds parameters for registering a new Matrix
// account. Password and RegistrationToken are stored in mmap-backed
// buffers (locked against swap, excluded from core dumps). The caller
// retains ownership of the buffers — Register reads from them but does
// not close them.
type RegisterRequest struct {
	Username          string
	Password          *secret.Buffer
	RegistrationToken *secret.Buffer
}

// AuthResponse is returned by Register and Login.
type AuthResponse struct {
	UserID      ref.UserID `json:"user_id"`
	AccessToken string     `json:"access_token"`
	DeviceID    string     `json:"device_id"`
}

// LoginRequest is the request body for password login.
type LoginRequest struct {
	Type                     string `json:"type"`
	User                     string `json:"user"`
	Password                 string `json:"password"`
	DeviceID                 string `json:"device_id,omitempty"`
	InitialDeviceDisplayName string `json:"initial_device_display_name,omitempty"`
}

// CreateRoomRequest holds parameters for creating a Matrix room.
type CreateRoomRequest struct {
	Name            string         `json:"name,omitempty"`
	Topic           string         `json:"topic,omitempty"`
	Alias           string         `json:"room_alias_name,omitempty"` // local alias without # or :server
	Visibility      string         `json:"visibility,omitempty"`      // "public" or "private"
	Preset          string         `json:"preset,omitempty"`          // "private_chat", "public_chat", "trusted_private_chat"
	Invite          []string       `json:"invite,omitempty"`
	IsDirect        bool           `json:"is_direct,omitempty"` // direct-message room flag
	CreationContent map[string]any `json:"creation_content,omitempty"`
	InitialState    []StateEvent   `json:"initial_state,omitempty"`
}

// CreateRoomResponse is returned by CreateRoom.
type CreateRoomResponse struct {
	RoomID ref.RoomID `json:"room_id"`
}

// StateEvent represents a Matrix state event for room creation or
// state setting.
type StateEvent struct {
	Type     string `json:"type"`
	StateKey string `json:"state_key"`
	Content  any    `json:"content"`
}

// MessageContent is the content body of a Matrix message event
// (m.room.message). FormattedBody carries an optional HTML rendering;
// Body always carries the canonical plain text.
type MessageContent struct {
	MsgType       string    `json:"msgtype"`
	Body          string    `json:"body"`
	Format        string    `json:"format,omitempty"`
	FormattedBody string    `json:"formatted_body,omitempty"`
	Mentions      *Mentions `json:"m.mentions,omitempty"`
}

// Mentions identifies users referenced in a message. Follows the
// Matrix m.mentions format: a list of fully-qualified user IDs the
// message is addressed to.
type Mentions struct {
	UserIDs []string `json:"user_ids,omitempty"`
}

// NewTextMessage creates a plain text message.
func NewTextMessage(body string) MessageContent {
	return MessageContent{
		MsgType: MsgTypeText,
		Body:    body,
	}
}

// NewHTMLMessage creates a message with both a plain-text body and an
// HTML rendering.
func NewHTMLMessage(body, html string) MessageContent {
	return MessageContent{
		MsgType:       MsgTypeText,
		Body:          body,
		Format:        "org.matrix.custom.html",
		FormattedBody: html,
	}
}

// NewNotice creates an m.notice message. Bots send notices so that
// other bots (including this one) ignore them.
func NewNotice(body string) MessageContent {
	return MessageContent{
		MsgType: MsgTypeNotice,
		Body:    body,
	}
}

// Event represents a Matrix event from the server.
type Event struct {
	EventID        ref.EventID    `json:"event_id"`
	Type           ref.EventType  `json:"type"`
	Sender         ref.UserID     `json:"sender"`
	OriginServerTS int64          `json:"origin_server_ts"`
	Content        map[string]any `json:"content"`
	RoomID         ref.RoomID     `json:"room_id,omitempty"`
	StateKey       *string        `json:"state_key,omitempty"`
	Unsigned       *EventUnsigned `json:"unsigned,omitempty"`
}

// EventUnsigned holds optional unsigned data attached to events.
type EventUnsigned struct {
	Age           int64  `json:"age,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// SyncOptions controls the behavior of the /sync endpoint.
type SyncOptions struct {
	Since      string // next_batch token from previous sync; empty for initial sync
	Timeout    int    // long-poll timeout in milliseconds; 0 for immediate return
	SetTimeout bool   // if true, send the timeout parameter (distinguishes "not set" from "0")
	Filter     string // filter ID or inline JSON filter
}

// SyncResponse is the top-level response from /sync.
type SyncResponse struct {
	NextBatch string       `json:"next_batch"`
	Rooms     RoomsSection `json:"rooms"`
}

// RoomsSection contains per-room sync data grouped by membership
// state. Map keys are room IDs; encoding/json uses ref.RoomID's
// TextUnmarshaler for automatic validation at deserialization.
type RoomsSection struct {
	Join   map[ref.RoomID]JoinedRoom  `json:"join,omitempty"`
	Invite map[ref.RoomID]InvitedRoom `json:"invite,omitempty"`
	Leave  map[ref.RoomID]LeftRoom    `json:"leave,omitempty"`
}

// JoinedRoom contains sync data for a room the user has joined.
type JoinedRoom struct {
	Timeline TimelineSection `json:"timeline"`
	State    StateSection    `json:"state"`
}

// InvitedRoom contains sync data for a room the user was invited to.
type InvitedRoom struct {
	InviteState StateSection `json:"invite_state"`
}

// LeftRoom contains sync data for a room the user has left.
type LeftRoom struct {
	Timeline TimelineSection `json:"timeline"`
	State    StateSection    `json:"state"`
}

// TimelineSection contains timeline events from a sync response.
type TimelineSection struct {
	Events    []Event `json:"events"`
	PrevBatch string  `json:"prev_batch"`
	Limited   bool    `json:"limited"`
}

// StateSection contains state events from a sync response.
type StateSection struct {
	Events []Event `json:"events"`
}

// InviteRequest holds the user ID to invite to a room.
type InviteRequest struct {
	UserID ref.UserID `json:"user_id"`
}

// RedactRequest is the request body for redacting an event.
type RedactRequest struct {
	Reason string `json:"reason,omitempty"`
}

// SendEventResponse is returned by SendMessage, SendEvent,
// SendStateEvent, and RedactEvent.
type SendEventResponse struct {
	EventID ref.EventID `json:"event_id"`
}

// WhoAmIResponse is returned by WhoAmI.
type WhoAmIResponse struct {
	UserID   ref.UserID `json:"user_id"`
	DeviceID string     `json:"device_id,omitempty"`
}

// ResolveAliasResponse is returned by ResolveAlias.
type ResolveAliasResponse struct {
	RoomID  ref.RoomID `json:"room_id"`
	Servers []string   `json:"servers"`
}

// JoinedRoomsResponse is returned by JoinedRooms.
type JoinedRoomsResponse struct {
	JoinedRooms []ref.RoomID `json:"joined_rooms"`
}

// RoomMember represents a member of a Matrix room.
type RoomMember struct {
	UserID      ref.UserID `json:"user_id"`
	DisplayName string     `json:"display_name"`
	Membership  string     `json:"membership"`
}

// RoomMembersResponse is returned by the /members endpoint.
type RoomMembersResponse struct {
	Chunk []RoomMemberEvent `json:"chunk"`
}

// RoomMemberEvent is a member state event from the /members endpoint.
type RoomMemberEvent struct {
	Type     string            `json:"type"`
	StateKey string            `json:"state_key"`
	Sender   ref.UserID        `json:"sender"`
	Content  RoomMemberContent `json:"content"`
}

// RoomMemberContent is the content of an m.room.member state event.
type RoomMemberContent struct {
	Membership  string `json:"membership"`
	DisplayName string `json:"displayname,omitempty"`
}

// DisplayNameRequest is the request body for setting a display name.
type DisplayNameRequest struct {
	DisplayName string `json:"displayname"`
}

// DisplayNameResponse is returned by the /profile/{userId}/displayname
// endpoint.
type DisplayNameResponse struct {
	DisplayName string `json:"displayname"`
}

// PowerLevelsContent is the content of an m.room.power_levels state
// event. Only the fields the permission resolver reads are decoded;
// unknown fields are ignored.
type PowerLevelsContent struct {
	// Users maps user IDs to their assigned power level.
	Users map[string]int `json:"users,omitempty"`

	// UsersDefault is the power level of users not listed in Users.
	UsersDefault int `json:"users_default,omitempty"`
}

// Level returns the power level of the given user, falling back to
// UsersDefault when the user has no explicit assignment.
func (p PowerLevelsContent) Level(user ref.UserID) int {
	if level, ok := p.Users[user.String()]; ok {
		return level
	}
	return p.UsersDefault
}

// SpaceParentContent is the content of an m.space.parent state event.
// The state key carries the parent room ID; the content lists the
// servers through which the parent is reachable.
type SpaceParentContent struct {
	Via       []string `json:"via,omitempty"`
	Canonical bool     `json:"canonical,omitempty"`
}

// ServerVersionsResponse is returned by Client.ServerVersions.
type ServerVersionsResponse struct {
	Versions         []string        `json:"versions"`
	UnstableFeatures map[string]bool `json:"unstable_features,omitempty"`
}
