// Copyright 2026 The Veil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/veil-im/veil/lib/ref"
	"github.com/veil-im/veil/messaging"
)

// fakeSession is the minimal Matrix stand-in the service-level tests
// need: it records sent messages and redactions, mints DM rooms on
// demand, and reports every room as an orphan (its own community).
type fakeSession struct {
	user ref.UserID

	sent     []sentMessage
	redacted []ref.EventID
	dmRooms  map[ref.UserID]ref.RoomID
}

type sentMessage struct {
	room    ref.RoomID
	content messaging.MessageContent
}

func newFakeSession(user ref.UserID) *fakeSession {
	return &fakeSession{
		user:    user,
		dmRooms: make(map[ref.UserID]ref.RoomID),
	}
}

func (f *fakeSession) UserID() ref.UserID { return f.user }
func (f *fakeSession) Close() error       { return nil }

func (f *fakeSession) WhoAmI(context.Context) (ref.UserID, error) {
	return f.user, nil
}

func (f *fakeSession) ResolveAlias(context.Context, ref.RoomAlias) (ref.RoomID, error) {
	return ref.RoomID{}, errors.New("not implemented")
}

func (f *fakeSession) GetStateEvent(context.Context, ref.RoomID, ref.EventType, string) (json.RawMessage, error) {
	return nil, &messaging.MatrixError{Code: messaging.ErrCodeNotFound, StatusCode: 404}
}

func (f *fakeSession) GetRoomState(context.Context, ref.RoomID) ([]messaging.Event, error) {
	return nil, nil
}

func (f *fakeSession) SendStateEvent(context.Context, ref.RoomID, ref.EventType, string, any) (ref.EventID, error) {
	return ref.EventID{}, errors.New("not implemented")
}

func (f *fakeSession) SendEvent(context.Context, ref.RoomID, ref.EventType, any) (ref.EventID, error) {
	return ref.EventID{}, errors.New("not implemented")
}

func (f *fakeSession) SendMessage(_ context.Context, room ref.RoomID, content messaging.MessageContent) (ref.EventID, error) {
	f.sent = append(f.sent, sentMessage{room: room, content: content})
	return ref.MustParseEventID(fmt.Sprintf("$sent%d:example.org", len(f.sent))), nil
}

func (f *fakeSession) RedactEvent(_ context.Context, _ ref.RoomID, eventID ref.EventID, _ string) (ref.EventID, error) {
	f.redacted = append(f.redacted, eventID)
	return ref.MustParseEventID("$redaction:example.org"), nil
}

func (f *fakeSession) CreateRoom(_ context.Context, request messaging.CreateRoomRequest) (*messaging.CreateRoomResponse, error) {
	invitee := ref.MustParseUserID(request.Invite[0])
	room := ref.MustParseRoomID(fmt.Sprintf("!dm%d:example.org", len(f.dmRooms)+1))
	f.dmRooms[invitee] = room
	return &messaging.CreateRoomResponse{RoomID: room}, nil
}

func (f *fakeSession) InviteUser(context.Context, ref.RoomID, ref.UserID) error {
	return nil
}

func (f *fakeSession) JoinRoom(_ context.Context, room ref.RoomID) (ref.RoomID, error) {
	return room, nil
}

func (f *fakeSession) JoinedRooms(context.Context) ([]ref.RoomID, error) {
	return nil, nil
}

func (f *fakeSession) GetRoomMembers(context.Context, ref.RoomID) ([]messaging.RoomMember, error) {
	return nil, nil
}

func (f *fakeSession) GetDisplayName(context.Context, ref.UserID) (string, error) {
	return "", nil
}

func (f *fakeSession) Sync(context.Context, messaging.SyncOptions) (*messaging.SyncResponse, error) {
	return nil, errors.New("not implemented")
}

// messagesTo returns bodies of messages sent to user's DM room.
func (f *fakeSession) messagesTo(user ref.UserID) []string {
	room, ok := f.dmRooms[user]
	if !ok {
		return nil
	}
	return f.messagesIn(room)
}

func (f *fakeSession) messagesIn(room ref.RoomID) []string {
	var bodies []string
	for _, message := range f.sent {
		if message.room == room {
			bodies = append(bodies, message.content.Body)
		}
	}
	return bodies
}

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
