// Copyright 2026 The Veil Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/veil-im/veil/directory"
	"github.com/veil-im/veil/lib/ref"
	"github.com/veil-im/veil/messaging"
)

// --- fake Matrix session ---

type sentMessage struct {
	room    ref.RoomID
	content messaging.MessageContent
}

// fakeSession is an in-memory messaging.Session. Room state and power
// levels are seeded by tests; sends, redactions, and DM room creations
// are recorded for assertions.
type fakeSession struct {
	userID      ref.UserID
	state       map[ref.RoomID][]messaging.Event
	powerLevels map[ref.RoomID]*messaging.PowerLevelsContent

	// dmRefused lists users whose DM room creation fails with
	// M_FORBIDDEN.
	dmRefused map[ref.UserID]bool

	// sendErrs makes SendMessage fail for specific rooms.
	sendErrs map[ref.RoomID]error

	// redactErr makes every RedactEvent fail.
	redactErr error

	mu       sync.Mutex
	sent     []sentMessage
	redacted []ref.EventID
	dmRooms  map[ref.UserID]ref.RoomID
}

func newFakeSession(userID ref.UserID) *fakeSession {
	return &fakeSession{
		userID:      userID,
		state:       make(map[ref.RoomID][]messaging.Event),
		powerLevels: make(map[ref.RoomID]*messaging.PowerLevelsContent),
		dmRefused:   make(map[ref.UserID]bool),
		sendErrs:    make(map[ref.RoomID]error),
		dmRooms:     make(map[ref.UserID]ref.RoomID),
	}
}

var _ messaging.Session = (*fakeSession)(nil)

func (f *fakeSession) UserID() ref.UserID { return f.userID }
func (f *fakeSession) Close() error       { return nil }

func (f *fakeSession) WhoAmI(ctx context.Context) (ref.UserID, error) {
	return f.userID, nil
}

func (f *fakeSession) ResolveAlias(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error) {
	return ref.RoomID{}, &messaging.MatrixError{Code: messaging.ErrCodeNotFound, Message: "not found", StatusCode: 404}
}

func (f *fakeSession) GetStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string) (json.RawMessage, error) {
	if eventType == messaging.EventTypePowerLevels {
		if levels := f.powerLevels[roomID]; levels != nil {
			return json.Marshal(levels)
		}
	}
	return nil, &messaging.MatrixError{Code: messaging.ErrCodeNotFound, Message: "not found", StatusCode: 404}
}

func (f *fakeSession) GetRoomState(ctx context.Context, roomID ref.RoomID) ([]messaging.Event, error) {
	return f.state[roomID], nil
}

func (f *fakeSession) SendStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string, content any) (ref.EventID, error) {
	return ref.MustParseEventID("$state:example.org"), nil
}

func (f *fakeSession) SendEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, content any) (ref.EventID, error) {
	message, ok := content.(messaging.MessageContent)
	if !ok {
		return ref.MustParseEventID("$event:example.org"), nil
	}
	return f.SendMessage(ctx, roomID, message)
}

func (f *fakeSession) SendMessage(ctx context.Context, roomID ref.RoomID, content messaging.MessageContent) (ref.EventID, error) {
	if err := f.sendErrs[roomID]; err != nil {
		return ref.EventID{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{room: roomID, content: content})
	return ref.MustParseEventID(fmt.Sprintf("$sent%d:example.org", len(f.sent))), nil
}

func (f *fakeSession) RedactEvent(ctx context.Context, roomID ref.RoomID, eventID ref.EventID, reason string) (ref.EventID, error) {
	if f.redactErr != nil {
		return ref.EventID{}, f.redactErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redacted = append(f.redacted, eventID)
	return ref.MustParseEventID("$redaction:example.org"), nil
}

func (f *fakeSession) CreateRoom(ctx context.Context, request messaging.CreateRoomRequest) (*messaging.CreateRoomResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var invitee ref.UserID
	if len(request.Invite) > 0 {
		invitee = ref.MustParseUserID(request.Invite[0])
	}
	if f.dmRefused[invitee] {
		return nil, &messaging.MatrixError{Code: messaging.ErrCodeForbidden, Message: "user refuses invites", StatusCode: 403}
	}

	room := ref.MustParseRoomID(fmt.Sprintf("!dm%d:example.org", len(f.dmRooms)+1))
	if !invitee.IsZero() {
		f.dmRooms[invitee] = room
	}
	return &messaging.CreateRoomResponse{RoomID: room}, nil
}

func (f *fakeSession) InviteUser(ctx context.Context, roomID ref.RoomID, userID ref.UserID) error {
	return nil
}

func (f *fakeSession) JoinRoom(ctx context.Context, roomID ref.RoomID) (ref.RoomID, error) {
	return roomID, nil
}

func (f *fakeSession) JoinedRooms(ctx context.Context) ([]ref.RoomID, error) {
	return nil, nil
}

func (f *fakeSession) GetRoomMembers(ctx context.Context, roomID ref.RoomID) ([]messaging.RoomMember, error) {
	return nil, nil
}

func (f *fakeSession) GetDisplayName(ctx context.Context, userID ref.UserID) (string, error) {
	return "", nil
}

func (f *fakeSession) Sync(ctx context.Context, options messaging.SyncOptions) (*messaging.SyncResponse, error) {
	return &messaging.SyncResponse{}, nil
}

// setSpaceParent seeds room state declaring parent as room's space.
func (f *fakeSession) setSpaceParent(room, parent ref.RoomID, canonical bool) {
	stateKey := parent.String()
	content := map[string]any{"via": []any{"example.org"}}
	if canonical {
		content["canonical"] = true
	}
	f.state[room] = append(f.state[room], messaging.Event{
		Type:     messaging.EventTypeSpaceParent,
		StateKey: &stateKey,
		Content:  content,
	})
}

// messagesTo returns all messages delivered to user's DM room.
func (f *fakeSession) messagesTo(user ref.UserID) []messaging.MessageContent {
	f.mu.Lock()
	defer f.mu.Unlock()

	room, ok := f.dmRooms[user]
	if !ok {
		return nil
	}
	var messages []messaging.MessageContent
	for _, message := range f.sent {
		if message.room == room {
			messages = append(messages, message.content)
		}
	}
	return messages
}

// messagesIn returns all messages sent to a specific room.
func (f *fakeSession) messagesIn(room ref.RoomID) []messaging.MessageContent {
	f.mu.Lock()
	defer f.mu.Unlock()

	var messages []messaging.MessageContent
	for _, message := range f.sent {
		if message.room == room {
			messages = append(messages, message.content)
		}
	}
	return messages
}

// --- fake directory store ---

// fakeDirectory is an in-memory Directory. Handle ordering follows
// insertion order, newest last, matching the store's newest-wins
// semantics.
type fakeDirectory struct {
	mu       sync.Mutex
	handles  []directory.Handle
	channels map[ref.RoomID]ref.RoomID
	admins   map[ref.UserID]bool
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		channels: make(map[ref.RoomID]ref.RoomID),
		admins:   make(map[ref.UserID]bool),
	}
}

var _ Directory = (*fakeDirectory)(nil)

func (d *fakeDirectory) CreateHandle(ctx context.Context, community ref.RoomID, member ref.UserID, pseudonym directory.Pseudonym) (directory.Handle, error) {
	if _, err := directory.ParsePseudonym(pseudonym.String()); err != nil {
		return directory.Handle{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, handle := range d.handles {
		if handle.Community == community && handle.Pseudonym == pseudonym {
			return directory.Handle{}, directory.ErrPseudonymTaken
		}
	}
	handle := directory.Handle{Community: community, Member: member, Pseudonym: pseudonym}
	d.handles = append(d.handles, handle)
	return handle, nil
}

func (d *fakeDirectory) LookupHandle(ctx context.Context, community ref.RoomID, member ref.UserID) (directory.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.handles) - 1; i >= 0; i-- {
		if d.handles[i].Community == community && d.handles[i].Member == member {
			return d.handles[i], nil
		}
	}
	return directory.Handle{}, directory.ErrNoHandle
}

func (d *fakeDirectory) ResolveOwner(ctx context.Context, pseudonym directory.Pseudonym) (ref.UserID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.handles) - 1; i >= 0; i-- {
		if d.handles[i].Pseudonym == pseudonym {
			return d.handles[i].Member, nil
		}
	}
	return ref.UserID{}, directory.ErrNoHandle
}

func (d *fakeDirectory) ListHandles(ctx context.Context, community ref.RoomID) ([]directory.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var handles []directory.Handle
	for i := len(d.handles) - 1; i >= 0; i-- {
		if d.handles[i].Community == community {
			handles = append(handles, d.handles[i])
		}
	}
	return handles, nil
}

func (d *fakeDirectory) SetChannel(ctx context.Context, community, room ref.RoomID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels[community] = room
	return nil
}

func (d *fakeDirectory) Channel(ctx context.Context, community ref.RoomID) (ref.RoomID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	room, ok := d.channels[community]
	if !ok {
		return ref.RoomID{}, directory.ErrNoChannel
	}
	return room, nil
}

func (d *fakeDirectory) IsAdmin(ctx context.Context, member ref.UserID) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.admins[member], nil
}

func (d *fakeDirectory) Grant(ctx context.Context, member, actor ref.UserID, community ref.RoomID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.admins[member] {
		return directory.ErrAlreadyAdmin
	}
	d.admins[member] = true
	return nil
}

func (d *fakeDirectory) Revoke(ctx context.Context, member, actor ref.UserID, community ref.RoomID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.admins[member] {
		return directory.ErrNotAdmin
	}
	delete(d.admins, member)
	return nil
}

// adminList returns the roster sorted for deterministic assertions.
func (d *fakeDirectory) adminList() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var admins []string
	for member := range d.admins {
		admins = append(admins, member.String())
	}
	sort.Strings(admins)
	return admins
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
