// Copyright 2026 The Veil Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/veil-im/veil/directory"
	"github.com/veil-im/veil/lib/clock"
	"github.com/veil-im/veil/lib/ref"
	"github.com/veil-im/veil/messaging"
)

// Reply is the router's answer to a command. Room replies are posted
// in the invoking room; everything else goes to the sender as a DM.
// The zero value means no reply.
type Reply struct {
	Room bool
	Text string
}

// Router parses and executes !veil commands. It produces a Reply; the
// caller performs delivery, which keeps the router free of any Send
// side effects and trivially testable.
type Router struct {
	session     messaging.Session
	store       Directory
	permissions *PermissionResolver
	clock       clock.Clock

	// Prefix starts every bot command; Trigger only appears in help
	// and confirmation wording. Both may be adjusted before first
	// use and must match the Engine's.
	Prefix  string
	Trigger string
}

// NewRouter assembles a command router with the default prefixes.
func NewRouter(session messaging.Session, store Directory, permissions *PermissionResolver, clk clock.Clock) *Router {
	return &Router{
		session:     session,
		store:       store,
		permissions: permissions,
		clock:       clk,
		Prefix:      defaultCommandPrefix,
		Trigger:     defaultTrigger,
	}
}

// Dispatch executes the command carried by event, if any. The boolean
// reports whether the event was a command at all; non-commands return
// false with a zero Reply. Domain failures (bad pseudonym, taken name,
// missing permission) become reply text; only store and platform
// failures surface as errors.
func (r *Router) Dispatch(ctx context.Context, room ref.RoomID, event messaging.Event) (Reply, bool, error) {
	if event.Sender == r.session.UserID() {
		return Reply{}, false, nil
	}
	if msgType, _ := event.Content["msgtype"].(string); msgType == messaging.MsgTypeNotice {
		return Reply{}, false, nil
	}
	body, ok := event.Content["body"].(string)
	if !ok {
		return Reply{}, false, nil
	}

	fields := strings.Fields(body)
	if len(fields) == 0 || fields[0] != r.Prefix {
		return Reply{}, false, nil
	}
	if len(fields) == 1 {
		return Reply{Text: fmt.Sprintf("Missing command. Try %s help.", r.Prefix)}, true, nil
	}

	community, err := ResolveCommunity(ctx, r.session, room)
	if err != nil {
		return Reply{}, true, err
	}

	sender := event.Sender
	command, args := fields[1], fields[2:]

	var reply Reply
	switch command {
	case "ping":
		reply, err = r.ping(event)
	case "create":
		reply, err = r.create(ctx, community, sender, args)
	case "handle":
		reply, err = r.viewHandle(ctx, community, sender)
	case "setchannel":
		reply, err = r.setChannel(ctx, community, sender, room, args)
	case "help":
		reply, err = r.help(ctx, community, sender)
	case "admin":
		reply, err = r.admin(ctx, community, sender, args)
	default:
		reply = Reply{Text: fmt.Sprintf("Unknown command %q. Try %s help.", command, r.Prefix)}
	}

	if errors.Is(err, ErrNotPermitted) {
		return Reply{Text: "You don't have permission to do that."}, true, nil
	}
	if err != nil {
		return Reply{}, true, err
	}
	return reply, true, nil
}

func (r *Router) ping(event messaging.Event) (Reply, error) {
	latency := r.clock.Now().UnixMilli() - event.OriginServerTS
	if latency < 0 {
		latency = 0
	}
	return Reply{Text: fmt.Sprintf("Pong! Round trip: %dms.", latency)}, nil
}

func (r *Router) create(ctx context.Context, community ref.RoomID, sender ref.UserID, args []string) (Reply, error) {
	if len(args) != 1 {
		return Reply{Text: fmt.Sprintf("Usage: %s create anonNNNN (four digits).", r.Prefix)}, nil
	}

	pseudonym, err := directory.ParsePseudonym(args[0])
	if err != nil {
		return Reply{Text: "Handles look like anonNNNN: the word \"anon\" followed by exactly four digits."}, nil
	}

	handle, err := r.store.CreateHandle(ctx, community, sender, pseudonym)
	if errors.Is(err, directory.ErrPseudonymTaken) {
		return Reply{Text: fmt.Sprintf("%s is already taken in this community. Pick another.", pseudonym)}, nil
	}
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: fmt.Sprintf("You are now %s. Relay with %s <message> in the designated channel.", handle.Pseudonym, r.Trigger)}, nil
}

func (r *Router) viewHandle(ctx context.Context, community ref.RoomID, sender ref.UserID) (Reply, error) {
	handle, err := r.store.LookupHandle(ctx, community, sender)
	if errors.Is(err, directory.ErrNoHandle) {
		return Reply{Text: fmt.Sprintf("You have no handle in this community. Create one with %s create anonNNNN.", r.Prefix)}, nil
	}
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: fmt.Sprintf("Your handle here is %s.", handle.Pseudonym)}, nil
}

func (r *Router) setChannel(ctx context.Context, community ref.RoomID, sender ref.UserID, room ref.RoomID, args []string) (Reply, error) {
	if err := r.require(ctx, sender, community, PrivilegeManageChannel); err != nil {
		return Reply{}, err
	}

	target := room
	if len(args) > 0 {
		parsed, err := ref.ParseRoomID(args[0])
		if err != nil {
			return Reply{Text: fmt.Sprintf("That doesn't look like a room ID. Usage: %s setchannel [!room:server].", r.Prefix)}, nil
		}
		target = parsed
	}

	if err := r.store.SetChannel(ctx, community, target); err != nil {
		return Reply{}, err
	}
	// The confirmation is public on purpose: the whole community
	// should learn where anonymous messages go.
	return Reply{
		Room: true,
		Text: fmt.Sprintf("Anonymous messages for this community now go to %s.", target),
	}, nil
}

func (r *Router) help(ctx context.Context, community ref.RoomID, sender ref.UserID) (Reply, error) {
	var builder strings.Builder
	builder.WriteString("Commands:\n")
	fmt.Fprintf(&builder, "  %s <message> — relay a message anonymously (designated channel only)\n", r.Trigger)
	fmt.Fprintf(&builder, "  %s create anonNNNN — claim a handle\n", r.Prefix)
	fmt.Fprintf(&builder, "  %s handle — show your handle\n", r.Prefix)
	fmt.Fprintf(&builder, "  %s ping — latency check\n", r.Prefix)
	fmt.Fprintf(&builder, "  %s help — this listing", r.Prefix)

	privilege, err := r.permissions.Resolve(ctx, sender, community)
	if err != nil {
		return Reply{}, err
	}
	if privilege >= PrivilegeManageChannel {
		builder.WriteString("\nAdmin commands:\n")
		fmt.Fprintf(&builder, "  %s setchannel [!room:server] — designate the relay channel\n", r.Prefix)
		fmt.Fprintf(&builder, "  %s admin handles — list handles in this community\n", r.Prefix)
		fmt.Fprintf(&builder, "  %s admin add @user:server — grant bot admin\n", r.Prefix)
		fmt.Fprintf(&builder, "  %s admin remove @user:server — revoke bot admin", r.Prefix)
	}
	return Reply{Text: builder.String()}, nil
}

func (r *Router) admin(ctx context.Context, community ref.RoomID, sender ref.UserID, args []string) (Reply, error) {
	if err := r.require(ctx, sender, community, PrivilegeManageChannel); err != nil {
		return Reply{}, err
	}
	if len(args) == 0 {
		return Reply{Text: fmt.Sprintf("Usage: %s admin handles | add <user> | remove <user>.", r.Prefix)}, nil
	}

	switch args[0] {
	case "handles":
		return r.adminHandles(ctx, community)
	case "add", "remove":
		if len(args) != 2 {
			return Reply{Text: fmt.Sprintf("Usage: %s admin %s @user:server.", r.Prefix, args[0])}, nil
		}
		target, err := ref.ParseUserID(args[1])
		if err != nil {
			return Reply{Text: "That doesn't look like a user ID (@user:server)."}, nil
		}
		if args[0] == "add" {
			return r.adminAdd(ctx, community, sender, target)
		}
		return r.adminRemove(ctx, community, sender, target)
	default:
		return Reply{Text: fmt.Sprintf("Unknown admin command %q.", args[0])}, nil
	}
}

// adminHandles lists a community's handles with their owners. This is
// the one place handle ownership is shown, and only over DM to a
// member who passed the manage-channel gate.
func (r *Router) adminHandles(ctx context.Context, community ref.RoomID) (Reply, error) {
	handles, err := r.store.ListHandles(ctx, community)
	if err != nil {
		return Reply{}, err
	}
	if len(handles) == 0 {
		return Reply{Text: "No handles in this community yet."}, nil
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("%d handle(s):", len(handles)))
	for _, handle := range handles {
		builder.WriteString(fmt.Sprintf("\n  %s — %s", handle.Pseudonym, handle.Member))
	}
	return Reply{Text: builder.String()}, nil
}

func (r *Router) adminAdd(ctx context.Context, community ref.RoomID, sender, target ref.UserID) (Reply, error) {
	err := r.store.Grant(ctx, target, sender, community)
	if errors.Is(err, directory.ErrAlreadyAdmin) {
		return Reply{Text: fmt.Sprintf("%s is already an admin.", target)}, nil
	}
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: fmt.Sprintf("%s is now a bot admin.", target)}, nil
}

func (r *Router) adminRemove(ctx context.Context, community ref.RoomID, sender, target ref.UserID) (Reply, error) {
	err := r.store.Revoke(ctx, target, sender, community)
	if errors.Is(err, directory.ErrNotAdmin) {
		return Reply{Text: fmt.Sprintf("%s is not an admin.", target)}, nil
	}
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: fmt.Sprintf("%s is no longer a bot admin.", target)}, nil
}

// require returns ErrNotPermitted unless sender holds at least minimum
// privilege in community.
func (r *Router) require(ctx context.Context, sender ref.UserID, community ref.RoomID, minimum Privilege) error {
	privilege, err := r.permissions.Resolve(ctx, sender, community)
	if err != nil {
		return err
	}
	if privilege < minimum {
		return ErrNotPermitted
	}
	return nil
}
