// Copyright 2026 The Veil Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/veil-im/veil/directory"
	"github.com/veil-im/veil/lib/ref"
	"github.com/veil-im/veil/messaging"
)

// Default prefixes for relay requests and bot commands. Deployments
// may override both through configuration.
const (
	defaultTrigger       = "!anon"
	defaultCommandPrefix = "!veil"
)

// Directory is the storage surface the relay package needs. Satisfied
// by *directory.Store; tests substitute an in-memory fake.
type Directory interface {
	AdminRoster

	CreateHandle(ctx context.Context, community ref.RoomID, member ref.UserID, pseudonym directory.Pseudonym) (directory.Handle, error)
	LookupHandle(ctx context.Context, community ref.RoomID, member ref.UserID) (directory.Handle, error)
	ResolveOwner(ctx context.Context, pseudonym directory.Pseudonym) (ref.UserID, error)
	ListHandles(ctx context.Context, community ref.RoomID) ([]directory.Handle, error)

	SetChannel(ctx context.Context, community, room ref.RoomID) error
	Channel(ctx context.Context, community ref.RoomID) (ref.RoomID, error)

	Grant(ctx context.Context, member, actor ref.UserID, community ref.RoomID) error
	Revoke(ctx context.Context, member, actor ref.UserID, community ref.RoomID) error
}

// Outcome is the terminal state of one relay attempt. Valid only when
// HandleMessage returns a nil error.
type Outcome int

const (
	// OutcomeNotTriggered: the message was not a relay request (no
	// trigger prefix, a notice, or the bot's own message).
	OutcomeNotTriggered Outcome = iota

	// OutcomeChannelUnconfigured: the community has no designated
	// relay channel.
	OutcomeChannelUnconfigured

	// OutcomeWrongChannel: the request arrived outside the
	// designated channel.
	OutcomeWrongChannel

	// OutcomeNoSenderHandle: the sender has no handle in the
	// community.
	OutcomeNoSenderHandle

	// OutcomeEmptyPayload: the trigger carried no message text.
	OutcomeEmptyPayload

	// OutcomeRelayed: the anonymized message was published.
	OutcomeRelayed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeChannelUnconfigured:
		return "channel-unconfigured"
	case OutcomeWrongChannel:
		return "wrong-channel"
	case OutcomeNoSenderHandle:
		return "no-sender-handle"
	case OutcomeEmptyPayload:
		return "empty-payload"
	case OutcomeRelayed:
		return "relayed"
	default:
		return "not-triggered"
	}
}

// Engine runs the anonymizing relay state machine over inbound room
// messages.
type Engine struct {
	session     messaging.Session
	store       Directory
	permissions *PermissionResolver
	notifier    *Notifier
	logger      *slog.Logger

	// Trigger starts a relay request; CommandPrefix is only used in
	// reply wording that points senders at bot commands. Both may be
	// adjusted before first use.
	Trigger       string
	CommandPrefix string
}

// NewEngine assembles a relay engine with the default prefixes.
func NewEngine(session messaging.Session, store Directory, permissions *PermissionResolver, notifier *Notifier, logger *slog.Logger) *Engine {
	return &Engine{
		session:       session,
		store:         store,
		permissions:   permissions,
		notifier:      notifier,
		logger:        logger,
		Trigger:       defaultTrigger,
		CommandPrefix: defaultCommandPrefix,
	}
}

// HandleMessage processes one inbound m.room.message event and returns
// the terminal outcome. Every rejection is explained to the sender in
// a DM; nothing posted to any room or DM attributes a handle to its
// owner. The returned error covers store and platform failures only —
// rejected relay attempts are successful handling, not errors.
func (e *Engine) HandleMessage(ctx context.Context, room ref.RoomID, event messaging.Event) (Outcome, error) {
	body, triggered := e.triggerPayload(event)
	if !triggered {
		return OutcomeNotTriggered, nil
	}
	sender := event.Sender

	community, err := ResolveCommunity(ctx, e.session, room)
	if err != nil {
		return 0, err
	}

	channel, err := e.store.Channel(ctx, community)
	if errors.Is(err, directory.ErrNoChannel) {
		e.replyChannelUnconfigured(ctx, sender, community)
		return OutcomeChannelUnconfigured, nil
	}
	if err != nil {
		return 0, err
	}

	if room != channel {
		e.reply(ctx, sender, fmt.Sprintf(
			"Anonymous messages for this community go to %s.", channel))
		return OutcomeWrongChannel, nil
	}

	handle, err := e.store.LookupHandle(ctx, community, sender)
	if errors.Is(err, directory.ErrNoHandle) {
		e.reply(ctx, sender, fmt.Sprintf(
			"You need a handle before relaying. Create one with %s create anonNNNN (four digits).", e.CommandPrefix))
		return OutcomeNoSenderHandle, nil
	}
	if err != nil {
		return 0, err
	}

	payload := strings.TrimSpace(body)
	if payload == "" {
		e.reply(ctx, sender, fmt.Sprintf("Nothing to relay. Usage: %s <message>.", e.Trigger))
		return OutcomeEmptyPayload, nil
	}

	if _, err := e.session.SendMessage(ctx, channel, relayMessage(handle.Pseudonym, payload)); err != nil {
		return 0, fmt.Errorf("relay: publishing anonymized message: %w", err)
	}

	// Best-effort: the anonymized copy is already up, so a failed
	// redaction of the original must not undo or report it. Usually
	// means the bot lacks redaction power in the room.
	if _, err := e.session.RedactEvent(ctx, room, event.EventID, "anonymized"); err != nil {
		e.logger.Warn("failed to redact relayed original",
			"room", room,
			"event", event.EventID,
			"error", err,
		)
	}

	e.notifyMention(ctx, sender, handle.Pseudonym, payload)

	e.logger.Info("message relayed",
		"community", community,
		"channel", channel,
		"pseudonym", handle.Pseudonym,
	)
	return OutcomeRelayed, nil
}

// triggerPayload extracts the text after the relay trigger, reporting
// whether event is a relay request at all. The bot's own messages and
// notices never trigger: notices are how bots talk, so skipping them
// (plus our own user ID) breaks relay loops.
func (e *Engine) triggerPayload(event messaging.Event) (string, bool) {
	if event.Sender == e.session.UserID() {
		return "", false
	}
	if msgType, _ := event.Content["msgtype"].(string); msgType == messaging.MsgTypeNotice {
		return "", false
	}
	body, ok := event.Content["body"].(string)
	if !ok || !strings.HasPrefix(body, e.Trigger) {
		return "", false
	}
	rest := body[len(e.Trigger):]
	// "!anonymous" is not a relay request.
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' && rest[0] != '\n' {
		return "", false
	}
	return rest, true
}

// replyChannelUnconfigured words the missing-channel reply by the
// sender's privilege: members who could fix it are told how.
func (e *Engine) replyChannelUnconfigured(ctx context.Context, sender ref.UserID, community ref.RoomID) {
	privilege, err := e.permissions.Resolve(ctx, sender, community)
	if err != nil {
		e.logger.Warn("privilege resolution failed, using member wording",
			"community", community,
			"error", err,
		)
		privilege = PrivilegeNone
	}
	if privilege >= PrivilegeManageChannel {
		e.reply(ctx, sender, fmt.Sprintf(
			"This community has no relay channel yet. Run %s setchannel in the room anonymous messages should go to.", e.CommandPrefix))
		return
	}
	e.reply(ctx, sender,
		"This community has no relay channel yet. Ask an admin to configure one.")
}

// notifyMention DMs the owner of the first pseudonym mentioned in the
// payload. Notification is strictly after the relay: no failure here
// rolls anything back, and only the DM-refused case is surfaced (to
// the sender, not the room).
func (e *Engine) notifyMention(ctx context.Context, sender ref.UserID, senderHandle directory.Pseudonym, payload string) {
	mention, ok := directory.FindPseudonym(payload)
	if !ok {
		return
	}

	owner, err := e.store.ResolveOwner(ctx, mention)
	if errors.Is(err, directory.ErrNoHandle) {
		return
	}
	if err != nil {
		e.logger.Warn("mention owner resolution failed",
			"pseudonym", mention,
			"error", err,
		)
		return
	}

	err = e.notifier.SendDM(ctx, owner, mentionMessage(senderHandle, payload))
	if err == nil {
		return
	}
	if messaging.IsMatrixError(err, messaging.ErrCodeForbidden) {
		e.reply(ctx, sender, fmt.Sprintf(
			"%s was mentioned but could not be notified: they are not accepting direct messages.", mention))
		return
	}
	e.logger.Warn("mention notification failed",
		"pseudonym", mention,
		"error", err,
	)
}

// reply sends a best-effort private notice to user. Reply failures are
// logged and swallowed: a sender who refuses DMs simply gets no
// explanation.
func (e *Engine) reply(ctx context.Context, user ref.UserID, text string) {
	if err := e.notifier.SendDM(ctx, user, messaging.NewNotice(text)); err != nil {
		e.logger.Warn("private reply failed", "error", err)
	}
}
