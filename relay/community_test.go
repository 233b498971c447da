// Copyright 2026 The Veil Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"testing"

	"github.com/veil-im/veil/lib/ref"
	"github.com/veil-im/veil/messaging"
)

func TestResolveCommunity(t *testing.T) {
	session := newFakeSession(botUser)
	ctx := context.Background()

	// No parent: the room is its own community.
	community, err := ResolveCommunity(ctx, session, relayRoom)
	if err != nil {
		t.Fatalf("ResolveCommunity: %v", err)
	}
	if community != relayRoom {
		t.Errorf("orphan room community = %v, want the room itself", community)
	}

	// A single parent wins.
	session.setSpaceParent(relayRoom, spaceRoom, false)
	community, err = ResolveCommunity(ctx, session, relayRoom)
	if err != nil {
		t.Fatalf("ResolveCommunity: %v", err)
	}
	if community != spaceRoom {
		t.Errorf("community = %v, want %v", community, spaceRoom)
	}
}

func TestResolveCommunityCanonicalWins(t *testing.T) {
	session := newFakeSession(botUser)
	canonical := ref.MustParseRoomID("!canonical:example.org")

	session.setSpaceParent(relayRoom, spaceRoom, false)
	session.setSpaceParent(relayRoom, canonical, true)

	community, err := ResolveCommunity(context.Background(), session, relayRoom)
	if err != nil {
		t.Fatalf("ResolveCommunity: %v", err)
	}
	if community != canonical {
		t.Errorf("community = %v, want canonical parent %v", community, canonical)
	}
}

func TestResolveCommunitySkipsMalformedParents(t *testing.T) {
	session := newFakeSession(botUser)

	badKey := "not-a-room-id"
	session.state[relayRoom] = append(session.state[relayRoom], messaging.Event{
		Type:     messaging.EventTypeSpaceParent,
		StateKey: &badKey,
		Content:  map[string]any{},
	})
	session.setSpaceParent(relayRoom, spaceRoom, false)

	community, err := ResolveCommunity(context.Background(), session, relayRoom)
	if err != nil {
		t.Fatalf("ResolveCommunity: %v", err)
	}
	if community != spaceRoom {
		t.Errorf("community = %v, want %v despite malformed sibling", community, spaceRoom)
	}
}
