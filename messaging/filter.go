// Copyright 2026 The Veil Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"encoding/json"

	"github.com/veil-im/veil/lib/ref"
)

// SyncFilter configures what events /sync returns. Presence and
// account data are always suppressed — the relay only cares about
// room events.
//
// A nil *SyncFilter means "all events from all joined rooms" (state
// and timeline).
type SyncFilter struct {
	// Rooms restricts the sync to these room IDs. Empty means all
	// joined rooms — the relay uses this because trigger messages can
	// arrive in any room the bot has been invited to.
	Rooms []ref.RoomID `json:"rooms,omitempty"`

	// TimelineTypes restricts timeline events to these Matrix event
	// types (e.g., "m.room.message"). An empty slice means all
	// timeline types.
	TimelineTypes []string `json:"timeline_types,omitempty"`

	// TimelineLimit caps the number of timeline events per /sync
	// response. Zero means no explicit limit (server default).
	TimelineLimit int `json:"timeline_limit,omitempty"`

	// ExcludeState suppresses state events from the /sync response.
	// When true, only timeline events matching TimelineTypes are
	// returned.
	ExcludeState bool `json:"exclude_state,omitempty"`
}

// InlineFilter constructs the inline JSON filter string for the
// /sync "filter" query parameter. Passing the filter inline avoids
// the separate filter-upload round trip and works on homeservers that
// do not persist uploaded filters.
func (f *SyncFilter) InlineFilter() string {
	roomFilter := map[string]any{}

	if f != nil {
		if len(f.Rooms) > 0 {
			rooms := make([]string, len(f.Rooms))
			for i, roomID := range f.Rooms {
				rooms[i] = roomID.String()
			}
			roomFilter["rooms"] = rooms
		}

		if len(f.TimelineTypes) > 0 {
			timeline := map[string]any{"types": f.TimelineTypes}
			if f.TimelineLimit > 0 {
				timeline["limit"] = f.TimelineLimit
			}
			roomFilter["timeline"] = timeline
		} else if f.TimelineLimit > 0 {
			roomFilter["timeline"] = map[string]any{"limit": f.TimelineLimit}
		}

		if f.ExcludeState {
			roomFilter["state"] = map[string]any{"types": []string{}}
		}
	}

	top := map[string]any{
		"room":         roomFilter,
		"presence":     map[string]any{"types": []string{}},
		"account_data": map[string]any{"types": []string{}},
	}

	data, _ := json.Marshal(top)
	return string(data)
}
