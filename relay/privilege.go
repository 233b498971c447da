// Copyright 2026 The Veil Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/veil-im/veil/lib/ref"
	"github.com/veil-im/veil/messaging"
)

// ErrNotPermitted indicates a command issued by a member whose
// privilege does not meet the command's gate.
var ErrNotPermitted = errors.New("not permitted")

// Privilege is a member's effective permission tier within one
// community. Tiers are ordered: FullAdmin implies ManageChannel.
type Privilege int

const (
	PrivilegeNone Privilege = iota
	PrivilegeManageChannel
	PrivilegeFullAdmin
)

func (p Privilege) String() string {
	switch p {
	case PrivilegeFullAdmin:
		return "full-admin"
	case PrivilegeManageChannel:
		return "manage-channel"
	default:
		return "none"
	}
}

// Default power level thresholds in the community space room. Matrix
// convention puts room creators at 100 and moderators at 50.
const (
	defaultAdminLevel     = 100
	defaultModeratorLevel = 50
)

// AdminRoster answers bot-level admin membership. Satisfied by
// *directory.Store.
type AdminRoster interface {
	IsAdmin(ctx context.Context, member ref.UserID) (bool, error)
}

// PermissionResolver computes a member's privilege in a community from
// two sources: the bot's own admin roster and the power levels of the
// community space room. Neither source is cached — a revoked power
// level takes effect on the member's next action.
type PermissionResolver struct {
	admins  AdminRoster
	session messaging.Session

	// AdminLevel and ModeratorLevel are the power-level thresholds
	// for PrivilegeFullAdmin and PrivilegeManageChannel. May be
	// adjusted before first use.
	AdminLevel     int
	ModeratorLevel int
}

// NewPermissionResolver returns a resolver over the given roster and
// Matrix session, with Matrix-conventional thresholds.
func NewPermissionResolver(admins AdminRoster, session messaging.Session) *PermissionResolver {
	return &PermissionResolver{
		admins:         admins,
		session:        session,
		AdminLevel:     defaultAdminLevel,
		ModeratorLevel: defaultModeratorLevel,
	}
}

// Resolve returns member's privilege in community. Roster admins and
// members at or above the admin power level get PrivilegeFullAdmin;
// members at or above the moderator level get PrivilegeManageChannel.
// A community space with no readable power levels contributes the
// default level for everyone.
func (r *PermissionResolver) Resolve(ctx context.Context, member ref.UserID, community ref.RoomID) (Privilege, error) {
	isAdmin, err := r.admins.IsAdmin(ctx, member)
	if err != nil {
		return PrivilegeNone, fmt.Errorf("relay: resolving privilege: %w", err)
	}
	if isAdmin {
		return PrivilegeFullAdmin, nil
	}

	levels, err := messaging.GetState[messaging.PowerLevelsContent](
		ctx, r.session, community, messaging.EventTypePowerLevels, "")
	if err != nil {
		// A room without a power-levels event (or one the bot
		// cannot read) grants nobody elevated privilege.
		if messaging.IsMatrixError(err, messaging.ErrCodeNotFound) ||
			messaging.IsMatrixError(err, messaging.ErrCodeForbidden) {
			return PrivilegeNone, nil
		}
		return PrivilegeNone, fmt.Errorf("relay: resolving privilege: %w", err)
	}

	level := levels.Level(member)
	switch {
	case level >= r.AdminLevel:
		return PrivilegeFullAdmin, nil
	case level >= r.ModeratorLevel:
		return PrivilegeManageChannel, nil
	default:
		return PrivilegeNone, nil
	}
}
