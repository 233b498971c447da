// Copyright 2026 The Veil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/veil-im/veil/lib/codec"
	"github.com/veil-im/veil/lib/ref"
	"github.com/veil-im/veil/lib/service"
	"github.com/veil-im/veil/lib/version"
)

// Wire types for the admin socket. All ref types cross the socket as
// plain strings; veil-admin renders them without re-validation.

type pingResponse struct {
	Message string `cbor:"message"`
	Version string `cbor:"version"`
}

type statsResponse struct {
	Version       string  `cbor:"version"`
	UserID        string  `cbor:"user_id"`
	UptimeSeconds float64 `cbor:"uptime_seconds"`

	Handles     int64 `cbor:"handles"`
	Communities int64 `cbor:"communities"`
	Admins      int64 `cbor:"admins"`
	AuditRows   int64 `cbor:"audit_rows"`
}

type listHandlesRequest struct {
	Community string `cbor:"community"`
}

type handleRow struct {
	Pseudonym string `cbor:"pseudonym"`
	Member    string `cbor:"member"`
	CreatedAt int64  `cbor:"created_at"`
}

type listHandlesResponse struct {
	Community string      `cbor:"community"`
	Handles   []handleRow `cbor:"handles"`
}

type auditRequest struct {
	Limit int `cbor:"limit,omitempty"`
}

type auditRow struct {
	ID        int64  `cbor:"id"`
	Action    string `cbor:"action"`
	Actor     string `cbor:"actor"`
	Target    string `cbor:"target"`
	Community string `cbor:"community"`
	At        int64  `cbor:"at"`
}

type auditResponse struct {
	Entries []auditRow `cbor:"entries"`
}

// registerActions registers the bot's socket actions on the server.
// The socket file's permissions are the access control: anyone who can
// open it is an operator, so handle ownership is visible here but
// never in any Matrix room.
func (s *botService) registerActions(server *service.SocketServer) {
	server.Handle("ping", s.handlePing)
	server.Handle("stats", s.handleStats)
	server.Handle("list-handles", s.handleListHandles)
	server.Handle("audit", s.handleAudit)
}

func (s *botService) handlePing(context.Context, []byte) (any, error) {
	return pingResponse{Message: "pong", Version: version.Short()}, nil
}

func (s *botService) handleStats(ctx context.Context, _ []byte) (any, error) {
	stats, err := s.store.QueryStats(ctx)
	if err != nil {
		return nil, err
	}
	return statsResponse{
		Version:       version.Short(),
		UserID:        s.session.UserID().String(),
		UptimeSeconds: s.clock.Now().Sub(s.startedAt).Seconds(),
		Handles:       stats.HandleCount,
		Communities:   stats.CommunityCount,
		Admins:        stats.AdminCount,
		AuditRows:     stats.AuditCount,
	}, nil
}

func (s *botService) handleListHandles(ctx context.Context, raw []byte) (any, error) {
	var request listHandlesRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	if request.Community == "" {
		return nil, errors.New("missing required field: community")
	}
	community, err := ref.ParseRoomID(request.Community)
	if err != nil {
		return nil, fmt.Errorf("invalid community: %w", err)
	}

	handles, err := s.store.ListHandles(ctx, community)
	if err != nil {
		return nil, err
	}

	rows := make([]handleRow, len(handles))
	for i, handle := range handles {
		rows[i] = handleRow{
			Pseudonym: handle.Pseudonym.String(),
			Member:    handle.Member.String(),
			CreatedAt: handle.CreatedAt.UnixMilli(),
		}
	}
	return listHandlesResponse{
		Community: community.String(),
		Handles:   rows,
	}, nil
}

func (s *botService) handleAudit(ctx context.Context, raw []byte) (any, error) {
	var request auditRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}

	entries, err := s.store.AuditTail(ctx, request.Limit)
	if err != nil {
		return nil, err
	}

	rows := make([]auditRow, len(entries))
	for i, entry := range entries {
		rows[i] = auditRow{
			ID:        entry.ID,
			Action:    entry.Action,
			Actor:     entry.Actor.String(),
			Target:    entry.Target.String(),
			Community: entry.Community.String(),
			At:        entry.At.UnixMilli(),
		}
	}
	return auditResponse{Entries: rows}, nil
}
