// Copyright 2026 The Veil Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/veil-im/veil/lib/ref"
)

// SetChannel designates room as the relay channel for community,
// replacing any previous designation. The upsert happens in a single
// statement; there is no read-then-branch window.
func (s *Store) SetChannel(ctx context.Context, community, room ref.RoomID) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("directory: set channel: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO relay_channels (community_id, room_id) VALUES (?, ?)
		 ON CONFLICT(community_id) DO UPDATE SET room_id = excluded.room_id`,
		&sqlitex.ExecOptions{
			Args: []any{community.String(), room.String()},
		})
	if err != nil {
		return fmt.Errorf("directory: set channel: %w", err)
	}

	s.logger.Info("relay channel set",
		"community", community,
		"room", room,
	)
	return nil
}

// Channel returns the designated relay channel for community, or
// ErrNoChannel if none has been set.
func (s *Store) Channel(ctx context.Context, community ref.RoomID) (ref.RoomID, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return ref.RoomID{}, fmt.Errorf("directory: channel: %w", err)
	}
	defer s.pool.Put(conn)

	var rawRoom string

	err = sqlitex.Execute(conn,
		`SELECT room_id FROM relay_channels WHERE community_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{community.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				rawRoom = stmt.ColumnText(0)
				return nil
			},
		})
	if err != nil {
		return ref.RoomID{}, fmt.Errorf("directory: channel: %w", err)
	}
	if rawRoom == "" {
		return ref.RoomID{}, ErrNoChannel
	}

	room, err := ref.ParseRoomID(rawRoom)
	if err != nil {
		return ref.RoomID{}, fmt.Errorf("directory: channel: stored room ID: %w", err)
	}
	return room, nil
}
