// Copyright 2026 The Veil Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/veil-im/veil/lib/ref"
)

// Handle associates a member with a pseudonym inside one community. A
// member may accumulate several handles in a community over time; the
// most recently created one is authoritative for relaying.
type Handle struct {
	Community ref.RoomID
	Member    ref.UserID
	Pseudonym Pseudonym
	CreatedAt time.Time
}

// CreateHandle claims pseudonym for member within community. The
// pseudonym must already be validated (ParsePseudonym); raw strings
// from user input must not reach this method. Returns
// ErrInvalidPseudonym for a zero or malformed pseudonym and
// ErrPseudonymTaken when another row in the community holds the name.
// The UNIQUE(community_id, pseudonym) constraint is the arbiter under
// concurrency: two simultaneous claims of the same name never both
// succeed.
func (s *Store) CreateHandle(ctx context.Context, community ref.RoomID, member ref.UserID, pseudonym Pseudonym) (Handle, error) {
	if _, err := ParsePseudonym(pseudonym.String()); err != nil {
		return Handle{}, err
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Handle{}, fmt.Errorf("directory: create handle: %w", err)
	}
	defer s.pool.Put(conn)

	createdAt := s.clock.Now()

	err = sqlitex.Execute(conn,
		`INSERT INTO handles (community_id, member_id, pseudonym, created_at)
		 VALUES (?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				community.String(),
				member.String(),
				pseudonym.String(),
				createdAt.UnixMilli(),
			},
		})
	if err != nil {
		if sqlite.ErrCode(err) == sqlite.ResultConstraintUnique {
			return Handle{}, ErrPseudonymTaken
		}
		return Handle{}, fmt.Errorf("directory: create handle: %w", err)
	}

	s.logger.Info("handle created",
		"community", community,
		"pseudonym", pseudonym,
	)

	return Handle{
		Community: community,
		Member:    member,
		Pseudonym: pseudonym,
		CreatedAt: createdAt,
	}, nil
}

// LookupHandle returns the most recently created handle for member in
// community, or ErrNoHandle if the member has none there.
func (s *Store) LookupHandle(ctx context.Context, community ref.RoomID, member ref.UserID) (Handle, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Handle{}, fmt.Errorf("directory: lookup handle: %w", err)
	}
	defer s.pool.Put(conn)

	var handle Handle
	found := false

	err = sqlitex.Execute(conn,
		`SELECT pseudonym, created_at FROM handles
		 WHERE community_id = ? AND member_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		&sqlitex.ExecOptions{
			Args: []any{community.String(), member.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				handle = Handle{
					Community: community,
					Member:    member,
					Pseudonym: Pseudonym(stmt.ColumnText(0)),
					CreatedAt: time.UnixMilli(stmt.ColumnInt64(1)),
				}
				found = true
				return nil
			},
		})
	if err != nil {
		return Handle{}, fmt.Errorf("directory: lookup handle: %w", err)
	}
	if !found {
		return Handle{}, ErrNoHandle
	}
	return handle, nil
}

// ResolveOwner returns the member who most recently claimed pseudonym,
// searching across ALL communities, or ErrNoHandle if the pseudonym is
// unclaimed everywhere. The global scope means a mention in one
// community can notify a member who claimed the name in another; see
// DESIGN.md for the recorded decision.
func (s *Store) ResolveOwner(ctx context.Context, pseudonym Pseudonym) (ref.UserID, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return ref.UserID{}, fmt.Errorf("directory: resolve owner: %w", err)
	}
	defer s.pool.Put(conn)

	var rawMember string

	err = sqlitex.Execute(conn,
		`SELECT member_id FROM handles
		 WHERE pseudonym = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		&sqlitex.ExecOptions{
			Args: []any{pseudonym.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				rawMember = stmt.ColumnText(0)
				return nil
			},
		})
	if err != nil {
		return ref.UserID{}, fmt.Errorf("directory: resolve owner: %w", err)
	}
	if rawMember == "" {
		return ref.UserID{}, ErrNoHandle
	}

	member, err := ref.ParseUserID(rawMember)
	if err != nil {
		return ref.UserID{}, fmt.Errorf("directory: resolve owner: stored member ID: %w", err)
	}
	return member, nil
}

// ListHandles returns every handle in community, newest first.
func (s *Store) ListHandles(ctx context.Context, community ref.RoomID) ([]Handle, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("directory: list handles: %w", err)
	}
	defer s.pool.Put(conn)

	var handles []Handle

	err = sqlitex.Execute(conn,
		`SELECT member_id, pseudonym, created_at FROM handles
		 WHERE community_id = ?
		 ORDER BY created_at DESC, rowid DESC`,
		&sqlitex.ExecOptions{
			Args: []any{community.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				member, err := ref.ParseUserID(stmt.ColumnText(0))
				if err != nil {
					return fmt.Errorf("stored member ID: %w", err)
				}
				handles = append(handles, Handle{
					Community: community,
					Member:    member,
					Pseudonym: Pseudonym(stmt.ColumnText(1)),
					CreatedAt: time.UnixMilli(stmt.ColumnInt64(2)),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("directory: list handles: %w", err)
	}
	return handles, nil
}
