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

// Audit actions recorded by Grant and Revoke.
const (
	AuditActionGrant  = "grant"
	AuditActionRevoke = "revoke"
)

// AuditEntry is one append-only record of an admin roster change.
type AuditEntry struct {
	ID        int64
	Action    string
	Actor     ref.UserID
	Target    ref.UserID
	Community ref.RoomID
	At        time.Time
}

// IsAdmin reports whether member is on the global admin roster.
func (s *Store) IsAdmin(ctx context.Context, member ref.UserID) (bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, fmt.Errorf("directory: is admin: %w", err)
	}
	defer s.pool.Put(conn)

	found := false
	err = sqlitex.Execute(conn,
		`SELECT 1 FROM admins WHERE member_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{member.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				return nil
			},
		})
	if err != nil {
		return false, fmt.Errorf("directory: is admin: %w", err)
	}
	return found, nil
}

// Grant adds member to the admin roster and records an audit entry
// naming actor and the community the grant was issued from. Both writes
// happen in one transaction: there is no grant without its audit row.
// Returns ErrAlreadyAdmin if member is already on the roster.
func (s *Store) Grant(ctx context.Context, member, actor ref.UserID, community ref.RoomID) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("directory: grant: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("directory: grant: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	err = sqlitex.Execute(conn,
		`INSERT INTO admins (member_id) VALUES (?)`,
		&sqlitex.ExecOptions{
			Args: []any{member.String()},
		})
	if err != nil {
		code := sqlite.ErrCode(err)
		if code == sqlite.ResultConstraintPrimaryKey || code == sqlite.ResultConstraintUnique {
			err = ErrAlreadyAdmin
			return err
		}
		err = fmt.Errorf("directory: grant: %w", err)
		return err
	}

	if err = s.insertAudit(conn, AuditActionGrant, actor, member, community); err != nil {
		return err
	}

	s.logger.Info("admin granted",
		"member", member,
		"actor", actor,
	)
	return nil
}

// Revoke removes member from the admin roster and records an audit
// entry, both in one transaction. Returns ErrNotAdmin if member is not
// on the roster.
func (s *Store) Revoke(ctx context.Context, member, actor ref.UserID, community ref.RoomID) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("directory: revoke: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("directory: revoke: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	err = sqlitex.Execute(conn,
		`DELETE FROM admins WHERE member_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{member.String()},
		})
	if err != nil {
		err = fmt.Errorf("directory: revoke: %w", err)
		return err
	}
	if conn.Changes() == 0 {
		err = ErrNotAdmin
		return err
	}

	if err = s.insertAudit(conn, AuditActionRevoke, actor, member, community); err != nil {
		return err
	}

	s.logger.Info("admin revoked",
		"member", member,
		"actor", actor,
	)
	return nil
}

func (s *Store) insertAudit(conn *sqlite.Conn, action string, actor, target ref.UserID, community ref.RoomID) error {
	err := sqlitex.Execute(conn,
		`INSERT INTO admin_audit (action, actor_id, target_id, community_id, at)
		 VALUES (?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				action,
				actor.String(),
				target.String(),
				community.String(),
				s.clock.Now().UnixMilli(),
			},
		})
	if err != nil {
		return fmt.Errorf("directory: audit %s: %w", action, err)
	}
	return nil
}

// AuditTail returns the most recent audit entries, newest first. Limit
// defaults to 20 if zero or negative.
func (s *Store) AuditTail(ctx context.Context, limit int) ([]AuditEntry, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("directory: audit tail: %w", err)
	}
	defer s.pool.Put(conn)

	if limit <= 0 {
		limit = 20
	}

	var entries []AuditEntry

	err = sqlitex.Execute(conn,
		`SELECT id, action, actor_id, target_id, community_id, at
		 FROM admin_audit ORDER BY id DESC LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				actor, err := ref.ParseUserID(stmt.ColumnText(2))
				if err != nil {
					return fmt.Errorf("stored actor ID: %w", err)
				}
				target, err := ref.ParseUserID(stmt.ColumnText(3))
				if err != nil {
					return fmt.Errorf("stored target ID: %w", err)
				}
				community, err := ref.ParseRoomID(stmt.ColumnText(4))
				if err != nil {
					return fmt.Errorf("stored community ID: %w", err)
				}
				entries = append(entries, AuditEntry{
					ID:        stmt.ColumnInt64(0),
					Action:    stmt.ColumnText(1),
					Actor:     actor,
					Target:    target,
					Community: community,
					At:        time.UnixMilli(stmt.ColumnInt64(5)),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("directory: audit tail: %w", err)
	}
	return entries, nil
}
