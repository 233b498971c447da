// Copyright 2026 The Veil Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/veil-im/veil/lib/clock"
	"github.com/veil-im/veil/lib/sqlitepool"
)

// Store is the SQLite-backed directory of handles, relay channels, and
// admins. All methods are safe for concurrent use; conflicting writes
// are arbitrated by database constraints rather than application-level
// locking.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// Config holds the parameters for opening a directory store.
type Config struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory must exist.
	Path string

	// PoolSize is the number of connections in the pool. Defaults to
	// 4 if zero or negative.
	PoolSize int

	// Clock provides timestamps for handle creation and audit rows.
	Clock clock.Clock

	// Logger receives operational messages.
	Logger *slog.Logger
}

const schema = `
	CREATE TABLE IF NOT EXISTS handles (
		community_id TEXT NOT NULL,
		member_id    TEXT NOT NULL,
		pseudonym    TEXT NOT NULL,
		created_at   INTEGER NOT NULL,
		UNIQUE(community_id, pseudonym)
	);
	CREATE INDEX IF NOT EXISTS idx_handles_member
		ON handles(community_id, member_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_handles_pseudonym
		ON handles(pseudonym, created_at);

	CREATE TABLE IF NOT EXISTS relay_channels (
		community_id TEXT PRIMARY KEY,
		room_id      TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS admins (
		member_id TEXT PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS admin_audit (
		id           INTEGER PRIMARY KEY,
		action       TEXT NOT NULL,
		actor_id     TEXT NOT NULL,
		target_id    TEXT NOT NULL,
		community_id TEXT NOT NULL,
		at           INTEGER NOT NULL
	);
`

// Open creates or opens the directory database and applies the schema.
func Open(cfg Config) (*Store, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("directory: Clock is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("directory: Logger is required")
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: poolSize,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("directory: %w", err)
	}

	store := &Store{
		pool:   pool,
		clock:  cfg.Clock,
		logger: cfg.Logger,
	}

	if err := store.applySchema(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("directory: applying schema: %w", err)
	}

	return store, nil
}

// Close closes the underlying connection pool. Blocks until all
// borrowed connections are returned.
func (s *Store) Close() error {
	return s.pool.Close()
}

func (s *Store) applySchema() error {
	conn, err := s.pool.Take(context.Background())
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	return sqlitex.ExecuteScript(conn, schema, nil)
}

// Stats summarizes directory contents for the admin socket's stats
// action.
type Stats struct {
	// HandleCount is the total number of handle rows across all
	// communities.
	HandleCount int64 `cbor:"handle_count" json:"handle_count"`

	// CommunityCount is the number of distinct communities with at
	// least one handle.
	CommunityCount int64 `cbor:"community_count" json:"community_count"`

	// AdminCount is the size of the admin roster.
	AdminCount int64 `cbor:"admin_count" json:"admin_count"`

	// AuditCount is the number of audit entries recorded.
	AuditCount int64 `cbor:"audit_count" json:"audit_count"`
}

// QueryStats returns current directory statistics.
func (s *Store) QueryStats(ctx context.Context) (Stats, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("directory: stats: %w", err)
	}
	defer s.pool.Put(conn)

	var stats Stats
	err = sqlitex.Execute(conn,
		`SELECT
			(SELECT COUNT(*) FROM handles),
			(SELECT COUNT(DISTINCT community_id) FROM handles),
			(SELECT COUNT(*) FROM admins),
			(SELECT COUNT(*) FROM admin_audit)`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				stats.HandleCount = stmt.ColumnInt64(0)
				stats.CommunityCount = stmt.ColumnInt64(1)
				stats.AdminCount = stmt.ColumnInt64(2)
				stats.AuditCount = stmt.ColumnInt64(3)
				return nil
			},
		})
	if err != nil {
		return Stats{}, fmt.Errorf("directory: stats: %w", err)
	}
	return stats, nil
}
