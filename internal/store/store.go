// Package store provides the local persistent cache for restaurant data and
// the pending-operation queues.
//
// The store is an embedded SQLite database in WAL mode. It is organised as
// named collections in the manner of an object store: each collection holds
// JSON records under an integer key, either read from the record itself
// (keyPath) or assigned by auto-increment, plus secondary indexes extracted
// from the record body.
//
// Collections:
//   - restaurants    key "id", indexes cuisine (cuisine_type), neighborhood
//   - reviews        key "id", index restaurant (restaurant_id)
//   - reviewQueue    auto-increment key, value is a draft review
//   - favoriteQueue  auto-increment key, value is {id, is_favorite}
//
// The schema is versioned. Upgrades run every step from the stored version up
// to the target in order and only ever add collections.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	apperrors "github.com/restreviews/restsync/internal/errors"
)

// SchemaVersion is the number of upgrade steps in the current schema.
const SchemaVersion = 2

// Store wraps the SQLite connection backing the local cache.
type Store struct {
	conn   *sql.DB
	path   string
	logger *log.Logger
}

// Disabled reports whether path means "no persistent storage".
func Disabled(path string) bool {
	p := strings.TrimSpace(path)
	return p == "" || strings.EqualFold(p, "none")
}

// Open opens or creates the store at path and upgrades it to SchemaVersion.
//
// An empty path or "none" yields apperrors.ErrStoreUnavailable; callers
// should then run without a store.
//
// The caller MUST call Close() when done.
func Open(path string) (*Store, error) {
	return OpenVersion(path, SchemaVersion)
}

// OpenVersion opens the store and upgrades it to the given schema version.
// It fails if the stored version is newer than version.
func OpenVersion(path string, version int) (*Store, error) {
	if Disabled(path) {
		return nil, apperrors.ErrStoreUnavailable
	}
	if version < 0 || version > len(upgradeSteps) {
		return nil, fmt.Errorf("unsupported schema version %d", version)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStoreUnavailable, "failed to create store directory", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStoreUnavailable, "failed to open store", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, apperrors.Wrap(apperrors.CodeStoreUnavailable, "failed to ping store", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{
		conn:   conn,
		path:   path,
		logger: log.New(os.Stderr, "[store] ", log.LstdFlags),
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := s.conn.Exec(p); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if err := s.upgrade(context.Background(), version); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// SetLogger replaces the store's logger.
func (s *Store) SetLogger(logger *log.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Printf("Warning: failed to checkpoint WAL: %v", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}

	s.conn = nil
	return nil
}

// Version returns the stored schema version.
func (s *Store) Version(ctx context.Context) (int, error) {
	var v int
	if err := s.conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}

// upgradeSteps[v] moves the schema from version v to v+1. Steps are
// additive and idempotent.
var upgradeSteps = []func(ctx context.Context, tx *sql.Tx) error{
	// 0 -> 1: restaurant data
	func(ctx context.Context, tx *sql.Tx) error {
		if err := createCollection(ctx, tx, collections[Restaurants]); err != nil {
			return err
		}
		return createCollection(ctx, tx, collections[Reviews])
	},
	// 1 -> 2: pending-operation queues
	func(ctx context.Context, tx *sql.Tx) error {
		if err := createCollection(ctx, tx, collections[ReviewQueue]); err != nil {
			return err
		}
		return createCollection(ctx, tx, collections[FavoriteQueue])
	},
}

// upgrade runs every step from the stored version to target in one
// transaction.
func (s *Store) upgrade(ctx context.Context, target int) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin upgrade: %w", err)
	}
	defer tx.Rollback()

	var old int
	if err := tx.QueryRowContext(ctx, "PRAGMA user_version").Scan(&old); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if old > target {
		return fmt.Errorf("stored schema version %d is newer than requested %d", old, target)
	}
	if old == target {
		return nil
	}

	for v := old; v < target; v++ {
		if err := upgradeSteps[v](ctx, tx); err != nil {
			return fmt.Errorf("failed to upgrade schema from version %d: %w", v, err)
		}
	}

	// PRAGMA does not take bind parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", target)); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upgrade: %w", err)
	}

	s.logger.Printf("Upgraded schema from version %d to %d", old, target)
	return nil
}

func createCollection(ctx context.Context, tx *sql.Tx, def *collectionDef) error {
	key := "rec_key INTEGER PRIMARY KEY"
	if def.keyPath == "" {
		key += " AUTOINCREMENT"
	}

	cols := []string{key}
	for _, ix := range def.indexes {
		// No declared type: index values keep the type they were stored with.
		cols = append(cols, ix.column())
	}
	cols = append(cols,
		"op_id TEXT",
		"body TEXT NOT NULL",
		"stored_at TEXT NOT NULL",
	)

	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", def.table, strings.Join(cols, ",\n\t"))
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", def.name, err)
	}

	for _, ix := range def.indexes {
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s)",
			def.table, ix.name, def.table, ix.column())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index %s on %s: %w", ix.name, def.name, err)
		}
	}

	return nil
}
