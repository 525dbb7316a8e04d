// Package registry is the durable record of every document the pipeline
// has admitted: identity, dedup fingerprints, lifecycle status, OCR
// quality figures and an audit log.
package registry

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jackzampolin/scanflow/internal/clock"
)

//go:embed schema.sql
var schemaSQL string

// migrations are applied in order; the index plus one is the version.
var migrations = []string{
	schemaSQL,
}

var (
	ErrNotFound          = errors.New("document not found")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrDuplicate         = errors.New("fingerprint already recorded for another document")
)

// Store wraps the sqlite database. All access goes through a single
// connection, so each operation is atomic with respect to the others.
type Store struct {
	db    *sql.DB
	clock clock.Clock
}

// Open opens (creating if needed) the database at path and applies
// pending migrations.
func Open(ctx context.Context, path string, c clock.Clock) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s, err := New(ctx, db, c)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already opened database and applies pending migrations.
func New(ctx context.Context, db *sql.DB, c clock.Clock) (*Store, error) {
	if c == nil {
		c = clock.Real()
	}
	s := &Store{db: db, clock: c}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SchemaVersion returns the highest applied migration.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&v); err != nil {
		return 0, err
	}
	return int(v.Int64), nil
}

func (s *Store) migrate(ctx context.Context) error {
	// The first migration creates schema_version itself.
	if _, err := s.db.ExecContext(ctx, migrations[0]); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		version := i + 1
		err := s.withTx(ctx, func(tx *sql.Tx) error {
			if version > 1 {
				if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
					return err
				}
			}
			_, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (?, ?)`,
				version, s.timestamp())
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", version, err)
		}
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) timestamp() string {
	return formatTime(s.clock.Now())
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
