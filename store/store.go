// Package store implements the persistent SQLite-backed package database
// described in spec §4.B: schema, typed row<->record mapping, query helpers,
// and the event log. A Store wraps exactly one *sql.DB; all writers funnel
// through it, matching the single-mutable-resource model in spec §5.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/midnightbsd/go-mport/log"
	"github.com/midnightbsd/go-mport/version"

	_ "modernc.org/sqlite"
)

func init() {
	registerVersionCmp()
}

// Store owns one SQLite connection (live database or, transiently, a bundle's
// stub database) and exposes the query surface from spec §4.B.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at path and ensures the
// schema exists. Pass ":memory:" (or a "file::memory:" URI, as the tests do)
// for an ephemeral store.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	// The live database is mutated by exactly one process at a time (spec §5);
	// a single connection avoids SQLite's writer-starvation under concurrent
	// pooled connections.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate %q: %w", path, err)
	}
	return s, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// DB returns the underlying *sql.DB for components (bundle stub attach) that
// need driver-level access. Callers must not hold onto it past the Store's
// lifetime.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}
	return nil
}

// WithTx runs fn inside a write transaction, committing on success and
// rolling back on error or panic. This is the only way installer/deletion
// code should mutate the live database, so phase-2 and deletion's row-removal
// step are always atomic (spec §4.E, §4.F).
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Errorf("store: rollback after error %v: %v", err, rbErr)
		}
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// versionCmp exposes package version's total order to SQL as version_cmp(a,b).
func versionCmp(a, b string) int { return version.Compare(a, b) }
