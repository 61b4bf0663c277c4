// Package store is the single-writer persistence layer for CodeFRAME. It
// owns every entity in pkg/models and serializes all mutations through one
// writer lane while allowing concurrent reads, backed by modernc.org/sqlite,
// an embedded pure-Go SQLite driver (see DESIGN.md for the reasoning behind
// choosing a single-file engine here).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/frankbria/codeframe/pkg/models"
)

// ChangeNotifier receives the change notifications that successful Store
// mutations emit. pkg/eventbus.Bus implements this. Not every mutation
// emits one: ClaimReadyTask, ApplyApproval, CompleteDiscovery,
// SetProjectCommit, RecordHeartbeat, AccrueAgentUsage, IncrementIteration,
// BumpWatchdog, ResetWatchdog, AppendEvent, and UpdateSessionStatus to
// active or stopped change rows without a notification.
type ChangeNotifier interface {
	Notify(models.Event)
}

// Store is the persistence layer. All exported mutating methods acquire
// writeMu so that writes are strictly serialized (the single-writer lane);
// read methods run directly against db, which SQLite itself allows
// concurrently in WAL mode.
type Store struct {
	db       *sql.DB
	writeMu  sync.Mutex
	notifier ChangeNotifier
}

// Open creates (if needed) and opens the SQLite file at path, applies
// migrations, and returns a ready Store. notifier may be nil (no broadcast).
func Open(ctx context.Context, path string, notifier ChangeNotifier) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, wrapPersistence(fmt.Errorf("open sqlite: %w", err))
	}
	db.SetMaxOpenConns(8)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, wrapPersistence(fmt.Errorf("ping sqlite: %w", err))
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, notifier: notifier}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetNotifier replaces the ChangeNotifier after construction.
func (s *Store) SetNotifier(n ChangeNotifier) {
	s.notifier = n
}

func (s *Store) notify(evt models.Event) {
	if s.notifier == nil {
		return
	}
	evt.Timestamp = time.Now().UTC()
	s.notifier.Notify(evt)
}

// withWriteTx serializes fn behind writeMu and runs it inside a transaction.
// fn's error, if non-nil and not already a sentinel-wrapped error, is
// wrapped as ErrPersistence.
func (s *Store) withWriteTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapPersistence(err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return wrapPersistence(err)
	}
	return nil
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
