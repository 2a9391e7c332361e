/*
backup.go - File-level backup and restore

A backup is a byte copy of the database file taken through SQLite's
serialization (VACUUM INTO would also work; a plain copy after a WAL
checkpoint is what ships). Restore swaps the file under the open handle:
close, copy, reopen. Both retry transient filesystem errors a fixed
number of times before giving up.
*/
package sqlite

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/retailpoint/pos-engine/ledger"
)

const (
	copyAttempts = 3
	copyDelay    = 200 * time.Millisecond
)

// Backup writes a consistent copy of the database to dst. The store
// keeps serving; the writer mutex is held only for the checkpoint and
// the copy itself.
func (s *Store) Backup(ctx context.Context, dst string) error {
	if s.path == ":memory:" {
		return &ledger.ValidationError{Field: "backup", Reason: "not supported for in-memory databases"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Fold the WAL into the main file so the copy is self-contained.
	if _, err := s.sqldb.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return &ledger.StorageError{Op: "checkpoint", Key: s.path, Err: err}
	}

	if err := copyFile(s.path, dst); err != nil {
		return &ledger.StorageError{Op: "backup", Key: dst, Err: err}
	}
	return nil
}

// Restore replaces the live database with the file at src and reopens
// the connection. Callers must guarantee no transaction is in flight;
// the writer mutex blocks new ones for the duration.
func (s *Store) Restore(ctx context.Context, src string) error {
	if s.path == ":memory:" {
		return &ledger.ValidationError{Field: "restore", Reason: "not supported for in-memory databases"}
	}
	if _, err := os.Stat(src); err != nil {
		return &ledger.NotFoundError{Kind: "backup file", ID: 0}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sqldb.Close(); err != nil {
		return &ledger.StorageError{Op: "close before restore", Key: s.path, Err: err}
	}
	// Stale WAL and SHM files would shadow the restored content.
	os.Remove(s.path + "-wal")
	os.Remove(s.path + "-shm")

	if err := copyFile(src, s.path); err != nil {
		return &ledger.StorageError{Op: "restore", Key: src, Err: err}
	}

	db, err := open(s.path)
	if err != nil {
		return &ledger.StorageError{Op: "reopen after restore", Key: s.path, Err: err}
	}
	s.sqldb = db
	s.session.db = db
	return s.migrate()
}

// copyFile copies src to dst atomically (write to a temp file, then
// rename), retrying transient errors.
func copyFile(src, dst string) error {
	var lastErr error
	for attempt := 1; attempt <= copyAttempts; attempt++ {
		if attempt > 1 {
			time.Sleep(copyDelay)
		}
		data, err := os.ReadFile(src)
		if err != nil {
			lastErr = err
			continue
		}
		tmp := dst + ".tmp"
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			lastErr = err
			continue
		}
		if err := os.Rename(tmp, dst); err != nil {
			os.Remove(tmp)
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("after %d attempts: %w", copyAttempts, lastErr)
}
