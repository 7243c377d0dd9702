// Package buildstate persists the incremental-build record: one row per
// completed target build with a fingerprint of its dependency set. The
// record is a cache only; "clobber" removes it, "clean" does not.
package buildstate

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/bookbinder/internal/errors"
)

// FileName is the on-disk name of the state record inside the build
// directory.
const FileName = ".bookbinder-state.db"

// Store is the SQLite-backed incremental-build record.
type Store struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

// Open opens (or creates) the state record at path. Use ":memory:" in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryState, "open state record").WithPath(path)
	}

	store := &Store{db: db, path: path}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.CategoryState, "initialize state schema").WithPath(path)
	}
	return store, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS builds (
		id TEXT PRIMARY KEY,
		target TEXT NOT NULL,
		finished INTEGER NOT NULL,
		artifact TEXT NOT NULL,
		fingerprint TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_builds_target ON builds(target);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path reports where the record lives on disk.
func (s *Store) Path() string {
	return s.path
}

// RecordBuild stores a completed build for a target.
func (s *Store) RecordBuild(ctx context.Context, target, artifact, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO builds (id, target, finished, artifact, fingerprint) VALUES (?, ?, ?, ?, ?)",
		uuid.NewString(), target, time.Now().Unix(), artifact, fingerprint,
	)
	if err != nil {
		return errors.Wrap(err, errors.CategoryState, "record build")
	}
	return nil
}

// LastFingerprint returns the dependency fingerprint of the most recent
// successful build of a target, or empty when none exists.
func (s *Store) LastFingerprint(ctx context.Context, target string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT fingerprint FROM builds WHERE target = ? ORDER BY finished DESC, rowid DESC LIMIT 1",
		target,
	)
	var fp string
	if err := row.Scan(&fp); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", errors.Wrap(err, errors.CategoryState, "query build record")
	}
	return fp, nil
}

// Remove deletes the state record file. Missing is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, errors.CategoryState, "remove state record").WithPath(path)
	}
	return nil
}

// Fingerprint hashes a dependency set by path, size, and modification time.
// Enumeration order does not matter.
func Fingerprint(paths []string) string {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	h := sha256.New()
	for _, p := range sorted {
		st, err := os.Stat(p)
		if err != nil {
			fmt.Fprintf(h, "%s|missing\n", p)
			continue
		}
		fmt.Fprintf(h, "%s|%d|%d\n", p, st.Size(), st.ModTime().UnixNano())
	}
	return hex.EncodeToString(h.Sum(nil))
}
