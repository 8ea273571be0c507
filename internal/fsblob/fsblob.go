// Package fsblob is the flat-file BlobStore (bridge.BlobStore) backing
// persisted pairing state. Writes are atomic — a reader never observes a
// partially-written blob, even across a power loss mid-write — using
// renameio's temp-file-plus-fsync-plus-rename pattern rather than a
// hand-rolled version of the same.
package fsblob

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// Store is a bridge.BlobStore rooted at a single directory. Blob names are
// used as-is as file names within dir; this package never invents a naming
// scheme of its own since the core already fixes the one blob it persists
// (spec §6's "peer").
type Store struct {
	dir string
}

// New returns a Store rooted at dir, creating it (and any missing parents)
// if it does not already exist.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("fsblob: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// Exists reports whether name has a blob on disk.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.path(name))
	return err == nil
}

// Read returns the full contents of name's blob.
func (s *Store) Read(name string) ([]byte, error) {
	b, err := os.ReadFile(s.path(name))
	if err != nil {
		return nil, fmt.Errorf("fsblob: %w", err)
	}
	return b, nil
}

// Write replaces name's blob atomically: a concurrent or interrupted reader
// always sees either the old full contents or the new full contents, never
// a partial write.
func (s *Store) Write(name string, data []byte) error {
	if err := renameio.WriteFile(s.path(name), data, 0o600); err != nil {
		return fmt.Errorf("fsblob: %w", err)
	}
	return nil
}

// Remove deletes name's blob. Removing an already-absent blob is not an
// error; bridge.resetPersistedPeer relies on this to stay idempotent.
func (s *Store) Remove(name string) error {
	err := os.Remove(s.path(name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("fsblob: %w", err)
	}
	return nil
}
