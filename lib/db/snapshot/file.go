package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
)

// tmpPattern names in-flight snapshot files. They live in the target
// directory so the final rename never crosses a filesystem boundary.
const tmpPattern = ".rkv-snapshot-*"

// FileStore persists snapshots to a single file on disk. Writes are atomic:
// the snapshot is encoded into a temporary file which replaces the target
// via rename, so a crash mid-write leaves the previous snapshot intact.
type FileStore struct {
	path  string
	codec ISnapshotCodec
}

// NewFileStore creates a store writing to the given path with the given codec.
func NewFileStore(path string, codec ISnapshotCodec) *FileStore {
	return &FileStore{
		path:  path,
		codec: codec,
	}
}

// Path returns the snapshot file path.
func (s *FileStore) Path() string {
	return s.path
}

// Codec returns the configured codec.
func (s *FileStore) Codec() ISnapshotCodec {
	return s.codec
}

// Write atomically replaces the snapshot file with the given snapshot.
// On any failure the previous snapshot file is left untouched.
//
// Thread-safety: This method is not thread-safe, the caller serializes writes.
func (s *FileStore) Write(snap *Snapshot) error {
	dir := filepath.Dir(s.path)

	tmp, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}

	if err := s.codec.Encode(tmp, snap); err != nil {
		return fail(err)
	}

	// the data must reach disk before the rename makes it the current snapshot
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return err
	}

	return syncDir(dir)
}

// Read loads the current snapshot from disk.
// It returns ErrNotFound if no snapshot file exists and an error wrapping
// ErrCorrupt if the file exists but cannot be decoded.
//
// Thread-safety: This method is thread-safe with respect to Write on
// platforms with atomic rename.
func (s *FileStore) Read() (*Snapshot, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer f.Close()

	snap, err := s.codec.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return snap, nil
}

// syncDir flushes the directory entry so a completed rename survives a crash
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
