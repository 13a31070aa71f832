// Package snapshot provides point-in-time persistence for the typed key
// space. It defines a common codec interface and multiple implementations
// for encoding and decoding database snapshots, plus an atomic file store.
//
// The package focuses on:
//   - Providing a consistent interface for different snapshot encodings
//   - Crash-safe snapshot files via write-to-temp-and-rename
//   - Strict decode validation so a corrupt file never yields partial state
//
// Key Components:
//
//   - Snapshot: The unit of persistence, carrying every entry of the key
//     space plus the sequence number of the last mutation it contains.
//
//   - ISnapshotCodec: Core interface that all codec implementations must satisfy.
//
//   - binaryCodecImpl: Custom binary format implementation optimized for speed
//     and space efficiency. Uses a magic number and version byte so foreign or
//     outdated files are rejected before any entry is decoded.
//
//   - jsonCodecImpl: Implementation using JSON encoding, useful for debugging
//     or tooling that wants to inspect a snapshot, but with lower performance.
//
//   - gobCodecImpl: Implementation using Go's built-in gob encoding, offering
//     good compatibility with Go's type system but with larger serialized sizes.
//
//   - FileStore: Binds a codec to a file path. Writes encode into a temporary
//     file in the same directory, fsync it, and rename it over the target, so
//     a crash mid-write always leaves the previous snapshot readable. Reads
//     distinguish a missing file (ErrNotFound, treated as an empty database)
//     from an undecodable one (ErrCorrupt, which callers must treat as fatal).
//
// Thread Safety:
//
//	All codec implementations are stateless and safe for concurrent use.
//	FileStore writes must be serialized by the caller.
package snapshot
