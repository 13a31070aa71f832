package snapshot

import (
	"errors"
	"io"

	"github.com/ValentinKolb/rKV/lib/db"
)

// --------------------------------------------------------------------------
// Snapshot Type
// --------------------------------------------------------------------------

// Snapshot is a point-in-time image of the key space together with the
// sequence number of the last mutation it contains. Seq lets a restored
// server resume its replication log without replaying history.
type Snapshot struct {
	Seq     uint64     `json:"seq"`
	Entries []db.Entry `json:"entries"`
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

var (
	// ErrNotFound is returned when no snapshot exists at the configured path.
	// Callers typically treat this as an empty database.
	ErrNotFound = errors.New("snapshot not found")

	// ErrCorrupt is returned when a snapshot exists but cannot be decoded.
	// Callers must not guess at partial state and should fail the startup.
	ErrCorrupt = errors.New("snapshot corrupt")
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// ISnapshotCodec is the interface for all snapshot encodings.
type ISnapshotCodec interface {
	// Name returns the codec identifier used in configuration ("binary", "json", "gob")
	Name() string
	// Encode writes the snapshot to w
	// It returns an error if any
	Encode(w io.Writer, snap *Snapshot) error
	// Decode reads a snapshot from r
	// It returns the decoded snapshot and an error if any
	Decode(r io.Reader) (*Snapshot, error)
}

// NewCodec returns the codec registered under the given name,
// or false if the name is unknown.
func NewCodec(name string) (ISnapshotCodec, bool) {
	switch name {
	case "binary":
		return NewBinaryCodec(), true
	case "json":
		return NewJSONCodec(), true
	case "gob":
		return NewGOBCodec(), true
	default:
		return nil, false
	}
}
