package snapshot

import (
	"encoding/gob"
	"io"
)

// NewGOBCodec creates a new codec using Go's binary gob format
func NewGOBCodec() ISnapshotCodec {
	return &gobCodecImpl{}
}

// gobCodecImpl implements the ISnapshotCodec interface using gob encoding
type gobCodecImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see snapshot.ISnapshotCodec)
// --------------------------------------------------------------------------

func (c gobCodecImpl) Name() string {
	return "gob"
}

func (c gobCodecImpl) Encode(w io.Writer, snap *Snapshot) error {
	return gob.NewEncoder(w).Encode(snap)
}

func (c gobCodecImpl) Decode(r io.Reader) (*Snapshot, error) {
	snap := &Snapshot{}
	if err := gob.NewDecoder(r).Decode(snap); err != nil {
		return nil, err
	}
	return snap, nil
}
