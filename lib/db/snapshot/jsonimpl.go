package snapshot

import (
	"encoding/json"
	"io"
)

// NewJSONCodec creates a new codec using json encoding
func NewJSONCodec() ISnapshotCodec {
	return &jsonCodecImpl{}
}

// jsonCodecImpl implements the ISnapshotCodec interface using json encoding
type jsonCodecImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see snapshot.ISnapshotCodec)
// --------------------------------------------------------------------------

func (c jsonCodecImpl) Name() string {
	return "json"
}

func (c jsonCodecImpl) Encode(w io.Writer, snap *Snapshot) error {
	return json.NewEncoder(w).Encode(snap)
}

func (c jsonCodecImpl) Decode(r io.Reader) (*Snapshot, error) {
	snap := &Snapshot{}
	if err := json.NewDecoder(r).Decode(snap); err != nil {
		return nil, err
	}
	return snap, nil
}
