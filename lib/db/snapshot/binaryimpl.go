package snapshot

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ValentinKolb/rKV/lib/db"
)

const (
	magicNum        = "RKVSNAP\x00" // File format identifier
	snapshotVersion = 1             // Snapshot format version
)

// NewBinaryCodec creates a new codec using a custom binary format
// optimized for speed and efficiency
func NewBinaryCodec() ISnapshotCodec {
	return &binaryCodecImpl{}
}

// binaryCodecImpl implements ISnapshotCodec using a custom binary format
type binaryCodecImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see snapshot.ISnapshotCodec)
// --------------------------------------------------------------------------

func (c binaryCodecImpl) Name() string {
	return "binary"
}

func (c binaryCodecImpl) Encode(w io.Writer, snap *Snapshot) error {
	// Use a buffered writer for better performance
	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	// Write file header
	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}

	// Write format version
	if err := binary.Write(bw, binary.LittleEndian, uint8(snapshotVersion)); err != nil {
		return err
	}

	// Write sequence number
	if err := binary.Write(bw, binary.LittleEndian, snap.Seq); err != nil {
		return err
	}

	// Write total entry count
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(snap.Entries))); err != nil {
		return err
	}

	// Write entries
	for _, entry := range snap.Entries {

		// Write kind
		if err := binary.Write(bw, binary.LittleEndian, uint8(entry.Kind)); err != nil {
			return err
		}

		// Write key
		if err := writeChunk(bw, []byte(entry.Key)); err != nil {
			return err
		}

		// Write payload
		switch entry.Kind {
		case db.KindString:
			if err := writeChunk(bw, entry.Str); err != nil {
				return err
			}
		case db.KindList, db.KindSet:
			if err := binary.Write(bw, binary.LittleEndian, uint32(len(entry.Items))); err != nil {
				return err
			}
			for _, item := range entry.Items {
				if err := writeChunk(bw, item); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("cannot encode entry %q: unknown kind %d", entry.Key, uint8(entry.Kind))
		}
	}

	// Flush buffer to ensure all data is written
	return bw.Flush()
}

func (c binaryCodecImpl) Decode(r io.Reader) (*Snapshot, error) {
	// Use a buffered reader for better performance
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	// Read and verify magic number
	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return nil, err
	}

	if string(magicBytes) != magicNum {
		return nil, fmt.Errorf("invalid file format: magic number mismatch")
	}

	// Read and verify version
	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return nil, err
	}

	if int(version) != snapshotVersion {
		return nil, fmt.Errorf("unsupported version: %d (expected %d)", version, snapshotVersion)
	}

	snap := &Snapshot{}

	// Read sequence number
	if err := binary.Read(br, binary.LittleEndian, &snap.Seq); err != nil {
		return nil, err
	}

	// Read entry count
	var entryCount uint64
	if err := binary.Read(br, binary.LittleEndian, &entryCount); err != nil {
		return nil, err
	}

	// Read entries
	for i := uint64(0); i < entryCount; i++ {

		// Read kind
		var kind uint8
		if err := binary.Read(br, binary.LittleEndian, &kind); err != nil {
			return nil, err
		}

		// Read key
		key, err := readChunk(br)
		if err != nil {
			return nil, err
		}

		entry := db.Entry{Key: string(key), Kind: db.ValueKind(kind)}

		// Read payload
		switch entry.Kind {
		case db.KindString:
			if entry.Str, err = readChunk(br); err != nil {
				return nil, err
			}
		case db.KindList, db.KindSet:
			var itemCount uint32
			if err := binary.Read(br, binary.LittleEndian, &itemCount); err != nil {
				return nil, err
			}
			if itemCount == 0 {
				return nil, fmt.Errorf("entry %q carries an empty %s", entry.Key, entry.Kind)
			}
			entry.Items = make([][]byte, itemCount)
			for j := uint32(0); j < itemCount; j++ {
				if entry.Items[j], err = readChunk(br); err != nil {
					return nil, err
				}
			}
		default:
			return nil, fmt.Errorf("entry %q carries unknown kind %d", entry.Key, kind)
		}

		snap.Entries = append(snap.Entries, entry)
	}

	return snap, nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// writeChunk writes a length-prefixed byte chunk
func writeChunk(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	if len(b) > 0 {
		if _, err := w.Write(b); err != nil {
			return err
		}
	}
	return nil
}

// readChunk reads a length-prefixed byte chunk
func readChunk(r io.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return nil, err
	}
	b := make([]byte, length)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
