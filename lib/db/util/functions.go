package util

import (
	"crypto/rand"
	"encoding/binary"
	"path"
	"time"
)

// --------------------------------------------------------------------------
// General Utility Functions
// --------------------------------------------------------------------------

// GenerateSeed creates a random seed for internal hash distribution
func GenerateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// Fallback on the clock if the system source is unavailable
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// --------------------------------------------------------------------------
// Hash Functions
// --------------------------------------------------------------------------

// HashString generates a hash value for a string with a seed.
// This function uses the FNV-1a hash algorithm, which is fast and has good distribution
func HashString(s string, seed uint64) uint64 {

	// FNV-1a hash with seed incorporation
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)

	// Start with the offset combined with our seed for uniqueness
	hash := uint64(offset64) ^ seed

	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= prime64
	}

	return hash
}

// --------------------------------------------------------------------------
// Pattern Matching
// --------------------------------------------------------------------------

// MatchPattern reports whether s matches the glob pattern (*, ?, [...]).
// A malformed pattern matches only itself literally.
func MatchPattern(pattern, s string) bool {
	ok, err := path.Match(pattern, s)
	if err != nil {
		return pattern == s
	}
	return ok
}

// --------------------------------------------------------------------------
// Byte Slice Helpers
// --------------------------------------------------------------------------

// CloneBytes returns a copy of b. A nil input yields an empty, non-nil
// slice so stored values stay distinct from the absent marker.
func CloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// CloneByteSlices deep-copies a slice of byte slices.
func CloneByteSlices(values [][]byte) [][]byte {
	out := make([][]byte, len(values))
	for i, v := range values {
		out[i] = CloneBytes(v)
	}
	return out
}
