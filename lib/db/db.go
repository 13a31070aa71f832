package db

import (
	"fmt"
)

// --------------------------------------------------------------------------
// Implementations
// --------------------------------------------------------------------------

// Implementation identifies a database engine.
type Implementation string

const (
	// Rowan is the sharded in-memory engine provided by engines/rowan.
	Rowan Implementation = "rowan"
)

// --------------------------------------------------------------------------
// Value model
// --------------------------------------------------------------------------

// ValueKind identifies the variant a key holds. A key maps to exactly one
// variant for its lifetime until deleted; re-setting a key as a string may
// change its variant.
type ValueKind uint8

const (
	// KindNone marks an absent key.
	KindNone ValueKind = iota
	// KindString is a single byte-string value.
	KindString
	// KindList is an ordered sequence of byte-strings.
	KindList
	// KindSet is a set of unique byte-strings.
	KindSet
)

// String returns the kind name as reported by the TYPE command.
func (k ValueKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindSet:
		return "set"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// MarshalJSON encodes the kind as its string form.
func (k ValueKind) MarshalJSON() ([]byte, error) {
	return []byte(`"` + k.String() + `"`), nil
}

// UnmarshalJSON decodes the kind from its string form.
func (k *ValueKind) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"none"`:
		*k = KindNone
	case `"string"`:
		*k = KindString
	case `"list"`:
		*k = KindList
	case `"set"`:
		*k = KindSet
	default:
		return fmt.Errorf("unknown value kind: %s", data)
	}
	return nil
}

// Entry is the exported point-in-time form of one key, produced by Dump and
// consumed by Restore and the snapshot codecs. Str carries string values;
// Items carries list elements in order, or set members in arbitrary order.
type Entry struct {
	Key   string    `json:"key"`
	Kind  ValueKind `json:"kind"`
	Str   []byte    `json:"str,omitempty"`
	Items [][]byte  `json:"items,omitempty"`
}

// --------------------------------------------------------------------------
// Features
// --------------------------------------------------------------------------

// Feature defines capability flags a database implementation can advertise
// through SupportsFeature. Callers use them to discover supported operation
// groups at runtime.
type Feature uint64

const (
	// FeatureStrings covers Set, Get and plain key operations.
	FeatureStrings Feature = 1 << iota
	// FeatureLists covers LPush, RPush, LPop and RPop.
	FeatureLists
	// FeatureSets covers SAdd, SRem and SMembers.
	FeatureSets
	// FeatureScan covers Keys pattern scans.
	FeatureScan
	// FeatureDump covers Dump and Restore.
	FeatureDump
)

// String returns the feature name.
func (f Feature) String() string {
	switch f {
	case FeatureStrings:
		return "strings"
	case FeatureLists:
		return "lists"
	case FeatureSets:
		return "sets"
	case FeatureScan:
		return "scan"
	case FeatureDump:
		return "dump"
	default:
		return fmt.Sprintf("unknown(%d)", uint64(f))
	}
}

// --------------------------------------------------------------------------
// Database information
// --------------------------------------------------------------------------

// DatabaseInfo provides standardized reporting on database state. Size
// statistics are estimates: a precise calculation would require touching
// every value.
type DatabaseInfo struct {
	SizeBytes         uint64         `json:"size_bytes"`
	Keys              int            `json:"keys"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []string       `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// KVDB interface
// --------------------------------------------------------------------------

// KVDB is the typed in-memory key space. Implementations must be safe for
// concurrent use; each operation is atomic with respect to its key, and no
// operation may leave a key mapped to an empty list or empty set.
//
// Operations that can observe a variant conflict return a *Error with
// RetCWrongType and leave the key space unmodified.
type KVDB interface {

	// ----------------------------------------------------------------------
	// String Operations
	// ----------------------------------------------------------------------

	// Set stores value under key, unconditionally replacing any existing
	// value regardless of its variant.
	//
	// Thread-safety: This method is thread-safe and can be called concurrently.
	Set(key string, value []byte)

	// Get returns the string value stored under key. It returns found=false
	// for an absent key and a WrongType error if the key holds a list or a
	// set. The returned slice is a copy.
	//
	// Thread-safety: This method is thread-safe and can be called concurrently.
	Get(key string) (value []byte, found bool, err error)

	// ----------------------------------------------------------------------
	// List Operations
	// ----------------------------------------------------------------------

	// LPush prepends values to the list under key, creating the list if the
	// key is absent. Values are prepended one by one, so the last value ends
	// up leftmost. Returns the resulting list length, or a WrongType error
	// if the key holds a string or a set.
	//
	// Thread-safety: This method is thread-safe and can be called concurrently.
	LPush(key string, values ...[]byte) (newLen int, err error)

	// RPush appends values to the list under key, creating the list if the
	// key is absent. Returns the resulting list length, or a WrongType error
	// if the key holds a string or a set.
	//
	// Thread-safety: This method is thread-safe and can be called concurrently.
	RPush(key string, values ...[]byte) (newLen int, err error)

	// LPop removes and returns the leftmost list element. It returns
	// found=false for an absent key and removes the key entirely when the
	// pop drains the list.
	//
	// Thread-safety: This method is thread-safe and can be called concurrently.
	LPop(key string) (value []byte, found bool, err error)

	// RPop removes and returns the rightmost list element. It returns
	// found=false for an absent key and removes the key entirely when the
	// pop drains the list.
	//
	// Thread-safety: This method is thread-safe and can be called concurrently.
	RPop(key string) (value []byte, found bool, err error)

	// ----------------------------------------------------------------------
	// Set Operations
	// ----------------------------------------------------------------------

	// SAdd adds members to the set under key, creating the set if the key is
	// absent. Returns the number of members that were newly added.
	//
	// Thread-safety: This method is thread-safe and can be called concurrently.
	SAdd(key string, members ...[]byte) (added int, err error)

	// SRem removes members from the set under key, returning the number
	// actually removed (0 for an absent key). The key is removed entirely
	// when the removal drains the set.
	//
	// Thread-safety: This method is thread-safe and can be called concurrently.
	SRem(key string, members ...[]byte) (removed int, err error)

	// SMembers returns all members of the set under key, in arbitrary order.
	// An absent key yields an empty slice. The returned slices are copies.
	//
	// Thread-safety: This method is thread-safe and can be called concurrently.
	SMembers(key string) (members [][]byte, err error)

	// ----------------------------------------------------------------------
	// Key Space Operations
	// ----------------------------------------------------------------------

	// Delete removes the key regardless of its variant. Returns true if the
	// key existed.
	//
	// Thread-safety: This method is thread-safe and can be called concurrently.
	Delete(key string) bool

	// Exists reports whether the key is present.
	//
	// Thread-safety: This method is thread-safe and can be called concurrently.
	Exists(key string) bool

	// Type returns the variant held by key, with found=false (and KindNone)
	// for an absent key.
	//
	// Thread-safety: This method is thread-safe and can be called concurrently.
	Type(key string) (ValueKind, bool)

	// Keys returns every key matching the glob pattern, in arbitrary order.
	// This scans the full key space and is O(n) in the number of keys.
	//
	// Thread-safety: This method is thread-safe and can be called concurrently.
	Keys(pattern string) []string

	// Len returns the number of keys.
	//
	// Thread-safety: This method is thread-safe and can be called concurrently.
	Len() int

	// Flush removes every key.
	//
	// Thread-safety: This method is thread-safe and can be called concurrently.
	Flush()

	// ----------------------------------------------------------------------
	// Persistence Operations
	// ----------------------------------------------------------------------

	// Dump returns a deep-copied point-in-time view of every entry. Entry
	// order is unspecified. When callers need a view consistent across keys
	// they must exclude writers for the duration of the call.
	//
	// Thread-safety: This method is thread-safe and can be called concurrently.
	Dump() []Entry

	// Restore replaces the entire contents with the given entries. Entries
	// with an empty list or set are rejected.
	//
	// Thread-safety: This method is thread-safe and can be called concurrently.
	Restore(entries []Entry) error

	// ----------------------------------------------------------------------
	// Utility Operations
	// ----------------------------------------------------------------------

	// SupportsFeature reports whether the implementation supports the given
	// feature flag.
	SupportsFeature(feature Feature) bool

	// GetInfo returns standardized information about the database state.
	//
	// Thread-safety: This method is thread-safe and can be called concurrently.
	GetInfo() (DatabaseInfo, error)

	// Close releases the database's resources. The database must not be
	// used afterwards.
	Close() error
}
