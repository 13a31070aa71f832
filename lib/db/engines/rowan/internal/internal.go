package internal

import (
	"github.com/ValentinKolb/rKV/lib/db"
	"github.com/ValentinKolb/rKV/lib/db/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Value Type (one keyed variant)
// --------------------------------------------------------------------------

// Value holds the variant stored under one key. Exactly one of the payload
// fields is populated, selected by Kind: Str for strings, List for lists,
// Set for sets.
//
// Strings are replaced wholesale on every write and may be read from a plain
// map load. Lists and sets are mutated in place, so any access to List or
// Set must happen inside a Compute closure on the owning map to stay under
// the bucket lock.
type Value struct {
	Kind db.ValueKind
	Str  []byte
	List *util.Deque
	Set  map[string]struct{}
}

// NewListValue creates an empty list value. The caller must push at least
// one element before the value becomes visible, empty collections are never
// stored.
func NewListValue() Value {
	return Value{Kind: db.KindList, List: util.NewDeque()}
}

// NewSetValue creates an empty set value. The caller must add at least one
// member before the value becomes visible, empty collections are never
// stored.
func NewSetValue() Value {
	return Value{Kind: db.KindSet, Set: make(map[string]struct{})}
}

// SizeBytes returns the payload size of the value in bytes. For collections
// this is the sum of the element sizes, bookkeeping overhead is not counted.
func (v Value) SizeBytes() int {
	switch v.Kind {
	case db.KindString:
		return len(v.Str)
	case db.KindList:
		size := 0
		for i := 0; i < v.List.Len(); i++ {
			if item, ok := v.List.At(i); ok {
				size += len(item)
			}
		}
		return size
	case db.KindSet:
		size := 0
		for member := range v.Set {
			size += len(member)
		}
		return size
	default:
		return 0
	}
}

// --------------------------------------------------------------------------
// Shard Type (partition of the database)
// --------------------------------------------------------------------------

// Shard represents a partition of the key space.
// Each shard has its own independent map with per-bucket locking.
type Shard struct {
	Data *xsync.MapOf[string, Value]
}

// NewShard creates a new empty shard.
func NewShard() *Shard {
	return &Shard{
		Data: xsync.NewMapOf[string, Value](),
	}
}

// GetShard selects the shard responsible for the given key hash.
func GetShard(hash uint64, shards []*Shard) *Shard {
	// Shift right by 7 bits to use higher-quality bits for distribution
	shifted := hash >> 7
	return shards[shifted%uint64(len(shards))]
}
