package rowan

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/ValentinKolb/rKV/lib/db"
	"github.com/ValentinKolb/rKV/lib/db/engines/rowan/internal"
	"github.com/ValentinKolb/rKV/lib/db/util"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// samplesPerShard bounds how many entries GetInfo inspects per shard
	samplesPerShard = 100
)

// --------------------------------------------------------------------------
// Core Rowan database structure
// --------------------------------------------------------------------------

// rowanImpl implements a typed in-memory database with sharded data
type rowanImpl struct {
	numShards int               // Number of shards
	seed      uint64            // Seed for the shard hash function
	shards    []*internal.Shard // Array of shards
}

// DBOptions configures the rowanImpl behavior during initialization
type DBOptions struct {
	NumShards int // Number of shards (0 = auto)
}

// DefaultOptions returns the default rowanImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		NumShards: runtime.NumCPU(), // Auto-determine based on CPU count
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewRowanDB creates a new RowanDB instance with the specified options (optional)
//
// Thread-safety: This function is not thread-safe and should only be called once
// during initialization.
func NewRowanDB(opts *DBOptions) db.KVDB {

	// Generate default options if not provided
	if opts == nil {
		opts = DefaultOptions()
	}

	numShards := opts.NumShards
	if numShards <= 0 {
		numShards = DefaultOptions().NumShards
	}

	// Generate a seed for this rowanImpl instance
	seed := util.GenerateSeed()

	// Create shards
	shards := make([]*internal.Shard, numShards)
	for i := 0; i < numShards; i++ {
		shards[i] = internal.NewShard()
	}

	return &rowanImpl{
		numShards: numShards,
		seed:      seed,
		shards:    shards,
	}
}

// shardFor selects the shard responsible for the given key
// the rowanImpl seed decorrelates shard selection between instances
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (rowan *rowanImpl) shardFor(key string) *internal.Shard {
	return internal.GetShard(util.HashString(key, rowan.seed), rowan.shards)
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - String Operations
// --------------------------------------------------------------------------

// Set stores value under key, unconditionally replacing any existing value
// regardless of its variant.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (rowan *rowanImpl) Set(key string, value []byte) {
	shard := rowan.shardFor(key)

	// Copy value to prevent memory corruption
	shard.Data.Store(key, internal.Value{
		Kind: db.KindString,
		Str:  util.CloneBytes(value),
	})
}

// Get retrieves the string value stored under key.
// The boolean indicates whether a value for the key was found.
// The returned value is a copy of the stored data and therefore safe to use and modify.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (rowan *rowanImpl) Get(key string) ([]byte, bool, error) {
	shard := rowan.shardFor(key)

	// string payloads are replaced wholesale, a plain load is race-free
	value, ok := shard.Data.Load(key)
	if !ok {
		return nil, false, nil
	}
	if value.Kind != db.KindString {
		return nil, false, db.NewWrongTypeError(key, value.Kind)
	}

	return util.CloneBytes(value.Str), true, nil
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - List Operations
// --------------------------------------------------------------------------

// LPush prepends values to the list under key, creating the list if the key
// is absent. Values are prepended one by one, so the last value ends up
// leftmost. Returns the resulting list length.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (rowan *rowanImpl) LPush(key string, values ...[]byte) (int, error) {
	return rowan.pushList(key, values, true)
}

// RPush appends values to the list under key, creating the list if the key
// is absent. Returns the resulting list length.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (rowan *rowanImpl) RPush(key string, values ...[]byte) (int, error) {
	return rowan.pushList(key, values, false)
}

// pushList is the shared implementation of LPush and RPush.
//
// Thread-safety: This function uses per-key atomic computation to ensure thread-safety.
func (rowan *rowanImpl) pushList(key string, values [][]byte, front bool) (int, error) {
	shard := rowan.shardFor(key)

	var (
		newLen int
		retErr error
	)

	shard.Data.Compute(key, func(old internal.Value, loaded bool) (internal.Value, bool) {
		if loaded && old.Kind != db.KindList {
			retErr = db.NewWrongTypeError(key, old.Kind)
			return old, false
		}

		if !loaded {
			if len(values) == 0 {
				return old, true // nothing to insert, never store an empty list
			}
			old = internal.NewListValue()
		}

		for _, value := range values {
			if front {
				old.List.PushFront(util.CloneBytes(value))
			} else {
				old.List.PushBack(util.CloneBytes(value))
			}
		}

		newLen = old.List.Len()
		return old, false
	})

	return newLen, retErr
}

// LPop removes and returns the leftmost list element.
// The boolean indicates whether a value for the key was found.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (rowan *rowanImpl) LPop(key string) ([]byte, bool, error) {
	return rowan.popList(key, true)
}

// RPop removes and returns the rightmost list element.
// The boolean indicates whether a value for the key was found.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (rowan *rowanImpl) RPop(key string) ([]byte, bool, error) {
	return rowan.popList(key, false)
}

// popList is the shared implementation of LPop and RPop.
//
// Thread-safety: This function uses per-key atomic computation to ensure thread-safety.
func (rowan *rowanImpl) popList(key string, front bool) ([]byte, bool, error) {
	shard := rowan.shardFor(key)

	var (
		value  []byte
		found  bool
		retErr error
	)

	shard.Data.Compute(key, func(old internal.Value, loaded bool) (internal.Value, bool) {
		if !loaded {
			return old, true // don't create the key
		}
		if old.Kind != db.KindList {
			retErr = db.NewWrongTypeError(key, old.Kind)
			return old, false
		}

		if front {
			value, found = old.List.PopFront()
		} else {
			value, found = old.List.PopBack()
		}

		// a drained list removes the key entirely
		return old, old.List.Len() == 0
	})

	return value, found, retErr
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Set Operations
// --------------------------------------------------------------------------

// SAdd adds members to the set under key, creating the set if the key is
// absent. Returns the number of members that were newly added.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (rowan *rowanImpl) SAdd(key string, members ...[]byte) (int, error) {
	shard := rowan.shardFor(key)

	var (
		added  int
		retErr error
	)

	shard.Data.Compute(key, func(old internal.Value, loaded bool) (internal.Value, bool) {
		if loaded && old.Kind != db.KindSet {
			retErr = db.NewWrongTypeError(key, old.Kind)
			return old, false
		}

		if !loaded {
			if len(members) == 0 {
				return old, true // nothing to insert, never store an empty set
			}
			old = internal.NewSetValue()
		}

		for _, member := range members {
			m := string(member)
			if _, ok := old.Set[m]; !ok {
				old.Set[m] = struct{}{}
				added++
			}
		}

		return old, false
	})

	return added, retErr
}

// SRem removes members from the set under key.
// Returns the number of members actually removed (0 for an absent key).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (rowan *rowanImpl) SRem(key string, members ...[]byte) (int, error) {
	shard := rowan.shardFor(key)

	var (
		removed int
		retErr  error
	)

	shard.Data.Compute(key, func(old internal.Value, loaded bool) (internal.Value, bool) {
		if !loaded {
			return old, true // don't create the key
		}
		if old.Kind != db.KindSet {
			retErr = db.NewWrongTypeError(key, old.Kind)
			return old, false
		}

		for _, member := range members {
			m := string(member)
			if _, ok := old.Set[m]; ok {
				delete(old.Set, m)
				removed++
			}
		}

		// a drained set removes the key entirely
		return old, len(old.Set) == 0
	})

	return removed, retErr
}

// SMembers returns all members of the set under key, in arbitrary order.
// An absent key yields an empty slice.
// The returned members are copies of the stored data and therefore safe to use and modify.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (rowan *rowanImpl) SMembers(key string) ([][]byte, error) {
	shard := rowan.shardFor(key)

	var (
		members [][]byte
		retErr  error
	)

	// sets are mutated in place, read them under the bucket lock
	shard.Data.Compute(key, func(old internal.Value, loaded bool) (internal.Value, bool) {
		if !loaded {
			return old, true // don't create the key
		}
		if old.Kind != db.KindSet {
			retErr = db.NewWrongTypeError(key, old.Kind)
			return old, false
		}

		members = make([][]byte, 0, len(old.Set))
		for member := range old.Set {
			members = append(members, []byte(member))
		}

		return old, false
	})

	if retErr != nil {
		return nil, retErr
	}
	if members == nil {
		members = [][]byte{}
	}
	return members, nil
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Key Space Operations
// --------------------------------------------------------------------------

// Delete removes the key regardless of its variant.
// Returns true if the key existed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (rowan *rowanImpl) Delete(key string) bool {
	shard := rowan.shardFor(key)

	_, existed := shard.Data.LoadAndDelete(key)
	return existed
}

// Exists reports whether the key is present.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (rowan *rowanImpl) Exists(key string) bool {
	shard := rowan.shardFor(key)

	_, ok := shard.Data.Load(key)
	return ok
}

// Type returns the variant held by key, with found=false for an absent key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (rowan *rowanImpl) Type(key string) (db.ValueKind, bool) {
	shard := rowan.shardFor(key)

	value, ok := shard.Data.Load(key)
	if !ok {
		return db.KindNone, false
	}
	return value.Kind, true
}

// Keys returns every key matching the glob pattern, in arbitrary order.
// This scans the full key space and is O(n) in the number of keys.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (rowan *rowanImpl) Keys(pattern string) []string {
	var keys []string

	for _, shard := range rowan.shards {
		shard.Data.Range(func(key string, _ internal.Value) bool {
			if util.MatchPattern(pattern, key) {
				keys = append(keys, key)
			}
			return true
		})
	}

	return keys
}

// Len returns the number of keys.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (rowan *rowanImpl) Len() int {
	total := 0
	for _, shard := range rowan.shards {
		total += shard.Data.Size()
	}
	return total
}

// Flush removes every key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (rowan *rowanImpl) Flush() {
	for _, shard := range rowan.shards {
		shard.Data.Clear()
	}
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Dump returns a deep-copied point-in-time view of every entry.
// Entry order is unspecified.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
// Callers that need a view consistent across keys must exclude writers for
// the duration of the call.
func (rowan *rowanImpl) Dump() []db.Entry {
	var entries []db.Entry

	for _, shard := range rowan.shards {
		s := shard
		s.Data.Range(func(key string, value internal.Value) bool {
			switch value.Kind {
			case db.KindString:
				entries = append(entries, db.Entry{
					Key:  key,
					Kind: db.KindString,
					Str:  util.CloneBytes(value.Str),
				})
			default:
				// collections are mutated in place, snapshot them under the bucket lock
				s.Data.Compute(key, func(v internal.Value, loaded bool) (internal.Value, bool) {
					if !loaded {
						return v, true
					}
					switch v.Kind {
					case db.KindList:
						entries = append(entries, db.Entry{
							Key:   key,
							Kind:  db.KindList,
							Items: v.List.Snapshot(),
						})
					case db.KindSet:
						items := make([][]byte, 0, len(v.Set))
						for member := range v.Set {
							items = append(items, []byte(member))
						}
						entries = append(entries, db.Entry{
							Key:   key,
							Kind:  db.KindSet,
							Items: items,
						})
					}
					return v, false
				})
			}
			return true
		})
	}

	return entries
}

// Restore replaces the entire contents with the given entries.
// Entries with an empty list or set are rejected before any state is touched,
// a failed restore leaves the database unchanged.
//
// Thread-safety: This method is thread-safe, though callers should exclude
// writers for the duration of the call to avoid interleaved updates.
func (rowan *rowanImpl) Restore(entries []db.Entry) error {

	// validate everything up front, restore is all or nothing
	for _, entry := range entries {
		switch entry.Kind {
		case db.KindString:
		case db.KindList, db.KindSet:
			if len(entry.Items) == 0 {
				return db.NewError(db.RetCInvalidOperation,
					fmt.Sprintf("restore: key %q carries an empty %s", entry.Key, entry.Kind))
			}
		default:
			return db.NewError(db.RetCInvalidOperation,
				fmt.Sprintf("restore: key %q carries unknown kind %d", entry.Key, uint8(entry.Kind)))
		}
	}

	rowan.Flush()

	for _, entry := range entries {
		switch entry.Kind {
		case db.KindString:
			rowan.Set(entry.Key, entry.Str)
		case db.KindList:
			if _, err := rowan.RPush(entry.Key, entry.Items...); err != nil {
				return err
			}
		case db.KindSet:
			if _, err := rowan.SAdd(entry.Key, entry.Items...); err != nil {
				return err
			}
		}
	}

	return nil
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the database
func (rowan *rowanImpl) GetInfo() (db.DatabaseInfo, error) {

	// create a size histogram for the info
	histogram := util.NewSizeHistogram()

	// more stats
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		kindCounts = map[string]int{}
		shardSizes = make([]int, len(rowan.shards))
	)

	// concurrently collect samples from all shards
	wg.Add(len(rowan.shards))
	for shardIndex, shard := range rowan.shards {
		go func(i int, s *internal.Shard) {
			defer wg.Done()

			count := 0
			localKinds := map[string]int{}
			s.Data.Range(func(key string, value internal.Value) bool {
				localKinds[value.Kind.String()]++

				switch value.Kind {
				case db.KindString:
					histogram.AddSample(len(value.Str))
				default:
					// measure collections under the bucket lock
					s.Data.Compute(key, func(v internal.Value, loaded bool) (internal.Value, bool) {
						if loaded {
							histogram.AddSample(v.SizeBytes())
						}
						return v, !loaded
					})
				}

				// only sample a few entries per shard
				count++
				return count < samplesPerShard
			})

			mu.Lock()
			defer mu.Unlock()

			for kind, n := range localKinds {
				kindCounts[kind] += n
			}
			shardSizes[i] = s.Data.Size()
		}(shardIndex, shard)
	}

	// wait for all shards to finish
	wg.Wait()

	keys := rowan.Len()

	// weighted per-entry estimate (60% median, 40% average)
	entryOverhead := 48
	perEntry := (histogram.MedianEstimate()*60+histogram.AverageSize()*40)/100 + entryOverhead
	sizeBytes := uint64(perEntry) * uint64(keys)

	// Metadata for this specific database implementation
	meta := &struct {
		ShardCount        int                    `json:"shard_count"`
		ShardDistribution util.DistributionStats `json:"shard_distribution"`
		SizeDistribution  []util.BucketShare     `json:"size_distribution"`
		SampledKeys       int64                  `json:"sampled_keys"`
		KindCounts        map[string]int         `json:"kind_counts"`
		Info              string                 `json:"info"`
	}{
		ShardCount:        len(rowan.shards),
		ShardDistribution: util.NewDistributionStats(shardSizes),
		SizeDistribution:  histogram.SizeDistribution(),
		SampledKeys:       histogram.Count(),
		KindCounts:        kindCounts,
		Info:              "All values (including SizeBytes) are estimates and may vary depending on the database state.",
	}

	// features
	supportedFeatures := []string{
		db.FeatureStrings.String(),
		db.FeatureLists.String(),
		db.FeatureSets.String(),
		db.FeatureScan.String(),
		db.FeatureDump.String(),
	}

	return db.DatabaseInfo{
		SizeBytes:         sizeBytes,
		Keys:              keys,
		DbType:            db.Rowan,
		SupportedFeatures: supportedFeatures,
		Metadata:          meta,
	}, nil
}

// SupportsFeature checks if this implementation supports a specific KVDB feature
func (rowan *rowanImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureStrings |
		db.FeatureLists |
		db.FeatureSets |
		db.FeatureScan |
		db.FeatureDump
	return supportedFeatures&feature == feature
}

// Close releases the database's resources.
// The engine keeps no background goroutines, so this only drops the shards.
func (rowan *rowanImpl) Close() error {
	rowan.Flush()
	return nil
}
