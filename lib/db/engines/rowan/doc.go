// Package rowan implements a typed in-memory key-value database (KVDB) with
// sharded concurrent access. It provides a complete implementation of the
// db.KVDB interface supporting string, list and set values with a focus on
// thread safety and per-key atomicity.
//
// The package focuses on:
//   - Optimized concurrent access through sharding and per-bucket locking
//   - Typed values (strings, lists, sets) with strict variant checking
//   - Per-key atomic read-modify-write operations for collection mutations
//   - Deep-copy isolation so callers can never corrupt stored data
//   - Metrics and statistics for monitoring via sampling
//
// Key Components:
//
//   - rowanImpl: The central database structure implementing db.KVDB. It manages
//     shards and provides the public API for key-value operations. All per-key
//     operations are linearizable; cross-key operations (Keys, Len, Dump) see a
//     fuzzy view unless the caller excludes writers.
//
//   - Shard: A partition of the key space. Each shard contains its own
//     concurrent map and operates independently to minimize contention. Keys
//     are assigned to shards using a seeded hash function to ensure even
//     distribution.
//
//   - Value: The core structure for stored data. Each value carries its
//     variant kind and exactly one payload: a byte string, a deque for lists,
//     or a member map for sets.
//
// Internal Mechanisms:
//
//   - Sharding Strategy: String keys are hashed with a database-specific seed
//     (FNV-1a) and the hash selects the shard by modulo. The seed decorrelates
//     shard assignment between database instances.
//
//   - Variant Discipline: A key holds exactly one variant for its lifetime
//     until deleted. Operations that observe a conflicting variant fail with a
//     WrongType error and leave the key space unmodified. Only Set and Delete
//     may change a key's variant, and only by full replacement or removal.
//
//   - Collection Mutation: Lists and sets are mutated in place inside Compute
//     closures on the shard map, which hold the map's bucket lock for the
//     duration of the closure. This makes every list or set operation atomic
//     with respect to its key without a per-key mutex. String values are
//     replaced wholesale on every write and can be read with a plain load.
//
//   - Empty Collection Removal: A pop or removal that drains a list or set
//     deletes the key inside the same atomic computation. No key ever maps to
//     an empty collection, so Exists and Type never observe one.
//
//   - Metrics and Monitoring: The database provides statistics via the
//     GetInfo method, including:
//     1. Size estimates based on per-shard sampling and a size histogram
//     2. Shard distribution statistics to detect imbalances
//     3. Value kind counts across the sampled key space
//     4. Feature capability reporting via the SupportsFeature method
//
// This implementation offers several advantages:
//   - High throughput for concurrent operations on different keys
//   - Strict typed-value semantics without global locking
//   - Thread-safe operations with deep-copy isolation at the API boundary
//   - Detailed metrics for monitoring and capacity planning
//
// The rowan package is designed to serve as the storage backend for a
// network-facing database server, where a dispatcher layers command handling,
// persistence and replication on top of the KVDB interface.
package rowan
