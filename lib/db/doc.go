// Package db provides a standardized interface for typed key-value database
// implementations. It defines the KVDB interface that allows consistent
// interaction with database backends while abstracting implementation
// details.
//
// The package focuses on:
//   - A unified interface over three value variants: strings, lists, sets
//   - Per-key type safety: operations on a key holding the wrong variant
//     fail with a typed error instead of corrupting state
//   - Feature discovery through capability flags
//   - Standardized persistence through point-in-time entry dumps
//   - Comprehensive metadata reporting
//
// Key Components:
//
//   - KVDB Interface: The core interface all database implementations must
//     satisfy. It provides string operations (Set, Get), list operations
//     (LPush, RPush, LPop, RPop), set operations (SAdd, SRem, SMembers),
//     key-space operations (Delete, Exists, Type, Keys, Len, Flush),
//     persistence operations (Dump, Restore), and metadata retrieval
//     (GetInfo).
//
//   - Value Model: ValueKind tags the variant a key holds; Entry is the
//     exported point-in-time form of one key, used by Dump/Restore and the
//     snapshot codecs in lib/db/snapshot.
//
//   - Feature Flags: The Feature type defines capability flags that
//     implementations advertise through SupportsFeature, so callers can
//     discover supported operation groups at runtime.
//
//   - Error Model: Implementations return *Error with a RetCode
//     classifying the failure. RetCWrongType marks variant conflicts; the
//     IsWrongType helper inspects wrapped errors.
//
// Two invariants bind every implementation:
//   - At any instant, every key maps to a non-empty value of a single,
//     consistent variant. An operation that drains a list or set removes
//     the key from the key space entirely.
//   - No operation partially mutates the key space and then fails. Variant
//     checks happen before any modification, so each operation is
//     all-or-nothing.
//
// Related Packages:
//
// The engines/rowan package (github.com/ValentinKolb/rKV/lib/db/engines/rowan)
// provides the sharded in-memory implementation of this interface, built on
// concurrent hash maps with per-key atomicity.
//
// The snapshot package (github.com/ValentinKolb/rKV/lib/db/snapshot)
// serializes entry dumps to durable storage with pluggable codecs and
// atomic file replacement.
//
// The testing package (github.com/ValentinKolb/rKV/lib/db/testing) provides
// a standardized conformance suite and benchmarks for KVDB implementations:
//   - RunKVDBTests: validates an implementation against the contract above
//   - RunKVDBBenchmarks: compares implementations under parallel load
package db
