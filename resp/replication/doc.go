// Package replication provides the primary-side machinery for streaming
// successful mutations to follower connections.
//
// The package focuses on:
//   - An append-only, gap-free history of mutations with bounded retention
//   - Atomic attach semantics: a follower gets a backlog plus a live queue
//     with no record missed and none duplicated between the two
//   - Lock-free per-follower fan-out so a slow follower never blocks writers
//
// Key Components:
//
//   - Record: One replicated mutation, the verbatim command stamped with its
//     sequence number. Records are immutable and shared across followers.
//
//   - Log: The bounded mutation history. Append stamps and stores a record
//     and fans it out; Attach hands a catching-up follower the retained
//     backlog and registers a queue for everything after it; RecordsFrom
//     reports ErrStaleOffset once requested history has been trimmed, which
//     tells the follower to fall back to a full resynchronization.
//
//   - Queue: A lock-free multi-producer single-consumer queue connecting the
//     log to one follower's writer goroutine. Closing the queue flushes
//     already-queued records before the receive channel closes.
//
// Ordering:
//
//	The log's mutex serializes Append calls, and the dispatcher invokes
//	Append inside the same critical section that applies the mutation, so
//	sequence order, apply order and delivery order per follower are all
//	identical.
package replication
