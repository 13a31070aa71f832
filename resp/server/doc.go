// Package server implements the RESP server for the key-value store. It
// accepts connections through a pluggable transport, decodes pipelined
// commands, executes them against a db.KVDB and feeds every applied write
// into the replication log.
//
// The package focuses on:
//   - One session per connection with buffered, pipelined command handling
//   - A dispatcher that routes commands through a fixed table with per-verb
//     arity checks and read/write locking
//   - Follower promotion: a SYNC command converts a session into a one-way
//     replication stream
//   - Snapshot persistence (manual SAVE, interval autosave, final save on
//     shutdown) and startup restore
//
// Key Components:
//
//   - Server: Owns the listener, the session table and the background tasks.
//     Created via NewServer with a transport connector and a store engine.
//
//   - Dispatcher: Maps verbs to handlers, enforces the read/write lock
//     discipline and appends propagated writes to the replication log. Its
//     Apply method runs leader commands on a replica, bypassing the READONLY
//     check.
//
//   - session: Per-connection read loop, reply batching and the SYNC
//     handshake that turns the connection into a follower stream.
//
//   - serverMetrics: Per-instance counters and gauges exported in Prometheus
//     format via the optional metrics endpoint.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Transport: common.ServerTransportConfig{Endpoint: "0.0.0.0:6379"},
//	  TimeoutSecond: 5,
//	  LogLevel: "info",
//	}
//
//	s, err := server.NewServer(
//	  config,
//	  tcp.NewTCPServerConnector(),
//	  rowan.NewRowanDB(nil),
//	)
//	if err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Thread Safety:
//
//	The server handles concurrent connections; commands from different
//	sessions are serialized through the dispatcher's read/write lock.
//	The Listen and Serve methods are not thread-safe and should be called
//	only once.
package server
