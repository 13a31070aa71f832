// Package client implements the client side of the key-value protocol. It
// provides a pooled request/response client with typed command wrappers and
// a follower that consumes a leader's replication stream.
//
// The package focuses on:
//   - Connection pooling with round-robin distribution and per-request
//     retries with exponential backoff
//   - Typed wrappers for every server command, converting error replies
//     into Go errors and the null bulk string into a found flag
//   - Replication consumption: SYNC handshake, state transfer, live
//     stream, resume after reconnect and full-resync fallback
//
// Key Components:
//
//   - NewClient: Factory function creating a pooled client over the given
//     transport connector. Each endpoint is dialed ConnectionsPerEndpoint
//     times.
//
//   - Client.Do: Generic command entry point used by the CLI; the typed
//     methods (Set, Get, LPush, SAdd, ...) wrap it for application code.
//
//   - NewFollower: Factory function creating a replication consumer that
//     hands every received command to an apply callback in stream order.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  TimeoutSecond: 5,
//	  Transport: common.ClientTransportConfig{
//	    Endpoints:  []string{"localhost:6379"},
//	    RetryCount: 3,
//	  },
//	}
//
//	c, err := client.NewClient(config, tcp.NewTCPClientConnector())
//	if err != nil {
//	  log.Fatalf("Client error: %v", err)
//	}
//	defer c.Close()
//
//	if err := c.Set("mykey", []byte("myvalue")); err != nil {
//	  log.Fatalf("Set failed: %v", err)
//	}
//	value, found, _ := c.Get("mykey")
//
// Thread Safety:
//
//	The client is thread-safe; concurrent requests are distributed over
//	the pool, with one in-flight request per connection. The follower's
//	Run method must be called exactly once.
package client
