// Package transport defines the connector interfaces used by the resp server
// and client to create and tune network connections. It provides a common
// contract that all transport implementations must fulfill, keeping the
// session and protocol logic independent of the underlying socket type.
//
// Unlike a message-oriented RPC layer, the resp protocol runs over a plain
// byte stream per connection. The connectors therefore only abstract how
// connections are created and tuned, the framing itself is handled by the
// resp/proto package.
//
// Key Components:
//
//   - IServerConnector: Interface for server-side transports that create
//     listeners and apply socket options to accepted connections.
//
//   - IClientConnector: Interface for client-side transports that dial
//     endpoints and apply socket options to established connections.
package transport
