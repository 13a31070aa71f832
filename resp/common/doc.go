// Package common provides configuration and logging shared across the resp
// server, client and command line tools. It defines the structures used to
// configure transports, persistence and replication, and a small logging
// facade used by all resp packages.
//
// The package focuses on:
//   - Configuration structures for client and server components
//   - Transport tuning options for TCP and unix domain sockets
//   - A named logger registry with a uniform output format
//
// Key Components:
//
//   - ServerConfig: Comprehensive configuration for a server instance,
//     including the listen endpoint, store sharding, snapshot persistence,
//     replication role and the metrics endpoint.
//
//   - ClientConfig: Configuration for client components, controlling
//     endpoints, connection pooling, timeouts and retry behavior.
//
//   - GetLogger/InitLoggers: Named logger registry backed by logrus. Every
//     package obtains its own logger which prints in a fixed column layout,
//     InitLoggers applies the configured log level to all of them.
package common
