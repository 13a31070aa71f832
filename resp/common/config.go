package common

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Transport tuning options (shared by client and server)
// --------------------------------------------------------------------------

// SocketConf holds socket buffer settings that apply to all stream transports.
// A value of 0 keeps the operating system default.
type SocketConf struct {
	// WriteBufferSize is the size of the socket write buffer in bytes
	WriteBufferSize int
	// ReadBufferSize is the size of the socket read buffer in bytes
	ReadBufferSize int
}

// TCPConf holds TCP specific settings. These are ignored by transports that
// do not run over TCP (e.g. unix domain sockets).
type TCPConf struct {
	// TCPKeepAliveSec enables TCP keep-alive with the given period in seconds (0 = disabled)
	TCPKeepAliveSec int
	// TCPLingerSec sets the TCP linger time in seconds (0 = OS default)
	TCPLingerSec int
	// TCPNoDelay disables Nagle's algorithm when true
	TCPNoDelay bool
}

// --------------------------------------------------------------------------
// Server configuration struct
// --------------------------------------------------------------------------

// ServerTransportConfig configures the listening side of a transport.
type ServerTransportConfig struct {
	SocketConf
	TCPConf

	// Endpoint is the listen address ("host:port" for tcp, a file path for unix)
	Endpoint string
}

// SnapshotConf configures snapshot persistence. An empty Path disables
// persistence entirely (SAVE will be rejected).
type SnapshotConf struct {
	// Path is the snapshot file location
	Path string
	// Codec selects the snapshot encoding ("binary", "json" or "gob")
	Codec string
	// SaveIntervalSec triggers a background SAVE every N seconds (0 = manual saves only)
	SaveIntervalSec int
}

// ReplicationConf configures the replication role of a server.
type ReplicationConf struct {
	// ReplicaOf is the leader address to follow; empty means this server is a leader
	ReplicaOf string
	// BacklogSize is the maximum number of write commands kept for partial resyncs
	BacklogSize int
}

// ServerConfig holds all configuration parameters for a server instance.
type ServerConfig struct {
	// Transport settings (listen address and socket tuning)
	Transport ServerTransportConfig

	// TimeoutSecond is the per-connection idle timeout (0 = no timeout).
	// Replica connections are exempt since they may stay silent for long periods.
	TimeoutSecond int

	// NumShards is the number of store shards (0 = one per CPU core)
	NumShards int

	// Snapshot persistence settings
	Snapshot SnapshotConf

	// Replication settings
	Replication ReplicationConf

	// MetricsEndpoint is the listen address for the Prometheus endpoint (empty = disabled)
	MetricsEndpoint string

	// Logging configuration
	LogLevel string
}

// IsReplica reports whether this server is configured to follow a leader.
func (c *ServerConfig) IsReplica() bool {
	return c.Replication.ReplicaOf != ""
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// Server settings
	addSection("Server")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	if c.NumShards > 0 {
		addField("Store Shards", strconv.Itoa(c.NumShards))
	} else {
		addField("Store Shards", "auto (one per core)")
	}

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	// Persistence
	addSection("Persistence")
	if c.Snapshot.Path == "" {
		addField("Snapshot", "disabled")
	} else {
		addField("Snapshot File", c.Snapshot.Path)
		addField("Snapshot Codec", c.Snapshot.Codec)
		if c.Snapshot.SaveIntervalSec > 0 {
			addField("Auto Save", fmt.Sprintf("every %d sec", c.Snapshot.SaveIntervalSec))
		} else {
			addField("Auto Save", "disabled")
		}
	}

	// Replication
	addSection("Replication")
	if c.IsReplica() {
		addField("Role", "replica")
		addField("Leader", c.Replication.ReplicaOf)
	} else {
		addField("Role", "leader")
		addField("Backlog Size", strconv.Itoa(c.Replication.BacklogSize))
	}

	// Metrics
	if c.MetricsEndpoint != "" {
		addSection("Metrics")
		addField("Endpoint", c.MetricsEndpoint)
	}

	return sb.String()
}

// --------------------------------------------------------------------------
// Client configuration struct
// --------------------------------------------------------------------------

// ClientTransportConfig configures the connecting side of a transport.
type ClientTransportConfig struct {
	SocketConf
	TCPConf

	// Endpoints lists the server addresses to connect to
	Endpoints []string
	// RetryCount is how often a failed request is retried before giving up
	RetryCount int
	// ConnectionsPerEndpoint is the number of parallel connections per endpoint
	ConnectionsPerEndpoint int
}

// ClientConfig holds all configuration parameters for a client.
type ClientConfig struct {
	// TimeoutSecond is the per-request timeout (0 = no timeout)
	TimeoutSecond int

	// Transport settings (endpoints and socket tuning)
	Transport ClientTransportConfig
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.Transport.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(int(math.Max(1, float64(c.Transport.ConnectionsPerEndpoint)))))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
