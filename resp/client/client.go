package client

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/rKV/resp/common"
	"github.com/ValentinKolb/rKV/resp/proto"
	"github.com/ValentinKolb/rKV/resp/transport"
)

var Logger = common.GetLogger("client")

// readChunkSize is the size of the per-connection read buffer.
const readChunkSize = 16 * 1024

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// clientConnection represents a single net connection. The protocol has no
// request multiplexing, replies arrive in submission order, so the mutex is
// held for the whole request/response exchange.
type clientConnection struct {
	conn     net.Conn
	endpoint string
	decoder  proto.Decoder
	out      []byte // encode buffer, reused between requests
	buf      []byte // decode buffer with leftover bytes
	readBuf  []byte
	connMu   sync.Mutex // Protects the connection itself
	parent   *Client
}

// Client is a pooled key-value client. Requests are distributed over the
// connections via round robin; a failed attempt is retried on the next
// connection with exponential backoff.
type Client struct {
	connector     transport.IClientConnector
	config        common.ClientConfig
	connections   []*clientConnection
	connectionsMu sync.RWMutex
	nextConnIndex uint64 // Atomic counter for Round Robin
}

// -----------------------------------------------------------
// Factory Method
// -----------------------------------------------------------

// NewClient creates a client and establishes its connection pool. Each
// endpoint is dialed ConnectionsPerEndpoint times; the client is usable as
// long as at least one connection could be established.
func NewClient(config common.ClientConfig, connector transport.IClientConnector) (*Client, error) {
	if len(config.Transport.Endpoints) == 0 {
		return nil, fmt.Errorf("no endpoints provided")
	}

	c := &Client{
		connector: connector,
		config:    config,
	}

	// Set default value for ConnectionsPerEndpoint
	connectionsPerEP := 1
	if config.Transport.ConnectionsPerEndpoint > 0 {
		connectionsPerEP = config.Transport.ConnectionsPerEndpoint
	}

	c.connections = make([]*clientConnection, 0, len(config.Transport.Endpoints)*connectionsPerEP)

	for _, endpoint := range config.Transport.Endpoints {
		// Create multiple connections per endpoint
		for i := 0; i < connectionsPerEP; i++ {
			clientConn := &clientConnection{
				conn:     nil, // Will be set by reconnect
				endpoint: endpoint,
				readBuf:  make([]byte, readChunkSize),
				parent:   c,
			}

			if err := clientConn.reconnect(); err != nil {
				Logger.Warningf("Failed to connect to %s (connection %d/%d): %v", endpoint, i+1, connectionsPerEP, err)
				continue
			}

			c.connectionsMu.Lock()
			c.connections = append(c.connections, clientConn)
			c.connectionsMu.Unlock()

			Logger.Debugf("Connected to %s (connection %d/%d)", endpoint, i+1, connectionsPerEP)
		}
	}

	if len(c.connections) == 0 {
		return nil, fmt.Errorf("failed to connect to any endpoint")
	}

	Logger.Infof("Connected to %d out of %d connections to %d endpoints using %s transport",
		len(c.connections), len(config.Transport.Endpoints)*connectionsPerEP, len(config.Transport.Endpoints), connector.GetName())

	return c, nil
}

// --------------------------------------------------------------------------
// Core Methods
// --------------------------------------------------------------------------

// Do sends one command built from string arguments and returns its reply.
// Error replies are returned as replies, not as errors; the error return
// reports transport failures only.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *Client) Do(args ...string) (proto.Reply, error) {
	return c.roundTrip(proto.NewCommand(args...))
}

// roundTrip sends a command with retry logic and exponential backoff.
func (c *Client) roundTrip(cmd proto.Command) (proto.Reply, error) {
	var lastErr error

	// We always try at least once, and up to maxRetries times
	maxRetries := c.config.Transport.RetryCount
	if maxRetries < 1 {
		maxRetries = 1
	}

	// Initial backoff duration in milliseconds
	backoffMs := 50

	for i := 0; i < maxRetries; i++ {
		connection := c.getNextConnection()
		if connection == nil {
			return proto.Reply{}, fmt.Errorf("no active connections available")
		}

		reply, err := connection.exchange(cmd)
		if err == nil {
			return reply, nil
		}

		lastErr = err
		Logger.Debugf("Request attempt %d/%d failed: %v", i+1, maxRetries, err)

		// A failed exchange leaves the connection in an unknown state
		if err := connection.reconnect(); err != nil {
			Logger.Warningf("Failed to reconnect to %s: %v", connection.endpoint, err)
		}

		if i < maxRetries {
			// Exponential backoff with a small random jitter (+-10%)
			jitter := float64(backoffMs) * (0.9 + 0.2*rand.Float64())
			backoffDuration := time.Duration(jitter) * time.Millisecond
			time.Sleep(backoffDuration)
			backoffMs *= 2
		}
	}

	return proto.Reply{}, fmt.Errorf("failed to send request after %d attempts: %v", maxRetries, lastErr)
}

// Close closes all pooled connections.
func (c *Client) Close() error {
	c.connectionsMu.Lock()
	defer c.connectionsMu.Unlock()

	for _, connection := range c.connections {
		connection.connMu.Lock()
		if connection.conn != nil {
			connection.conn.Close()
			connection.conn = nil
		}
		connection.connMu.Unlock()
	}

	c.connections = nil
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// getNextConnection selects the next connection via Round Robin
func (c *Client) getNextConnection() *clientConnection {
	c.connectionsMu.RLock()
	defer c.connectionsMu.RUnlock()

	if len(c.connections) == 0 {
		return nil
	}

	// Simple Round Robin algorithm
	var index uint64
	if len(c.connections) == 1 {
		// optimize for single connection
		index = 0
	} else {
		index = atomic.AddUint64(&c.nextConnIndex, 1) % uint64(len(c.connections))
	}
	return c.connections[index]
}

// exchange writes one command and reads its reply.
func (c *clientConnection) exchange(cmd proto.Command) (proto.Reply, error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return proto.Reply{}, fmt.Errorf("connection is closed")
	}

	timeout := time.Duration(c.parent.config.TimeoutSecond) * time.Second
	if timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return proto.Reply{}, err
		}
	}

	c.out = proto.AppendCommand(c.out[:0], cmd)
	if _, err := c.conn.Write(c.out); err != nil {
		return proto.Reply{}, err
	}

	return c.readReply(timeout)
}

// readReply decodes the next reply, reading from the connection as needed.
// Must be called with connMu held.
func (c *clientConnection) readReply(timeout time.Duration) (proto.Reply, error) {
	for {
		reply, consumed, err := c.decoder.DecodeReply(c.buf)
		if err == nil {
			remaining := copy(c.buf, c.buf[consumed:])
			c.buf = c.buf[:remaining]
			return reply, nil
		}
		if !errors.Is(err, proto.ErrIncomplete) {
			return proto.Reply{}, fmt.Errorf("protocol error: %v", err)
		}

		if timeout > 0 {
			if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
				return proto.Reply{}, err
			}
		}

		n, err := c.conn.Read(c.readBuf)
		if n > 0 {
			c.buf = append(c.buf, c.readBuf[:n]...)
			continue
		}
		if err != nil {
			return proto.Reply{}, err
		}
	}
}

// reconnect establishes or restores the connection to the endpoint. Any
// buffered bytes from a broken exchange are discarded.
func (c *clientConnection) reconnect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	// Close the old connection if it exists
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	conn, err := c.parent.connector.Connect(c.endpoint)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %v", c.endpoint, err)
	}

	// Upgrade the connection with protocol-specific settings
	if err := c.parent.connector.UpgradeConnection(conn, c.parent.config); err != nil {
		conn.Close()
		return fmt.Errorf("failed to upgrade connection to %s: %v", c.endpoint, err)
	}

	c.conn = conn
	c.buf = c.buf[:0]
	return nil
}
