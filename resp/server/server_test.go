package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/rKV/lib/db/engines/rowan"
	"github.com/ValentinKolb/rKV/resp/common"
	"github.com/ValentinKolb/rKV/resp/proto"
	"github.com/ValentinKolb/rKV/resp/transport/tcp"
)

// newTestServer starts a server on an ephemeral port and returns it
// together with its dial address. The server is shut down with the test.
func newTestServer(t *testing.T, config common.ServerConfig) (*Server, string) {
	t.Helper()

	if config.Transport.Endpoint == "" {
		config.Transport.Endpoint = "127.0.0.1:0"
	}
	if config.LogLevel == "" {
		config.LogLevel = "error"
	}

	srv, err := NewServer(config, tcp.NewTCPServerConnector(), rowan.NewRowanDB(nil))
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	if err := srv.Listen(); err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	go func() {
		_ = srv.Serve()
	}()
	t.Cleanup(func() {
		_ = srv.Shutdown()
	})

	return srv, srv.Addr().String()
}

// testClient is a minimal protocol client for exercising a server over a
// real connection.
type testClient struct {
	t       *testing.T
	conn    net.Conn
	decoder proto.Decoder
	buf     []byte
}

func dialServer(t *testing.T, addr string) *testClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatalf("Failed to dial server: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
	})
	return &testClient{t: t, conn: conn}
}

// send writes one encoded command.
func (c *testClient) send(args ...string) {
	c.t.Helper()
	if _, err := c.conn.Write(proto.AppendCommand(nil, proto.NewCommand(args...))); err != nil {
		c.t.Fatalf("Failed to send %v: %v", args, err)
	}
}

// sendRaw writes raw bytes, used for pipelining, inline commands and
// malformed input.
func (c *testClient) sendRaw(raw string) {
	c.t.Helper()
	if _, err := c.conn.Write([]byte(raw)); err != nil {
		c.t.Fatalf("Failed to send raw bytes: %v", err)
	}
}

// fill reads more bytes from the connection into the decode buffer.
func (c *testClient) fill() error {
	if err := c.conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return err
	}
	chunk := make([]byte, 4096)
	n, err := c.conn.Read(chunk)
	if n > 0 {
		c.buf = append(c.buf, chunk[:n]...)
		return nil
	}
	return err
}

// recv reads the next reply.
func (c *testClient) recv() proto.Reply {
	c.t.Helper()
	for {
		reply, n, err := c.decoder.DecodeReply(c.buf)
		if err == nil {
			c.buf = c.buf[n:]
			return reply
		}
		if !errors.Is(err, proto.ErrIncomplete) {
			c.t.Fatalf("Bad reply from server: %v", err)
		}
		if err := c.fill(); err != nil {
			c.t.Fatalf("Failed to read reply: %v", err)
		}
	}
}

// recvCommand reads the next replicated command from a follower stream.
func (c *testClient) recvCommand() proto.Command {
	c.t.Helper()
	for {
		cmd, n, err := c.decoder.DecodeCommand(c.buf)
		if err == nil {
			c.buf = c.buf[n:]
			if cmd == nil {
				continue
			}
			return cmd
		}
		if !errors.Is(err, proto.ErrIncomplete) {
			c.t.Fatalf("Bad replication frame: %v", err)
		}
		if err := c.fill(); err != nil {
			c.t.Fatalf("Failed to read replication stream: %v", err)
		}
	}
}

// do sends one command and returns its reply.
func (c *testClient) do(args ...string) proto.Reply {
	c.t.Helper()
	c.send(args...)
	return c.recv()
}

func expectErrorPrefix(t *testing.T, reply proto.Reply, prefix string) {
	t.Helper()
	if reply.Type != proto.ReplyError || !strings.HasPrefix(reply.Str, prefix) {
		t.Errorf("Expected error reply starting with %q, got %v", prefix, reply)
	}
}

// parseSyncHandshake validates a "+SYNC <baseSeq> <stateCount>" reply.
func parseSyncHandshake(t *testing.T, reply proto.Reply) (baseSeq uint64, stateCount int) {
	t.Helper()
	if reply.Type != proto.ReplySimple {
		t.Fatalf("Expected SYNC handshake, got %v", reply)
	}
	fields := strings.Fields(reply.Str)
	if len(fields) != 3 || fields[0] != "SYNC" {
		t.Fatalf("Malformed SYNC handshake %q", reply.Str)
	}
	baseSeq, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		t.Fatalf("Malformed base sequence in handshake %q", reply.Str)
	}
	stateCount, err = strconv.Atoi(fields[2])
	if err != nil {
		t.Fatalf("Malformed state count in handshake %q", reply.Str)
	}
	return baseSeq, stateCount
}

// --------------------------------------------------------------------------
// Request/response behavior
// --------------------------------------------------------------------------

func TestServerCommands(t *testing.T) {
	_, addr := newTestServer(t, common.ServerConfig{})
	c := dialServer(t, addr)

	expectSimple(t, c.do("PING"), "PONG")
	expectSimple(t, c.do("SET", "greeting", "hello"), "OK")
	expectBulk(t, c.do("GET", "greeting"), "hello")
	expectInteger(t, c.do("DEL", "greeting"), 1)
	expectNull(t, c.do("GET", "greeting"))

	expectInteger(t, c.do("RPUSH", "queue", "a", "b"), 2)
	expectBulk(t, c.do("LPOP", "queue"), "a")

	expectErrorText(t, c.do("NOSUCH"), "ERR unknown command 'NOSUCH'")
	expectErrorText(t, c.do("GET"), "ERR wrong number of arguments for 'get' command")

	reply := c.do("INFO")
	if reply.Type != proto.ReplyBulk || !strings.Contains(string(reply.Bulk), "# Server") {
		t.Errorf("Expected INFO sections, got %v", reply)
	}
}

func TestServerPipelining(t *testing.T) {
	_, addr := newTestServer(t, common.ServerConfig{})
	c := dialServer(t, addr)

	// All five commands go out in a single write, the replies come back
	// in submission order.
	var out []byte
	out = proto.AppendCommand(out, proto.NewCommand("SET", "a", "1"))
	out = proto.AppendCommand(out, proto.NewCommand("SET", "b", "2"))
	out = proto.AppendCommand(out, proto.NewCommand("GET", "a"))
	out = proto.AppendCommand(out, proto.NewCommand("GET", "b"))
	out = proto.AppendCommand(out, proto.NewCommand("GET", "missing"))
	c.sendRaw(string(out))

	expectSimple(t, c.recv(), "OK")
	expectSimple(t, c.recv(), "OK")
	expectBulk(t, c.recv(), "1")
	expectBulk(t, c.recv(), "2")
	expectNull(t, c.recv())
}

func TestServerInlineCommands(t *testing.T) {
	_, addr := newTestServer(t, common.ServerConfig{})
	c := dialServer(t, addr)

	c.sendRaw("PING\r\n")
	expectSimple(t, c.recv(), "PONG")

	c.sendRaw("SET inline-key inline-value\r\nGET inline-key\r\n")
	expectSimple(t, c.recv(), "OK")
	expectBulk(t, c.recv(), "inline-value")

	// Blank lines are ignored
	c.sendRaw("\r\nPING\r\n")
	expectSimple(t, c.recv(), "PONG")
}

func TestServerProtocolError(t *testing.T) {
	_, addr := newTestServer(t, common.ServerConfig{})
	c := dialServer(t, addr)

	expectSimple(t, c.do("PING"), "PONG")

	c.sendRaw("*abc\r\n")
	expectErrorPrefix(t, c.recv(), "ERR Protocol error:")

	// The connection is closed after the error reply
	if err := c.conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("Failed to set deadline: %v", err)
	}
	if _, err := c.conn.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Errorf("Expected EOF after protocol error, got %v", err)
	}
}

func TestServerMetricsCounters(t *testing.T) {
	srv, addr := newTestServer(t, common.ServerConfig{})
	c := dialServer(t, addr)

	expectSimple(t, c.do("SET", "k", "v"), "OK")
	expectBulk(t, c.do("GET", "k"), "v")
	expectNull(t, c.do("GET", "missing"))
	expectErrorPrefix(t, c.do("NOSUCH"), "ERR")

	counters := map[string]struct {
		got  uint64
		want uint64
	}{
		"connections_total":  {srv.metrics.connectionsTotal.Get(), 1},
		"connections_active": {srv.metrics.connectionsActive.Get(), 1},
		"commands_total":     {srv.metrics.commandsTotal.Get(), 4},
		"keyspace_hits":      {srv.metrics.keyspaceHits.Get(), 1},
		"keyspace_misses":    {srv.metrics.keyspaceMisses.Get(), 1},
		"errors_total":       {srv.metrics.errorsTotal.Get(), 1},
	}
	for name, counter := range counters {
		if counter.got != counter.want {
			t.Errorf("Expected %s = %d, got %d", name, counter.want, counter.got)
		}
	}
}

// --------------------------------------------------------------------------
// Replication
// --------------------------------------------------------------------------

func TestServerReplication(t *testing.T) {
	srv, addr := newTestServer(t, common.ServerConfig{})
	writer := dialServer(t, addr)

	for i := 1; i <= 5; i++ {
		expectSimple(t, writer.do("SET", fmt.Sprintf("key-%d", i), fmt.Sprintf("val-%d", i)), "OK")
	}

	follower := dialServer(t, addr)
	follower.send("SYNC")

	baseSeq, stateCount := parseSyncHandshake(t, follower.recv())
	if baseSeq != 0 || stateCount != 0 {
		t.Fatalf("Expected full replay handshake, got baseSeq=%d state=%d", baseSeq, stateCount)
	}

	// The backlog arrives first, in sequence order
	for i := 1; i <= 5; i++ {
		cmd := follower.recvCommand()
		if want := fmt.Sprintf("SET key-%d val-%d", i, i); cmd.String() != want {
			t.Errorf("Replicated command %d: expected %q, got %q", i, want, cmd.String())
		}
	}

	if got := srv.log.Followers(); got != 1 {
		t.Errorf("Expected 1 attached follower, got %d", got)
	}

	// A live write reaches the follower
	expectSimple(t, writer.do("SET", "live", "v"), "OK")
	if cmd := follower.recvCommand(); cmd.String() != "SET live v" {
		t.Errorf("Expected live record, got %q", cmd.String())
	}

	// Disconnecting detaches the follower
	follower.conn.Close()
	deadline := time.Now().Add(5 * time.Second)
	for srv.log.Followers() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("Follower was not detached after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServerSyncPartial(t *testing.T) {
	_, addr := newTestServer(t, common.ServerConfig{})
	writer := dialServer(t, addr)

	for i := 1; i <= 5; i++ {
		expectSimple(t, writer.do("SET", fmt.Sprintf("key-%d", i), fmt.Sprintf("val-%d", i)), "OK")
	}

	follower := dialServer(t, addr)
	follower.send("SYNC", "3")

	baseSeq, stateCount := parseSyncHandshake(t, follower.recv())
	if baseSeq != 2 || stateCount != 0 {
		t.Fatalf("Expected resume handshake baseSeq=2, got baseSeq=%d state=%d", baseSeq, stateCount)
	}

	for i := 3; i <= 5; i++ {
		cmd := follower.recvCommand()
		if want := fmt.Sprintf("SET key-%d val-%d", i, i); cmd.String() != want {
			t.Errorf("Resumed command: expected %q, got %q", want, cmd.String())
		}
	}
}

func TestServerSyncRecoverableErrors(t *testing.T) {
	_, addr := newTestServer(t, common.ServerConfig{
		Replication: common.ReplicationConf{BacklogSize: 4},
	})
	writer := dialServer(t, addr)

	for i := 1; i <= 10; i++ {
		expectSimple(t, writer.do("SET", fmt.Sprintf("key-%d", i), fmt.Sprintf("val-%d", i)), "OK")
	}

	c := dialServer(t, addr)

	t.Run("StaleOffset", func(t *testing.T) {
		c.send("SYNC", "1")
		expectErrorText(t, c.recv(), "STALEOFFSET Requested sequence no longer in backlog")
		// The session survives and keeps serving
		expectSimple(t, c.do("PING"), "PONG")
	})

	t.Run("BadArguments", func(t *testing.T) {
		c.send("SYNC", "abc")
		expectErrorText(t, c.recv(), "ERR value is not an integer or out of range")
		c.send("SYNC", "1", "2", "3")
		expectErrorText(t, c.recv(), "ERR wrong number of arguments for 'sync' command")
		expectSimple(t, c.do("PING"), "PONG")
	})

	t.Run("PipelinedBehindFailedSync", func(t *testing.T) {
		var out []byte
		out = proto.AppendCommand(out, proto.NewCommand("SYNC", "1"))
		out = proto.AppendCommand(out, proto.NewCommand("PING"))
		c.sendRaw(string(out))

		expectErrorText(t, c.recv(), "STALEOFFSET Requested sequence no longer in backlog")
		expectSimple(t, c.recv(), "PONG")
	})

	t.Run("FullResyncFallback", func(t *testing.T) {
		c.send("SYNC", "0")

		baseSeq, stateCount := parseSyncHandshake(t, c.recv())
		if baseSeq != 10 || stateCount != 11 {
			t.Fatalf("Expected state transfer handshake baseSeq=10 state=11, got baseSeq=%d state=%d",
				baseSeq, stateCount)
		}

		if first := c.recvCommand(); first.Verb() != "FLUSHALL" {
			t.Errorf("Expected state transfer to start with FLUSHALL, got %q", first.String())
		}
		for i := 1; i < stateCount; i++ {
			if cmd := c.recvCommand(); cmd.Verb() != "SET" {
				t.Errorf("Expected synthesized SET, got %q", cmd.String())
			}
		}

		// Live records follow the state transfer
		expectSimple(t, writer.do("SET", "live", "v"), "OK")
		if cmd := c.recvCommand(); cmd.String() != "SET live v" {
			t.Errorf("Expected live record, got %q", cmd.String())
		}
	})
}

func TestServerReadOnlyReplica(t *testing.T) {
	srv, addr := newTestServer(t, common.ServerConfig{
		Replication: common.ReplicationConf{ReplicaOf: "192.0.2.1:6379"},
	})
	c := dialServer(t, addr)

	expectErrorText(t, c.do("SET", "k", "v"),
		"READONLY You can't write against a read only replica.")
	expectSimple(t, c.do("PING"), "PONG")
	expectNull(t, c.do("GET", "k"))

	// Commands applied from the replication stream bypass the rejection
	// and are re-sequenced into the replica's own log.
	expectSimple(t, srv.Apply(proto.NewCommand("SET", "k", "v")), "OK")
	expectBulk(t, c.do("GET", "k"), "v")
	if got := srv.log.LastSeq(); got != 1 {
		t.Errorf("Expected applied command in the replica log, last seq = %d", got)
	}
}

// --------------------------------------------------------------------------
// Concurrency
// --------------------------------------------------------------------------

// pushWorker pipelines n list pushes on its own connection and verifies
// every reply is an integer.
func pushWorker(addr string, worker, n int) error {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()

	var out []byte
	for i := 0; i < n; i++ {
		out = proto.AppendCommand(out, proto.NewCommand("RPUSH", "biglist", fmt.Sprintf("item-%d-%d", worker, i)))
	}
	if _, err := conn.Write(out); err != nil {
		return err
	}

	var (
		decoder proto.Decoder
		buf     []byte
		chunk   = make([]byte, 4096)
	)
	for read := 0; read < n; {
		reply, consumed, err := decoder.DecodeReply(buf)
		if err == nil {
			if reply.Type != proto.ReplyInteger {
				return fmt.Errorf("worker %d: unexpected reply %v", worker, reply)
			}
			buf = buf[consumed:]
			read++
			continue
		}
		if !errors.Is(err, proto.ErrIncomplete) {
			return fmt.Errorf("worker %d: bad reply: %v", worker, err)
		}

		if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
			return err
		}
		m, err := conn.Read(chunk)
		if m > 0 {
			buf = append(buf, chunk[:m]...)
		} else if err != nil {
			return fmt.Errorf("worker %d: read failed: %v", worker, err)
		}
	}
	return nil
}

func TestServerConcurrentWrites(t *testing.T) {
	_, addr := newTestServer(t, common.ServerConfig{})

	const (
		workers       = 4
		writesPerConn = 50
	)

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			errs <- pushWorker(addr, worker, writesPerConn)
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Worker failed: %v", err)
		}
	}

	// Drain the list: every push must have landed exactly once
	c := dialServer(t, addr)
	total := workers * writesPerConn

	var out []byte
	for i := 0; i <= total; i++ {
		out = proto.AppendCommand(out, proto.NewCommand("LPOP", "biglist"))
	}
	c.sendRaw(string(out))

	popped := 0
	for i := 0; i < total; i++ {
		if c.recv().IsNull() {
			break
		}
		popped++
	}
	if popped != total {
		t.Errorf("Expected %d list elements, got %d", total, popped)
	}
	expectNull(t, c.recv())
}

// --------------------------------------------------------------------------
// Persistence
// --------------------------------------------------------------------------

func TestServerSnapshotLifecycle(t *testing.T) {
	config := common.ServerConfig{
		Snapshot: common.SnapshotConf{
			Path:  filepath.Join(t.TempDir(), "dump.rkv"),
			Codec: "binary",
		},
	}

	srv1, addr1 := newTestServer(t, config)
	c1 := dialServer(t, addr1)
	expectSimple(t, c1.do("SET", "persisted", "before-save"), "OK")
	expectSimple(t, c1.do("SAVE"), "OK")
	expectSimple(t, c1.do("SET", "late", "after-save"), "OK")

	// Shutdown writes a final snapshot including the late write
	c1.conn.Close()
	if err := srv1.Shutdown(); err != nil {
		t.Fatalf("Failed to shut down: %v", err)
	}

	srv2, addr2 := newTestServer(t, config)
	if err := srv2.LoadSnapshot(); err != nil {
		t.Fatalf("Failed to load snapshot: %v", err)
	}

	c2 := dialServer(t, addr2)
	expectBulk(t, c2.do("GET", "persisted"), "before-save")
	expectBulk(t, c2.do("GET", "late"), "after-save")
	expectInteger(t, c2.do("DBSIZE"), 2)
}
