package client

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/rKV/resp/common"
	"github.com/ValentinKolb/rKV/resp/proto"
	"github.com/ValentinKolb/rKV/resp/transport"
)

const (
	// initialBackoffMs and maxBackoffMs bound the reconnect backoff
	initialBackoffMs = 50
	maxBackoffMs     = 5000
)

// Follower consumes a leader's replication stream. It performs the SYNC
// handshake, applies every received command through the apply callback in
// stream order and tracks the last applied sequence so a reconnect resumes
// where the stream broke off. When the leader no longer holds the requested
// sequence the follower falls back to a full resync.
type Follower struct {
	config    common.ClientConfig
	connector transport.IClientConnector
	apply     func(cmd proto.Command) proto.Reply

	lastSeq  atomic.Uint64
	stopping atomic.Bool
	stopCh   chan struct{}
	done     chan struct{}

	connMu sync.Mutex
	conn   net.Conn
}

// NewFollower creates a follower streaming from the leader at the first
// configured endpoint.
func NewFollower(config common.ClientConfig, connector transport.IClientConnector, apply func(proto.Command) proto.Reply) (*Follower, error) {
	if len(config.Transport.Endpoints) == 0 {
		return nil, fmt.Errorf("no endpoints provided")
	}
	return &Follower{
		config:    config,
		connector: connector,
		apply:     apply,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

// LastSeq returns the sequence number of the last applied command.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (f *Follower) LastSeq() uint64 {
	return f.lastSeq.Load()
}

// Run streams from the leader until Close is called, reconnecting with
// exponential backoff after every stream failure. It blocks and returns
// nil once closed.
func (f *Follower) Run() error {
	defer close(f.done)

	endpoint := f.config.Transport.Endpoints[0]
	backoffMs := initialBackoffMs

	for {
		synced, err := f.streamOnce(endpoint)
		if f.stopping.Load() {
			return nil
		}
		if synced {
			// The handshake went through, start backing off from scratch
			backoffMs = initialBackoffMs
		}

		Logger.Warningf("Replication stream from %s failed: %v", endpoint, err)

		// Exponential backoff with a small random jitter (+-10%)
		jitter := float64(backoffMs) * (0.9 + 0.2*rand.Float64())
		select {
		case <-time.After(time.Duration(jitter) * time.Millisecond):
		case <-f.stopCh:
			return nil
		}
		if backoffMs < maxBackoffMs {
			backoffMs *= 2
		}
	}
}

// Close stops the follower and waits for Run to return. Run must have been
// started before Close is called.
func (f *Follower) Close() error {
	if !f.stopping.CompareAndSwap(false, true) {
		return nil
	}
	close(f.stopCh)

	f.connMu.Lock()
	if f.conn != nil {
		f.conn.Close()
	}
	f.connMu.Unlock()

	<-f.done
	return nil
}

// streamOnce dials the leader, performs the handshake and applies the
// stream until the connection breaks. The returned boolean reports whether
// the handshake succeeded, so the caller can reset its backoff.
func (f *Follower) streamOnce(endpoint string) (synced bool, err error) {
	conn, err := f.connector.Connect(endpoint)
	if err != nil {
		return false, err
	}
	if err := f.connector.UpgradeConnection(conn, f.config); err != nil {
		conn.Close()
		return false, err
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	defer func() {
		conn.Close()
		f.connMu.Lock()
		f.conn = nil
		f.connMu.Unlock()
	}()

	// Close may have run before the connection was registered above
	if f.stopping.Load() {
		return false, fmt.Errorf("follower closed")
	}

	stream := newStreamReader(conn)

	baseSeq, stateCount, err := f.handshake(stream)
	if err != nil {
		return false, err
	}

	Logger.Infof("Synced with leader %s (baseSeq=%d, state=%d)", endpoint, baseSeq, stateCount)

	// An idle stream stays silent indefinitely, reads must not time out
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return true, err
	}

	// State commands recreate the dataset as of baseSeq. The sequence
	// counter only moves once they are all applied, so a crash mid-state
	// resyncs from scratch.
	for i := 0; i < stateCount; i++ {
		cmd, err := stream.ReadCommand()
		if err != nil {
			return true, err
		}
		f.applyCommand(cmd)
	}
	f.lastSeq.Store(baseSeq)

	seq := baseSeq
	for {
		cmd, err := stream.ReadCommand()
		if err != nil {
			return true, err
		}
		f.applyCommand(cmd)
		seq++
		f.lastSeq.Store(seq)
	}
}

// handshake requests the stream and parses the "+SYNC <baseSeq>
// <stateCount>" response. A STALEOFFSET rejection falls back to a full
// resync on the same connection.
func (f *Follower) handshake(stream *streamReader) (baseSeq uint64, stateCount int, err error) {
	fromSeq := uint64(0)
	if last := f.lastSeq.Load(); last > 0 {
		fromSeq = last + 1
	}

	reply, err := f.sendSync(stream, fromSeq)
	if err != nil {
		return 0, 0, err
	}

	if fromSeq > 0 && reply.Type == proto.ReplyError && strings.HasPrefix(reply.Str, "STALEOFFSET") {
		Logger.Warningf("Leader no longer holds sequence %d, falling back to a full resync", fromSeq)
		f.lastSeq.Store(0)
		if reply, err = f.sendSync(stream, 0); err != nil {
			return 0, 0, err
		}
	}

	if err := reply.AsError(); err != nil {
		return 0, 0, fmt.Errorf("leader rejected SYNC: %v", err)
	}
	if reply.Type != proto.ReplySimple {
		return 0, 0, fmt.Errorf("unexpected %s reply for 'SYNC'", reply.Type)
	}

	fields := strings.Fields(reply.Str)
	if len(fields) != 3 || fields[0] != "SYNC" {
		return 0, 0, fmt.Errorf("malformed SYNC handshake %q", reply.Str)
	}
	if baseSeq, err = strconv.ParseUint(fields[1], 10, 64); err != nil {
		return 0, 0, fmt.Errorf("malformed SYNC handshake %q", reply.Str)
	}
	if stateCount, err = strconv.Atoi(fields[2]); err != nil || stateCount < 0 {
		return 0, 0, fmt.Errorf("malformed SYNC handshake %q", reply.Str)
	}
	return baseSeq, stateCount, nil
}

// sendSync writes one SYNC command and reads its immediate reply.
func (f *Follower) sendSync(stream *streamReader, fromSeq uint64) (proto.Reply, error) {
	timeout := time.Duration(f.config.TimeoutSecond) * time.Second
	if timeout > 0 {
		if err := stream.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return proto.Reply{}, err
		}
		if err := stream.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return proto.Reply{}, err
		}
	}

	cmd := proto.NewCommand("SYNC", strconv.FormatUint(fromSeq, 10))
	if _, err := stream.conn.Write(proto.AppendCommand(nil, cmd)); err != nil {
		return proto.Reply{}, err
	}
	return stream.ReadReply()
}

// applyCommand hands a replicated command to the callback. A rejection is
// logged but does not interrupt the stream.
func (f *Follower) applyCommand(cmd proto.Command) {
	if reply := f.apply(cmd); reply.Type == proto.ReplyError {
		Logger.Errorf("Replicated command %q rejected: %s", cmd.String(), reply.Str)
	}
}

// --------------------------------------------------------------------------
// Stream decoding
// --------------------------------------------------------------------------

// streamReader decodes replies and commands from a replication stream.
type streamReader struct {
	conn    net.Conn
	decoder proto.Decoder
	buf     []byte
	readBuf []byte
}

func newStreamReader(conn net.Conn) *streamReader {
	return &streamReader{
		conn:    conn,
		readBuf: make([]byte, readChunkSize),
	}
}

// ReadReply decodes the next reply, reading from the connection as needed.
func (r *streamReader) ReadReply() (proto.Reply, error) {
	for {
		reply, consumed, err := r.decoder.DecodeReply(r.buf)
		if err == nil {
			r.buf = r.buf[consumed:]
			return reply, nil
		}
		if !errors.Is(err, proto.ErrIncomplete) {
			return proto.Reply{}, fmt.Errorf("protocol error: %v", err)
		}
		if err := r.fill(); err != nil {
			return proto.Reply{}, err
		}
	}
}

// ReadCommand decodes the next replicated command, reading from the
// connection as needed.
func (r *streamReader) ReadCommand() (proto.Command, error) {
	for {
		cmd, consumed, err := r.decoder.DecodeCommand(r.buf)
		if err == nil {
			r.buf = r.buf[consumed:]
			if cmd == nil {
				continue
			}
			return cmd, nil
		}
		if !errors.Is(err, proto.ErrIncomplete) {
			return nil, fmt.Errorf("protocol error: %v", err)
		}
		if err := r.fill(); err != nil {
			return nil, err
		}
	}
}

// fill reads more bytes into the decode buffer.
func (r *streamReader) fill() error {
	n, err := r.conn.Read(r.readBuf)
	if n > 0 {
		r.buf = append(r.buf, r.readBuf[:n]...)
		return nil
	}
	return err
}
