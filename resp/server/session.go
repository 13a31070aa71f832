package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/ValentinKolb/rKV/resp/proto"
	"github.com/ValentinKolb/rKV/resp/replication"
)

// followerBatchBytes caps one batched write to a follower stream.
const followerBatchBytes = 64 * 1024

// session handles one client connection: it accumulates inbound bytes,
// decodes complete commands, dispatches them and writes the replies. A SYNC
// command promotes the session into a follower stream, after which it only
// writes replicated commands until the connection dies.
type session struct {
	id   uint64
	conn net.Conn
	srv  *Server

	decoder proto.Decoder
	buf     []byte // unconsumed inbound bytes
	out     []byte // reply buffer, reused across commands
}

func newSession(id uint64, conn net.Conn, srv *Server) *session {
	return &session{
		id:   id,
		conn: conn,
		srv:  srv,
	}
}

// serve runs the read loop until the connection closes, the client sends a
// malformed frame, or the session is promoted to a follower.
func (s *session) serve() {
	readBuf := s.srv.bufferPool.Get().([]byte)
	defer s.srv.bufferPool.Put(readBuf)

	timeout := time.Duration(s.srv.config.TimeoutSecond) * time.Second

	for {
		if timeout > 0 {
			if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
				return
			}
		}

		n, err := s.conn.Read(readBuf)
		if n > 0 {
			s.buf = append(s.buf, readBuf[:n]...)

			promoted, fatal := s.processBuffer()
			if promoted || fatal {
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				Logger.Debugf("session %d read error: %v", s.id, err)
			}
			return
		}
	}
}

// processBuffer decodes and dispatches every complete command currently in
// the inbound buffer. Replies for one buffer pass are batched into a single
// write, so pipelined commands cost one syscall. Returns promoted=true when
// the session switched into follower mode, fatal=true when the connection
// must close.
func (s *session) processBuffer() (promoted, fatal bool) {
	s.out = s.out[:0]

	for len(s.buf) > 0 {
		cmd, consumed, err := s.decoder.DecodeCommand(s.buf)
		if errors.Is(err, proto.ErrIncomplete) {
			break
		}
		if err != nil {
			// Malformed frame: report if possible, then close
			var parseErr *proto.ParseError
			if errors.As(err, &parseErr) {
				s.out = proto.AppendReply(s.out, proto.NewErrorReply("ERR Protocol error: "+parseErr.Msg))
			}
			s.srv.metrics.errorsTotal.Inc()
			s.flush()
			return false, true
		}

		s.advance(consumed)

		if cmd == nil {
			// Blank inline line or empty array frame
			continue
		}

		s.srv.metrics.commandsTotal.Inc()

		if cmd.Verb() == "SYNC" {
			// Settle pending replies before switching modes
			if !s.flush() {
				return false, true
			}
			promoted, fatal := s.handleSync(cmd)
			if promoted || fatal {
				return promoted, fatal
			}
			// Recoverable SYNC failure, keep serving this session
			continue
		}

		s.srv.dispatchSem <- struct{}{}
		reply := s.srv.dispatcher.Dispatch(cmd)
		<-s.srv.dispatchSem

		if reply.Type == proto.ReplyError {
			s.srv.metrics.errorsTotal.Inc()
		}
		s.out = proto.AppendReply(s.out, reply)
	}

	if !s.flush() {
		return false, true
	}
	return false, false
}

// advance drops n consumed bytes from the front of the inbound buffer.
func (s *session) advance(n int) {
	remaining := copy(s.buf, s.buf[n:])
	s.buf = s.buf[:remaining]
}

// flush writes the buffered replies. Returns false on write failure.
func (s *session) flush() bool {
	if len(s.out) == 0 {
		return true
	}

	if timeout := time.Duration(s.srv.config.TimeoutSecond) * time.Second; timeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return false
		}
	}

	if _, err := s.conn.Write(s.out); err != nil {
		Logger.Debugf("session %d write error: %v", s.id, err)
		return false
	}

	s.out = s.out[:0]
	return true
}

// --------------------------------------------------------------------------
// Follower promotion
// --------------------------------------------------------------------------

// handleSync validates a SYNC command and promotes the session into a
// follower stream. On a recoverable failure (bad argument, stale offset) an
// error reply is written and the session stays in normal mode.
func (s *session) handleSync(cmd proto.Command) (promoted, fatal bool) {
	if len(cmd) > 2 {
		s.srv.metrics.errorsTotal.Inc()
		s.out = proto.AppendReply(s.out[:0], proto.NewErrorReply("ERR wrong number of arguments for 'sync' command"))
		return false, !s.flush()
	}

	var fromSeq uint64
	if len(cmd) == 2 {
		parsed, err := strconv.ParseUint(string(cmd[1]), 10, 64)
		if err != nil {
			s.srv.metrics.errorsTotal.Inc()
			s.out = proto.AppendReply(s.out[:0], proto.NewErrorReply("ERR value is not an integer or out of range"))
			return false, !s.flush()
		}
		fromSeq = parsed
	}

	res, err := s.srv.dispatcher.followerAttach(fromSeq)
	if err != nil {
		s.srv.metrics.errorsTotal.Inc()
		if errors.Is(err, replication.ErrStaleOffset) {
			s.out = proto.AppendReply(s.out[:0], proto.NewErrorReply("STALEOFFSET Requested sequence no longer in backlog"))
		} else {
			s.out = proto.AppendReply(s.out[:0], proto.NewErrorReply("ERR "+err.Error()))
		}
		return false, !s.flush()
	}

	s.streamToFollower(res)
	return true, false
}

// streamToFollower writes the handshake, state and backlog, then live
// records until the follower disconnects or the server shuts down. Inbound
// bytes are drained and discarded; the drain detaches the follower when the
// connection dies so the live loop wakes up.
func (s *session) streamToFollower(res *syncResult) {
	log := s.srv.dispatcher.log

	Logger.Infof("session %d entering follower mode (baseSeq=%d, state=%d, backlog=%d)",
		s.id, res.baseSeq, len(res.stateCmds), len(res.backlog))

	// Follower connections stay open indefinitely
	if err := s.conn.SetReadDeadline(time.Time{}); err != nil {
		log.Detach(res.queue)
		return
	}

	go func() {
		_, _ = io.Copy(io.Discard, s.conn)
		log.Detach(res.queue)
	}()

	// Handshake, synthesized state and backlog go out in one write
	out := proto.AppendReply(nil, proto.NewSimpleReply(
		fmt.Sprintf("SYNC %d %d", res.baseSeq, len(res.stateCmds))))
	for _, cmd := range res.stateCmds {
		out = proto.AppendCommand(out, cmd)
	}
	for _, rec := range res.backlog {
		out = proto.AppendCommand(out, rec.Cmd)
	}
	if !s.writeFollower(out) {
		log.Detach(res.queue)
		return
	}

	// Live records, batching whatever is already queued
	recv := res.queue.Recv()
	for rec := range recv {
		out = proto.AppendCommand(out[:0], rec.Cmd)

	batching:
		for len(out) < followerBatchBytes {
			select {
			case next, ok := <-recv:
				if !ok {
					break batching
				}
				out = proto.AppendCommand(out, next.Cmd)
			default:
				break batching
			}
		}

		if !s.writeFollower(out) {
			break
		}
	}

	// Detach and drain so the queue's consumer goroutine can finish
	log.Detach(res.queue)
	for range recv {
	}

	Logger.Infof("session %d follower detached", s.id)
}

// writeFollower writes one batch to the follower with the configured
// timeout, so a stalled follower cannot block its session goroutine forever.
func (s *session) writeFollower(out []byte) bool {
	if timeout := time.Duration(s.srv.config.TimeoutSecond) * time.Second; timeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return false
		}
	}

	if _, err := s.conn.Write(out); err != nil {
		Logger.Warningf("follower session %d write failed: %v", s.id, err)
		return false
	}
	return true
}
