package server

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/rKV/lib/db"
	"github.com/ValentinKolb/rKV/lib/db/snapshot"
	"github.com/ValentinKolb/rKV/resp/proto"
	"github.com/ValentinKolb/rKV/resp/replication"
)

// --------------------------------------------------------------------------
// Command Table
// --------------------------------------------------------------------------

// commandSpec describes one verb: its argument bounds, whether it mutates
// the store, and the handler implementing it. Handlers return the reply and
// a dirty flag; dirty must only be true when the command completed without
// error and actually changed state.
type commandSpec struct {
	minArgs int
	maxArgs int // -1 = no upper bound
	write   bool

	// manualLock marks handlers that manage store locking themselves (SAVE)
	manualLock bool

	handler func(d *Dispatcher, cmd proto.Command) (proto.Reply, bool)
}

// commandTable maps canonical (upper-case) verbs to their specs. SYNC is
// absent on purpose: it switches the session into follower mode and is
// intercepted before dispatch.
var commandTable = map[string]commandSpec{
	"PING":     {minArgs: 0, maxArgs: 1, handler: handlePing},
	"ECHO":     {minArgs: 1, maxArgs: 1, handler: handleEcho},
	"SET":      {minArgs: 2, maxArgs: 2, write: true, handler: handleSet},
	"GET":      {minArgs: 1, maxArgs: 1, handler: handleGet},
	"DEL":      {minArgs: 1, maxArgs: -1, write: true, handler: handleDel},
	"EXISTS":   {minArgs: 1, maxArgs: -1, handler: handleExists},
	"TYPE":     {minArgs: 1, maxArgs: 1, handler: handleType},
	"KEYS":     {minArgs: 1, maxArgs: 1, handler: handleKeys},
	"LPUSH":    {minArgs: 2, maxArgs: -1, write: true, handler: handleLPush},
	"RPUSH":    {minArgs: 2, maxArgs: -1, write: true, handler: handleRPush},
	"LPOP":     {minArgs: 1, maxArgs: 1, write: true, handler: handleLPop},
	"RPOP":     {minArgs: 1, maxArgs: 1, write: true, handler: handleRPop},
	"SADD":     {minArgs: 2, maxArgs: -1, write: true, handler: handleSAdd},
	"SREM":     {minArgs: 2, maxArgs: -1, write: true, handler: handleSRem},
	"SMEMBERS": {minArgs: 1, maxArgs: 1, handler: handleSMembers},
	"DBSIZE":   {minArgs: 0, maxArgs: 0, handler: handleDBSize},
	"FLUSHALL": {minArgs: 0, maxArgs: 0, write: true, handler: handleFlushAll},
	"INFO":     {minArgs: 0, maxArgs: 1, handler: handleInfo},
	"SAVE":     {minArgs: 0, maxArgs: 0, manualLock: true, handler: handleSave},
}

// resolveCommand looks up the verb and validates arity. On failure the
// returned reply holds the error and ok is false.
func resolveCommand(cmd proto.Command) (commandSpec, proto.Reply, bool) {
	if len(cmd) == 0 {
		return commandSpec{}, proto.NewErrorReply("ERR empty command"), false
	}

	verb := cmd.Verb()
	spec, found := commandTable[verb]
	if !found {
		return commandSpec{}, proto.NewErrorReply(fmt.Sprintf("ERR unknown command '%s'", string(cmd[0]))), false
	}

	if nargs := len(cmd) - 1; nargs < spec.minArgs || (spec.maxArgs >= 0 && nargs > spec.maxArgs) {
		return commandSpec{}, proto.NewErrorReply(fmt.Sprintf("ERR wrong number of arguments for '%s' command", strings.ToLower(verb))), false
	}

	return spec, proto.Reply{}, true
}

// --------------------------------------------------------------------------
// Dispatcher
// --------------------------------------------------------------------------

// Dispatcher executes commands against the store and forwards dirty
// mutations to the replication log. All mutating commands run under a single
// write lock, giving the server one strict serialization order; read-only
// commands share the read lock and may run concurrently.
type Dispatcher struct {
	mu        sync.RWMutex
	store     db.KVDB
	log       *replication.Log
	snapshots *snapshot.FileStore
	readOnly  bool
	metrics   *serverMetrics

	// INFO inputs, filled in by the owning server
	startTime time.Time
	clients   func() int
}

// DispatcherOptions configures optional dispatcher behavior.
type DispatcherOptions struct {
	// ReadOnly rejects write commands from client sessions (replica mode)
	ReadOnly bool
	// Snapshots enables SAVE and snapshot loading; nil disables persistence
	Snapshots *snapshot.FileStore
}

// NewDispatcher creates a dispatcher. The store and log must not be shared
// with another dispatcher; passing nil options selects the defaults.
func NewDispatcher(store db.KVDB, log *replication.Log, opts *DispatcherOptions) *Dispatcher {
	if opts == nil {
		opts = &DispatcherOptions{}
	}

	return &Dispatcher{
		store:     store,
		log:       log,
		snapshots: opts.Snapshots,
		readOnly:  opts.ReadOnly,
		metrics:   newServerMetrics(log),
		startTime: time.Now(),
	}
}

// Dispatch runs one client command and returns its reply. Errors never
// surface as Go errors here, they are encoded as error replies.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (d *Dispatcher) Dispatch(cmd proto.Command) proto.Reply {
	spec, errReply, ok := resolveCommand(cmd)
	if !ok {
		return errReply
	}

	if spec.manualLock {
		reply, _ := spec.handler(d, cmd)
		return reply
	}

	if spec.write {
		if d.readOnly {
			return proto.NewErrorReply("READONLY You can't write against a read only replica.")
		}
		return d.dispatchWrite(spec, cmd)
	}

	d.mu.RLock()
	reply, _ := spec.handler(d, cmd)
	d.mu.RUnlock()
	return reply
}

// Apply runs a command received from the leader's replication stream. It
// bypasses the read-only check and re-sequences dirty mutations into the
// local log, so replicas can serve SYNC themselves.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (d *Dispatcher) Apply(cmd proto.Command) proto.Reply {
	spec, errReply, ok := resolveCommand(cmd)
	if !ok {
		return errReply
	}

	if !spec.write {
		return d.Dispatch(cmd)
	}

	return d.dispatchWrite(spec, cmd)
}

// dispatchWrite runs a mutating command under the write lock. The sequence
// number is assigned by the log append inside the same critical section, so
// propagation order always matches mutation order.
func (d *Dispatcher) dispatchWrite(spec commandSpec, cmd proto.Command) proto.Reply {
	d.mu.Lock()
	reply, dirty := spec.handler(d, cmd)
	if dirty {
		d.log.Append(cmd)
	}
	d.mu.Unlock()

	return reply
}

// --------------------------------------------------------------------------
// Snapshot integration
// --------------------------------------------------------------------------

// Save captures a snapshot under the read lock and writes it to the
// configured file store. Mutations are blocked during capture but not during
// encoding, the dump is a deep copy.
func (d *Dispatcher) Save() error {
	if d.snapshots == nil {
		return errors.New("snapshot persistence is disabled")
	}

	d.mu.RLock()
	snap := &snapshot.Snapshot{
		Seq:     d.log.LastSeq(),
		Entries: d.store.Dump(),
	}
	d.mu.RUnlock()

	return d.snapshots.Write(snap)
}

// LoadSnapshot restores the store from the configured snapshot file and
// restarts the log after the restored sequence. A missing file leaves the
// store empty and returns sequence 0; a corrupt file is returned as an error
// so the caller can refuse to start.
func (d *Dispatcher) LoadSnapshot() (uint64, error) {
	if d.snapshots == nil {
		return 0, nil
	}

	snap, err := d.snapshots.Read()
	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.store.Restore(snap.Entries); err != nil {
		return 0, fmt.Errorf("failed to restore snapshot: %w", err)
	}
	d.log.Reset(snap.Seq)

	return snap.Seq, nil
}

// --------------------------------------------------------------------------
// Follower attachment
// --------------------------------------------------------------------------

// syncResult carries everything a session needs to serve one follower: the
// handshake parameters, synthesized state commands, the backlog, and the
// live queue.
type syncResult struct {
	baseSeq   uint64
	stateCmds []proto.Command
	backlog   []*replication.Record
	queue     *replication.Queue
}

// followerAttach resolves a SYNC request. fromSeq > 0 resumes from that
// sequence and fails with replication.ErrStaleOffset when it was compacted
// away; fromSeq 0 requests a full resync, replaying the log when it is still
// complete and synthesizing the current state as commands otherwise.
func (d *Dispatcher) followerAttach(fromSeq uint64) (*syncResult, error) {
	// Partial resync
	if fromSeq > 0 {
		q, backlog, err := d.log.Attach(fromSeq)
		if err != nil {
			return nil, err
		}
		return &syncResult{baseSeq: fromSeq - 1, backlog: backlog, queue: q}, nil
	}

	// Full resync with a complete log: replay everything from sequence 1
	if d.log.FirstSeq() == 1 {
		q, backlog, err := d.log.Attach(1)
		if err == nil {
			return &syncResult{baseSeq: 0, backlog: backlog, queue: q}, nil
		}
		// A concurrent compaction invalidated the replay, fall through
	}

	// Full resync after compaction or a snapshot restore: send the current
	// state as commands. The read lock blocks writers, so the dump, the
	// last sequence and the attach point are one consistent cut.
	d.mu.RLock()
	lastSeq := d.log.LastSeq()
	q, _, err := d.log.Attach(lastSeq + 1)
	if err != nil {
		d.mu.RUnlock()
		return nil, err
	}
	entries := d.store.Dump()
	d.mu.RUnlock()

	return &syncResult{
		baseSeq:   lastSeq,
		stateCmds: synthesizeState(entries),
		queue:     q,
	}, nil
}

// stateBatchSize bounds the number of items per synthesized list or set
// command so every command stays within the decoder's element limit.
const stateBatchSize = 512

// synthesizeState renders dumped entries as the command sequence that
// recreates them on an empty store.
func synthesizeState(entries []db.Entry) []proto.Command {
	cmds := make([]proto.Command, 0, len(entries)+1)
	cmds = append(cmds, proto.NewCommand("FLUSHALL"))

	for _, entry := range entries {
		switch entry.Kind {
		case db.KindString:
			cmds = append(cmds, proto.Command{[]byte("SET"), []byte(entry.Key), entry.Str})

		case db.KindList:
			cmds = appendItemBatches(cmds, "RPUSH", entry.Key, entry.Items)

		case db.KindSet:
			cmds = appendItemBatches(cmds, "SADD", entry.Key, entry.Items)
		}
	}

	return cmds
}

// appendItemBatches splits a collection into commands of at most
// stateBatchSize items each.
func appendItemBatches(cmds []proto.Command, verb, key string, items [][]byte) []proto.Command {
	for start := 0; start < len(items); start += stateBatchSize {
		end := start + stateBatchSize
		if end > len(items) {
			end = len(items)
		}

		cmd := make(proto.Command, 0, end-start+2)
		cmd = append(cmd, []byte(verb), []byte(key))
		cmd = append(cmd, items[start:end]...)
		cmds = append(cmds, cmd)
	}
	return cmds
}
