package server

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ValentinKolb/rKV/lib/db"
	"github.com/ValentinKolb/rKV/lib/db/engines/rowan"
	"github.com/ValentinKolb/rKV/lib/db/snapshot"
	"github.com/ValentinKolb/rKV/resp/proto"
	"github.com/ValentinKolb/rKV/resp/replication"
)

// newTestDispatcher creates a dispatcher backed by a fresh store and a log
// with the given backlog bound (0 = unbounded).
func newTestDispatcher(backlog int, opts *DispatcherOptions) *Dispatcher {
	return NewDispatcher(rowan.NewRowanDB(nil), replication.NewLog(backlog), opts)
}

// dispatch runs a command built from string arguments.
func dispatch(d *Dispatcher, args ...string) proto.Reply {
	return d.Dispatch(proto.NewCommand(args...))
}

func expectSimple(t *testing.T, reply proto.Reply, want string) {
	t.Helper()
	if reply.Type != proto.ReplySimple || reply.Str != want {
		t.Errorf("Expected simple reply %q, got %v", want, reply)
	}
}

func expectBulk(t *testing.T, reply proto.Reply, want string) {
	t.Helper()
	if reply.Type != proto.ReplyBulk || reply.Bulk == nil || string(reply.Bulk) != want {
		t.Errorf("Expected bulk reply %q, got %v", want, reply)
	}
}

func expectInteger(t *testing.T, reply proto.Reply, want int64) {
	t.Helper()
	if reply.Type != proto.ReplyInteger || reply.Int != want {
		t.Errorf("Expected integer reply %d, got %v", want, reply)
	}
}

func expectNull(t *testing.T, reply proto.Reply) {
	t.Helper()
	if !reply.IsNull() {
		t.Errorf("Expected null reply, got %v", reply)
	}
}

func expectErrorText(t *testing.T, reply proto.Reply, want string) {
	t.Helper()
	if reply.Type != proto.ReplyError || reply.Str != want {
		t.Errorf("Expected error reply %q, got %v", want, reply)
	}
}

// --------------------------------------------------------------------------
// Command semantics
// --------------------------------------------------------------------------

func TestDispatchBasicCommands(t *testing.T) {
	d := newTestDispatcher(0, nil)

	t.Run("Ping", func(t *testing.T) {
		expectSimple(t, dispatch(d, "PING"), "PONG")
		expectBulk(t, dispatch(d, "PING", "hello"), "hello")
	})

	t.Run("Echo", func(t *testing.T) {
		expectBulk(t, dispatch(d, "ECHO", "echo me"), "echo me")
	})

	t.Run("SetGet", func(t *testing.T) {
		expectSimple(t, dispatch(d, "SET", "greeting", "hello"), "OK")
		expectBulk(t, dispatch(d, "GET", "greeting"), "hello")
		expectNull(t, dispatch(d, "GET", "no-such-key"))
	})

	t.Run("SetOverwrites", func(t *testing.T) {
		dispatch(d, "SET", "counter", "1")
		dispatch(d, "SET", "counter", "2")
		expectBulk(t, dispatch(d, "GET", "counter"), "2")
	})

	t.Run("DelExists", func(t *testing.T) {
		dispatch(d, "SET", "doomed", "x")
		expectInteger(t, dispatch(d, "EXISTS", "doomed", "no-such-key"), 1)
		expectInteger(t, dispatch(d, "DEL", "doomed", "no-such-key"), 1)
		expectInteger(t, dispatch(d, "EXISTS", "doomed"), 0)
	})

	t.Run("Type", func(t *testing.T) {
		dispatch(d, "SET", "t-str", "v")
		dispatch(d, "RPUSH", "t-list", "v")
		dispatch(d, "SADD", "t-set", "v")

		expectSimple(t, dispatch(d, "TYPE", "t-str"), "string")
		expectSimple(t, dispatch(d, "TYPE", "t-list"), "list")
		expectSimple(t, dispatch(d, "TYPE", "t-set"), "set")
		expectSimple(t, dispatch(d, "TYPE", "no-such-key"), "none")
	})

	t.Run("Keys", func(t *testing.T) {
		d := newTestDispatcher(0, nil)
		dispatch(d, "SET", "user:1", "a")
		dispatch(d, "SET", "user:2", "b")
		dispatch(d, "SET", "other", "c")

		reply := dispatch(d, "KEYS", "user:*")
		if reply.Type != proto.ReplyArray || len(reply.Elems) != 2 {
			t.Fatalf("Expected 2 matching keys, got %v", reply)
		}
		reply = dispatch(d, "KEYS", "*")
		if len(reply.Elems) != 3 {
			t.Errorf("Expected 3 keys for *, got %d", len(reply.Elems))
		}
	})

	t.Run("ListOps", func(t *testing.T) {
		d := newTestDispatcher(0, nil)
		expectInteger(t, dispatch(d, "RPUSH", "queue", "b"), 1)
		expectInteger(t, dispatch(d, "LPUSH", "queue", "a"), 2)
		expectInteger(t, dispatch(d, "RPUSH", "queue", "c", "d"), 4)

		expectBulk(t, dispatch(d, "LPOP", "queue"), "a")
		expectBulk(t, dispatch(d, "RPOP", "queue"), "d")
		expectBulk(t, dispatch(d, "LPOP", "queue"), "b")
		expectBulk(t, dispatch(d, "LPOP", "queue"), "c")

		// List is now gone, pops turn into null replies
		expectNull(t, dispatch(d, "LPOP", "queue"))
		expectNull(t, dispatch(d, "RPOP", "queue"))
		expectInteger(t, dispatch(d, "EXISTS", "queue"), 0)
	})

	t.Run("SetOps", func(t *testing.T) {
		d := newTestDispatcher(0, nil)
		expectInteger(t, dispatch(d, "SADD", "tags", "go", "db"), 2)
		expectInteger(t, dispatch(d, "SADD", "tags", "go", "net"), 1)

		reply := dispatch(d, "SMEMBERS", "tags")
		if reply.Type != proto.ReplyArray || len(reply.Elems) != 3 {
			t.Fatalf("Expected 3 members, got %v", reply)
		}

		expectInteger(t, dispatch(d, "SREM", "tags", "go", "missing"), 1)
		expectInteger(t, dispatch(d, "SREM", "tags", "db", "net"), 2)

		// Removing the last member deletes the key
		expectInteger(t, dispatch(d, "EXISTS", "tags"), 0)
		reply = dispatch(d, "SMEMBERS", "tags")
		if reply.Type != proto.ReplyArray || len(reply.Elems) != 0 {
			t.Errorf("Expected empty array for missing set, got %v", reply)
		}
	})

	t.Run("DBSizeFlushAll", func(t *testing.T) {
		d := newTestDispatcher(0, nil)
		dispatch(d, "SET", "a", "1")
		dispatch(d, "RPUSH", "b", "1")
		expectInteger(t, dispatch(d, "DBSIZE"), 2)

		expectSimple(t, dispatch(d, "FLUSHALL"), "OK")
		expectInteger(t, dispatch(d, "DBSIZE"), 0)
	})
}

func TestDispatchErrors(t *testing.T) {
	d := newTestDispatcher(0, nil)

	t.Run("UnknownCommand", func(t *testing.T) {
		expectErrorText(t, dispatch(d, "NOSUCH"), "ERR unknown command 'NOSUCH'")
		// The verb is echoed back exactly as received
		expectErrorText(t, dispatch(d, "NoSuch", "arg"), "ERR unknown command 'NoSuch'")
	})

	t.Run("EmptyCommand", func(t *testing.T) {
		expectErrorText(t, d.Dispatch(proto.Command{}), "ERR empty command")
	})

	t.Run("Arity", func(t *testing.T) {
		cases := []struct {
			args []string
			verb string
		}{
			{[]string{"GET"}, "get"},
			{[]string{"GET", "a", "b"}, "get"},
			{[]string{"SET", "a"}, "set"},
			{[]string{"SET", "a", "b", "c"}, "set"},
			{[]string{"PING", "a", "b"}, "ping"},
			{[]string{"DEL"}, "del"},
			{[]string{"LPUSH", "list"}, "lpush"},
			{[]string{"SADD", "set"}, "sadd"},
			{[]string{"DBSIZE", "extra"}, "dbsize"},
			{[]string{"gEt"}, "get"},
		}

		for _, tc := range cases {
			want := fmt.Sprintf("ERR wrong number of arguments for '%s' command", tc.verb)
			expectErrorText(t, dispatch(d, tc.args...), want)
		}
	})

	t.Run("WrongType", func(t *testing.T) {
		const wrongType = "WRONGTYPE Operation against a key holding the wrong kind of value"

		dispatch(d, "SET", "str-key", "v")
		dispatch(d, "RPUSH", "list-key", "v")

		expectErrorText(t, dispatch(d, "LPUSH", "str-key", "x"), wrongType)
		expectErrorText(t, dispatch(d, "GET", "list-key"), wrongType)
		expectErrorText(t, dispatch(d, "SADD", "list-key", "x"), wrongType)
		expectErrorText(t, dispatch(d, "SMEMBERS", "str-key"), wrongType)
	})
}

// --------------------------------------------------------------------------
// Propagation
// --------------------------------------------------------------------------

func TestDispatchPropagation(t *testing.T) {
	// Each case runs against a fresh dispatcher pre-loaded via setup and
	// checks whether the command under test lands in the replication log.
	cases := []struct {
		name      string
		setup     [][]string
		cmd       []string
		propagate bool
	}{
		{"Set", nil, []string{"SET", "k", "v"}, true},
		{"Get", [][]string{{"SET", "k", "v"}}, []string{"GET", "k"}, false},
		{"DelExisting", [][]string{{"SET", "k", "v"}}, []string{"DEL", "k"}, true},
		{"DelMissing", nil, []string{"DEL", "k"}, false},
		{"SAddNew", nil, []string{"SADD", "s", "m"}, true},
		{"SAddDuplicate", [][]string{{"SADD", "s", "m"}}, []string{"SADD", "s", "m"}, false},
		{"SRemMissing", [][]string{{"SADD", "s", "m"}}, []string{"SREM", "s", "other"}, false},
		{"LPopEmpty", nil, []string{"LPOP", "l"}, false},
		{"RPushAlways", [][]string{{"RPUSH", "l", "a"}}, []string{"RPUSH", "l", "b"}, true},
		{"FlushAllEmpty", nil, []string{"FLUSHALL"}, false},
		{"FlushAllWithData", [][]string{{"SET", "k", "v"}}, []string{"FLUSHALL"}, true},
		{"FailedWrite", [][]string{{"SET", "k", "v"}}, []string{"LPUSH", "k", "x"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := newTestDispatcher(0, nil)
			for _, args := range tc.setup {
				dispatch(d, args...)
			}

			before := d.log.LastSeq()
			dispatch(d, tc.cmd...)
			after := d.log.LastSeq()

			if tc.propagate && after != before+1 {
				t.Errorf("Expected command to be appended to the log (seq %d -> %d)", before, after)
			}
			if !tc.propagate && after != before {
				t.Errorf("Expected command not to be appended to the log (seq %d -> %d)", before, after)
			}
		})
	}

	t.Run("RecordsCarryTheCommand", func(t *testing.T) {
		d := newTestDispatcher(0, nil)
		dispatch(d, "SET", "k", "v")

		records, err := d.log.RecordsFrom(1)
		if err != nil {
			t.Fatalf("Failed to read log: %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("Expected 1 record, got %d", len(records))
		}
		if records[0].Seq != 1 || records[0].Cmd.String() != "SET k v" {
			t.Errorf("Unexpected record: seq=%d cmd=%q", records[0].Seq, records[0].Cmd.String())
		}
	})
}

// --------------------------------------------------------------------------
// Replica mode
// --------------------------------------------------------------------------

func TestDispatchReadOnly(t *testing.T) {
	d := newTestDispatcher(0, &DispatcherOptions{ReadOnly: true})

	t.Run("WritesRejected", func(t *testing.T) {
		expectErrorText(t, dispatch(d, "SET", "k", "v"),
			"READONLY You can't write against a read only replica.")
		expectNull(t, dispatch(d, "GET", "k"))
		if got := d.log.LastSeq(); got != 0 {
			t.Errorf("Rejected write must not reach the log, last seq = %d", got)
		}
	})

	t.Run("ReadsAllowed", func(t *testing.T) {
		expectSimple(t, dispatch(d, "PING"), "PONG")
		expectInteger(t, dispatch(d, "DBSIZE"), 0)
	})

	t.Run("ApplyBypassesReadOnly", func(t *testing.T) {
		expectSimple(t, d.Apply(proto.NewCommand("SET", "k", "v")), "OK")
		expectBulk(t, dispatch(d, "GET", "k"), "v")
	})

	t.Run("ApplyChainsIntoOwnLog", func(t *testing.T) {
		// Applied commands are re-sequenced so a downstream replica can
		// attach to this one.
		d.Apply(proto.NewCommand("SET", "k2", "v2"))
		d.Apply(proto.NewCommand("DEL", "k2"))

		if got := d.log.LastSeq(); got != 3 {
			t.Errorf("Expected 3 applied commands in the log, last seq = %d", got)
		}
	})

	t.Run("ApplyOfReadDoesNotPropagate", func(t *testing.T) {
		before := d.log.LastSeq()
		expectBulk(t, d.Apply(proto.NewCommand("GET", "k")), "v")
		if got := d.log.LastSeq(); got != before {
			t.Errorf("Applied read must not reach the log, last seq = %d", got)
		}
	})
}

// --------------------------------------------------------------------------
// Snapshot persistence
// --------------------------------------------------------------------------

func TestDispatchSnapshot(t *testing.T) {
	t.Run("Disabled", func(t *testing.T) {
		d := newTestDispatcher(0, nil)
		if err := d.Save(); err == nil {
			t.Error("Expected Save to fail without a snapshot store")
		}
		if seq, err := d.LoadSnapshot(); seq != 0 || err != nil {
			t.Errorf("Expected LoadSnapshot no-op, got seq=%d err=%v", seq, err)
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		files := snapshot.NewFileStore(filepath.Join(t.TempDir(), "dump.rkv"), snapshot.NewBinaryCodec())
		d := newTestDispatcher(0, &DispatcherOptions{Snapshots: files})
		if seq, err := d.LoadSnapshot(); seq != 0 || err != nil {
			t.Errorf("Expected LoadSnapshot to report no snapshot, got seq=%d err=%v", seq, err)
		}
	})

	t.Run("RoundTrip", func(t *testing.T) {
		files := snapshot.NewFileStore(filepath.Join(t.TempDir(), "dump.rkv"), snapshot.NewBinaryCodec())

		d1 := newTestDispatcher(0, &DispatcherOptions{Snapshots: files})
		dispatch(d1, "SET", "greeting", "hello")
		dispatch(d1, "RPUSH", "queue", "a", "b", "c")
		dispatch(d1, "SADD", "tags", "x", "y")
		savedSeq := d1.log.LastSeq()

		if err := d1.Save(); err != nil {
			t.Fatalf("Failed to save snapshot: %v", err)
		}

		d2 := newTestDispatcher(0, &DispatcherOptions{Snapshots: files})
		seq, err := d2.LoadSnapshot()
		if err != nil {
			t.Fatalf("Failed to load snapshot: %v", err)
		}
		if seq != savedSeq {
			t.Errorf("Expected restored seq %d, got %d", savedSeq, seq)
		}

		// The log resumes after the restored sequence
		if got := d2.log.LastSeq(); got != savedSeq {
			t.Errorf("Expected log to resume at seq %d, got %d", savedSeq, got)
		}

		expectBulk(t, dispatch(d2, "GET", "greeting"), "hello")
		expectInteger(t, dispatch(d2, "SADD", "tags", "x"), 0)
		expectInteger(t, dispatch(d2, "DBSIZE"), 3)

		// The next propagated write continues the sequence
		expectBulk(t, dispatch(d2, "LPOP", "queue"), "a")
		if got := d2.log.LastSeq(); got != savedSeq+1 {
			t.Errorf("Expected next write at seq %d, got %d", savedSeq+1, got)
		}
	})
}

// --------------------------------------------------------------------------
// Follower attachment
// --------------------------------------------------------------------------

// fillLog runs n SET commands so the log holds sequences 1..n.
func fillLog(d *Dispatcher, n int) {
	for i := 1; i <= n; i++ {
		dispatch(d, "SET", fmt.Sprintf("key-%d", i), fmt.Sprintf("val-%d", i))
	}
}

func TestFollowerAttach(t *testing.T) {
	t.Run("PartialResync", func(t *testing.T) {
		d := newTestDispatcher(0, nil)
		fillLog(d, 5)

		res, err := d.followerAttach(3)
		if err != nil {
			t.Fatalf("Failed to attach: %v", err)
		}
		defer d.log.Detach(res.queue)

		if res.baseSeq != 2 || len(res.stateCmds) != 0 {
			t.Errorf("Expected baseSeq=2 without state, got baseSeq=%d state=%d", res.baseSeq, len(res.stateCmds))
		}
		if len(res.backlog) != 3 || res.backlog[0].Seq != 3 || res.backlog[2].Seq != 5 {
			t.Errorf("Expected backlog seqs 3..5, got %d records", len(res.backlog))
		}
	})

	t.Run("FullReplayFromIntactLog", func(t *testing.T) {
		d := newTestDispatcher(0, nil)
		fillLog(d, 5)

		res, err := d.followerAttach(0)
		if err != nil {
			t.Fatalf("Failed to attach: %v", err)
		}
		defer d.log.Detach(res.queue)

		if res.baseSeq != 0 || len(res.stateCmds) != 0 {
			t.Errorf("Expected full replay without state, got baseSeq=%d state=%d", res.baseSeq, len(res.stateCmds))
		}
		if len(res.backlog) != 5 || res.backlog[0].Seq != 1 {
			t.Errorf("Expected backlog seqs 1..5, got %d records", len(res.backlog))
		}
	})

	t.Run("StaleOffset", func(t *testing.T) {
		d := newTestDispatcher(4, nil)
		fillLog(d, 10)

		if _, err := d.followerAttach(1); !errors.Is(err, replication.ErrStaleOffset) {
			t.Errorf("Expected ErrStaleOffset, got %v", err)
		}
	})

	t.Run("FullResyncAfterCompaction", func(t *testing.T) {
		d := newTestDispatcher(4, nil)
		fillLog(d, 10)
		dispatch(d, "RPUSH", "queue", "a", "b")
		dispatch(d, "SADD", "tags", "x")

		res, err := d.followerAttach(0)
		if err != nil {
			t.Fatalf("Failed to attach: %v", err)
		}
		defer d.log.Detach(res.queue)

		if res.baseSeq != d.log.LastSeq() {
			t.Errorf("Expected baseSeq %d, got %d", d.log.LastSeq(), res.baseSeq)
		}
		if len(res.backlog) != 0 {
			t.Errorf("Expected no backlog after state transfer, got %d records", len(res.backlog))
		}
		if len(res.stateCmds) == 0 || res.stateCmds[0].Verb() != "FLUSHALL" {
			t.Fatalf("Expected state transfer starting with FLUSHALL, got %d commands", len(res.stateCmds))
		}

		// Replaying the synthesized state onto a fresh store reproduces
		// the dataset exactly.
		replica := newTestDispatcher(0, &DispatcherOptions{ReadOnly: true})
		for _, cmd := range res.stateCmds {
			if reply := replica.Apply(cmd); reply.Type == proto.ReplyError {
				t.Fatalf("State command %q failed: %s", cmd.String(), reply.Str)
			}
		}
		expectBulk(t, dispatch(replica, "GET", "key-10"), "val-10")
		expectBulk(t, dispatch(replica, "GET", "key-1"), "val-1")
		expectInteger(t, dispatch(replica, "DBSIZE"), 12)
	})

	t.Run("FullResyncAfterRestore", func(t *testing.T) {
		// After a snapshot restore the log is empty but starts past 1, so
		// a full resync must fall back to state transfer.
		files := snapshot.NewFileStore(filepath.Join(t.TempDir(), "dump.rkv"), snapshot.NewBinaryCodec())

		d1 := newTestDispatcher(0, &DispatcherOptions{Snapshots: files})
		fillLog(d1, 3)
		if err := d1.Save(); err != nil {
			t.Fatalf("Failed to save snapshot: %v", err)
		}

		d2 := newTestDispatcher(0, &DispatcherOptions{Snapshots: files})
		if _, err := d2.LoadSnapshot(); err != nil {
			t.Fatalf("Failed to load snapshot: %v", err)
		}

		res, err := d2.followerAttach(0)
		if err != nil {
			t.Fatalf("Failed to attach: %v", err)
		}
		defer d2.log.Detach(res.queue)

		if res.baseSeq != 3 || len(res.stateCmds) != 4 {
			t.Errorf("Expected baseSeq=3 with FLUSHALL+3 commands, got baseSeq=%d state=%d",
				res.baseSeq, len(res.stateCmds))
		}
	})

	t.Run("LiveRecordsReachTheQueue", func(t *testing.T) {
		d := newTestDispatcher(0, nil)
		fillLog(d, 2)

		res, err := d.followerAttach(1)
		if err != nil {
			t.Fatalf("Failed to attach: %v", err)
		}

		dispatch(d, "SET", "live", "v")

		rec := <-res.queue.Recv()
		if rec.Seq != 3 || rec.Cmd.String() != "SET live v" {
			t.Errorf("Unexpected live record: seq=%d cmd=%q", rec.Seq, rec.Cmd.String())
		}

		d.log.Detach(res.queue)
		for range res.queue.Recv() {
		}
	})
}

func TestSynthesizeState(t *testing.T) {
	t.Run("Batching", func(t *testing.T) {
		items := make([][]byte, 1200)
		for i := range items {
			items[i] = []byte(fmt.Sprintf("item-%04d", i))
		}
		entries := []db.Entry{{Key: "big-list", Kind: db.KindList, Items: items}}

		cmds := synthesizeState(entries)

		// FLUSHALL plus ceil(1200/512) = 3 batches
		if len(cmds) != 4 {
			t.Fatalf("Expected 4 commands, got %d", len(cmds))
		}
		var rebuilt []string
		for _, cmd := range cmds[1:] {
			if cmd.Verb() != "RPUSH" || string(cmd[1]) != "big-list" {
				t.Fatalf("Unexpected command %q", cmd.String())
			}
			if len(cmd)-2 > stateBatchSize {
				t.Fatalf("Batch of %d items exceeds limit %d", len(cmd)-2, stateBatchSize)
			}
			for _, item := range cmd[2:] {
				rebuilt = append(rebuilt, string(item))
			}
		}
		if len(rebuilt) != 1200 || rebuilt[0] != "item-0000" || rebuilt[1199] != "item-1199" {
			t.Errorf("Batches do not preserve list order (%d items)", len(rebuilt))
		}
	})

	t.Run("AllKinds", func(t *testing.T) {
		entries := []db.Entry{
			{Key: "s", Kind: db.KindString, Str: []byte("v")},
			{Key: "l", Kind: db.KindList, Items: [][]byte{[]byte("a")}},
			{Key: "m", Kind: db.KindSet, Items: [][]byte{[]byte("x")}},
		}

		cmds := synthesizeState(entries)
		if len(cmds) != 4 {
			t.Fatalf("Expected 4 commands, got %d", len(cmds))
		}

		verbs := make([]string, 0, len(cmds))
		for _, cmd := range cmds {
			verbs = append(verbs, cmd.Verb())
		}
		if verbs[0] != "FLUSHALL" {
			t.Errorf("Expected FLUSHALL first, got %v", verbs)
		}
		joined := strings.Join(verbs, " ")
		for _, verb := range []string{"SET", "RPUSH", "SADD"} {
			if !strings.Contains(joined, verb) {
				t.Errorf("Expected a %s command, got %v", verb, verbs)
			}
		}
	})
}

// --------------------------------------------------------------------------
// INFO rendering
// --------------------------------------------------------------------------

func TestRenderInfo(t *testing.T) {
	d := newTestDispatcher(0, nil)
	dispatch(d, "SET", "k", "v")

	t.Run("AllSections", func(t *testing.T) {
		info := d.renderInfo("")
		for _, want := range []string{
			"# Server", "# Clients", "# Memory", "# Stats", "# Replication", "# Keyspace",
			"rkv_version:" + Version,
			"role:leader",
			"db0:keys=1",
		} {
			if !strings.Contains(info, want) {
				t.Errorf("Expected INFO to contain %q:\n%s", want, info)
			}
		}
	})

	t.Run("SingleSection", func(t *testing.T) {
		info := d.renderInfo("replication")
		if !strings.Contains(info, "# Replication") || !strings.Contains(info, "last_seq:1") {
			t.Errorf("Expected replication section, got:\n%s", info)
		}
		if strings.Contains(info, "# Server") {
			t.Errorf("Expected only the replication section, got:\n%s", info)
		}
	})

	t.Run("ReplicaRole", func(t *testing.T) {
		replica := newTestDispatcher(0, &DispatcherOptions{ReadOnly: true})
		if info := replica.renderInfo("replication"); !strings.Contains(info, "role:replica") {
			t.Errorf("Expected replica role, got:\n%s", info)
		}
	})

	t.Run("ViaDispatch", func(t *testing.T) {
		reply := dispatch(d, "INFO", "server")
		if reply.Type != proto.ReplyBulk || !strings.Contains(string(reply.Bulk), "rkv_version") {
			t.Errorf("Expected bulk INFO reply, got %v", reply)
		}
	})
}
