package server

import (
	"strings"

	"github.com/ValentinKolb/rKV/lib/db"
	"github.com/ValentinKolb/rKV/resp/proto"
)

// The handlers below implement the verb table. Read handlers run under the
// dispatcher's read lock, write handlers under the write lock; none of them
// perform network I/O. The second return value is the dirty flag (see
// commandSpec).

// --------------------------------------------------------------------------
// Connection commands
// --------------------------------------------------------------------------

func handlePing(d *Dispatcher, cmd proto.Command) (proto.Reply, bool) {
	if len(cmd) == 2 {
		return proto.NewBulkReply(cmd[1]), false
	}
	return proto.NewSimpleReply("PONG"), false
}

func handleEcho(d *Dispatcher, cmd proto.Command) (proto.Reply, bool) {
	return proto.NewBulkReply(cmd[1]), false
}

// --------------------------------------------------------------------------
// String commands
// --------------------------------------------------------------------------

func handleSet(d *Dispatcher, cmd proto.Command) (proto.Reply, bool) {
	d.store.Set(string(cmd[1]), cmd[2])
	return proto.NewSimpleReply("OK"), true
}

func handleGet(d *Dispatcher, cmd proto.Command) (proto.Reply, bool) {
	value, found, err := d.store.Get(string(cmd[1]))
	if err != nil {
		return storeErrorReply(err), false
	}
	if !found {
		d.metrics.keyspaceMisses.Inc()
		return proto.NewNullReply(), false
	}

	d.metrics.keyspaceHits.Inc()
	return proto.NewBulkReply(value), false
}

// --------------------------------------------------------------------------
// Generic key commands
// --------------------------------------------------------------------------

func handleDel(d *Dispatcher, cmd proto.Command) (proto.Reply, bool) {
	deleted := 0
	for _, key := range cmd.Args() {
		if d.store.Delete(string(key)) {
			deleted++
		}
	}
	return proto.NewIntegerReply(int64(deleted)), deleted > 0
}

func handleExists(d *Dispatcher, cmd proto.Command) (proto.Reply, bool) {
	present := 0
	for _, key := range cmd.Args() {
		if d.store.Exists(string(key)) {
			present++
		}
	}
	return proto.NewIntegerReply(int64(present)), false
}

func handleType(d *Dispatcher, cmd proto.Command) (proto.Reply, bool) {
	kind, _ := d.store.Type(string(cmd[1]))
	return proto.NewSimpleReply(kind.String()), false
}

func handleKeys(d *Dispatcher, cmd proto.Command) (proto.Reply, bool) {
	keys := d.store.Keys(string(cmd[1]))

	elems := make([]proto.Reply, len(keys))
	for i, key := range keys {
		elems[i] = proto.NewBulkReply([]byte(key))
	}
	return proto.NewArrayReply(elems...), false
}

// --------------------------------------------------------------------------
// List commands
// --------------------------------------------------------------------------

func handleLPush(d *Dispatcher, cmd proto.Command) (proto.Reply, bool) {
	return handlePush(d, cmd, true)
}

func handleRPush(d *Dispatcher, cmd proto.Command) (proto.Reply, bool) {
	return handlePush(d, cmd, false)
}

func handlePush(d *Dispatcher, cmd proto.Command, front bool) (proto.Reply, bool) {
	key := string(cmd[1])

	var newLen int
	var err error
	if front {
		newLen, err = d.store.LPush(key, cmd[2:]...)
	} else {
		newLen, err = d.store.RPush(key, cmd[2:]...)
	}
	if err != nil {
		return storeErrorReply(err), false
	}

	return proto.NewIntegerReply(int64(newLen)), true
}

func handleLPop(d *Dispatcher, cmd proto.Command) (proto.Reply, bool) {
	return handlePop(d, cmd, true)
}

func handleRPop(d *Dispatcher, cmd proto.Command) (proto.Reply, bool) {
	return handlePop(d, cmd, false)
}

func handlePop(d *Dispatcher, cmd proto.Command, front bool) (proto.Reply, bool) {
	key := string(cmd[1])

	var value []byte
	var found bool
	var err error
	if front {
		value, found, err = d.store.LPop(key)
	} else {
		value, found, err = d.store.RPop(key)
	}
	if err != nil {
		return storeErrorReply(err), false
	}
	if !found {
		return proto.NewNullReply(), false
	}

	return proto.NewBulkReply(value), true
}

// --------------------------------------------------------------------------
// Set commands
// --------------------------------------------------------------------------

func handleSAdd(d *Dispatcher, cmd proto.Command) (proto.Reply, bool) {
	added, err := d.store.SAdd(string(cmd[1]), cmd[2:]...)
	if err != nil {
		return storeErrorReply(err), false
	}
	return proto.NewIntegerReply(int64(added)), added > 0
}

func handleSRem(d *Dispatcher, cmd proto.Command) (proto.Reply, bool) {
	removed, err := d.store.SRem(string(cmd[1]), cmd[2:]...)
	if err != nil {
		return storeErrorReply(err), false
	}
	return proto.NewIntegerReply(int64(removed)), removed > 0
}

func handleSMembers(d *Dispatcher, cmd proto.Command) (proto.Reply, bool) {
	members, err := d.store.SMembers(string(cmd[1]))
	if err != nil {
		return storeErrorReply(err), false
	}

	elems := make([]proto.Reply, len(members))
	for i, member := range members {
		elems[i] = proto.NewBulkReply(member)
	}
	return proto.NewArrayReply(elems...), false
}

// --------------------------------------------------------------------------
// Database commands
// --------------------------------------------------------------------------

func handleDBSize(d *Dispatcher, cmd proto.Command) (proto.Reply, bool) {
	return proto.NewIntegerReply(int64(d.store.Len())), false
}

func handleFlushAll(d *Dispatcher, cmd proto.Command) (proto.Reply, bool) {
	dirty := d.store.Len() > 0
	d.store.Flush()
	return proto.NewSimpleReply("OK"), dirty
}

func handleInfo(d *Dispatcher, cmd proto.Command) (proto.Reply, bool) {
	section := ""
	if len(cmd) == 2 {
		section = strings.ToLower(string(cmd[1]))
	}
	return proto.NewBulkReply([]byte(d.renderInfo(section))), false
}

// handleSave manages locking itself (manualLock): the capture runs under the
// read lock inside Save, the file write happens after release.
func handleSave(d *Dispatcher, cmd proto.Command) (proto.Reply, bool) {
	if err := d.Save(); err != nil {
		return proto.NewErrorReply("ERR " + err.Error()), false
	}
	return proto.NewSimpleReply("OK"), false
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// storeErrorReply converts a store error to its wire form. WrongType has a
// fixed text matching real servers, everything else becomes a generic ERR.
func storeErrorReply(err error) proto.Reply {
	if db.IsWrongType(err) {
		return proto.NewErrorReply("WRONGTYPE Operation against a key holding the wrong kind of value")
	}
	return proto.NewErrorReply("ERR " + err.Error())
}
