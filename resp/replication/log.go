package replication

import (
	"errors"
	"sync"

	"github.com/ValentinKolb/rKV/resp/proto"
)

// ErrStaleOffset is returned when a follower requests records outside the
// retained window. The follower must fall back to a full resynchronization.
var ErrStaleOffset = errors.New("requested sequence no longer in backlog")

// --------------------------------------------------------------------------
// Record Type
// --------------------------------------------------------------------------

// Record is one replicated mutation: the command exactly as the writer
// issued it, stamped with the sequence number assigned to it. Records are
// immutable once appended and may be shared between followers.
type Record struct {
	Seq uint64
	Cmd proto.Command
}

// --------------------------------------------------------------------------
// Log Type
// --------------------------------------------------------------------------

// Log is the append-only history of successful mutations. It retains a
// bounded backlog for follower catch-up and fans every appended record out
// to all attached follower queues.
//
// Sequence numbers start at 1 and increase without gaps. The retained
// window is [FirstSeq, LastSeq]; once the backlog bound trims old records,
// followers requesting anything earlier get ErrStaleOffset.
type Log struct {
	mu         sync.Mutex
	records    []*Record
	firstSeq   uint64 // seq of records[0]; == nextSeq when the backlog is empty
	nextSeq    uint64 // seq the next append will be stamped with
	maxRecords int    // backlog bound, 0 = unbounded
	followers  map[*Queue]struct{}
}

// NewLog creates an empty log retaining at most maxRecords records
// (0 = unbounded).
func NewLog(maxRecords int) *Log {
	return &Log{
		firstSeq:   1,
		nextSeq:    1,
		maxRecords: maxRecords,
		followers:  make(map[*Queue]struct{}),
	}
}

// Append stamps the command with the next sequence number, stores it and
// fans it out to every attached follower. It returns the assigned sequence
// number.
//
// The caller must hold its own write exclusion around the state mutation
// and this call, so that log order equals apply order.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (l *Log) Append(cmd proto.Command) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := &Record{Seq: l.nextSeq, Cmd: cmd}
	l.nextSeq++
	l.records = append(l.records, rec)

	// trim the backlog to the configured bound
	if l.maxRecords > 0 && len(l.records) > l.maxRecords {
		drop := len(l.records) - l.maxRecords
		l.records = l.records[drop:]
		l.firstSeq += uint64(drop)
	}

	for q := range l.followers {
		q.Push(rec)
	}

	return rec.Seq
}

// LastSeq returns the sequence number of the most recent mutation,
// 0 if nothing has been appended yet.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (l *Log) LastSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextSeq - 1
}

// FirstSeq returns the oldest retained sequence number. When the backlog is
// empty it equals LastSeq()+1.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (l *Log) FirstSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.firstSeq
}

// RecordsFrom returns all retained records with sequence numbers >= seq, in
// order. A seq just past the end yields an empty slice. A seq before the
// retained window (or beyond the log end) yields ErrStaleOffset.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (l *Log) RecordsFrom(seq uint64) ([]*Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recordsFromLocked(seq)
}

func (l *Log) recordsFromLocked(seq uint64) ([]*Record, error) {
	if seq < l.firstSeq || seq > l.nextSeq {
		return nil, ErrStaleOffset
	}
	if seq == l.nextSeq {
		return nil, nil
	}

	tail := l.records[seq-l.firstSeq:]
	out := make([]*Record, len(tail))
	copy(out, tail)
	return out, nil
}

// Attach registers a new follower that needs every record from seq on. It
// returns the backlog of records already appended plus a queue that will
// deliver everything appended afterwards, with no gap and no duplicate
// between the two.
//
// The caller must detach the queue when the follower goes away.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (l *Log) Attach(seq uint64) (*Queue, []*Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	backlog, err := l.recordsFromLocked(seq)
	if err != nil {
		return nil, nil, err
	}

	// registering under the same lock as Append guarantees that every
	// record lands in exactly one of backlog or queue
	q := NewQueue()
	l.followers[q] = struct{}{}

	return q, backlog, nil
}

// Detach unregisters a follower queue and closes it. Records still queued
// are delivered before the queue's channel closes.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (l *Log) Detach(q *Queue) {
	l.mu.Lock()
	delete(l.followers, q)
	l.mu.Unlock()

	q.Close()
}

// Followers returns the number of currently attached follower queues.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (l *Log) Followers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.followers)
}

// Reset drops the backlog and restarts the log directly after seq, as if
// seq mutations had already happened. Used after restoring a snapshot whose
// history is not available for replay.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (l *Log) Reset(seq uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = nil
	l.firstSeq = seq + 1
	l.nextSeq = seq + 1
}
