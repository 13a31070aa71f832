package replication

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/rKV/resp/proto"
)

func testCommand(args ...string) proto.Command {
	return proto.NewCommand(args...)
}

// recvOne reads one record from the queue with a timeout
func recvOne(t *testing.T, q *Queue) *Record {
	t.Helper()
	select {
	case rec, ok := <-q.Recv():
		if !ok {
			t.Fatalf("Queue closed while waiting for a record")
		}
		return rec
	case <-time.After(2 * time.Second):
		t.Fatalf("Timeout waiting for a record")
		return nil
	}
}

func TestAppendAssignsSequence(t *testing.T) {
	log := NewLog(0)

	if log.LastSeq() != 0 {
		t.Errorf("Expected LastSeq 0 on empty log, got %d", log.LastSeq())
	}

	for want := uint64(1); want <= 5; want++ {
		seq := log.Append(testCommand("SET", "k", "v"))
		if seq != want {
			t.Errorf("Expected sequence %d, got %d", want, seq)
		}
	}

	if log.LastSeq() != 5 {
		t.Errorf("Expected LastSeq 5, got %d", log.LastSeq())
	}
	if log.FirstSeq() != 1 {
		t.Errorf("Expected FirstSeq 1, got %d", log.FirstSeq())
	}
}

func TestRecordsFrom(t *testing.T) {
	log := NewLog(0)
	for i := 0; i < 5; i++ {
		log.Append(testCommand("SET", "k", "v"))
	}

	t.Run("FromStart", func(t *testing.T) {
		records, err := log.RecordsFrom(1)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(records) != 5 {
			t.Fatalf("Expected 5 records, got %d", len(records))
		}
		for i, rec := range records {
			if rec.Seq != uint64(i+1) {
				t.Errorf("Expected seq %d at position %d, got %d", i+1, i, rec.Seq)
			}
		}
	})

	t.Run("FromMiddle", func(t *testing.T) {
		records, err := log.RecordsFrom(4)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(records) != 2 {
			t.Errorf("Expected 2 records, got %d", len(records))
		}
	})

	t.Run("PastEnd", func(t *testing.T) {
		records, err := log.RecordsFrom(6)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(records) != 0 {
			t.Errorf("Expected no records, got %d", len(records))
		}
	})

	t.Run("BeyondEnd", func(t *testing.T) {
		if _, err := log.RecordsFrom(7); !errors.Is(err, ErrStaleOffset) {
			t.Errorf("Expected ErrStaleOffset, got %v", err)
		}
	})

	t.Run("Zero", func(t *testing.T) {
		if _, err := log.RecordsFrom(0); !errors.Is(err, ErrStaleOffset) {
			t.Errorf("Expected ErrStaleOffset, got %v", err)
		}
	})
}

func TestBacklogCompaction(t *testing.T) {
	log := NewLog(5)
	for i := 0; i < 10; i++ {
		log.Append(testCommand("SET", "k", "v"))
	}

	if log.FirstSeq() != 6 {
		t.Errorf("Expected FirstSeq 6 after compaction, got %d", log.FirstSeq())
	}
	if log.LastSeq() != 10 {
		t.Errorf("Expected LastSeq 10, got %d", log.LastSeq())
	}

	if _, err := log.RecordsFrom(3); !errors.Is(err, ErrStaleOffset) {
		t.Errorf("Expected ErrStaleOffset for trimmed sequence, got %v", err)
	}

	records, err := log.RecordsFrom(6)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(records) != 5 {
		t.Errorf("Expected 5 retained records, got %d", len(records))
	}
	if records[0].Seq != 6 {
		t.Errorf("Expected oldest retained seq 6, got %d", records[0].Seq)
	}
}

func TestAttachBacklogThenLive(t *testing.T) {
	log := NewLog(0)
	for i := 0; i < 3; i++ {
		log.Append(testCommand("SET", "k", "v"))
	}

	q, backlog, err := log.Attach(2)
	if err != nil {
		t.Fatalf("Unexpected error from Attach: %v", err)
	}
	defer log.Detach(q)

	if len(backlog) != 2 {
		t.Fatalf("Expected backlog of 2, got %d", len(backlog))
	}
	if backlog[0].Seq != 2 || backlog[1].Seq != 3 {
		t.Errorf("Expected backlog seqs [2 3], got [%d %d]", backlog[0].Seq, backlog[1].Seq)
	}

	if log.Followers() != 1 {
		t.Errorf("Expected 1 follower, got %d", log.Followers())
	}

	// everything appended after Attach arrives via the queue
	log.Append(testCommand("SET", "k2", "v2"))
	rec := recvOne(t, q)
	if rec.Seq != 4 {
		t.Errorf("Expected live record seq 4, got %d", rec.Seq)
	}
	if rec.Cmd.Verb() != "SET" {
		t.Errorf("Expected SET record, got %s", rec.Cmd.Verb())
	}
}

func TestAttachStale(t *testing.T) {
	log := NewLog(2)
	for i := 0; i < 5; i++ {
		log.Append(testCommand("SET", "k", "v"))
	}

	if _, _, err := log.Attach(1); !errors.Is(err, ErrStaleOffset) {
		t.Errorf("Expected ErrStaleOffset, got %v", err)
	}
	if log.Followers() != 0 {
		t.Errorf("Failed Attach must not register a follower, got %d", log.Followers())
	}
}

func TestDetachClosesQueue(t *testing.T) {
	log := NewLog(0)

	q, _, err := log.Attach(1)
	if err != nil {
		t.Fatalf("Unexpected error from Attach: %v", err)
	}

	log.Detach(q)

	if log.Followers() != 0 {
		t.Errorf("Expected 0 followers after Detach, got %d", log.Followers())
	}

	select {
	case _, ok := <-q.Recv():
		if ok {
			t.Errorf("Expected closed queue channel after Detach")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Timeout waiting for queue channel to close")
	}
}

func TestReset(t *testing.T) {
	log := NewLog(0)
	for i := 0; i < 3; i++ {
		log.Append(testCommand("SET", "k", "v"))
	}

	log.Reset(10)

	if log.LastSeq() != 10 {
		t.Errorf("Expected LastSeq 10 after Reset, got %d", log.LastSeq())
	}
	if seq := log.Append(testCommand("SET", "k", "v")); seq != 11 {
		t.Errorf("Expected next sequence 11 after Reset, got %d", seq)
	}
	if _, err := log.RecordsFrom(5); !errors.Is(err, ErrStaleOffset) {
		t.Errorf("Expected ErrStaleOffset for pre-reset sequence, got %v", err)
	}
}

// TestConcurrentAppendFanout verifies that concurrent appends reach an
// attached follower exactly once and in strictly increasing order
func TestConcurrentAppendFanout(t *testing.T) {
	log := NewLog(0)

	q, backlog, err := log.Attach(1)
	if err != nil {
		t.Fatalf("Unexpected error from Attach: %v", err)
	}
	if len(backlog) != 0 {
		t.Fatalf("Expected empty backlog, got %d", len(backlog))
	}

	const numProducers = 8
	const appendsPerProducer = 500
	totalRecords := numProducers * appendsPerProducer

	var wg sync.WaitGroup
	wg.Add(numProducers)
	for p := 0; p < numProducers; p++ {
		go func() {
			defer wg.Done()
			for i := 0; i < appendsPerProducer; i++ {
				log.Append(testCommand("SET", "k", "v"))
			}
		}()
	}

	lastSeq := uint64(0)
	for i := 0; i < totalRecords; i++ {
		rec := recvOne(t, q)
		if rec.Seq != lastSeq+1 {
			t.Fatalf("Expected seq %d, got %d", lastSeq+1, rec.Seq)
		}
		lastSeq = rec.Seq
	}

	wg.Wait()
	log.Detach(q)

	if log.LastSeq() != uint64(totalRecords) {
		t.Errorf("Expected LastSeq %d, got %d", totalRecords, log.LastSeq())
	}
}

// TestQueueDeliversAfterClose verifies that records pushed before Close are
// still delivered before the channel closes
func TestQueueDeliversAfterClose(t *testing.T) {
	q := NewQueue()

	for i := uint64(1); i <= 10; i++ {
		if !q.Push(&Record{Seq: i}) {
			t.Fatalf("Failed to push record %d", i)
		}
	}

	q.Close()

	if q.Push(&Record{Seq: 11}) {
		t.Errorf("Expected Push to fail on closed queue")
	}

	received := 0
	for rec := range q.Recv() {
		received++
		if rec.Seq != uint64(received) {
			t.Errorf("Expected seq %d, got %d", received, rec.Seq)
		}
	}
	if received != 10 {
		t.Errorf("Expected 10 records before close, got %d", received)
	}
}
