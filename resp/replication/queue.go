// Package replication
//
// This file provides a lock-free Multi-Producer Single-Consumer (MPSC)
// queue carrying replication records to one follower connection.
//
// Features and Guarantees:
//
//   - Lock-Free: atomic operations for high throughput and low latency even under high contention
//   - Unbounded Size: the queue can grow to any size as needed, limited only by available memory
//   - Small Footprint: minimal memory overhead per record (two pointers per record)
//   - Thread-Safe writes: Allows any number of goroutines to safely Push() concurrently
//   - Single Consumer: Designed for a single goroutine to consume records (via the Recv() channel).
//   - FIFO under a single producer: the log appends records while holding its
//     own mutex, so each follower observes records in strict sequence order.
package replication

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// node represents a single element in the queue
type node struct {
	rec  *Record
	next atomic.Pointer[node]
}

// Queue is a lock-free multi-producer single-consumer queue of replication
// records. Implementation uses a linked list of nodes with atomic operations
// for concurrent push operations without locks.
type Queue struct {
	head     atomic.Pointer[node]
	tail     atomic.Pointer[node]
	out      chan *Record
	consumer sync.WaitGroup
	closed   atomic.Bool

	// Condition variable for efficient waiting
	mu   sync.Mutex
	cond *sync.Cond
}

// NewQueue creates a new lock-free multi-producer single-consumer queue
func NewQueue() *Queue {
	// Create a sentinel node (dummy node at the beginning)
	sentinel := &node{}

	q := &Queue{
		out: make(chan *Record),
	}

	// Initialize condition variable
	q.cond = sync.NewCond(&q.mu)

	// Set the initial head and tail to the sentinel node
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	q.consumer.Add(1)
	go q.consume()

	return q
}

// Push adds a record to the queue.
// Returns true if the record was added, or false if the queue is closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *Queue) Push(rec *Record) bool {

	if rec == nil {
		return false
	}

	if q.closed.Load() {
		return false
	}

	newNode := &node{rec: rec}

	var tailNode *node
	var backoff uint8 = 0

	for {
		tailNode = q.tail.Load()

		// try to atomically append our node to the current tail
		next := tailNode.next.Load()
		if next == nil {
			// the tail has no next node yet, try to append our node
			if tailNode.next.CompareAndSwap(nil, newNode) {
				/*
				 Successfully appended, now try to update tail
				 Note: CAS may fail if another producer helps update tail,
				 but that's okay - tail will still be updated eventually
				*/
				q.tail.CompareAndSwap(tailNode, newNode)

				// Signal the consumer that new data is available
				q.cond.Signal()

				return true
			}
		} else {
			// help update the tail pointer if another producer has already appended a node but hasn't updated the tail yet
			q.tail.CompareAndSwap(tailNode, next)
		}

		/*
		 Exponential backoff strategy to handle contention
		  - At low contention (<10 retries): Use CPU spinning to avoid thread scheduling overhead
		  - At higher contention: Yield the processor to allow other goroutines to make progress
		  - Backoff increases exponentially with each retry, reducing the "thundering herd" problem where all goroutines retry simultaneously after failure
		*/

		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// consume continuously sends records from the linked list to the output channel and frees memory
func (q *Queue) consume() {
	defer q.consumer.Done()
	defer close(q.out)

	for {
		// Process all available records in the queue
		hasItems := false

		// Try to process records
		for {
			head := q.head.Load()
			next := head.next.Load()

			if next == nil {
				break // No more records available
			}

			hasItems = true

			// Capture record before updating pointers
			rec := next.rec

			// move head pointer (free up memory)
			q.head.Store(next)

			// Send the record to the consumer
			q.out <- rec

			// help go gc - safe to clear after sending
			next.rec = nil
		}

		// Exit if closed and no more records
		if !hasItems && q.closed.Load() {
			return
		}

		// If no records were processed, wait for signal
		if !hasItems {
			q.mu.Lock()
			// Double-check condition after acquiring lock
			head := q.head.Load()
			if head.next.Load() == nil && !q.closed.Load() {
				// Wait for signal (releases lock while waiting)
				q.cond.Wait()
			}
			q.mu.Unlock()
		}
	}
}

// Recv returns a receive-only channel for consuming from the queue.
// This allows the queue to be used with the '<-' operator in select statements.
// The channel is closed once the queue is closed and drained.
func (q *Queue) Recv() <-chan *Record {
	return q.out
}

// Close closes the queue, preventing further writes.
// Any records already in the queue will still be delivered to the consumer.
func (q *Queue) Close() {
	q.closed.Store(true)

	// Wake up the consumer if it's waiting
	q.cond.Signal()
}

// IsClosed returns true if the queue is closed.
func (q *Queue) IsClosed() bool {
	return q.closed.Load()
}
