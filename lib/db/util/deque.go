// Package util
//
// This file provides a double-ended queue backing the list value type.
//
// The implementation is a growable ring buffer: elements live in a
// contiguous slice addressed modulo its capacity, so both ends support
// constant-time amortized push and pop without shifting elements.
//
// Key advantages of this implementation:
//
// 1. Time Complexity:
//   - O(1) amortized for PushFront, PushBack, PopFront, PopBack
//   - O(1) for Len and indexed access
//   - O(n) only for Snapshot, which copies the elements out
//
// 2. Memory Efficiency:
//   - One backing slice, no per-element nodes or pointers
//   - Capacity doubles on demand starting from a small minimum
//   - Popped slots are cleared so the garbage collector can reclaim
//     large values immediately
//
// 3. Concurrency Considerations:
//   - Note: This implementation is not thread-safe by default
//   - For concurrent use, external synchronization should be applied
//     (the rowan engine mutates deques inside per-key map closures)
package util

// minDequeCap is the initial capacity allocated on the first push.
const minDequeCap = 8

// Deque is a double-ended queue of byte strings backed by a ring buffer.
type Deque struct {
	buf   [][]byte
	head  int // index of the first element
	count int // number of elements
}

// NewDeque creates an empty deque.
func NewDeque() *Deque {
	return &Deque{}
}

// Len returns the number of elements.
func (d *Deque) Len() int {
	return d.count
}

// PushFront inserts value at the left end.
func (d *Deque) PushFront(value []byte) {
	d.grow()
	d.head = d.wrap(d.head - 1)
	d.buf[d.head] = value
	d.count++
}

// PushBack inserts value at the right end.
func (d *Deque) PushBack(value []byte) {
	d.grow()
	d.buf[d.wrap(d.head+d.count)] = value
	d.count++
}

// PopFront removes and returns the leftmost element.
func (d *Deque) PopFront() ([]byte, bool) {
	if d.count == 0 {
		return nil, false
	}
	value := d.buf[d.head]
	d.buf[d.head] = nil
	d.head = d.wrap(d.head + 1)
	d.count--
	return value, true
}

// PopBack removes and returns the rightmost element.
func (d *Deque) PopBack() ([]byte, bool) {
	if d.count == 0 {
		return nil, false
	}
	idx := d.wrap(d.head + d.count - 1)
	value := d.buf[idx]
	d.buf[idx] = nil
	d.count--
	return value, true
}

// At returns the element at position i (0 = leftmost) without removing it.
func (d *Deque) At(i int) ([]byte, bool) {
	if i < 0 || i >= d.count {
		return nil, false
	}
	return d.buf[d.wrap(d.head+i)], true
}

// Snapshot copies the elements out in left-to-right order. The element
// slices themselves are deep-copied so the caller can hold them without
// synchronization.
func (d *Deque) Snapshot() [][]byte {
	out := make([][]byte, d.count)
	for i := 0; i < d.count; i++ {
		out[i] = CloneBytes(d.buf[d.wrap(d.head+i)])
	}
	return out
}

// wrap maps a possibly out-of-range index into the backing slice.
func (d *Deque) wrap(i int) int {
	n := len(d.buf)
	if n == 0 {
		return 0
	}
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

// grow doubles the backing slice when full, unwinding the ring into the
// fresh slice so the head starts at zero again.
func (d *Deque) grow() {
	if d.count < len(d.buf) {
		return
	}
	newCap := len(d.buf) * 2
	if newCap == 0 {
		newCap = minDequeCap
	}
	buf := make([][]byte, newCap)
	for i := 0; i < d.count; i++ {
		buf[i] = d.buf[d.wrap(d.head+i)]
	}
	d.buf = buf
	d.head = 0
}
