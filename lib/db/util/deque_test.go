package util

import (
	"bytes"
	"fmt"
	"testing"
)

// TestNewDeque tests the creation of a new Deque
func TestNewDeque(t *testing.T) {
	d := NewDeque()

	if d == nil {
		t.Fatal("NewDeque() returned nil")
	}

	if d.Len() != 0 {
		t.Errorf("New deque should be empty, but has length %d", d.Len())
	}

	if _, ok := d.PopFront(); ok {
		t.Error("PopFront on empty deque should return ok=false")
	}

	if _, ok := d.PopBack(); ok {
		t.Error("PopBack on empty deque should return ok=false")
	}
}

// TestPushPopOrder tests FIFO and LIFO orderings through both ends
func TestPushPopOrder(t *testing.T) {
	d := NewDeque()

	d.PushBack([]byte("a"))
	d.PushBack([]byte("b"))
	d.PushBack([]byte("c"))

	if d.Len() != 3 {
		t.Fatalf("Deque should have 3 elements, has %d", d.Len())
	}

	// PushBack + PopFront behaves as a FIFO queue
	for _, want := range []string{"a", "b", "c"} {
		got, ok := d.PopFront()
		if !ok {
			t.Fatalf("PopFront should return element %q", want)
		}
		if string(got) != want {
			t.Errorf("Expected %q, got %q", want, got)
		}
	}

	// PushFront + PopFront behaves as a LIFO stack
	d.PushFront([]byte("x"))
	d.PushFront([]byte("y"))

	got, _ := d.PopFront()
	if string(got) != "y" {
		t.Errorf("Expected y, got %q", got)
	}
	got, _ = d.PopBack()
	if string(got) != "x" {
		t.Errorf("Expected x, got %q", got)
	}

	if d.Len() != 0 {
		t.Errorf("Deque should be empty, has %d elements", d.Len())
	}
}

// TestMixedEnds tests interleaved operations on both ends
func TestMixedEnds(t *testing.T) {
	d := NewDeque()

	// Build [b, a] then pop the right end
	d.PushFront([]byte("a"))
	d.PushFront([]byte("b"))

	got, ok := d.PopBack()
	if !ok || string(got) != "a" {
		t.Errorf("Expected a from PopBack, got %q (ok=%v)", got, ok)
	}

	if d.Len() != 1 {
		t.Fatalf("Deque should hold 1 element, has %d", d.Len())
	}

	got, ok = d.At(0)
	if !ok || string(got) != "b" {
		t.Errorf("Expected remaining element b, got %q (ok=%v)", got, ok)
	}
}

// TestGrowth tests that the ring buffer grows correctly past its initial
// capacity while preserving element order
func TestGrowth(t *testing.T) {
	d := NewDeque()
	n := 1000

	// Alternate ends so the ring wraps repeatedly while growing
	for i := 0; i < n; i++ {
		value := []byte(fmt.Sprintf("value-%d", i))
		if i%2 == 0 {
			d.PushBack(value)
		} else {
			d.PushFront(value)
		}
	}

	if d.Len() != n {
		t.Fatalf("Deque should have %d elements, has %d", n, d.Len())
	}

	// Odd indices were pushed front in increasing order, so the left half
	// holds them reversed, followed by the even indices in order.
	want := make([]string, 0, n)
	for i := n - 1; i >= 1; i -= 2 {
		want = append(want, fmt.Sprintf("value-%d", i))
	}
	for i := 0; i < n; i += 2 {
		want = append(want, fmt.Sprintf("value-%d", i))
	}

	snap := d.Snapshot()
	for i, w := range want {
		if string(snap[i]) != w {
			t.Fatalf("Element %d: expected %q, got %q", i, w, snap[i])
		}
	}
}

// TestSnapshotIsolation tests that Snapshot deep-copies the elements
func TestSnapshotIsolation(t *testing.T) {
	d := NewDeque()
	d.PushBack([]byte("original"))

	snap := d.Snapshot()
	snap[0][0] = 'X'

	got, _ := d.At(0)
	if !bytes.Equal(got, []byte("original")) {
		t.Errorf("Snapshot should not alias deque contents, deque now holds %q", got)
	}
}

// TestAtBounds tests out-of-range indexed access
func TestAtBounds(t *testing.T) {
	d := NewDeque()
	d.PushBack([]byte("only"))

	if _, ok := d.At(-1); ok {
		t.Error("At(-1) should return ok=false")
	}
	if _, ok := d.At(1); ok {
		t.Error("At(1) should return ok=false on a single-element deque")
	}
	if got, ok := d.At(0); !ok || string(got) != "only" {
		t.Errorf("At(0) returned %q (ok=%v)", got, ok)
	}
}

// TestDrainRefill tests reuse after the deque has been fully drained
func TestDrainRefill(t *testing.T) {
	d := NewDeque()

	for round := 0; round < 3; round++ {
		for i := 0; i < 100; i++ {
			d.PushBack([]byte(fmt.Sprintf("r%d-%d", round, i)))
		}
		for i := 0; i < 100; i++ {
			want := fmt.Sprintf("r%d-%d", round, i)
			got, ok := d.PopFront()
			if !ok || string(got) != want {
				t.Fatalf("Round %d: expected %q, got %q (ok=%v)", round, want, got, ok)
			}
		}
		if d.Len() != 0 {
			t.Fatalf("Round %d: deque should be empty, has %d", round, d.Len())
		}
	}
}
