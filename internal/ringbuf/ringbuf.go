// Package ringbuf provides a fixed-capacity FIFO ring buffer that evicts the
// oldest element when full. It is used for bounded price series and the
// websocket backlogs where appends must stay O(1) regardless of history length.
//
// A Ring is not safe for concurrent use; callers own it or guard it.
package ringbuf

// Ring is a bounded FIFO of T values.
type Ring[T any] struct {
	buf   []T
	head  int // index of the oldest element
	count int
}

// New creates a ring holding at most capacity elements. Minimum capacity is 1.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v, overwriting the oldest element when the ring is full.
func (r *Ring[T]) Push(v T) {
	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = v
		r.count++
		return
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
}

// At returns the i-th element counting from the oldest (0).
func (r *Ring[T]) At(i int) (T, bool) {
	var zero T
	if i < 0 || i >= r.count {
		return zero, false
	}
	return r.buf[(r.head+i)%len(r.buf)], true
}

// Newest returns the n-th element counting back from the newest (0).
func (r *Ring[T]) Newest(n int) (T, bool) {
	return r.At(r.count - 1 - n)
}

// Slice copies the contents, oldest first.
func (r *Ring[T]) Slice() []T {
	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Len returns the current number of elements.
func (r *Ring[T]) Len() int { return r.count }
