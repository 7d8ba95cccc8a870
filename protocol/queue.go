package protocol

// Queue is a fixed-capacity FIFO with wraparound storage.
// Pushing into a full queue flushes it and reports an *OverflowError;
// the queue never grows and never evicts partially.
type Queue[T any] struct {
	buf   []T
	head  int // Index of the oldest element
	count int
	role  QueueRole
}

// NewQueue creates a queue holding up to capacity elements
func NewQueue[T any](capacity int, role QueueRole) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{
		buf:  make([]T, capacity),
		role: role,
	}
}

// Push appends v. If the queue is full, everything queued (and v) is
// dropped and an *OverflowError identifying the queue role is returned.
func (q *Queue[T]) Push(v T) error {
	if q.count == len(q.buf) {
		dropped := q.count + 1
		q.Flush()
		return &OverflowError{Role: q.role, Dropped: dropped}
	}

	tail := q.head + q.count
	if tail >= len(q.buf) {
		tail -= len(q.buf)
	}
	q.buf[tail] = v
	q.count++
	return nil
}

// Pop removes and returns the oldest element.
// ok is false, and nothing changes, when the queue is empty.
func (q *Queue[T]) Pop() (v T, ok bool) {
	if q.count == 0 {
		return v, false
	}

	var zero T
	v = q.buf[q.head]
	q.buf[q.head] = zero
	q.head++
	if q.head == len(q.buf) {
		q.head = 0
	}
	q.count--
	if q.count == 0 {
		q.head = 0
	}
	return v, true
}

// Peek returns the oldest element without removing it
func (q *Queue[T]) Peek() (v T, ok bool) {
	if q.count == 0 {
		return v, false
	}
	return q.buf[q.head], true
}

// RemoveFirst removes the oldest element matching fn, preserving the order
// of the others. It reports whether an element was removed.
func (q *Queue[T]) RemoveFirst(fn func(T) bool) (v T, ok bool) {
	n := q.count
	for i := 0; i < n; i++ {
		e, _ := q.Pop()
		if !ok && fn(e) {
			v, ok = e, true
			continue
		}
		// Cannot overflow: at least one slot was freed by the Pop above
		_ = q.Push(e)
	}
	return v, ok
}

// Len returns the number of queued elements
func (q *Queue[T]) Len() int {
	return q.count
}

// Cap returns the fixed capacity
func (q *Queue[T]) Cap() int {
	return len(q.buf)
}

// IsEmpty returns true if nothing is queued
func (q *Queue[T]) IsEmpty() bool {
	return q.count == 0
}

// Role returns the role reported on overflow
func (q *Queue[T]) Role() QueueRole {
	return q.role
}

// Flush drops all queued elements
func (q *Queue[T]) Flush() {
	var zero T
	for i := range q.buf {
		q.buf[i] = zero
	}
	q.head = 0
	q.count = 0
}
