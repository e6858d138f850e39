package containers

import "sync"

// Queue abstracts a generics FIFO queue, which is thread-safe
type Queue[T any] interface {
	Add(elem T)
	Pop() (T, bool)
	Peek() (T, bool)
	Size() int
}

// SliceQueue is a FIFO queue backed by a slice. A token is made
// available on C whenever an element is added, so a consumer can
// select on C and then drain the queue with Pop.
type SliceQueue[T any] struct {
	C chan struct{}

	mu    sync.Mutex
	elems []T
}

// NewSliceQueue creates a new SliceQueue.
func NewSliceQueue[T any]() *SliceQueue[T] {
	return &SliceQueue[T]{
		C: make(chan struct{}, 1),
	}
}

// Add appends elem at the back of the queue.
func (q *SliceQueue[T]) Add(elem T) {
	q.mu.Lock()
	q.elems = append(q.elems, elem)
	q.mu.Unlock()

	select {
	case q.C <- struct{}{}:
	default:
	}
}

// Pop removes and returns the element at the front of the queue.
func (q *SliceQueue[T]) Pop() (T, bool) {
	var zero T

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.elems) == 0 {
		return zero, false
	}

	elem := q.elems[0]
	q.elems[0] = zero
	q.elems = q.elems[1:]
	return elem, true
}

// Peek returns the element at the front of the queue without
// removing it.
func (q *SliceQueue[T]) Peek() (T, bool) {
	var zero T

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.elems) == 0 {
		return zero, false
	}
	return q.elems[0], true
}

// Size returns the number of queued elements.
func (q *SliceQueue[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.elems)
}
