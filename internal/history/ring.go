// Package history provides the bounded turn buffer used by the session controller.
package history

// Ring is a fixed-capacity FIFO buffer. Pushing into a full ring evicts the oldest element. The zero value
// is not usable; create rings with New.
type Ring[T any] struct {
	items []T
	start int
	size  int
}

// New creates a ring that holds at most capacity elements. A capacity below one is treated as one.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Push appends v. It returns the evicted element and true when the ring was full.
func (r *Ring[T]) Push(v T) (T, bool) {
	var evicted T
	if r.size < len(r.items) {
		r.items[(r.start+r.size)%len(r.items)] = v
		r.size++
		return evicted, false
	}

	evicted = r.items[r.start]
	r.items[r.start] = v
	r.start = (r.start + 1) % len(r.items)
	return evicted, true
}

// Len returns the number of stored elements.
func (r *Ring[T]) Len() int {
	return r.size
}

// Cap returns the capacity the ring was created with.
func (r *Ring[T]) Cap() int {
	return len(r.items)
}

// Items returns a copy of the stored elements, oldest first.
func (r *Ring[T]) Items() []T {
	out := make([]T, r.size)
	for i := range r.size {
		out[i] = r.items[(r.start+i)%len(r.items)]
	}
	return out
}

// Last returns the newest element.
func (r *Ring[T]) Last() (T, bool) {
	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.items[(r.start+r.size-1)%len(r.items)], true
}

// Clear drops every element.
func (r *Ring[T]) Clear() {
	clear(r.items)
	r.start = 0
	r.size = 0
}
