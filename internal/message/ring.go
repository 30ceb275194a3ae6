package message

// Ring is a fixed-capacity circular buffer that drops the oldest item when full.
//
// Thread Safety:
//   - Not safe for concurrent use. The message log is owned by the reactor goroutine.
type Ring[T any] struct {
	items    []T
	capacity int
	size     int
	head     int // next write position
	dropped  uint64
}

// NewRing creates a ring holding at most capacity items (minimum 1).
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Push appends item, evicting the oldest item past capacity.
// Returns true when an item was evicted.
func (r *Ring[T]) Push(item T) bool {
	evicted := false
	if r.size == r.capacity {
		r.size--
		r.dropped++
		evicted = true
	}
	r.items[r.head] = item
	r.head = (r.head + 1) % r.capacity
	r.size++
	return evicted
}

// All returns a copy of the contents, oldest first.
func (r *Ring[T]) All() []T {
	out := make([]T, r.size)
	tail := (r.head - r.size + r.capacity) % r.capacity
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(tail+i)%r.capacity]
	}
	return out
}

// Len returns the number of items held.
func (r *Ring[T]) Len() int { return r.size }

// Cap returns the capacity.
func (r *Ring[T]) Cap() int { return r.capacity }

// Dropped returns how many items have been evicted since creation.
func (r *Ring[T]) Dropped() uint64 { return r.dropped }
