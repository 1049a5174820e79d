package counting

// ringBuffer keeps the most recent capacity values, oldest first.
type ringBuffer[T any] struct {
	items    []T
	capacity int
	head     int // next write position
	size     int
}

func newRingBuffer[T any](capacity int) *ringBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Push appends v, overwriting the oldest value when full.
func (r *ringBuffer[T]) Push(v T) {
	r.items[r.head] = v
	r.head = (r.head + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}
}

// Len returns the number of stored values.
func (r *ringBuffer[T]) Len() int { return r.size }

// At returns the i-th stored value where 0 is the oldest.
func (r *ringBuffer[T]) At(i int) T {
	start := (r.head - r.size + r.capacity) % r.capacity
	return r.items[(start+i)%r.capacity]
}

// Last returns the most recently pushed value.
func (r *ringBuffer[T]) Last() T {
	return r.items[(r.head-1+r.capacity)%r.capacity]
}

// Values returns a copy of the stored values, oldest first.
func (r *ringBuffer[T]) Values() []T {
	out := make([]T, r.size)
	for i := range out {
		out[i] = r.At(i)
	}
	return out
}
