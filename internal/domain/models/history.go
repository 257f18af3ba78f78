package models

// History is a bounded FIFO buffer. Once full, each push evicts the oldest
// entry. Zero value is unusable; construct with NewHistory.
type History[T any] struct {
	buf      []T
	capacity int
	head     int
	size     int
}

const DefaultHistoryCapacity = 1000

// NewHistory creates a buffer holding at most capacity entries. A
// non-positive capacity falls back to DefaultHistoryCapacity.
func NewHistory[T any](capacity int) *History[T] {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &History[T]{
		buf:      make([]T, 0, capacity),
		capacity: capacity,
	}
}

// Push appends v, evicting the oldest entry when the buffer is full.
func (h *History[T]) Push(v T) {
	if h.size < h.capacity {
		h.buf = append(h.buf, v)
		h.size++
		return
	}
	h.buf[h.head] = v
	h.head = (h.head + 1) % h.capacity
}

func (h *History[T]) Len() int { return h.size }

func (h *History[T]) Cap() int { return h.capacity }

// Items returns a copy of the buffer, oldest first.
func (h *History[T]) Items() []T {
	out := make([]T, 0, h.size)
	for i := 0; i < h.size; i++ {
		out = append(out, h.buf[(h.head+i)%h.capacity])
	}
	return out
}

// Tail returns the newest limit entries, oldest first. limit <= 0 or
// limit >= Len returns everything.
func (h *History[T]) Tail(limit int) []T {
	items := h.Items()
	if limit <= 0 || limit >= len(items) {
		return items
	}
	return items[len(items)-limit:]
}

// Clear drops all entries, keeping the allocated capacity.
func (h *History[T]) Clear() {
	var zero T
	for i := range h.buf {
		h.buf[i] = zero
	}
	h.buf = h.buf[:0]
	h.head = 0
	h.size = 0
}
