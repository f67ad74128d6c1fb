// Package topk provides a fixed-capacity min-heap that keeps the k greatest
// elements it has been offered.
package topk

import "container/heap"

// Heap retains at most Cap() elements. less orders elements ascending; the
// root is always the smallest retained element and is the one evicted.
type Heap[T any] struct {
	capacity int
	items    minHeap[T]
}

// New returns an empty heap of the given capacity. A capacity of zero or less
// retains nothing.
func New[T any](capacity int, less func(a, b T) bool) *Heap[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Heap[T]{
		capacity: capacity,
		items:    minHeap[T]{less: less, data: make([]T, 0, capacity+1)},
	}
}

// Offer inserts v and evicts the smallest element if the heap grew past its
// capacity. It reports whether v is still retained afterwards.
func (h *Heap[T]) Offer(v T) bool {
	if h.capacity == 0 {
		return false
	}
	if len(h.items.data) == h.capacity && !h.items.less(h.items.data[0], v) {
		// v would be evicted immediately.
		return false
	}
	heap.Push(&h.items, v)
	if len(h.items.data) > h.capacity {
		heap.Pop(&h.items)
	}
	return true
}

func (h *Heap[T]) Len() int { return len(h.items.data) }

func (h *Heap[T]) Cap() int { return h.capacity }

// Min returns the smallest retained element.
func (h *Heap[T]) Min() (T, bool) {
	if len(h.items.data) == 0 {
		var zero T
		return zero, false
	}
	return h.items.data[0], true
}

// Drain empties the heap and returns its elements in ascending order.
func (h *Heap[T]) Drain() []T {
	res := make([]T, 0, len(h.items.data))
	for len(h.items.data) > 0 {
		res = append(res, heap.Pop(&h.items).(T))
	}
	return res
}

// DrainDescending empties the heap and returns its elements greatest first.
func (h *Heap[T]) DrainDescending() []T {
	res := h.Drain()
	for i, j := 0, len(res)-1; i < j; i, j = i+1, j-1 {
		res[i], res[j] = res[j], res[i]
	}
	return res
}

type minHeap[T any] struct {
	less func(a, b T) bool
	data []T
}

func (m minHeap[T]) Len() int           { return len(m.data) }
func (m minHeap[T]) Less(i, j int) bool { return m.less(m.data[i], m.data[j]) }
func (m minHeap[T]) Swap(i, j int)      { m.data[i], m.data[j] = m.data[j], m.data[i] }

func (m *minHeap[T]) Push(x any) { m.data = append(m.data, x.(T)) }

func (m *minHeap[T]) Pop() any {
	old := m.data
	n := len(old)
	v := old[n-1]
	var zero T
	old[n-1] = zero
	m.data = old[:n-1]
	return v
}
