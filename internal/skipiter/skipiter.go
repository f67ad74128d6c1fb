// Package skipiter wraps a lazy sequence so callers can mark upcoming values
// to be dropped.
package skipiter

// Source produces a lazy sequence of values.
type Source[T any] interface {
	HasNext() bool
	Next() T
}

// SliceSource walks a slice.
type SliceSource[T any] struct {
	items []T
	pos   int
}

func FromSlice[T any](items ...T) *SliceSource[T] {
	return &SliceSource[T]{items: items}
}

func (s *SliceSource[T]) HasNext() bool { return s.pos < len(s.items) }

func (s *SliceSource[T]) Next() T {
	v := s.items[s.pos]
	s.pos++
	return v
}

// Iterator yields the source's values minus the skipped ones. Each Skip(v)
// drops exactly one future occurrence of v.
type Iterator[T comparable] struct {
	src     Source[T]
	pending map[T]int

	next    T
	hasNext bool
}

func New[T comparable](src Source[T]) *Iterator[T] {
	it := &Iterator[T]{src: src, pending: make(map[T]int)}
	it.advance()
	return it
}

func (it *Iterator[T]) HasNext() bool { return it.hasNext }

// Next returns the next unskipped value. The second result is false once the
// sequence is exhausted.
func (it *Iterator[T]) Next() (T, bool) {
	if !it.hasNext {
		var zero T
		return zero, false
	}
	v := it.next
	it.advance()
	return v, true
}

// Skip drops the next occurrence of v. If v is the value Next would return,
// it is dropped right away.
func (it *Iterator[T]) Skip(v T) {
	if it.hasNext && it.next == v {
		it.advance()
		return
	}
	it.pending[v]++
}

// Pending returns how many skips of v are still waiting for a match.
func (it *Iterator[T]) Pending(v T) int {
	return it.pending[v]
}

// advance moves the cursor to the next value that no pending skip consumes.
func (it *Iterator[T]) advance() {
	var zero T
	it.next, it.hasNext = zero, false
	for it.src.HasNext() {
		v := it.src.Next()
		if n, ok := it.pending[v]; ok {
			if n == 1 {
				delete(it.pending, v)
			} else {
				it.pending[v] = n - 1
			}
			continue
		}
		it.next, it.hasNext = v, true
		return
	}
}
