package internal

import "fmt"

// contextStack is the LIFO backing one kind of context for a single worker.
// It is intentionally unlocked: a Scope must never be shared live between
// goroutines, so ordinary push/pop/top needs no synchronization.
type contextStack[T comparable] struct {
	items []T
}

func (s *contextStack[T]) push(v T) {
	s.items = append(s.items, v)
}

// pop removes the top entry and verifies it is the one the caller expected.
// A mismatch means push/pop calls were interleaved across contexts, which is
// a usage error in the hosting application and is surfaced immediately.
func (s *contextStack[T]) pop(expected T) {
	if len(s.items) == 0 {
		panic("mortar: popped a context that was never pushed")
	}
	top := s.items[len(s.items)-1]
	if top != expected {
		panic(fmt.Sprintf("mortar: popped wrong context (%v instead of %v)", top, expected))
	}
	s.items[len(s.items)-1] = *new(T)
	s.items = s.items[:len(s.items)-1]
}

// top returns the most recently pushed entry. The zero value with ok=false
// marks an empty stack, which is a valid state; only reading current-context
// state through the accessors while empty is an error.
func (s *contextStack[T]) top() (T, bool) {
	if len(s.items) == 0 {
		var zero T
		return zero, false
	}
	return s.items[len(s.items)-1], true
}

func (s *contextStack[T]) depth() int {
	return len(s.items)
}
