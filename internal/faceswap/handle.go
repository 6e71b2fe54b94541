package faceswap

import (
	"io"
	"sync"
	"sync/atomic"
)

// Handle is a lazily constructed, shared model slot.
// Concurrent first use constructs the value exactly once. A failed construction leaves the slot empty.
type Handle[T any] struct {
	mu    sync.Mutex
	value atomic.Pointer[T]
	load  func() (T, error)
}

// NewHandle creates an empty handle that builds its value with load
func NewHandle[T any](load func() (T, error)) *Handle[T] {
	return &Handle[T]{load: load}
}

// Acquire returns the shared value, constructing it on first use
func (h *Handle[T]) Acquire() (T, error) {
	if v := h.value.Load(); v != nil {
		return *v, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// another caller may have finished construction while we waited
	if v := h.value.Load(); v != nil {
		return *v, nil
	}

	v, err := h.load()
	if err != nil {
		var zero T
		return zero, err
	}
	h.value.Store(&v)
	return v, nil
}

// Loaded reports whether the slot currently holds a value
func (h *Handle[T]) Loaded() bool {
	return h.value.Load() != nil
}

// Invalidate drops the shared value so the next Acquire reconstructs it.
// Values implementing io.Closer are closed.
func (h *Handle[T]) Invalidate() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	v := h.value.Swap(nil)
	if v == nil {
		return nil
	}
	if c, ok := any(*v).(io.Closer); ok {
		return c.Close()
	}
	return nil
}
