package registry

import (
	"errors"
	"fmt"
	"sync"
)

// Handle identifies one registered value. Handles of one Registry are
// strictly increasing and never reused, even after Remove.
type Handle int64

var ErrNotFound = errors.New("handle is not registered")

// Registry is a thread-safe table of values addressed by Handle.
type Registry[T any] struct {
	values  map[Handle]T
	counter Handle
	mutex   sync.Mutex
}

func New[T any]() *Registry[T] {
	return &Registry[T]{
		values: make(map[Handle]T),
	}
}

// Register stores value and returns its newly allocated handle.
func (r *Registry[T]) Register(value T) Handle {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.values == nil {
		r.values = make(map[Handle]T)
	}

	r.counter++
	r.values[r.counter] = value
	return r.counter
}

// Remove drops handle from the table, unknown handles are ignored.
func (r *Registry[T]) Remove(handle Handle) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	delete(r.values, handle)
}

func (r *Registry[T]) IsRegistered(handle Handle) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	_, ok := r.values[handle]
	return ok
}

// Get returns a copy of the value stored under handle.
func (r *Registry[T]) Get(handle Handle) (T, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	value, ok := r.values[handle]
	if !ok {
		var zero T
		return zero, fmt.Errorf("registry :: get %d: %w", handle, ErrNotFound)
	}
	return value, nil
}

func (r *Registry[T]) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return len(r.values)
}
