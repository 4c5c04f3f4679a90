// Package hotbuffer holds a value that a single writer replaces while any
// number of readers keep using whatever version they already picked up.
//
// Readers never lock. A published value is immutable: Publish swaps the
// current pointer, and a reader holding an older pointer keeps a valid,
// unchanged value for as long as it holds it. The garbage collector frees a
// superseded value once its last holder dropped it.
package hotbuffer

import (
	"errors"
	"sync/atomic"
	"time"
)

var ErrNilValue = errors.New("cannot publish a nil value")

// Snapshot is one published version together with its bookkeeping.
type Snapshot[T any] struct {
	Value     *T
	Version   uint64
	Published time.Time
}

// Buffer is a double buffered value. Publish is not safe for concurrent
// writers, callers serialize it.
type Buffer[T any] struct {
	current atomic.Pointer[Snapshot[T]]
}

// New creates a Buffer serving initial as version 0, a nil initial serves
// the zero T.
func New[T any](initial *T) *Buffer[T] {
	if initial == nil {
		initial = new(T)
	}

	b := &Buffer[T]{}
	b.current.Store(&Snapshot[T]{
		Value:     initial,
		Published: time.Now(),
	})
	return b
}

// Get returns the latest published value. The caller must not modify it.
func (b *Buffer[T]) Get() *T {
	return b.current.Load().Value
}

// Load returns the latest snapshot.
func (b *Buffer[T]) Load() Snapshot[T] {
	return *b.current.Load()
}

func (b *Buffer[T]) Version() uint64 {
	return b.current.Load().Version
}

// Publish makes v the current value and returns its version. v must be fully
// built and must not be modified afterwards.
func (b *Buffer[T]) Publish(v *T) (uint64, error) {
	if v == nil {
		return 0, ErrNilValue
	}

	prev := b.current.Load()
	next := &Snapshot[T]{
		Value:     v,
		Version:   prev.Version + 1,
		Published: time.Now(),
	}
	b.current.Store(next)
	return next.Version, nil
}
