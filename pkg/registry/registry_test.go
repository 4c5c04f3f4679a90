package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterGetRemove(t *testing.T) {
	r := New[string]()

	h := r.Register("whitelist")
	require.True(t, r.IsRegistered(h))

	v, err := r.Get(h)
	require.NoError(t, err)
	require.Equal(t, "whitelist", v)

	r.Remove(h)
	require.False(t, r.IsRegistered(h))

	_, err = r.Get(h)
	require.ErrorIs(t, err, ErrNotFound)

	// removing twice is a no-op.
	r.Remove(h)
	require.Equal(t, 0, r.Len())
}

func TestRegistry_HandlesNeverReused(t *testing.T) {
	r := New[int]()

	seen := make(map[Handle]bool)
	var last Handle
	for i := 0; i < 100; i++ {
		h := r.Register(i)
		require.False(t, seen[h], "handle %d returned twice", h)
		require.Greater(t, h, last)
		seen[h] = true
		last = h

		if i%2 == 0 {
			r.Remove(h)
		}
	}
	require.Equal(t, 50, r.Len())
}

func TestRegistry_GetReturnsCopy(t *testing.T) {
	type record struct {
		Path string
	}

	r := New[record]()
	h := r.Register(record{Path: "/etc/a"})

	v, err := r.Get(h)
	require.NoError(t, err)
	v.Path = "/etc/b"

	again, err := r.Get(h)
	require.NoError(t, err)
	assert.Equal(t, "/etc/a", again.Path)
}

func TestRegistry_ZeroValueUsable(t *testing.T) {
	var r Registry[int]

	h := r.Register(1)
	require.Equal(t, Handle(1), h)
	require.True(t, r.IsRegistered(h))
}

func TestRegistry_Concurrent(t *testing.T) {
	r := New[int]()

	const workers = 8
	const perWorker = 200

	var wg sync.WaitGroup
	handles := make(chan Handle, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				h := r.Register(i)
				handles <- h
				_, _ = r.Get(h)
				if i%3 == 0 {
					r.Remove(h)
				}
			}
		}()
	}
	wg.Wait()
	close(handles)

	seen := make(map[Handle]bool)
	for h := range handles {
		require.False(t, seen[h])
		seen[h] = true
	}
	require.Len(t, seen, workers*perWorker)
}
