//go:build linux

package inotify

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestInstance_ReadsModify(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "routes.txt")
	require.NoError(t, os.WriteFile(file, []byte("a"), 0644))

	in, err := New()
	require.NoError(t, err)
	defer in.Close()

	wd, err := in.AddWatch(dir, unix.IN_MODIFY)
	require.NoError(t, err)

	again, err := in.AddWatch(dir, unix.IN_CLOSE_WRITE)
	require.NoError(t, err)
	require.Equal(t, wd, again, "same path shares one descriptor")

	ready, err := in.Wait(10 * time.Millisecond)
	require.NoError(t, err)
	require.False(t, ready)

	require.NoError(t, os.WriteFile(file, []byte("b"), 0644))

	ready, err = in.Wait(time.Second)
	require.NoError(t, err)
	require.True(t, ready)

	records, err := in.Read()
	require.NoError(t, err)
	require.NotEmpty(t, records)
	require.Equal(t, int32(wd), records[0].Wd)
	require.Equal(t, "routes.txt", records[0].Name)

	require.NoError(t, in.RemoveWatch(wd))
	require.Error(t, in.RemoveWatch(wd))
}

func TestInstance_AddWatchMissingPath(t *testing.T) {
	in, err := New()
	require.NoError(t, err)
	defer in.Close()

	_, err = in.AddWatch(filepath.Join(t.TempDir(), "missing"), unix.IN_MODIFY)
	require.ErrorIs(t, err, unix.ENOENT)
}

func TestPollMillis(t *testing.T) {
	tests := []struct {
		timeout time.Duration
		want    int
	}{
		{timeout: 0, want: 0},
		{timeout: -time.Second, want: 0},
		{timeout: time.Nanosecond, want: 1},
		{timeout: 100 * time.Microsecond, want: 1},
		{timeout: time.Millisecond, want: 1},
		{timeout: 1500 * time.Microsecond, want: 2},
		{timeout: time.Second, want: 1000},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, pollMillis(tt.timeout), "timeout %v", tt.timeout)
	}
}
