//go:build linux

package inotify

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// room for 1024 records with short names, a longer batch is read in the
// next pass.
const bufferSize = 1024 * (HeaderSize + 16)

// Instance is one inotify descriptor. Wait and Read are meant for a single
// reading goroutine; AddWatch and RemoveWatch may be called concurrently.
type Instance struct {
	fd  int
	buf []byte
}

func New() (*Instance, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("inotify :: init: %w", err)
	}

	return &Instance{
		fd:  fd,
		buf: make([]byte, bufferSize),
	}, nil
}

// AddWatch watches path for mask. Watching an already watched path returns
// the existing descriptor with mask added to it.
func (i *Instance) AddWatch(path string, mask uint32) (int, error) {
	wd, err := unix.InotifyAddWatch(i.fd, path, mask|unix.IN_MASK_ADD)
	if err != nil {
		return -1, fmt.Errorf("inotify :: add watch %s: %w", path, err)
	}
	return wd, nil
}

func (i *Instance) RemoveWatch(wd int) error {
	if _, err := unix.InotifyRmWatch(i.fd, uint32(wd)); err != nil {
		return fmt.Errorf("inotify :: remove watch %d: %w", wd, err)
	}
	return nil
}

// Wait blocks until the descriptor is readable or timeout elapsed. An
// interrupted wait reports not ready.
func (i *Instance) Wait(timeout time.Duration) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(i.fd), Events: unix.POLLIN}}

	n, err := unix.Poll(fds, pollMillis(timeout))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return false, nil
		}
		return false, fmt.Errorf("inotify :: poll: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	if fds[0].Revents&unix.POLLNVAL != 0 {
		return false, fmt.Errorf("inotify :: poll: %w", unix.EBADF)
	}
	return fds[0].Revents&unix.POLLIN != 0, nil
}

// pollMillis rounds timeout up to whole milliseconds, so a positive timeout
// never turns into a non-blocking poll.
func pollMillis(timeout time.Duration) int {
	if timeout <= 0 {
		return 0
	}
	return int((timeout + time.Millisecond - 1) / time.Millisecond)
}

// Read drains one batch of records.
func (i *Instance) Read() ([]Record, error) {
	n, err := unix.Read(i.fd, i.buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return nil, nil
		}
		return nil, fmt.Errorf("inotify :: read: %w", err)
	}
	if n <= 0 {
		return nil, nil
	}
	return Decode(i.buf[:n])
}

func (i *Instance) Close() error {
	if err := unix.Close(i.fd); err != nil {
		return fmt.Errorf("inotify :: close: %w", err)
	}
	return nil
}
