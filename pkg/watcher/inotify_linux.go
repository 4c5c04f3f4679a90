//go:build linux

package watcher

import (
	"sync/atomic"
	"time"

	"github.com/ManouchehrRasoulli/rfskeeper/internal/inotify"
	"github.com/ManouchehrRasoulli/rfskeeper/pkg/model"
	"golang.org/x/sys/unix"
)

var opMasks = []struct {
	op   model.Op
	mask uint32
}{
	{model.Create, unix.IN_CREATE},
	{model.Write, unix.IN_MODIFY},
	{model.Remove, unix.IN_DELETE | unix.IN_DELETE_SELF},
	{model.Rename, unix.IN_MOVED_FROM | unix.IN_MOVE_SELF},
	{model.Chmod, unix.IN_ATTRIB},
	{model.CloseWrite, unix.IN_CLOSE_WRITE},
	{model.MovedTo, unix.IN_MOVED_TO},
	{model.Overflow, unix.IN_Q_OVERFLOW},
}

func toInotifyMask(op model.Op) uint32 {
	var mask uint32
	for _, m := range opMasks {
		if op.Has(m.op) {
			mask |= m.mask
		}
	}
	return mask
}

func fromInotifyMask(mask uint32) model.Op {
	var op model.Op
	for _, m := range opMasks {
		if mask&m.mask != 0 {
			op |= m.op
		}
	}
	return op
}

type inotifyBackend struct {
	in     *inotify.Instance
	closed atomic.Bool
}

// NewInotifyBackend opens a Backend on a fresh inotify descriptor.
func NewInotifyBackend() (Backend, error) {
	in, err := inotify.New()
	if err != nil {
		return nil, err
	}
	return &inotifyBackend{in: in}, nil
}

func newDefaultBackend() (Backend, error) {
	return NewInotifyBackend()
}

func (b *inotifyBackend) Add(path string, mask model.Op) (int, error) {
	if b.closed.Load() {
		return -1, ErrBackendClosed
	}
	return b.in.AddWatch(path, toInotifyMask(mask))
}

func (b *inotifyBackend) Remove(wd int) error {
	if b.closed.Load() {
		return ErrBackendClosed
	}
	return b.in.RemoveWatch(wd)
}

func (b *inotifyBackend) Read(timeout time.Duration) ([]RawEvent, error) {
	if b.closed.Load() {
		return nil, ErrBackendClosed
	}

	ready, err := b.in.Wait(timeout)
	if err != nil || !ready {
		return nil, err
	}

	records, err := b.in.Read()
	events := make([]RawEvent, 0, len(records))
	for _, r := range records {
		// IN_IGNORED closes a watch the kernel removed. After an explicit
		// Remove the descriptor is already unknown to the monitor.
		if r.Mask&unix.IN_IGNORED != 0 {
			events = append(events, RawEvent{Wd: int(r.Wd), Dropped: true})
			continue
		}
		events = append(events, RawEvent{
			Wd:     int(r.Wd),
			Op:     fromInotifyMask(r.Mask),
			Cookie: r.Cookie,
			Name:   r.Name,
		})
	}
	return events, err
}

func (b *inotifyBackend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.in.Close()
}
