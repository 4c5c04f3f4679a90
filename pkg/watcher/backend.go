package watcher

import (
	"errors"
	"time"

	"github.com/ManouchehrRasoulli/rfskeeper/pkg/model"
)

var ErrBackendClosed = errors.New("notification backend is closed")

// RawEvent is one change record as produced by a Backend, before it is
// resolved to a registration.
type RawEvent struct {
	// Wd is the backend watch descriptor, -1 for queue-wide records.
	Wd     int
	Op     model.Op
	Cookie uint32
	// Name is empty when the change concerns the watched path itself.
	Name string
	// Dropped reports that the backend ended the watch on its own, after the
	// watched path went away. No more events follow for Wd.
	Dropped bool
}

// Backend is an OS change-notification channel.
//
// Add must return the same descriptor when the same path is added twice and
// merge the masks; Remove is only called once the last registration on a
// descriptor is gone, and never for a descriptor reported Dropped. Each event
// carries the descriptor of the watch that observed it, so a change seen by a
// directory watch and by a watch on the file itself yields one event per
// descriptor. Read blocks at most timeout and may return zero, one or many
// events; it returns ErrBackendClosed once the backend can no longer deliver.
type Backend interface {
	Add(path string, mask model.Op) (int, error)
	Remove(wd int) error
	Read(timeout time.Duration) ([]RawEvent, error)
	Close() error
}

// BackendName selects a Backend implementation.
type BackendName string

const (
	BackendInotify  BackendName = "inotify"
	BackendFSNotify BackendName = "fsnotify"
)

// NewBackend opens the named backend. The inotify backend is only available
// on Linux.
func NewBackend(name BackendName) (Backend, error) {
	switch name {
	case BackendFSNotify:
		return NewFSNotifyBackend()
	case BackendInotify, "":
		return newDefaultBackend()
	default:
		return nil, errors.New("watcher :: unknown backend " + string(name))
	}
}
