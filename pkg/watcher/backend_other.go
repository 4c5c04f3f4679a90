//go:build !linux

package watcher

func newDefaultBackend() (Backend, error) {
	return NewFSNotifyBackend()
}
