package watcher

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/ManouchehrRasoulli/rfskeeper/pkg/model"
	"github.com/fsnotify/fsnotify"
)

const fsEventBuffer = 256

var fsOps = []struct {
	from fsnotify.Op
	to   model.Op
}{
	{fsnotify.Create, model.Create},
	{fsnotify.Write, model.Write},
	{fsnotify.Remove, model.Remove},
	{fsnotify.Rename, model.Rename},
	{fsnotify.Chmod, model.Chmod},
}

// fsWatch is one watched path with its own fsnotify watcher, so every event
// is known to come from this path's watch.
type fsWatch struct {
	wd   int
	path string
	fw   *fsnotify.Watcher
	stop chan struct{}
	once sync.Once
}

func (w *fsWatch) close() error {
	var err error
	w.once.Do(func() {
		close(w.stop)
		err = w.fw.Close()
	})
	return err
}

// fsBackend adapts fsnotify to the Backend contract. fsnotify has no watch
// descriptors, so paths get synthetic ones.
type fsBackend struct {
	mutex   sync.Mutex
	nextWd  int
	byPath  map[string]int
	watches map[int]*fsWatch
	closed  bool

	events  chan RawEvent
	errs    chan error
	closing chan struct{}
	wg      sync.WaitGroup
}

// NewFSNotifyBackend opens a portable Backend built on fsnotify. It reports
// Create, Write, Remove, Rename and Chmod only, and never sets a cookie.
// Each watched path holds its own fsnotify watcher, which on Linux is one
// inotify instance (bounded by fs.inotify.max_user_instances).
func NewFSNotifyBackend() (Backend, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher :: fsnotify init: %w", err)
	}
	_ = fw.Close()

	return &fsBackend{
		byPath:  make(map[string]int),
		watches: make(map[int]*fsWatch),
		events:  make(chan RawEvent, fsEventBuffer),
		errs:    make(chan error, 1),
		closing: make(chan struct{}),
	}, nil
}

func (b *fsBackend) Add(path string, _ model.Op) (int, error) {
	path = filepath.Clean(path)

	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.closed {
		return -1, ErrBackendClosed
	}
	if wd, ok := b.byPath[path]; ok {
		return wd, nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return -1, fmt.Errorf("watcher :: fsnotify init: %w", err)
	}
	if err := fw.Add(path); err != nil {
		_ = fw.Close()
		return -1, fmt.Errorf("watcher :: fsnotify add %s: %w", path, err)
	}

	b.nextWd++
	w := &fsWatch{wd: b.nextWd, path: path, fw: fw, stop: make(chan struct{})}
	b.byPath[path] = w.wd
	b.watches[w.wd] = w

	b.wg.Add(1)
	go b.forward(w)
	return w.wd, nil
}

func (b *fsBackend) Remove(wd int) error {
	b.mutex.Lock()
	w, ok := b.watches[wd]
	if ok {
		delete(b.watches, wd)
		delete(b.byPath, w.path)
	}
	b.mutex.Unlock()

	if !ok {
		return fmt.Errorf("watcher :: fsnotify remove %d: unknown descriptor", wd)
	}
	if err := w.close(); err != nil {
		return fmt.Errorf("watcher :: fsnotify remove %s: %w", w.path, err)
	}
	return nil
}

func (b *fsBackend) Read(timeout time.Duration) ([]RawEvent, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-b.closing:
		return nil, ErrBackendClosed
	case e := <-b.events:
		events := []RawEvent{e}
		for { // drain whatever is already queued
			select {
			case e := <-b.events:
				events = append(events, e)
			default:
				return events, nil
			}
		}
	case err := <-b.errs:
		return nil, err
	case <-timer.C:
		return nil, nil
	}
}

func (b *fsBackend) Close() error {
	b.mutex.Lock()
	if b.closed {
		b.mutex.Unlock()
		return nil
	}
	b.closed = true
	close(b.closing)
	watches := make([]*fsWatch, 0, len(b.watches))
	for _, w := range b.watches {
		watches = append(watches, w)
	}
	b.watches = make(map[int]*fsWatch)
	b.byPath = make(map[string]int)
	b.mutex.Unlock()

	var errs []error
	for _, w := range watches {
		if err := w.close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.wg.Wait()
	return errors.Join(errs...)
}

// forward moves the events of one watch onto the shared queue. A removed
// watched path ends the watch.
func (b *fsBackend) forward(w *fsWatch) {
	defer b.wg.Done()

	for {
		select {
		case e, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if len(e.Name) == 0 { // no event !
				continue
			}

			name := filepath.Clean(e.Name)
			raw := RawEvent{Wd: w.wd, Op: fromFSOp(e.Op)}
			if name != w.path {
				raw.Name = filepath.Base(name)
			}
			if !b.send(w, raw) {
				return
			}

			if name == w.path && e.Op&fsnotify.Remove != 0 {
				b.send(w, RawEvent{Wd: w.wd, Dropped: true})
				b.release(w)
				return
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			select {
			case b.errs <- fmt.Errorf("watcher :: fsnotify %s: %w", w.path, err):
			case <-w.stop:
				return
			}
		case <-w.stop:
			return
		}
	}
}

func (b *fsBackend) send(w *fsWatch, e RawEvent) bool {
	select {
	case b.events <- e:
		return true
	case <-w.stop:
		return false
	}
}

func (b *fsBackend) release(w *fsWatch) {
	b.mutex.Lock()
	if b.watches[w.wd] == w {
		delete(b.watches, w.wd)
		delete(b.byPath, w.path)
	}
	b.mutex.Unlock()

	_ = w.close()
}

func fromFSOp(from fsnotify.Op) model.Op {
	var op model.Op
	for _, m := range fsOps {
		if from&m.from != 0 {
			op |= m.to
		}
	}
	return op
}
