// Package manager decides which files are watched and turns their change
// events into keeper reloads.
//
// Each file is watched through its parent directory and events are matched on
// the file's base name, so replacing the file by renaming a new one over it
// (editors, ConfigMap updates) is seen just like an in-place write.
package manager

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ManouchehrRasoulli/rfskeeper/pkg/logger"
	"github.com/ManouchehrRasoulli/rfskeeper/pkg/model"
	"github.com/ManouchehrRasoulli/rfskeeper/pkg/registry"
	"github.com/ManouchehrRasoulli/rfskeeper/pkg/watcher"
	"github.com/robfig/cron/v3"
)

var (
	ErrDuplicate   = errors.New("path is already managed")
	ErrUnknownPath = errors.New("path is not managed")
	ErrClosed      = errors.New("manager is closed")
)

// Loader reloads one file. *keeper.Keeper satisfies it.
type Loader interface {
	Load() error
	Path() string
}

type Option func(m *Manager)

func WithLogger(lg *log.Logger) Option {
	return func(m *Manager) {
		m.logger = logger.NewColorLogger(lg)
	}
}

// WithMask sets the events that trigger a reload, model.Modified by default.
func WithMask(mask model.Op) Option {
	return func(m *Manager) {
		m.mask = mask
	}
}

// WithResync reloads every managed file on a cron schedule (e.g. "@every 5m")
// to recover from lost notifications.
func WithResync(spec string) Option {
	return func(m *Manager) {
		m.resync = spec
	}
}

type entry struct {
	loader Loader
	handle registry.Handle
}

type Manager struct {
	monitor *watcher.Monitor
	mask    model.Op
	resync  string
	cron    *cron.Cron
	logger  *logger.ColorLogger

	mutex   sync.Mutex
	entries map[string]*entry
	closed  bool
}

// New creates a Manager on top of monitor. The monitor stays owned by the
// caller and must be closed after the manager.
func New(monitor *watcher.Monitor, options ...Option) (*Manager, error) {
	m := &Manager{
		monitor: monitor,
		mask:    model.Modified,
		logger:  logger.NewColorLogger(nil),
		entries: make(map[string]*entry),
	}

	for _, op := range options {
		op(m)
	}

	if m.resync != "" {
		m.cron = cron.New()
		if _, err := m.cron.AddFunc(m.resync, m.resyncAll); err != nil {
			return nil, fmt.Errorf("manager :: resync schedule %q: %w", m.resync, err)
		}
	}

	return m, nil
}

// Start begins the resync schedule, if any.
func (m *Manager) Start() {
	if m.cron != nil {
		m.cron.Start()
	}
}

// Add starts reloading l whenever its file changes.
func (m *Manager) Add(l Loader) error {
	path, err := filepath.Abs(l.Path())
	if err != nil {
		return fmt.Errorf("manager :: resolve %s: %w", l.Path(), err)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.closed {
		return ErrClosed
	}
	if _, ok := m.entries[path]; ok {
		return fmt.Errorf("manager :: add %s: %w", path, ErrDuplicate)
	}

	base := filepath.Base(path)
	handle, err := m.monitor.Register(filepath.Dir(path), m.mask, func(e model.Event) {
		if e.Name != base {
			return
		}
		m.logger.Infof("manager :: reloading %s on event %s", path, e.Op)
		if err := l.Load(); err != nil {
			m.logger.Warnf("manager :: reload of %s failed, keeping the previous value: %v", path, err)
		}
	})
	if err != nil {
		return fmt.Errorf("manager :: watch %s: %w", path, err)
	}

	m.entries[path] = &entry{loader: l, handle: handle}
	m.logger.Infof("manager :: watching %s", path)
	return nil
}

// Remove stops watching path. No reload is triggered for it afterwards.
func (m *Manager) Remove(path string) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	e, ok := m.entries[path]
	if !ok {
		return fmt.Errorf("manager :: remove %s: %w", path, ErrUnknownPath)
	}
	m.monitor.Remove(e.handle)
	delete(m.entries, path)
	return nil
}

// Reload loads path now, regardless of events.
func (m *Manager) Reload(path string) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	m.mutex.Lock()
	e, ok := m.entries[path]
	m.mutex.Unlock()

	if !ok {
		return fmt.Errorf("manager :: reload %s: %w", path, ErrUnknownPath)
	}
	return e.loader.Load()
}

// ReloadAll loads every managed file and joins the failures.
func (m *Manager) ReloadAll() error {
	m.mutex.Lock()
	loaders := make([]Loader, 0, len(m.entries))
	for _, e := range m.entries {
		loaders = append(loaders, e.loader)
	}
	m.mutex.Unlock()

	var errs []error
	for _, l := range loaders {
		if err := l.Load(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", l.Path(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) resyncAll() {
	if err := m.ReloadAll(); err != nil {
		m.logger.Warnf("manager :: scheduled resync failed: %v", err)
	}
}

// Paths lists the managed files in lexical order.
func (m *Manager) Paths() []string {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	paths := make([]string, 0, len(m.entries))
	for p := range m.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Close stops the resync schedule, waiting for a running resync, and removes
// every registration from the monitor.
func (m *Manager) Close() {
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.closed = true
	for path, e := range m.entries {
		m.monitor.Remove(e.handle)
		delete(m.entries, path)
	}
}
